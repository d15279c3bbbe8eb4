package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithEvent returns a logger with chat event context fields attached.
// Use this for all logging while routing a single event.
func WithEvent(kind, externalID, channelID string) *slog.Logger {
	return slog.With(
		"event_kind", kind,
		"external_id", externalID,
		"channel_id", channelID,
	)
}

// WithRun returns a logger scoped to one maintenance run.
func WithRun(logger *slog.Logger, runID, trigger string) *slog.Logger {
	return logger.With(
		"run_id", runID,
		"trigger", trigger,
	)
}
