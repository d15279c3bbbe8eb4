package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"paranotes/internal/logging"
	"paranotes/internal/services"
)

// MaintenanceJobName is the scheduler name of the hourly maintenance job
const MaintenanceJobName = "maintenance"

const maintenanceLockKey = "paranotes:maintenance:lock"

// ErrMaintenanceRunning is returned when another run holds the maintenance lock
var ErrMaintenanceRunning = errors.New("maintenance run already in progress")

// MaintenanceReport is the outcome of one maintenance run
type MaintenanceReport struct {
	RunID      string                   `json:"run_id"`
	Trigger    string                   `json:"trigger"`
	StartedAt  time.Time                `json:"started_at"`
	DurationMS int64                    `json:"duration_ms"`
	Reminders  *services.ReminderReport `json:"reminders,omitempty"`
	StatusSync *services.SyncReport     `json:"status_sync,omitempty"`
	Errors     []string                 `json:"errors,omitempty"`
}

// MaintenanceJob runs the reminder pass and the status-sync pass as two
// independent passes. A failing pass does not stop the other one.
type MaintenanceJob struct {
	reminders  *services.ReminderService
	statusSync *services.StatusSyncService
	redis      *services.RedisService
	instanceID string
	timeout    time.Duration
	local      sync.Mutex
}

// NewMaintenanceJob creates the job. redis may be nil for single-instance deployments.
func NewMaintenanceJob(reminders *services.ReminderService, statusSync *services.StatusSyncService, redis *services.RedisService, timeout time.Duration) *MaintenanceJob {
	return &MaintenanceJob{
		reminders:  reminders,
		statusSync: statusSync,
		redis:      redis,
		instanceID: uuid.New().String(),
		timeout:    timeout,
	}
}

// Run implements Job for the in-process schedule
func (j *MaintenanceJob) Run(ctx context.Context) error {
	_, err := j.Execute(ctx, "schedule")
	if errors.Is(err, ErrMaintenanceRunning) {
		log.Printf("⏭️  [SCHEDULER] Maintenance already running elsewhere, skipping")
		return nil
	}
	return err
}

// Execute performs one run. Overlapping runs from the HTTP trigger, the schedule
// or other instances are rejected with ErrMaintenanceRunning.
func (j *MaintenanceJob) Execute(ctx context.Context, trigger string) (*MaintenanceReport, error) {
	if !j.local.TryLock() {
		return nil, ErrMaintenanceRunning
	}
	defer j.local.Unlock()

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	if j.redis != nil {
		acquired, err := j.redis.AcquireLock(ctx, maintenanceLockKey, j.instanceID, j.timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire maintenance lock: %w", err)
		}
		if !acquired {
			return nil, ErrMaintenanceRunning
		}
		defer func() {
			// Release with a fresh context so a timed-out run still frees the lock
			releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer releaseCancel()
			if _, err := j.redis.ReleaseLock(releaseCtx, maintenanceLockKey, j.instanceID); err != nil {
				log.Printf("⚠️  [SCHEDULER] Failed to release maintenance lock: %v", err)
			}
		}()
	}

	report := &MaintenanceReport{
		RunID:     uuid.New().String(),
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}
	logger := logging.WithRun(slog.Default(), report.RunID, trigger)
	logger.Info("maintenance run started")

	reminders, err := j.reminders.Run(ctx)
	report.Reminders = reminders
	if err != nil {
		logger.Error("reminder pass failed", "error", err)
		report.Errors = append(report.Errors, err.Error())
	}

	synced, err := j.statusSync.Run(ctx)
	report.StatusSync = synced
	if err != nil {
		logger.Error("status sync pass failed", "error", err)
		report.Errors = append(report.Errors, err.Error())
	}

	report.DurationMS = time.Since(report.StartedAt).Milliseconds()
	logger.Info("maintenance run finished", "duration_ms", report.DurationMS, "errors", len(report.Errors))
	return report, nil
}
