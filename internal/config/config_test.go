package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"paranotes/internal/models"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RATE_LIMIT_MAX", "")
	t.Setenv("CLASSIFIER_CONFIDENCE_THRESHOLD", "")
	t.Setenv("SCHEDULER_ENABLED", "")
	t.Setenv("MAINTENANCE_CRON", "")

	cfg := Load()

	if !cfg.SchedulerEnabled || cfg.MaintenanceCron != "0 * * * *" {
		t.Errorf("Expected the hourly in-process schedule, got %v %q", cfg.SchedulerEnabled, cfg.MaintenanceCron)
	}

	if cfg.ConfidenceThreshold != 0.7 {
		t.Errorf("Expected threshold 0.7, got %v", cfg.ConfidenceThreshold)
	}
	if cfg.RateLimitMax != 10 || cfg.RateLimitWindow != time.Minute {
		t.Errorf("Expected 10 per minute, got %d per %s", cfg.RateLimitMax, cfg.RateLimitWindow)
	}
	if cfg.ReminderCapPerRun != 20 || cfg.SyncCapPerRun != 20 {
		t.Errorf("Expected caps of 20, got %d/%d", cfg.ReminderCapPerRun, cfg.SyncCapPerRun)
	}
	if cfg.ReminderTiers != DefaultReminderTiers() {
		t.Errorf("Expected default tiers, got %+v", cfg.ReminderTiers)
	}
	if cfg.ReminderTiers.Tier3Max != models.AutoParkThreshold {
		t.Errorf("Expected reminders to stop after %d, got %d", models.AutoParkThreshold, cfg.ReminderTiers.Tier3Max)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RATE_LIMIT_MAX", "3")
	t.Setenv("CHAT_TIMEOUT", "5s")
	t.Setenv("LLM_BASE_URL", "http://llm.local/v1/")
	t.Setenv("SCHEDULER_ENABLED", "false")
	t.Setenv("MAINTENANCE_TIMEOUT", "not-a-duration")

	cfg := Load()

	if cfg.SchedulerEnabled {
		t.Error("Expected SCHEDULER_ENABLED=false to disable the scheduler")
	}
	if cfg.MaintenanceTimeout != 5*time.Minute {
		t.Errorf("Expected invalid duration to fall back to 5m, got %s", cfg.MaintenanceTimeout)
	}

	if cfg.RateLimitMax != 3 {
		t.Errorf("Expected RATE_LIMIT_MAX=3, got %d", cfg.RateLimitMax)
	}
	if cfg.ChatTimeout != 5*time.Second {
		t.Errorf("Expected 5s chat timeout, got %s", cfg.ChatTimeout)
	}
	if cfg.LLMBaseURL != "http://llm.local/v1" {
		t.Errorf("Expected trailing slash trimmed, got %s", cfg.LLMBaseURL)
	}
}

func TestLoad_YAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "paranotes.yaml")
	content := "SLACK_CHANNEL_ID: C123\nqa_top_n: 3\nRATE_LIMIT_MAX: 99\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SLACK_CHANNEL_ID", "")
	t.Setenv("QA_TOP_N", "")
	t.Setenv("RATE_LIMIT_MAX", "4")

	cfg := Load()

	if cfg.SlackChannelID != "C123" {
		t.Errorf("Expected channel from file, got %q", cfg.SlackChannelID)
	}
	if cfg.QATopN != 3 {
		t.Errorf("Expected lowercase key to apply, got %d", cfg.QATopN)
	}
	if cfg.RateLimitMax != 4 {
		t.Errorf("Expected env to win over file, got %d", cfg.RateLimitMax)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "Threshold out of range",
			mutate:  func(c *Config) { c.ConfidenceThreshold = 1.5 },
			wantErr: "CLASSIFIER_CONFIDENCE_THRESHOLD",
		},
		{
			name:    "Bad cron",
			mutate:  func(c *Config) { c.MaintenanceCron = "every hour" },
			wantErr: "MAINTENANCE_CRON",
		},
		{
			name:    "Tiers out of order",
			mutate:  func(c *Config) { c.ReminderTiers.Tier2Max = 1 },
			wantErr: "reminder tiers",
		},
		{
			name: "Production needs signing secret",
			mutate: func(c *Config) {
				c.Environment = "production"
				c.SlackSigningSecret = ""
			},
			wantErr: "SLACK_SIGNING_SECRET",
		},
		{
			name:    "Non-positive timeout",
			mutate:  func(c *Config) { c.MaintenanceTimeout = 0 },
			wantErr: "MAINTENANCE_TIMEOUT",
		},
		{
			name: "Disabled scheduler skips the cron check",
			mutate: func(c *Config) {
				c.SchedulerEnabled = false
				c.MaintenanceCron = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			cfg := Load()
			cfg.Environment = "development"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestReminderTiers_IntervalFor(t *testing.T) {
	tiers := DefaultReminderTiers()
	tests := []struct {
		count int
		want  time.Duration
	}{
		{0, 24 * time.Hour},
		{2, 24 * time.Hour},
		{3, 48 * time.Hour},
		{5, 48 * time.Hour},
		{6, 7 * 24 * time.Hour},
		{7, 7 * 24 * time.Hour},
	}
	for _, tt := range tests {
		if got := tiers.IntervalFor(tt.count); got != tt.want {
			t.Errorf("IntervalFor(%d) = %s, want %s", tt.count, got, tt.want)
		}
	}
	if tiers.AutoParkAt() != 8 {
		t.Errorf("Expected auto-park at 8, got %d", tiers.AutoParkAt())
	}
}
