package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"paranotes/internal/jobs"
	"paranotes/internal/middleware"
	"paranotes/internal/services"
)

type fakeRunner struct {
	report *jobs.MaintenanceReport
	err    error
	calls  int
}

func (f *fakeRunner) Execute(ctx context.Context, trigger string) (*jobs.MaintenanceReport, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.report.Trigger = trigger
	return f.report, nil
}

func setupMaintenanceApp(runner MaintenanceRunner, secret string) *fiber.App {
	app := fiber.New()
	handler := NewMaintenanceHandler(runner)
	app.Post("/api/cron/maintenance", middleware.CronAuthMiddleware(secret), handler.Trigger)
	return app
}

func TestMaintenanceTrigger_ReturnsReport(t *testing.T) {
	runner := &fakeRunner{report: &jobs.MaintenanceReport{
		RunID:      "run-1",
		Reminders:  &services.ReminderReport{Candidates: 3, Due: 2, Sent: 2},
		StatusSync: &services.SyncReport{Drifted: 1, Synced: 1},
	}}
	app := setupMaintenanceApp(runner, "cron_secret")

	req := httptest.NewRequest("POST", "/api/cron/maintenance", nil)
	req.Header.Set("Authorization", "Bearer cron_secret")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var report jobs.MaintenanceReport
	if err := json.Unmarshal(body, &report); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if report.Trigger != "http" {
		t.Errorf("Expected trigger http, got %q", report.Trigger)
	}
	if report.Reminders == nil || report.Reminders.Sent != 2 {
		t.Errorf("Expected 2 reminders sent, got %+v", report.Reminders)
	}
	if report.StatusSync == nil || report.StatusSync.Synced != 1 {
		t.Errorf("Expected 1 note synced, got %+v", report.StatusSync)
	}
}

func TestMaintenanceTrigger_Unauthorized(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		header string
	}{
		{name: "Missing header", secret: "cron_secret", header: ""},
		{name: "Wrong token", secret: "cron_secret", header: "Bearer nope"},
		{name: "No secret configured", secret: "", header: "Bearer "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{report: &jobs.MaintenanceReport{}}
			app := setupMaintenanceApp(runner, tt.secret)

			req := httptest.NewRequest("POST", "/api/cron/maintenance", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, _ := app.Test(req)
			if resp.StatusCode != fiber.StatusUnauthorized {
				t.Errorf("Expected 401, got %d", resp.StatusCode)
			}
			if runner.calls != 0 {
				t.Errorf("Expected no run, got %d", runner.calls)
			}
		})
	}
}

func TestMaintenanceTrigger_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "Already running", err: jobs.ErrMaintenanceRunning, expected: fiber.StatusConflict},
		{name: "Run failed", err: errors.New("store down"), expected: fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := setupMaintenanceApp(&fakeRunner{err: tt.err}, "cron_secret")

			req := httptest.NewRequest("POST", "/api/cron/maintenance", nil)
			req.Header.Set("Authorization", "Bearer cron_secret")
			resp, _ := app.Test(req)
			if resp.StatusCode != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, resp.StatusCode)
			}
		})
	}
}
