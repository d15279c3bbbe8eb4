package handlers

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"paranotes/internal/jobs"
)

// MaintenanceRunner runs one reminder + status-sync pass
type MaintenanceRunner interface {
	Execute(ctx context.Context, trigger string) (*jobs.MaintenanceReport, error)
}

// MaintenanceHandler exposes the hourly maintenance run to an external scheduler
type MaintenanceHandler struct {
	runner MaintenanceRunner
}

// NewMaintenanceHandler creates a new maintenance trigger handler
func NewMaintenanceHandler(runner MaintenanceRunner) *MaintenanceHandler {
	return &MaintenanceHandler{runner: runner}
}

// Trigger runs maintenance synchronously and returns its report.
// POST /api/cron/maintenance (behind CronAuthMiddleware)
func (h *MaintenanceHandler) Trigger(c *fiber.Ctx) error {
	report, err := h.runner.Execute(c.UserContext(), "http")
	if errors.Is(err, jobs.ErrMaintenanceRunning) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err != nil {
		log.Printf("❌ [SCHEDULER] Triggered maintenance failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "maintenance run failed",
		})
	}

	return c.JSON(report)
}
