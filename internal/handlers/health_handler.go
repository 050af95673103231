package handlers

import (
	"context"
	"time"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/database"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/dto"
	"github.com/gofiber/fiber/v2"
)

// Pinger is anything with a cheap liveness probe, such as the task queue.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	queue Pinger
}

func NewHealthHandler(queue Pinger) *HealthHandler {
	return &HealthHandler{queue: queue}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	resp := dto.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DB:        "ok",
		Redis:     "ok",
	}

	if err := database.Ping(); err != nil {
		resp.DB = "unhealthy: " + err.Error()
		resp.Status = "degraded"
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()
	if err := h.queue.Ping(ctx); err != nil {
		resp.Redis = "unhealthy: " + err.Error()
		resp.Status = "degraded"
	}

	if resp.Status != "ok" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	return c.JSON(resp)
}
