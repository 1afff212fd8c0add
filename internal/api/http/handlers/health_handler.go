package handlers

import "github.com/gofiber/fiber/v2"

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	ready func() bool
}

// NewHealthHandler constructs the handler; ready reports whether the
// stores have finished loading.
func NewHealthHandler(ready func() bool) *HealthHandler {
	return &HealthHandler{ready: ready}
}

// Live GET /health/live.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Ready GET /health/ready.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	if h.ready != nil && !h.ready() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "loading"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
