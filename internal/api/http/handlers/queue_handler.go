package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/panel-kit/ticket-core/internal/api/dto"
	"github.com/panel-kit/ticket-core/internal/auth"
	"github.com/panel-kit/ticket-core/internal/queue"
	apperrors "github.com/panel-kit/ticket-core/pkg/util"
)

// QueueHandler serves the read-only queue reporting surface and the
// withdraw operation.
type QueueHandler struct {
	queue *queue.Manager
}

// NewQueueHandler constructs handler.
func NewQueueHandler(q *queue.Manager) *QueueHandler {
	return &QueueHandler{queue: q}
}

// Status GET /v1/communities/:community/queue.
func (h *QueueHandler) Status(c *fiber.Ctx) error {
	status := h.queue.StatusOf(c.Params("community"))
	return c.JSON(fiber.Map{"data": dto.QueueStatusResponse{
		Size:          status.Size,
		Processing:    status.Processing,
		OldestRequest: status.OldestRequest,
	}})
}

// Position GET /v1/communities/:community/queue/position. Without a user
// query parameter the caller's own position is reported; other users'
// positions require staff.
func (h *QueueHandler) Position(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	target := c.Query("user", actor.ID)
	if target != actor.ID && !actor.Staff {
		return apperrors.NewForbidden("staff capability required to view others")
	}
	position := h.queue.PositionOf(c.Params("community"), target)
	return c.JSON(fiber.Map{"data": dto.QueuePositionResponse{Position: position}})
}

// Metrics GET /v1/communities/:community/queue/metrics.
func (h *QueueHandler) Metrics(c *fiber.Ctx) error {
	metrics := h.queue.MetricsOf(c.Params("community"))
	return c.JSON(fiber.Map{"data": dto.QueueMetricsResponse{
		AverageWaitSeconds: metrics.AverageWaitSeconds,
		MaxWaitSeconds:     metrics.MaxWaitSeconds,
		TicketsProcessed:   metrics.TicketsProcessed,
	}})
}

// Withdraw DELETE /v1/communities/:community/queue.
func (h *QueueHandler) Withdraw(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	if !h.queue.Remove(c.Params("community"), actor.ID) {
		return apperrors.NewNotFound("queued request", nil)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
