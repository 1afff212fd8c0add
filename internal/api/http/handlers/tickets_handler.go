package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/panel-kit/ticket-core/internal/api/dto"
	"github.com/panel-kit/ticket-core/internal/auth"
	"github.com/panel-kit/ticket-core/internal/config"
	"github.com/panel-kit/ticket-core/internal/domain"
	"github.com/panel-kit/ticket-core/internal/lifecycle"
	"github.com/panel-kit/ticket-core/internal/queue"
	"github.com/panel-kit/ticket-core/internal/store"
	apperrors "github.com/panel-kit/ticket-core/pkg/util"
)

// TicketsHandler serves admission and lifecycle transition endpoints.
type TicketsHandler struct {
	cfg       *config.Config
	queue     *queue.Manager
	lifecycle *lifecycle.Manager
	tickets   *store.TicketStore
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(cfg *config.Config, q *queue.Manager, lc *lifecycle.Manager, tickets *store.TicketStore) *TicketsHandler {
	return &TicketsHandler{cfg: cfg, queue: q, lifecycle: lc, tickets: tickets}
}

// Enqueue POST /v1/communities/:community/tickets.
func (h *TicketsHandler) Enqueue(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Panel == "" {
		return apperrors.NewValidationError("panel required", nil)
	}
	panel := h.cfg.PanelByName(req.Panel)
	if panel == nil {
		return apperrors.NewValidationError("unknown panel", map[string]any{"panel": req.Panel})
	}

	communityID := c.Params("community")
	position := h.queue.Enqueue(communityID, actor.ID, *panel, req.InteractionID)

	status := fiber.StatusAccepted
	if position == 1 {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.EnqueueResponse{
		Position: position,
		Queued:   position > 1,
	}})
}

// Get GET /v1/tickets/:channel.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, found := h.tickets.Get(c.Params("channel"))
	if !found {
		return apperrors.NewNotFound("ticket", nil)
	}
	if !actor.Staff && ticket.UserID != actor.ID {
		return apperrors.NewForbidden("not your ticket")
	}
	return c.JSON(fiber.Map{"data": ticketResponse(&ticket)})
}

// Claim POST /v1/tickets/:channel/claim.
func (h *TicketsHandler) Claim(c *fiber.Ctx) error {
	actor, _ := auth.ActorFromContext(c)
	ticket, err := h.lifecycle.Claim(c.UserContext(), c.Params("channel"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Close POST /v1/tickets/:channel/close.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CloseTicketRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.lifecycle.Close(c.UserContext(), c.Params("channel"), actor, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Reopen POST /v1/tickets/:channel/reopen.
func (h *TicketsHandler) Reopen(c *fiber.Ctx) error {
	actor, _ := auth.ActorFromContext(c)
	var req dto.ReopenTicketRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.lifecycle.Reopen(c.UserContext(), c.Params("channel"), actor, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

func ticketResponse(t *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:           t.ID,
		ChannelID:    t.ChannelID,
		CommunityID:  t.CommunityID,
		UserID:       t.UserID,
		Type:         t.Type,
		Tags:         t.Tags,
		Closed:       t.Closed,
		ClaimedBy:    t.ClaimedBy,
		ClosedBy:     t.ClosedBy,
		ReopenedBy:   t.ReopenedBy,
		CloseReason:  t.CloseReason,
		ReopenReason: t.ReopenReason,
		CreatedAt:    t.CreatedAt,
		ClaimedAt:    t.ClaimedAt,
		ClosedAt:     t.ClosedAt,
		ReopenedAt:   t.ReopenedAt,
		ArchivedAt:   t.ArchivedAt,
	}
}
