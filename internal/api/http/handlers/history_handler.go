package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/panel-kit/ticket-core/internal/api/dto"
	"github.com/panel-kit/ticket-core/internal/auth"
	"github.com/panel-kit/ticket-core/internal/lifecycle"
	apperrors "github.com/panel-kit/ticket-core/pkg/util"
)

const historyPageSize = 10

// HistoryHandler serves the merged active+archived ticket history.
type HistoryHandler struct {
	lifecycle *lifecycle.Manager
}

// NewHistoryHandler constructs handler.
func NewHistoryHandler(lc *lifecycle.Manager) *HistoryHandler {
	return &HistoryHandler{lifecycle: lc}
}

// ForUser GET /v1/users/:user/history. Users see their own history; staff
// can see anyone's.
func (h *HistoryHandler) ForUser(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	target := c.Params("user")
	if target != actor.ID && !actor.Staff {
		return apperrors.NewForbidden("you can only view your own ticket history")
	}

	tickets, err := h.lifecycle.History(target)
	if err != nil {
		return apperrors.NewInternalError(err)
	}

	stats := dto.HistoryStats{Total: len(tickets)}
	for i := range tickets {
		if tickets[i].Closed {
			stats.Closed++
		} else {
			stats.Open++
		}
		if tickets[i].ClaimedBy != "" {
			stats.Claimed++
		}
	}

	page := parsePage(c.Query("page"))
	totalPages := (len(tickets) + historyPageSize - 1) / historyPageSize
	if totalPages == 0 {
		totalPages = 1
	}
	if page > totalPages {
		page = totalPages
	}
	start := (page - 1) * historyPageSize
	end := start + historyPageSize
	if end > len(tickets) {
		end = len(tickets)
	}

	items := make([]dto.TicketResponse, 0, end-start)
	for i := start; i < end; i++ {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": dto.HistoryResponse{
		Tickets:    items,
		Stats:      stats,
		Page:       page,
		TotalPages: totalPages,
	}})
}

func parsePage(val string) int {
	if val == "" {
		return 1
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return 1
	}
	return parsed
}
