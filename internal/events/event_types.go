package events

import (
	"time"

	"github.com/panel-kit/ticket-core/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated  EventType = "ticket_created"
	EventTicketClaimed  EventType = "ticket_claimed"
	EventTicketClosed   EventType = "ticket_closed"
	EventTicketReopened EventType = "ticket_reopened"
	EventTicketArchived EventType = "ticket_archived"
)

// Event represents a committed lifecycle transition.
type Event struct {
	ID          string       `json:"id"`
	Type        EventType    `json:"type"`
	CommunityID string       `json:"community_id"`
	ChannelID   string       `json:"channel_id"`
	TicketID    int          `json:"ticket_id"`
	Actor       domain.Actor `json:"actor"`
	Timestamp   time.Time    `json:"timestamp"`
	Reason      string       `json:"reason,omitempty"`
}
