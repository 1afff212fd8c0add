package domain

import (
	"fmt"
	"time"
)

// IssueType classifies data-shape problems found on a ticket record.
type IssueType string

const (
	IssueMissingField      IssueType = "missing_field"
	IssueInvalidDate       IssueType = "invalid_date"
	IssueInconsistentState IssueType = "inconsistent_state"
	IssueInvalidChannel    IssueType = "invalid_channel"
)

// Issue is a single verification finding on a ticket.
type Issue struct {
	TicketID    int       `json:"ticket_id"`
	CommunityID string    `json:"community_id"`
	Type        IssueType `json:"type"`
	Message     string    `json:"message"`
}

// Ticket is the full lifecycle record of one support request.
//
// ID is a sequence number unique within a community. ChannelID is the
// external channel handle and the global key for active tickets; it is
// immutable once assigned and may dangle if the channel is deleted
// out-of-band.
type Ticket struct {
	ID          int      `json:"id"`
	ChannelID   string   `json:"channel_id"`
	CommunityID string   `json:"community_id"`
	UserID      string   `json:"user_id"`
	Type        string   `json:"type"`
	Tags        []string `json:"tags,omitempty"`

	ClaimedBy    string `json:"claimed_by,omitempty"`
	ClosedBy     string `json:"closed_by,omitempty"`
	ReopenedBy   string `json:"reopened_by,omitempty"`
	CloseReason  string `json:"close_reason,omitempty"`
	ReopenReason string `json:"reopen_reason,omitempty"`

	Closed         bool `json:"closed"`
	ChannelDeleted bool `json:"channel_deleted,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	ClaimedAt  *time.Time `json:"claimed_at,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	ReopenedAt *time.Time `json:"reopened_at,omitempty"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// IsOpen reports whether the ticket still counts against the creator's
// open-ticket limit.
func (t *Ticket) IsOpen() bool {
	return !t.Closed
}

// Validate checks the field invariants the consistency verifier enforces.
// It never mutates the ticket; findings are returned for reporting.
func (t *Ticket) Validate() []Issue {
	var issues []Issue
	add := func(kind IssueType, msg string) {
		issues = append(issues, Issue{
			TicketID:    t.ID,
			CommunityID: t.CommunityID,
			Type:        kind,
			Message:     msg,
		})
	}

	if t.ID <= 0 {
		add(IssueMissingField, "missing required field: id")
	}
	if t.ChannelID == "" {
		add(IssueMissingField, "missing required field: channel_id")
	}
	if t.CommunityID == "" {
		add(IssueMissingField, "missing required field: community_id")
	}
	if t.UserID == "" {
		add(IssueMissingField, "missing required field: user_id")
	}
	if t.Type == "" {
		add(IssueMissingField, "missing required field: type")
	}
	if t.CreatedAt.IsZero() {
		add(IssueMissingField, "missing required field: created_at")
	}

	for _, ts := range []struct {
		name string
		when *time.Time
	}{
		{"claimed_at", t.ClaimedAt},
		{"closed_at", t.ClosedAt},
		{"reopened_at", t.ReopenedAt},
		{"archived_at", t.ArchivedAt},
	} {
		if ts.when == nil {
			continue
		}
		if ts.when.IsZero() {
			add(IssueInvalidDate, "invalid date for field: "+ts.name)
			continue
		}
		if !t.CreatedAt.IsZero() && ts.when.Before(t.CreatedAt) {
			add(IssueInvalidDate, fmt.Sprintf("%s precedes created_at", ts.name))
		}
	}

	if t.Closed && t.ClosedAt == nil {
		add(IssueInconsistentState, "ticket marked closed but has no closed_at timestamp")
	}
	if !t.Closed && t.ClosedAt != nil {
		if t.ReopenedAt == nil || t.ReopenedAt.Before(*t.ClosedAt) {
			add(IssueInconsistentState, "ticket open but closed_at is the latest lifecycle timestamp")
		}
	}
	if t.ClaimedBy != "" && t.ClaimedAt == nil {
		add(IssueInconsistentState, "ticket has claimed_by but no claimed_at timestamp")
	}

	return issues
}

// Actor identifies who is performing a lifecycle transition. Staff is the
// capability flag the core checks; establishing it (token claims, role
// lists) is the caller's concern.
type Actor struct {
	ID    string
	Staff bool
}
