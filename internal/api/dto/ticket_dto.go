package dto

import "time"

// CreateTicketRequest asks for admission into a community's queue.
type CreateTicketRequest struct {
	Panel         string `json:"panel"`
	InteractionID string `json:"interaction_id,omitempty"`
}

// EnqueueResponse reports the admission outcome.
type EnqueueResponse struct {
	Position int  `json:"position"`
	Queued   bool `json:"queued"`
}

// CloseTicketRequest carries the close reason.
type CloseTicketRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ReopenTicketRequest carries the reopen reason.
type ReopenTicketRequest struct {
	Reason string `json:"reason,omitempty"`
}

// TicketResponse is the outward form of a ticket record.
type TicketResponse struct {
	ID           int        `json:"id"`
	ChannelID    string     `json:"channel_id"`
	CommunityID  string     `json:"community_id"`
	UserID       string     `json:"user_id"`
	Type         string     `json:"type"`
	Tags         []string   `json:"tags,omitempty"`
	Closed       bool       `json:"closed"`
	ClaimedBy    string     `json:"claimed_by,omitempty"`
	ClosedBy     string     `json:"closed_by,omitempty"`
	ReopenedBy   string     `json:"reopened_by,omitempty"`
	CloseReason  string     `json:"close_reason,omitempty"`
	ReopenReason string     `json:"reopen_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	ReopenedAt   *time.Time `json:"reopened_at,omitempty"`
	ArchivedAt   *time.Time `json:"archived_at,omitempty"`
}

// HistoryStats summarizes a user's ticket totals.
type HistoryStats struct {
	Total   int `json:"total"`
	Open    int `json:"open"`
	Closed  int `json:"closed"`
	Claimed int `json:"claimed"`
}

// HistoryResponse is one page of a user's active+archived history.
type HistoryResponse struct {
	Tickets    []TicketResponse `json:"tickets"`
	Stats      HistoryStats     `json:"stats"`
	Page       int              `json:"page"`
	TotalPages int              `json:"total_pages"`
}
