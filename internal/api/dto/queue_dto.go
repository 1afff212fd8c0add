package dto

import "time"

// QueueStatusResponse snapshots one community's admission queue.
type QueueStatusResponse struct {
	Size          int        `json:"size"`
	Processing    bool       `json:"is_processing"`
	OldestRequest *time.Time `json:"oldest_request,omitempty"`
}

// QueuePositionResponse reports a requester's place in the queue.
type QueuePositionResponse struct {
	Position int `json:"position"`
}

// QueueMetricsResponse reports queue wait and throughput metrics.
type QueueMetricsResponse struct {
	AverageWaitSeconds int   `json:"average_wait_seconds"`
	MaxWaitSeconds     int   `json:"max_wait_seconds"`
	TicketsProcessed   int64 `json:"tickets_processed"`
}
