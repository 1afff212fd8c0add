package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/panel-kit/ticket-core/internal/config"
	"github.com/panel-kit/ticket-core/internal/observability"
	"github.com/panel-kit/ticket-core/internal/platform"
)

// Request is one pending admission request. It is never mutated after
// enqueue; it is consumed exactly once, by a creation attempt or by
// discard.
type Request struct {
	ID            string
	CommunityID   string
	RequesterID   string
	Panel         config.Panel
	InteractionID string
	EnqueuedAt    time.Time
}

// Status is a point-in-time snapshot of one community's queue.
type Status struct {
	Size          int
	Processing    bool
	OldestRequest *time.Time
}

// WaitMetrics summarizes queue health for a community.
type WaitMetrics struct {
	AverageWaitSeconds int
	MaxWaitSeconds     int
	TicketsProcessed   int64
}

// CreateFunc executes the lifecycle create transition for a dequeued
// request. The worker does not retry on error; the processor owns
// informing the requester.
type CreateFunc func(ctx context.Context, req Request) error

// Manager bounds and orders ticket-creation admission per community. A
// single lazily-started worker drains each community's queue, so at most
// one create transition per community is in flight at any time.
type Manager struct {
	create       CreateFunc
	interactions platform.Interactions
	metrics      *observability.Metrics
	logger       *zap.Logger
	delay        time.Duration

	mu      sync.Mutex
	queues  map[string][]Request
	active  map[string]bool
	baseCtx context.Context
}

// NewManager constructs a queue manager. ctx bounds all workers: once it
// ends, workers stop between requests.
func NewManager(ctx context.Context, create CreateFunc, interactions platform.Interactions, metrics *observability.Metrics, logger *zap.Logger, delay time.Duration) *Manager {
	return &Manager{
		create:       create,
		interactions: interactions,
		metrics:      metrics,
		logger:       logger,
		delay:        delay,
		queues:       make(map[string][]Request),
		active:       make(map[string]bool),
		baseCtx:      ctx,
	}
}

// Enqueue admits a creation request and returns its 1-based queue
// position. Position 1 means processing begins immediately.
func (m *Manager) Enqueue(communityID, requesterID string, panel config.Panel, interactionID string) int {
	req := Request{
		ID:            uuid.NewString(),
		CommunityID:   communityID,
		RequesterID:   requesterID,
		Panel:         panel,
		InteractionID: interactionID,
		EnqueuedAt:    time.Now(),
	}

	m.mu.Lock()
	m.queues[communityID] = append(m.queues[communityID], req)
	position := len(m.queues[communityID])
	startWorker := !m.active[communityID]
	if startWorker {
		m.active[communityID] = true
	}
	m.mu.Unlock()

	m.metrics.RecordEnqueued(communityID)
	if startWorker {
		go m.drain(communityID)
	}
	return position
}

// drain processes the community's queue head-first until empty, then
// retires the worker and drops the queue entry.
func (m *Manager) drain(communityID string) {
	for {
		if m.baseCtx.Err() != nil {
			m.retire(communityID)
			return
		}

		m.mu.Lock()
		queue := m.queues[communityID]
		if len(queue) == 0 {
			// Retirement shares the empty-check's critical section. Were
			// they separate, an Enqueue slipping between them would append
			// to the queue, see active==true, start no worker, and strand
			// the request once the exiting worker cleared the flag.
			m.active[communityID] = false
			delete(m.queues, communityID)
			m.mu.Unlock()
			return
		}
		head := queue[0]
		m.mu.Unlock()

		processed := m.process(head)

		// The head is removed whether the attempt succeeded or not:
		// at most one attempt per request, no automatic retry.
		m.mu.Lock()
		if q := m.queues[communityID]; len(q) > 0 && q[0].ID == head.ID {
			m.queues[communityID] = q[1:]
		}
		m.mu.Unlock()

		if processed && m.delay > 0 {
			select {
			case <-m.baseCtx.Done():
				m.retire(communityID)
				return
			case <-time.After(m.delay):
			}
		}
	}
}

// retire clears the worker flag on a shutdown exit. Requests still queued
// stay put; the manager's context is already dead, so no worker will be
// started for them again.
func (m *Manager) retire(communityID string) {
	m.mu.Lock()
	m.active[communityID] = false
	if len(m.queues[communityID]) == 0 {
		delete(m.queues, communityID)
	}
	m.mu.Unlock()
}

// process runs one creation attempt. It returns false when the request was
// discarded without an attempt (expired interaction).
func (m *Manager) process(req Request) bool {
	if req.InteractionID != "" && !m.interactions.IsActionable(m.baseCtx, req.InteractionID) {
		m.metrics.RecordDiscarded(req.CommunityID)
		m.logger.Debug("queued request no longer actionable, discarded",
			zap.String("community_id", req.CommunityID),
			zap.String("requester_id", req.RequesterID))
		return false
	}

	if err := m.create(m.baseCtx, req); err != nil {
		m.metrics.RecordFailed(req.CommunityID)
		m.logger.Warn("queued ticket creation failed",
			zap.String("community_id", req.CommunityID),
			zap.String("requester_id", req.RequesterID),
			zap.Error(err))
		return true
	}

	m.metrics.RecordProcessed(req.CommunityID)
	return true
}

// PositionOf returns the requester's 1-based position in the community
// queue, or 0 when absent.
func (m *Manager) PositionOf(communityID, requesterID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, req := range m.queues[communityID] {
		if req.RequesterID == requesterID {
			return i + 1
		}
	}
	return 0
}

// StatusOf snapshots the community queue without blocking its worker.
func (m *Manager) StatusOf(communityID string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	queue := m.queues[communityID]
	status := Status{
		Size:       len(queue),
		Processing: m.active[communityID],
	}
	if len(queue) > 0 {
		oldest := queue[0].EnqueuedAt
		status.OldestRequest = &oldest
	}
	return status
}

// Remove withdraws the requester's pending request, if any.
func (m *Manager) Remove(communityID, requesterID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	queue := m.queues[communityID]
	for i, req := range queue {
		if req.RequesterID != requesterID {
			continue
		}
		// Never yank the head out from under a running attempt; the
		// worker owns it once dequeue begins.
		if i == 0 && m.active[communityID] {
			return false
		}
		m.queues[communityID] = append(queue[:i], queue[i+1:]...)
		if len(m.queues[communityID]) == 0 && !m.active[communityID] {
			delete(m.queues, communityID)
		}
		return true
	}
	return false
}

// MetricsOf reports wait-time metrics for the community queue.
func (m *Manager) MetricsOf(communityID string) WaitMetrics {
	now := time.Now()

	m.mu.Lock()
	queue := m.queues[communityID]
	var totalWait, maxWait time.Duration
	for _, req := range queue {
		wait := now.Sub(req.EnqueuedAt)
		totalWait += wait
		if wait > maxWait {
			maxWait = wait
		}
	}
	size := len(queue)
	m.mu.Unlock()

	metrics := WaitMetrics{TicketsProcessed: m.metrics.Processed(communityID)}
	if size > 0 {
		metrics.AverageWaitSeconds = int(totalWait.Seconds()) / size
		metrics.MaxWaitSeconds = int(maxWait.Seconds())
	}
	return metrics
}
