package observability

import "sync"

// Metrics provides basic in-memory counters for queue and lifecycle
// activity, keyed per community.
type Metrics struct {
	mu          sync.Mutex
	enqueued    map[string]int64
	processed   map[string]int64
	failed      map[string]int64
	discarded   map[string]int64
	transitions map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		enqueued:    make(map[string]int64),
		processed:   make(map[string]int64),
		failed:      make(map[string]int64),
		discarded:   make(map[string]int64),
		transitions: make(map[string]int64),
	}
}

// RecordEnqueued counts an admission request entering a community queue.
func (m *Metrics) RecordEnqueued(communityID string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued[communityID]++
}

// RecordProcessed counts a successfully processed creation request.
func (m *Metrics) RecordProcessed(communityID string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[communityID]++
}

// RecordFailed counts a creation request that errored.
func (m *Metrics) RecordFailed(communityID string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[communityID]++
}

// RecordDiscarded counts a request dropped because its interaction expired.
func (m *Metrics) RecordDiscarded(communityID string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discarded[communityID]++
}

// RecordTransition counts a committed lifecycle transition by event type.
func (m *Metrics) RecordTransition(eventType string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[eventType]++
}

// Processed returns the processed-creation count for a community.
func (m *Metrics) Processed(communityID string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processed[communityID]
}

// Snapshot returns copies of all counters for reporting.
func (m *Metrics) Snapshot() (enqueued, processed, failed, discarded map[string]int64, transitions map[string]int64) {
	if m == nil {
		return nil, nil, nil, nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyCounts(m.enqueued), copyCounts(m.processed), copyCounts(m.failed), copyCounts(m.discarded), copyCounts(m.transitions)
}

func copyCounts(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
