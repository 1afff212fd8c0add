package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/natefinch/atomic"
	"go.uber.org/zap"

	"github.com/panel-kit/ticket-core/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotFound is returned when no ticket backs the given channel.
var ErrNotFound = errors.New("ticket not found")

const activeSnapshotFile = "tickets.json"

// snapshot is the durable form of the active-ticket set. Sequences ride
// along so ticket numbers stay unique within a community even after the
// tickets that used them have been archived.
type snapshot struct {
	Tickets   []domain.Ticket `json:"tickets"`
	Sequences map[string]int  `json:"sequences"`
}

// TicketStore is the authoritative in-memory map of active tickets, keyed
// by channel id and backed by a snapshot document. Mutations apply
// synchronously under one lock; persistence is deferred and batched.
type TicketStore struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	tickets map[string]domain.Ticket
	seq     map[string]int
	dirty   bool

	kick chan struct{}
}

// NewTicketStore builds a store persisting under dir.
func NewTicketStore(dir string, logger *zap.Logger) *TicketStore {
	return &TicketStore{
		path:    filepath.Join(dir, activeSnapshotFile),
		logger:  logger,
		tickets: make(map[string]domain.Ticket),
		seq:     make(map[string]int),
		kick:    make(chan struct{}, 1),
	}
}

// Load replaces the in-memory set from the snapshot document. A missing or
// corrupt snapshot yields an empty store; the error is logged, not returned,
// because in-memory state is authoritative from here on.
func (s *TicketStore) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tickets = make(map[string]domain.Ticket)
	s.seq = make(map[string]int)

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("ticket snapshot unreadable, starting empty", zap.Error(err))
		}
		return
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		s.logger.Warn("ticket snapshot corrupt, starting empty", zap.Error(err))
		return
	}

	for _, ticket := range snap.Tickets {
		s.tickets[ticket.ChannelID] = ticket
		if ticket.ID > s.seq[ticket.CommunityID] {
			s.seq[ticket.CommunityID] = ticket.ID
		}
	}
	for community, last := range snap.Sequences {
		if last > s.seq[community] {
			s.seq[community] = last
		}
	}
	s.logger.Info("ticket snapshot loaded", zap.Int("tickets", len(s.tickets)))
}

// Get returns the ticket backing the channel.
func (s *TicketStore) Get(channelID string) (domain.Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ticket, ok := s.tickets[channelID]
	return ticket, ok
}

// Put inserts or fully replaces a ticket record.
func (s *TicketStore) Put(ticket domain.Ticket) {
	s.mu.Lock()
	s.tickets[ticket.ChannelID] = ticket
	if ticket.ID > s.seq[ticket.CommunityID] {
		s.seq[ticket.CommunityID] = ticket.ID
	}
	s.dirty = true
	s.mu.Unlock()
}

// Update applies mutate to the ticket under the store lock, making
// read-check-write sequences (claim, close) atomic. A mutate error aborts
// with no state change. Fields mutate does not touch are preserved.
func (s *TicketStore) Update(channelID string, mutate func(*domain.Ticket) error) (domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[channelID]
	if !ok {
		return domain.Ticket{}, ErrNotFound
	}
	if err := mutate(&ticket); err != nil {
		return domain.Ticket{}, err
	}
	s.tickets[channelID] = ticket
	s.dirty = true
	return ticket, nil
}

// Remove deletes the ticket and returns its final record.
func (s *TicketStore) Remove(channelID string) (domain.Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[channelID]
	if !ok {
		return domain.Ticket{}, false
	}
	delete(s.tickets, channelID)
	s.dirty = true
	return ticket, true
}

// All returns a point-in-time copy of every active ticket, ordered by
// community then id for stable iteration.
func (s *TicketStore) All() []domain.Ticket {
	s.mu.RLock()
	out := make([]domain.Ticket, 0, len(s.tickets))
	for _, ticket := range s.tickets {
		out = append(out, ticket)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CommunityID != out[j].CommunityID {
			return out[i].CommunityID < out[j].CommunityID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of active tickets.
func (s *TicketStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tickets)
}

// ByUser returns the user's active tickets in a community. A community of
// "" matches all communities.
func (s *TicketStore) ByUser(communityID, userID string) []domain.Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Ticket
	for _, ticket := range s.tickets {
		if ticket.UserID != userID {
			continue
		}
		if communityID != "" && ticket.CommunityID != communityID {
			continue
		}
		out = append(out, ticket)
	}
	return out
}

// NextID allocates the next ticket sequence number for a community.
func (s *TicketStore) NextID(communityID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq[communityID]++
	s.dirty = true
	return s.seq[communityID]
}

// SeedSequence raises the community's sequence floor, used at startup so
// numbers already consumed by archived tickets are never reissued.
func (s *TicketStore) SeedSequence(communityID string, floor int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if floor > s.seq[communityID] {
		s.seq[communityID] = floor
	}
}

// Kick requests a flush at the next settlement point. Safe from any
// goroutine; coalesces bursts.
func (s *TicketStore) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Persist writes the snapshot document if the store has unflushed changes.
// On failure the dirty flag is retained so the next interval retries.
func (s *TicketStore) Persist() error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	snap := snapshot{
		Tickets:   make([]domain.Ticket, 0, len(s.tickets)),
		Sequences: make(map[string]int, len(s.seq)),
	}
	for _, ticket := range s.tickets {
		snap.Tickets = append(snap.Tickets, ticket)
	}
	for community, last := range s.seq {
		snap.Sequences[community] = last
	}
	s.dirty = false
	s.mu.Unlock()

	sort.Slice(snap.Tickets, func(i, j int) bool {
		if snap.Tickets[i].CommunityID != snap.Tickets[j].CommunityID {
			return snap.Tickets[i].CommunityID < snap.Tickets[j].CommunityID
		}
		return snap.Tickets[i].ID < snap.Tickets[j].ID
	})

	data, err := json.MarshalIndent(snap, "", "  ")
	if err == nil {
		if mkErr := os.MkdirAll(filepath.Dir(s.path), 0o755); mkErr != nil {
			err = mkErr
		} else {
			err = atomic.WriteFile(s.path, bytes.NewReader(data))
		}
	}
	if err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		s.logger.Error("ticket snapshot write failed, will retry", zap.Error(err))
		return err
	}
	return nil
}

// Run flushes the snapshot on the given interval and whenever kicked, until
// the context ends; a final flush runs on shutdown.
func (s *TicketStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = s.Persist()
			return
		case <-ticker.C:
			_ = s.Persist()
		case <-s.kick:
			_ = s.Persist()
		}
	}
}
