package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/panel-kit/ticket-core/internal/config"
	"github.com/panel-kit/ticket-core/internal/domain"
	"github.com/panel-kit/ticket-core/internal/events"
	"github.com/panel-kit/ticket-core/internal/platform"
	"github.com/panel-kit/ticket-core/internal/queue"
	"github.com/panel-kit/ticket-core/internal/store"
)

// Manager executes the ticket state machine: Create, Claim, Close, Reopen
// and Archive, with the invariants each transition must establish.
type Manager struct {
	cfg        config.TicketConfig
	tickets    *store.TicketStore
	archive    *store.ArchiveStore
	channels   platform.ChannelClient
	notifier   platform.Notifier
	dispatcher events.Dispatcher
	logger     *zap.Logger

	// Pending archival sweeps keyed by channel id. Explicit entries with a
	// cancellation handle so Reopen can deterministically cancel them.
	timersMu sync.Mutex
	timers   map[string]*time.Timer

	now func() time.Time
}

// Dependencies bundles collaborators for the lifecycle manager.
type Dependencies struct {
	Tickets    *store.TicketStore
	Archive    *store.ArchiveStore
	Channels   platform.ChannelClient
	Notifier   platform.Notifier
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewManager constructs the lifecycle manager.
func NewManager(cfg config.TicketConfig, deps Dependencies) *Manager {
	return &Manager{
		cfg:        cfg,
		tickets:    deps.Tickets,
		archive:    deps.Archive,
		channels:   deps.Channels,
		notifier:   deps.Notifier,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		timers:     make(map[string]*time.Timer),
		now:        time.Now,
	}
}

// Create executes the create transition for an admitted queue request.
// The caller (the community's queue worker) guarantees no other create for
// the same community runs concurrently.
func (m *Manager) Create(ctx context.Context, req queue.Request) (*domain.Ticket, error) {
	userTickets := m.tickets.ByUser(req.CommunityID, req.RequesterID)

	open := 0
	var lastCreated time.Time
	for _, t := range userTickets {
		if t.IsOpen() {
			open++
		}
		if t.CreatedAt.After(lastCreated) {
			lastCreated = t.CreatedAt
		}
	}
	if open >= m.cfg.MaxTicketsPerUser {
		return nil, &LimitError{Open: open, Max: m.cfg.MaxTicketsPerUser}
	}
	if !lastCreated.IsZero() {
		if remaining := m.cfg.Cooldown() - m.now().Sub(lastCreated); remaining > 0 {
			return nil, &CooldownError{Remaining: remaining}
		}
	}

	id := m.tickets.NextID(req.CommunityID)
	name := fmt.Sprintf("ticket-%03d", id)

	grants := []platform.PermissionGrant{
		{Principal: req.RequesterID, AllowView: true, AllowSend: true},
	}
	for _, role := range m.cfg.StaffRoles {
		grants = append(grants, platform.PermissionGrant{Principal: role, AllowView: true, AllowSend: true})
	}

	// The channel handle is obtained before any record is written, so a
	// provisioning failure cannot leave an orphaned ticket.
	handle, err := m.channels.CreateChannel(ctx, req.CommunityID, name, grants)
	if err != nil {
		return nil, fmt.Errorf("provision channel for ticket %d: %w", id, err)
	}

	ticket := domain.Ticket{
		ID:          id,
		ChannelID:   handle,
		CommunityID: req.CommunityID,
		UserID:      req.RequesterID,
		Type:        req.Panel.Name,
		CreatedAt:   m.now(),
	}
	m.tickets.Put(ticket)

	m.publish(ctx, events.EventTicketCreated, &ticket, domain.Actor{ID: req.RequesterID}, "")

	if err := m.notifier.PostMessage(ctx, handle, fmt.Sprintf("Welcome! Ticket #%03d (%s) is open; staff will be with you shortly.", id, ticket.Type)); err != nil {
		m.logger.Warn("welcome message failed", zap.String("channel_id", handle), zap.Error(err))
	}
	m.logToChannel(ctx, fmt.Sprintf("Ticket #%03d created by %s (%s)", id, req.RequesterID, ticket.Type))

	return &ticket, nil
}

// Claim marks the ticket as claimed by a staff actor. The check-and-set
// runs under the store lock, so of two concurrent claims exactly one
// succeeds and the other observes "already claimed".
func (m *Manager) Claim(ctx context.Context, channelID string, actor domain.Actor) (*domain.Ticket, error) {
	if !actor.Staff {
		return nil, fmt.Errorf("%w: only staff can claim tickets", ErrPermissionDenied)
	}

	when := m.now()
	ticket, err := m.tickets.Update(channelID, func(t *domain.Ticket) error {
		if t.Closed {
			return &StateError{Reason: "cannot claim a closed ticket"}
		}
		if t.ClaimedBy != "" {
			return &StateError{Reason: "this ticket has already been claimed"}
		}
		t.ClaimedBy = actor.ID
		t.ClaimedAt = &when
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	m.publish(ctx, events.EventTicketClaimed, &ticket, actor, "")
	return &ticket, nil
}

// Close transitions an open ticket to closed, schedules its archival and
// triggers transcript and permission side effects. Staff or the ticket's
// creator may close.
func (m *Manager) Close(ctx context.Context, channelID string, actor domain.Actor, reason string) (*domain.Ticket, error) {
	if reason == "" {
		reason = "No reason provided"
	}

	when := m.now()
	ticket, err := m.tickets.Update(channelID, func(t *domain.Ticket) error {
		if !actor.Staff && actor.ID != t.UserID {
			return fmt.Errorf("%w: only staff or the ticket creator can close it", ErrPermissionDenied)
		}
		if t.Closed {
			return &StateError{Reason: "this ticket is already closed"}
		}
		t.Closed = true
		t.ClosedBy = actor.ID
		t.ClosedAt = &when
		t.CloseReason = reason
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	m.publish(ctx, events.EventTicketClosed, &ticket, actor, reason)

	// External side effects are best effort; the record is authoritative.
	if m.cfg.TranscriptChannelID != "" {
		if err := m.notifier.PostMessage(ctx, m.cfg.TranscriptChannelID, fmt.Sprintf("Transcript requested for ticket #%03d (%s)", ticket.ID, ticket.ChannelID)); err != nil {
			m.logger.Warn("transcript request failed", zap.Int("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	if err := m.channels.SetPermission(ctx, channelID, platform.PermissionGrant{Principal: ticket.UserID}); err != nil && !platform.IsChannelGone(err) {
		m.logger.Warn("permission revocation failed", zap.String("channel_id", channelID), zap.Error(err))
	}
	if err := m.notifier.DirectMessage(ctx, ticket.UserID, fmt.Sprintf("Your ticket #%03d has been closed. Reason: %s", ticket.ID, reason)); err != nil {
		m.logger.Warn("close notification failed", zap.String("user_id", ticket.UserID), zap.Error(err))
	}
	m.logToChannel(ctx, fmt.Sprintf("Ticket #%03d closed by %s. Reason: %s", ticket.ID, actor.ID, reason))

	m.scheduleArchive(channelID, m.cfg.AutoClose())
	return &ticket, nil
}

// Reopen returns a closed ticket to the open state and cancels its pending
// archival. Staff only.
func (m *Manager) Reopen(ctx context.Context, channelID string, actor domain.Actor, reason string) (*domain.Ticket, error) {
	if !actor.Staff {
		return nil, fmt.Errorf("%w: only staff can reopen tickets", ErrPermissionDenied)
	}
	if reason == "" {
		reason = "No reason provided"
	}

	when := m.now()
	ticket, err := m.tickets.Update(channelID, func(t *domain.Ticket) error {
		if !t.Closed {
			return &StateError{Reason: "this ticket is already open"}
		}
		t.Closed = false
		t.ReopenedBy = actor.ID
		t.ReopenedAt = &when
		t.ReopenReason = reason
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	m.cancelArchive(channelID)

	m.publish(ctx, events.EventTicketReopened, &ticket, actor, reason)

	if err := m.channels.SetPermission(ctx, channelID, platform.PermissionGrant{Principal: ticket.UserID, AllowView: true, AllowSend: true}); err != nil {
		m.logger.Warn("permission restore failed", zap.String("channel_id", channelID), zap.Error(err))
	}
	if err := m.notifier.DirectMessage(ctx, ticket.UserID, fmt.Sprintf("Your ticket #%03d has been reopened. Reason: %s", ticket.ID, reason)); err != nil {
		m.logger.Warn("reopen notification failed", zap.String("user_id", ticket.UserID), zap.Error(err))
	}
	m.logToChannel(ctx, fmt.Sprintf("Ticket #%03d reopened by %s. Reason: %s", ticket.ID, actor.ID, reason))

	return &ticket, nil
}

// ArchiveOptions tweak the archive transition.
type ArchiveOptions struct {
	// ChannelDeleted flags that the backing channel was confirmed missing,
	// so deletion is skipped and the record is marked.
	ChannelDeleted bool
}

// Archive moves a closed ticket from the active store into the archive.
// Only schedulers and timers call this; it is never a direct user action.
// The record move is authoritative: channel deletion is best effort and a
// channel that is already gone counts as success.
func (m *Manager) Archive(ctx context.Context, channelID string, opts ArchiveOptions) (*domain.Ticket, error) {
	when := m.now()
	ticket, err := m.tickets.Update(channelID, func(t *domain.Ticket) error {
		if !t.Closed {
			return &StateError{Reason: "only closed tickets can be archived"}
		}
		t.ArchivedAt = &when
		if opts.ChannelDeleted {
			t.ChannelDeleted = true
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	// Append before remove: a crash between the two leaves the ticket in
	// both stores, which the next sweep resolves; the reverse order could
	// lose it entirely.
	if err := m.archive.Append(ticket); err != nil {
		return nil, fmt.Errorf("archive ticket %d: %w", ticket.ID, err)
	}
	m.tickets.Remove(channelID)
	m.cancelArchive(channelID)

	if !opts.ChannelDeleted {
		if err := m.channels.DeleteChannel(ctx, channelID); err != nil && !platform.IsChannelGone(err) {
			m.logger.Warn("channel deletion failed, record archived anyway",
				zap.String("channel_id", channelID), zap.Error(err))
		}
	}

	m.publish(ctx, events.EventTicketArchived, &ticket, domain.Actor{}, "")
	return &ticket, nil
}

// History merges the user's active and archived tickets, newest first.
func (m *Manager) History(userID string) ([]domain.Ticket, error) {
	active := m.tickets.ByUser("", userID)
	archived, err := m.archive.GetByUser(userID)
	if err != nil {
		return nil, err
	}
	all := append(active, archived...)
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return all, nil
}

// scheduleArchive registers the deferred archival sweep for a closed
// ticket, replacing any previous entry.
func (m *Manager) scheduleArchive(channelID string, after time.Duration) {
	m.timersMu.Lock()
	defer m.timersMu.Unlock()
	if old, ok := m.timers[channelID]; ok {
		old.Stop()
	}
	m.timers[channelID] = time.AfterFunc(after, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := m.Archive(ctx, channelID, ArchiveOptions{}); err != nil {
			// The hourly cleanup sweep retries anything the timer missed.
			m.logger.Debug("scheduled archive skipped", zap.String("channel_id", channelID), zap.Error(err))
		}
	})
}

// cancelArchive stops and removes the pending archival entry, if any.
func (m *Manager) cancelArchive(channelID string) {
	m.timersMu.Lock()
	defer m.timersMu.Unlock()
	if timer, ok := m.timers[channelID]; ok {
		timer.Stop()
		delete(m.timers, channelID)
	}
}

// Shutdown stops all pending archive timers; the cleanup sweep picks the
// work up again after restart.
func (m *Manager) Shutdown() {
	m.timersMu.Lock()
	defer m.timersMu.Unlock()
	for channelID, timer := range m.timers {
		timer.Stop()
		delete(m.timers, channelID)
	}
}

func (m *Manager) publish(ctx context.Context, eventType events.EventType, ticket *domain.Ticket, actor domain.Actor, reason string) {
	if m.dispatcher == nil {
		return
	}
	_ = m.dispatcher.Publish(ctx, events.Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		CommunityID: ticket.CommunityID,
		ChannelID:   ticket.ChannelID,
		TicketID:    ticket.ID,
		Actor:       actor,
		Timestamp:   m.now(),
		Reason:      reason,
	})
}

func (m *Manager) logToChannel(ctx context.Context, content string) {
	if m.cfg.LogChannelID == "" {
		return
	}
	if err := m.notifier.PostMessage(ctx, m.cfg.LogChannelID, content); err != nil {
		m.logger.Warn("log channel post failed", zap.Error(err))
	}
}

func mapStoreErr(err error) error {
	if err == store.ErrNotFound {
		return ErrNotFound
	}
	return err
}
