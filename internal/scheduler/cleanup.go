package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/panel-kit/ticket-core/internal/config"
	"github.com/panel-kit/ticket-core/internal/lifecycle"
	"github.com/panel-kit/ticket-core/internal/store"
)

// Cleanup periodically archives closed tickets whose closed_at age has
// exceeded the auto-close window, and prunes archive shards past the
// retention horizon.
type Cleanup struct {
	cfg       config.TicketConfig
	tickets   *store.TicketStore
	archive   *store.ArchiveStore
	lifecycle *lifecycle.Manager
	logger    *zap.Logger

	// Guards against overlapping sweeps: a new sweep is skipped while the
	// previous one is still executing.
	running sync.Mutex

	now func() time.Time
}

// NewCleanup constructs the cleanup scheduler.
func NewCleanup(cfg config.TicketConfig, tickets *store.TicketStore, archive *store.ArchiveStore, lc *lifecycle.Manager, logger *zap.Logger) *Cleanup {
	return &Cleanup{
		cfg:       cfg,
		tickets:   tickets,
		archive:   archive,
		lifecycle: lc,
		logger:    logger,
		now:       time.Now,
	}
}

// Run sweeps on the configured interval until the context ends.
func (c *Cleanup) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CleanupInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Sweep performs one cleanup pass. It returns the number of tickets
// archived; overlapping invocations are skipped, not queued.
func (c *Cleanup) Sweep(ctx context.Context) int {
	if !c.running.TryLock() {
		c.logger.Debug("cleanup sweep still running, skipping")
		return 0
	}
	defer c.running.Unlock()

	cutoff := c.now().Add(-c.cfg.AutoClose())
	archived := 0
	for _, ticket := range c.tickets.All() {
		if !ticket.Closed || ticket.ClosedAt == nil {
			continue
		}
		if ticket.ClosedAt.After(cutoff) {
			continue
		}
		if _, err := c.lifecycle.Archive(ctx, ticket.ChannelID, lifecycle.ArchiveOptions{}); err != nil {
			c.logger.Warn("cleanup archive failed",
				zap.Int("ticket_id", ticket.ID),
				zap.String("channel_id", ticket.ChannelID),
				zap.Error(err))
			continue
		}
		archived++
	}

	if pruned, err := c.archive.PruneOlderThan(c.now(), c.cfg.ArchiveRetentionMonths); err != nil {
		c.logger.Warn("archive pruning failed", zap.Error(err))
	} else if pruned > 0 {
		c.logger.Info("archive shards pruned", zap.Int("count", pruned))
	}

	if archived > 0 {
		c.logger.Info("cleanup sweep archived tickets", zap.Int("count", archived))
	}
	return archived
}
