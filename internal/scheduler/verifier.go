package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/panel-kit/ticket-core/internal/config"
	"github.com/panel-kit/ticket-core/internal/domain"
	"github.com/panel-kit/ticket-core/internal/lifecycle"
	"github.com/panel-kit/ticket-core/internal/platform"
	"github.com/panel-kit/ticket-core/internal/store"
)

// reportCap bounds how many issues of one type a report lists.
const reportCap = 10

// Verifier periodically checks active tickets against reality: the backing
// channel must exist, required permission entries must be present, and the
// record's field invariants must hold. Repairs are applied where safe;
// everything found is reported to the audit channel.
type Verifier struct {
	cfg       config.TicketConfig
	tickets   *store.TicketStore
	channels  platform.ChannelClient
	notifier  platform.Notifier
	lifecycle *lifecycle.Manager
	logger    *zap.Logger

	running sync.Mutex
}

// NewVerifier constructs the consistency verifier.
func NewVerifier(cfg config.TicketConfig, tickets *store.TicketStore, channels platform.ChannelClient, notifier platform.Notifier, lc *lifecycle.Manager, logger *zap.Logger) *Verifier {
	return &Verifier{
		cfg:       cfg,
		tickets:   tickets,
		channels:  channels,
		notifier:  notifier,
		lifecycle: lc,
		logger:    logger,
	}
}

// Run verifies at startup and then on the configured interval until the
// context ends.
func (v *Verifier) Run(ctx context.Context) {
	v.Verify(ctx)

	ticker := time.NewTicker(v.cfg.VerifyInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.Verify(ctx)
		}
	}
}

// Verify performs one verification pass and returns the issues found.
// Overlapping invocations are skipped.
func (v *Verifier) Verify(ctx context.Context) []domain.Issue {
	if !v.running.TryLock() {
		v.logger.Debug("verification still running, skipping")
		return nil
	}
	defer v.running.Unlock()

	var issues []domain.Issue
	for _, ticket := range v.tickets.All() {
		issues = append(issues, v.verifyChannel(ctx, ticket)...)

		// Data-shape findings are reported, never acted on: only a
		// confirmed-missing channel justifies touching the record.
		issues = append(issues, ticket.Validate()...)
	}

	if len(issues) > 0 {
		v.report(ctx, issues)
	}
	return issues
}

func (v *Verifier) verifyChannel(ctx context.Context, ticket domain.Ticket) []domain.Issue {
	state, err := v.channels.InspectChannel(ctx, ticket.ChannelID)
	if err != nil {
		if platform.IsChannelGone(err) {
			if !ticket.Closed {
				// Archive requires the closed state; record what happened
				// before flagging the channel as gone.
				when := time.Now()
				if _, uerr := v.tickets.Update(ticket.ChannelID, func(t *domain.Ticket) error {
					t.Closed = true
					t.ClosedAt = &when
					t.CloseReason = "backing channel missing"
					return nil
				}); uerr != nil {
					v.logger.Warn("flagging orphaned ticket failed", zap.Int("ticket_id", ticket.ID), zap.Error(uerr))
				}
			}
			if _, aerr := v.lifecycle.Archive(ctx, ticket.ChannelID, lifecycle.ArchiveOptions{ChannelDeleted: true}); aerr != nil {
				v.logger.Warn("archiving orphaned ticket failed", zap.Int("ticket_id", ticket.ID), zap.Error(aerr))
			}
			return []domain.Issue{{
				TicketID:    ticket.ID,
				CommunityID: ticket.CommunityID,
				Type:        domain.IssueInvalidChannel,
				Message:     "channel no longer exists; ticket archived with flag",
			}}
		}
		// Transient inspection failures are not drift; try again next run.
		v.logger.Warn("channel inspection failed", zap.String("channel_id", ticket.ChannelID), zap.Error(err))
		return nil
	}

	return v.repairPermissions(ctx, ticket, state)
}

// repairPermissions re-applies missing permission entries in place. The
// creator keeps view/send only while the ticket is open; staff roles are
// always present.
func (v *Verifier) repairPermissions(ctx context.Context, ticket domain.Ticket, state *platform.ChannelState) []domain.Issue {
	var issues []domain.Issue

	if !state.HasGrant(ticket.UserID) {
		grant := platform.PermissionGrant{
			Principal: ticket.UserID,
			AllowView: !ticket.Closed,
			AllowSend: !ticket.Closed,
		}
		if err := v.channels.SetPermission(ctx, ticket.ChannelID, grant); err != nil {
			v.logger.Warn("creator permission repair failed", zap.Int("ticket_id", ticket.ID), zap.Error(err))
		} else {
			issues = append(issues, domain.Issue{
				TicketID:    ticket.ID,
				CommunityID: ticket.CommunityID,
				Type:        domain.IssueInvalidChannel,
				Message:     "missing creator permission entry re-applied",
			})
		}
	}

	for _, role := range v.cfg.StaffRoles {
		if state.HasGrant(role) {
			continue
		}
		grant := platform.PermissionGrant{Principal: role, AllowView: true, AllowSend: true}
		if err := v.channels.SetPermission(ctx, ticket.ChannelID, grant); err != nil {
			v.logger.Warn("staff permission repair failed", zap.Int("ticket_id", ticket.ID), zap.Error(err))
			continue
		}
		issues = append(issues, domain.Issue{
			TicketID:    ticket.ID,
			CommunityID: ticket.CommunityID,
			Type:        domain.IssueInvalidChannel,
			Message:     fmt.Sprintf("missing staff permission entry re-applied for %s", role),
		})
	}
	return issues
}

// report groups issues by type and posts one capped message per group to
// the audit channel.
func (v *Verifier) report(ctx context.Context, issues []domain.Issue) {
	if v.cfg.LogChannelID == "" {
		v.logger.Warn("verification issues found but no log channel configured", zap.Int("count", len(issues)))
		return
	}

	groups := make(map[domain.IssueType][]domain.Issue)
	for _, issue := range issues {
		groups[issue.Type] = append(groups[issue.Type], issue)
	}

	for kind, group := range groups {
		var b strings.Builder
		fmt.Fprintf(&b, "Ticket system issues detected: %d of type %s\n", len(group), kind)
		shown := group
		if len(shown) > reportCap {
			shown = shown[:reportCap]
		}
		for _, issue := range shown {
			fmt.Fprintf(&b, "- Ticket #%d (%s): %s\n", issue.TicketID, issue.CommunityID, issue.Message)
		}
		if len(group) > reportCap {
			fmt.Fprintf(&b, "...and %d more issues\n", len(group)-reportCap)
		}
		if err := v.notifier.PostMessage(ctx, v.cfg.LogChannelID, b.String()); err != nil {
			v.logger.Warn("issue report failed", zap.String("issue_type", string(kind)), zap.Error(err))
		}
	}
}
