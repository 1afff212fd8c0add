package platform

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind tags collaborator failures so recovery logic does not depend on
// the error-code scheme of any particular chat platform.
type ErrorKind string

const (
	KindChannelGone      ErrorKind = "channel_gone"
	KindPermissionDenied ErrorKind = "permission_denied"
	KindRateLimited      ErrorKind = "rate_limited"
	KindUnavailable      ErrorKind = "unavailable"
)

// Error is a tagged collaborator failure.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a tagged error.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the kind from an error chain, or "" when untagged.
func KindOf(err error) ErrorKind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return ""
}

// IsChannelGone reports whether err means the channel no longer exists.
// Callers treat this as success for deletions and as confirmed drift for
// the verifier.
func IsChannelGone(err error) bool {
	return KindOf(err) == KindChannelGone
}

// PermissionGrant describes one permission entry on a channel.
type PermissionGrant struct {
	Principal string
	AllowView bool
	AllowSend bool
}

// ChannelState is a snapshot of a channel as the platform sees it.
type ChannelState struct {
	Handle string
	Name   string
	Grants []PermissionGrant
}

// HasGrant reports whether the state carries an entry for the principal.
func (s *ChannelState) HasGrant(principal string) bool {
	for _, grant := range s.Grants {
		if grant.Principal == principal {
			return true
		}
	}
	return false
}

// ChannelClient provisions and maintains the external channels that back
// tickets. Implementations must complete or fail within a bounded time and
// report failures through tagged errors.
type ChannelClient interface {
	CreateChannel(ctx context.Context, communityID, name string, grants []PermissionGrant) (handle string, err error)
	DeleteChannel(ctx context.Context, handle string) error
	RenameChannel(ctx context.Context, handle, name string) error
	SetPermission(ctx context.Context, handle string, grant PermissionGrant) error
	InspectChannel(ctx context.Context, handle string) (*ChannelState, error)
}

// Notifier posts messages for logs, transcripts and user notifications.
type Notifier interface {
	PostMessage(ctx context.Context, channelHandle, content string) error
	DirectMessage(ctx context.Context, userID, content string) error
}

// Interactions answers whether an originating interaction is still
// actionable; a queued creation whose interaction expired while waiting
// is discarded without error.
type Interactions interface {
	IsActionable(ctx context.Context, interactionID string) bool
}
