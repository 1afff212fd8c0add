package lifecycle

import (
	"errors"
	"fmt"
	"time"
)

// Named transition conditions. Callers match with errors.Is and map them
// to user-facing messages; none of them leaves persisted state changed.
var (
	ErrNotFound         = errors.New("ticket not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidState     = errors.New("invalid ticket state")
	ErrLimitExceeded    = errors.New("open ticket limit exceeded")
	ErrCooldownActive   = errors.New("creation cooldown active")
)

// LimitError reports how many tickets the requester already has open.
type LimitError struct {
	Open int
	Max  int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("you already have %d open tickets (limit %d)", e.Open, e.Max)
}

func (e *LimitError) Is(target error) bool { return target == ErrLimitExceeded }

// CooldownError reports how long the requester must wait.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	minutes := int(e.Remaining.Minutes()) + 1
	return fmt.Sprintf("please wait %d minute(s) before creating another ticket", minutes)
}

func (e *CooldownError) Is(target error) bool { return target == ErrCooldownActive }

// StateError carries the reason a transition was invalid for the ticket's
// current state ("already claimed", "already closed", ...).
type StateError struct {
	Reason string
}

func (e *StateError) Error() string { return e.Reason }

func (e *StateError) Is(target error) bool { return target == ErrInvalidState }
