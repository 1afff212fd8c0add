package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/panel-kit/ticket-core/internal/lifecycle"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError, translating the
// named lifecycle conditions to their transport codes.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if de := fromCondition(err); de != nil {
		return de
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func fromCondition(err error) *DomainError {
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		return &DomainError{Code: "NOT_FOUND", Message: "ticket not found", HTTPStatus: http.StatusNotFound, Err: err}
	case errors.Is(err, lifecycle.ErrPermissionDenied):
		return &DomainError{Code: "PERMISSION_DENIED", Message: err.Error(), HTTPStatus: http.StatusForbidden, Err: err}
	case errors.Is(err, lifecycle.ErrInvalidState):
		return &DomainError{Code: "INVALID_STATE", Message: err.Error(), HTTPStatus: http.StatusConflict, Err: err}
	case errors.Is(err, lifecycle.ErrLimitExceeded):
		return &DomainError{Code: "LIMIT_EXCEEDED", Message: err.Error(), HTTPStatus: http.StatusTooManyRequests, Err: err}
	case errors.Is(err, lifecycle.ErrCooldownActive):
		return &DomainError{Code: "COOLDOWN_ACTIVE", Message: err.Error(), HTTPStatus: http.StatusTooManyRequests, Err: err}
	}
	return nil
}
