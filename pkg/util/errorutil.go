package util

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
)

// DomainError standardizes application errors across the lifecycle services
// and the HTTP command surface.
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

// NewPolicyDenied covers refusals that leave state untouched: closer is not
// the owner, caller lacks privilege.
func NewPolicyDenied(message string) error {
	return NewDomainError("POLICY_DENIED", message, http.StatusForbidden, nil)
}

// NewCooldownActive reports a creation attempt inside the cooldown window.
func NewCooldownActive(remaining time.Duration) error {
	return NewDomainError("COOLDOWN_ACTIVE", "ticket creation is rate limited", http.StatusTooManyRequests, map[string]any{
		"retry_after_seconds": int64(remaining / time.Second),
	})
}

// NewInvalidTransition reports a verification event that does not apply to
// the ticket's current state.
func NewInvalidTransition(from, to string) error {
	return NewDomainError("INVALID_TRANSITION", "event does not apply to current state", http.StatusConflict, map[string]any{
		"from": from,
		"to":   to,
	})
}

// NewConflict reports a state conflict such as a second open ticket.
func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

// NewExternalFailure wraps a failed call to a collaborator (chat platform,
// classifier, archive). The wrapped error is preserved for logs.
func NewExternalFailure(op string, err error) error {
	return &DomainError{
		Code:       "EXTERNAL_FAILURE",
		Message:    fmt.Sprintf("%s failed", op),
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

// IsCode reports whether err is a DomainError with the given code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}
