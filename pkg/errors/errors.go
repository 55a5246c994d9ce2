package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// Artifact store errors.
	ErrConflict          = New("CONFLICT", http.StatusConflict, "artifact conflicts with an existing upload")
	ErrLockedAttempt     = New("LOCKED_ATTEMPT", http.StatusLocked, "second attempt is locked for this paper")
	ErrInvalidTransition = New("INVALID_TRANSITION", http.StatusConflict, "illegal workflow transition")

	// Submission queue errors.
	ErrAlreadyQueued = New("ALREADY_QUEUED", http.StatusConflict, "artifact already has an in-flight queue entry")

	// Report errors.
	ErrWithdrawnReport = New("WITHDRAWN_REPORT", http.StatusConflict, "cannot resolve a withdrawn report")

	// Delivery errors. Retryable failures are absorbed by the queue drain loop
	// up to the configured ceiling; terminal ones stop retries immediately.
	ErrRetryableDelivery = New("RETRYABLE_DELIVERY", http.StatusBadGateway, "delivery failed, outcome retryable")
	ErrTerminalDelivery  = New("TERMINAL_DELIVERY", http.StatusUnprocessableEntity, "delivery rejected permanently")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Is reports whether err carries the same code as target.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
