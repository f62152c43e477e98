// Package apperr defines the error kinds shared by the triage, matching,
// scheduling and notification packages. Every error returned by those
// packages can be classified with errors.Is against one of the kinds below.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kinds
var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrAuthorization       = errors.New("not authorized")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrState               = errors.New("invalid state")
	ErrNoSymptoms          = errors.New("no symptoms provided")
	ErrNoAvailableDoctor   = errors.New("no available doctor")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Error is a domain error with a fixed kind and a human readable message.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// New creates an error of the given kind.
func New(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf is New with formatting.
func Newf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Validation creates a new ValidationError
func Validation(field, message string, value any) *ValidationError {
	return &ValidationError{Field: field, Message: message, Value: value}
}

// UnavailableError wraps a failure of a store or directory call.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() []error {
	return []error{ErrUpstreamUnavailable, e.Err}
}

// Unavailable classifies err as an upstream failure unless it already
// carries a domain kind, in which case it is returned unchanged.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomain(err) {
		return err
	}
	return &UnavailableError{Op: op, Err: err}
}

// IsDomain reports whether err carries one of the kinds of this package.
func IsDomain(err error) bool {
	for _, kind := range []error{
		ErrValidation, ErrNotFound, ErrConflict, ErrAuthorization,
		ErrInvalidTransition, ErrState, ErrNoSymptoms, ErrNoAvailableDoctor,
		ErrUpstreamUnavailable,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// IsTimeout reports whether err was caused by a deadline or cancellation.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
