// Package errs defines the error taxonomy shared by the analysis pipeline
// and the HTTP surface. Handlers map a Kind to a status code and a safe
// message; the wrapped cause is for logs only.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	Internal Kind = iota
	InvalidInput
	Unauthorized
	Conflict
	UpstreamTimeout
	UpstreamFailure
	PersistenceFailure
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case Unauthorized:
		return "unauthorized"
	case Conflict:
		return "conflict"
	case UpstreamTimeout:
		return "upstream_timeout"
	case UpstreamFailure:
		return "upstream_failure"
	case PersistenceFailure:
		return "persistence_failure"
	default:
		return "internal"
	}
}

// AppError carries a taxonomy kind, a message safe to show callers, and the
// underlying cause for logging.
type AppError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// New creates an AppError without a cause.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Wrap creates an AppError around a cause.
func Wrap(kind Kind, message string, cause error) *AppError {
	return &AppError{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the taxonomy kind from err, defaulting to Internal for
// anything that is not an AppError.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

// SafeMessage returns the caller-facing message for err. Non-AppError values
// collapse to a generic message so internal detail never leaks.
func SafeMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return "an unexpected error occurred"
}

// HTTPStatus maps a kind to the status code used by the API surface.
// Conflict and Unauthorized on the auth endpoints are surfaced as 400 by the
// handlers themselves to keep the original public contract.
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidInput:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Conflict:
		return http.StatusBadRequest
	case UpstreamTimeout, UpstreamFailure:
		return http.StatusInternalServerError
	case PersistenceFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
