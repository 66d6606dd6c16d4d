// Package apperr defines the closed set of error kinds the route manager
// core can raise, and the HTTP status each one maps to. Store and route
// validation code return these directly instead of ad hoc errors.New calls;
// kernel failures are wrapped as KindActuator by the API layer, which has
// exactly one place (writeError) that inspects a kind.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the taxonomy entries from the error-handling design.
type Kind int

const (
	// KindValidation marks malformed or semantically invalid input.
	KindValidation Kind = iota
	// KindAuth marks a missing or mismatched bearer token.
	KindAuth
	// KindNotFound marks a route absent when the operation requires it.
	KindNotFound
	// KindConflict marks a uniqueness or precondition violation.
	KindConflict
	// KindActuator marks a kernel call failing for a reason other than an
	// idempotency signal.
	KindActuator
	// KindStorage marks a backing-store failure.
	KindStorage
)

// Error is the core's error type. It always carries a Kind so callers can
// branch on it with errors.As without string matching.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus implements the §7 kind→status mapping.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindAuth:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindActuator, KindStorage:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func newf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Validation builds a KindValidation error.
func Validation(format string, args ...any) *Error { return newf(KindValidation, format, args...) }

// Auth builds a KindAuth error.
func Auth(format string, args ...any) *Error { return newf(KindAuth, format, args...) }

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...any) *Error { return newf(KindNotFound, format, args...) }

// Conflict builds a KindConflict error.
func Conflict(format string, args ...any) *Error { return newf(KindConflict, format, args...) }

// Wrap builds an error of the given kind around an underlying cause.
func Wrap(k Kind, msg string, err error) *Error {
	return &Error{Kind: k, Msg: msg, Err: err}
}

// Actuator builds a KindActuator error wrapping a kernel failure.
func Actuator(msg string, err error) *Error { return Wrap(KindActuator, msg, err) }

// Storage builds a KindStorage error wrapping a backing-store failure.
func Storage(msg string, err error) *Error { return Wrap(KindStorage, msg, err) }

// As is a convenience wrapper over errors.As for *Error.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
