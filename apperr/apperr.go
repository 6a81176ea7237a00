// Package apperr defines the error taxonomy shared by the store and the HTTP layer.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an application error.
type Kind string

const (
	KindValidation       Kind = "VALIDATION"
	KindNotFound         Kind = "NOT_FOUND"
	KindConflict         Kind = "CONFLICT"
	KindCapacityExceeded Kind = "CAPACITY_EXCEEDED"
	KindForbidden        Kind = "FORBIDDEN"
	KindUnauthorized     Kind = "UNAUTHORIZED"
	KindTimeout          Kind = "TIMEOUT"
	KindInternal         Kind = "INTERNAL"
)

// HTTPStatus returns the response status for the kind.
// Conflicts, including a full event, are reported as 400.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindConflict, KindCapacityExceeded:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is an application error with a user-facing message.
type Error struct {
	Kind    Kind
	Message string
	Details []FieldError
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error by kind, so errors.Is(err, apperr.ErrNotFound) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// Kind sentinels for errors.Is checks.
var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrCapacityExceeded = &Error{Kind: KindCapacityExceeded}
	ErrForbidden        = &Error{Kind: KindForbidden}
	ErrUnauthorized     = &Error{Kind: KindUnauthorized}
	ErrTimeout          = &Error{Kind: KindTimeout}
	ErrInternal         = &Error{Kind: KindInternal}
)

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(message string, details ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

func NotFound(message string) *Error { return New(KindNotFound, message) }

func Conflict(message string) *Error { return New(KindConflict, message) }

func CapacityExceeded(message string) *Error { return New(KindCapacityExceeded, message) }

func Forbidden(message string) *Error { return New(KindForbidden, message) }

func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }

// KindOf returns the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
