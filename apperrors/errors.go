// Package apperrors defines the error taxonomy shared by services, repositories and controllers.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind string

const (
	KindUnknown      Kind = "UNKNOWN"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindForbidden    Kind = "FORBIDDEN"
	KindNotFound     Kind = "NOT_FOUND"
	KindConflict     Kind = "CONFLICT"
	KindInvalidInput Kind = "INVALID_INPUT"
	KindInternal     Kind = "INTERNAL"
)

// Error is an application error carrying a kind, a client-safe message and an optional cause.
type Error struct {
	kind    Kind
	message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}
	return e.message
}

func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Message() string { return e.message }

func (e *Error) Unwrap() error { return e.err }

// Is lets errors.Is match on kind sentinels such as ErrNotFound.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.message == "" && t.err == nil && t.kind == e.kind
}

// Kind sentinels, usable with errors.Is.
var (
	ErrUnauthorized = &Error{kind: KindUnauthorized}
	ErrForbidden    = &Error{kind: KindForbidden}
	ErrNotFound     = &Error{kind: KindNotFound}
	ErrConflict     = &Error{kind: KindConflict}
	ErrInvalidInput = &Error{kind: KindInvalidInput}
)

func Unauthorized(message string) error { return &Error{kind: KindUnauthorized, message: message} }

func Forbidden(message string) error { return &Error{kind: KindForbidden, message: message} }

func NotFound(message string) error { return &Error{kind: KindNotFound, message: message} }

func Conflict(message string) error { return &Error{kind: KindConflict, message: message} }

func InvalidInput(message string) error { return &Error{kind: KindInvalidInput, message: message} }

// Internal wraps an infrastructure failure. The cause is logged, never shown to clients.
func Internal(message string, cause error) error {
	return &Error{kind: KindInternal, message: message, err: cause}
}

// KindOf returns the kind of err, or KindUnknown when err is not an application error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.kind
	}
	return KindUnknown
}

// PublicMessage returns the message safe to show to API clients.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.kind != KindInternal && appErr.message != "" {
		return appErr.message
	}
	return "internal server error"
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
