// Package apperr defines the typed error taxonomy used across the chat
// subsystem. Component operations fail fast with one of these kinds; the
// HTTP boundary maps kinds to status codes and never leaks internal
// causes verbatim.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the API boundary.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindPermission  Kind = "permission_denied"
	KindConflict    Kind = "conflict"
	KindUnavailable Kind = "unavailable"
	KindUnsupported Kind = "unsupported"
)

// Error is a typed application error.
type Error struct {
	Kind  Kind
	Field string // optional field-level detail for validation errors
	Msg   string
	Err   error // wrapped cause, not exposed to callers of the API
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches errors of the same kind, so callers can use
// errors.Is(err, apperr.Conflict("")) style sentinels if they want.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// KindOf returns the kind of err, or "" if err is not an apperr.Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Validationf builds a validation error with a field detail.
func Validationf(field, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a not-found error. Used both when the referenced
// entity does not exist and when it is not visible to the caller.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Permissionf builds a permission-denied error.
func Permissionf(format string, args ...any) *Error {
	return &Error{Kind: KindPermission, Msg: fmt.Sprintf(format, args...)}
}

// Conflictf builds a conflict error. Conflicts are caller-retryable.
func Conflictf(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// Unsupportedf builds an unsupported-operation error.
func Unsupportedf(format string, args ...any) *Error {
	return &Error{Kind: KindUnsupported, Msg: fmt.Sprintf(format, args...)}
}

// Unavailable wraps a storage or transport failure as retryable.
func Unavailable(op string, err error) *Error {
	return &Error{Kind: KindUnavailable, Msg: op + " failed, retry later", Err: err}
}
