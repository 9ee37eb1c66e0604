package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// ErrorKind classifies request failures so callers can be answered with a
// structured reason code without inspecting error text.
type ErrorKind string

const (
	KindNotFound   ErrorKind = "NOT_FOUND"
	KindForbidden  ErrorKind = "FORBIDDEN"
	KindConflict   ErrorKind = "CONFLICT"
	KindExpired    ErrorKind = "EXPIRED"
	KindValidation ErrorKind = "VALIDATION"
	// KindIntegrity marks data corruption. Its details are logged internally
	// and never surfaced to callers.
	KindIntegrity ErrorKind = "INTEGRITY"
)

// Error is a request-scoped failure carrying its taxonomy kind.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func NewNotFoundError(msg string) error {
	return &Error{Kind: KindNotFound, Err: errors.New(msg)}
}

func NewForbiddenError(msg string) error {
	return &Error{Kind: KindForbidden, Err: errors.New(msg)}
}

func NewConflictError(msg string) error {
	return &Error{Kind: KindConflict, Err: errors.New(msg)}
}

func NewExpiredError(msg string) error {
	return &Error{Kind: KindExpired, Err: errors.New(msg)}
}

// NewIntegrityError wraps a corruption fault. The wrapped detail is for
// internal logs only; the caller-facing message stays opaque.
func NewIntegrityError(err error) error {
	return &Error{Kind: KindIntegrity, Err: err}
}

// KindOf reports the taxonomy kind of err, unwrapping pkg/errors causes.
// The empty string means err carries no kind.
func KindOf(err error) ErrorKind {
	if appErr, ok := errors.Cause(err).(*Error); ok {
		return appErr.Kind
	}
	return ""
}

func IsNotFound(err error) bool  { return KindOf(err) == KindNotFound }
func IsForbidden(err error) bool { return KindOf(err) == KindForbidden }
func IsConflict(err error) bool  { return KindOf(err) == KindConflict }
func IsExpired(err error) bool   { return KindOf(err) == KindExpired }
func IsIntegrity(err error) bool { return KindOf(err) == KindIntegrity }

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
