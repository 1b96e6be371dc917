// Package errs classifies engine failures into the few kinds the
// presentation layer understands. Every error carries a stable code.
package errs

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindFatal Kind = iota
	KindNotFound
	KindPrecondition
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPrecondition:
		return "precondition_failed"
	case KindValidation:
		return "validation_failed"
	default:
		return "fatal"
	}
}

// Error is an expected, caller-recoverable condition (or a wrapped fatal one).
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func NotFound(code, msg string) *Error     { return &Error{Kind: KindNotFound, Code: code, Msg: msg} }
func Precondition(code, msg string) *Error { return &Error{Kind: KindPrecondition, Code: code, Msg: msg} }
func Validation(code, msg string) *Error   { return &Error{Kind: KindValidation, Code: code, Msg: msg} }

// Fatal wraps an unexpected failure (storage down, a constraint that raced
// past the application check). The caller must retry the whole operation.
func Fatal(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindFatal, Code: "internal", Msg: op, Err: err}
}

// Validationf builds a one-off validation error with a formatted message.
func Validationf(code, format string, args ...any) *Error {
	return Validation(code, fmt.Sprintf(format, args...))
}

// KindOf reports the kind of err; unclassified errors are fatal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}

// CodeOf reports the stable code of err ("internal" when unclassified).
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindFatal {
		return e.Code
	}
	return "internal"
}

// Shared codes used by more than one engine.
var (
	ErrAttemptNotFound      = NotFound("attempt_not_found", "attempt not found")
	ErrNotOwner             = NotFound("attempt_not_found", "attempt not found")
	ErrAlreadyCompleted     = Precondition("already_completed", "attempt already completed")
	ErrAttemptAlreadyActive = Precondition("attempt_already_active", "an attempt is already in progress")
	ErrUserNotFound         = NotFound("user_not_found", "user not found")
	ErrAccessDenied         = Precondition("access_denied", "access tier does not allow graded attempts")
)
