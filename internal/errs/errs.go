// Package errs holds the error kinds shared by the debate core.
//
// Every failure returned by the scheduler, matcher and scorer belongs to one
// of three kinds. Callers classify with errors.Is against the kind sentinels;
// the more specific Conflict and InvalidState sentinels are both NotAllowed.
package errs

import (
	"errors"
	"fmt"
)

// Kind sentinels.
var (
	ErrNotFound     = errors.New("not found")
	ErrNotAllowed   = errors.New("not allowed")
	ErrInvalidInput = errors.New("invalid input")
)

// Specific NotAllowed sentinels.
var (
	ErrConflict     = &kindError{kind: ErrNotAllowed, msg: "conflict"}
	ErrInvalidState = &kindError{kind: ErrNotAllowed, msg: "invalid state"}
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Is(target error) bool { return target == e.kind }

// Error is a classified failure carrying a human readable message.
type Error struct {
	kind   error
	reason error
	msg    string
}

func (e *Error) Error() string { return e.msg }

// Is reports whether target is the kind or the specific sentinel of e.
func (e *Error) Is(target error) bool {
	if target == e.kind {
		return true
	}
	return e.reason != nil && (target == e.reason || errors.Is(e.reason, target))
}

// Kind returns the kind sentinel of e.
func (e *Error) Kind() error { return e.kind }

func newError(kind, reason error, format string, args ...any) *Error {
	return &Error{kind: kind, reason: reason, msg: fmt.Sprintf(format, args...)}
}

// NotFound reports a referenced record that does not exist.
func NotFound(format string, args ...any) error {
	return newError(ErrNotFound, nil, format, args...)
}

// NotAllowed reports a business rule violation.
func NotAllowed(format string, args ...any) error {
	return newError(ErrNotAllowed, nil, format, args...)
}

// InvalidInput reports malformed caller supplied data.
func InvalidInput(format string, args ...any) error {
	return newError(ErrInvalidInput, nil, format, args...)
}

// Conflict reports a key that is already scheduled.
func Conflict(format string, args ...any) error {
	return newError(ErrNotAllowed, ErrConflict, format, args...)
}

// InvalidState reports an operation that the current state forbids, such as
// moving a deadline into the past.
func InvalidState(format string, args ...any) error {
	return newError(ErrNotAllowed, ErrInvalidState, format, args...)
}
