// Package errs defines the error taxonomy shared by the chat core and its
// transports.
//
// Every failure the core reports to a caller is an *Error carrying a Kind.
// Transports map kinds to status codes (validation 400, conflict 409,
// transient 500) without inspecting messages.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the caller.
type Kind int

const (
	// KindUnknown is any error that did not come from this package.
	KindUnknown Kind = iota
	// KindValidation means the request was malformed. Not retryable.
	KindValidation
	// KindConflict means the request collided with current state.
	KindConflict
	// KindTransient means the store failed. Safe to retry.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error is a classified error. Code is a stable machine-readable name, Msg
// is safe to show to end users.
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

// Is matches another *Error by Code so wrapped sentinels compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

var (
	ErrUsernameInvalid  = &Error{Kind: KindValidation, Code: "UsernameInvalid", Msg: "Username must be 2-30 characters"}
	ErrUsernameMissing  = &Error{Kind: KindValidation, Code: "UsernameInvalid", Msg: "Username is required"}
	ErrEmptyMessage     = &Error{Kind: KindValidation, Code: "EmptyMessage", Msg: "Message cannot be empty"}
	ErrMessageTooLong   = &Error{Kind: KindValidation, Code: "MessageTooLong", Msg: "Message too long"}
	ErrUnknownAction    = &Error{Kind: KindValidation, Code: "UnknownAction", Msg: "Invalid action"}
	ErrInvalidFilter    = &Error{Kind: KindValidation, Code: "InvalidFilter", Msg: "Invalid filter expression"}
	ErrInvalidRequest   = &Error{Kind: KindValidation, Code: "InvalidRequest", Msg: "Invalid request body"}
	ErrUsernameTaken    = &Error{Kind: KindConflict, Code: "UsernameTaken", Msg: "Username already taken"}
	ErrStoreUnavailable = &Error{Kind: KindTransient, Code: "TransientStoreError", Msg: "Store unavailable"}
)

// Validation builds a validation error with a custom message.
func Validation(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Msg: msg}
}

// With returns a copy of sentinel wrapping cause. errors.Is still matches
// the sentinel.
func With(sentinel *Error, cause error) *Error {
	cp := *sentinel
	cp.Err = cause
	return &cp
}

// Transient wraps a store failure observed during op. A nil err yields nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return With(ErrStoreUnavailable, fmt.Errorf("%s: %w", op, err))
}

// KindOf reports the Kind of err, KindUnknown when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Message returns the user-facing message for err. Unclassified errors get a
// generic message so internals never leak to clients.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindTransient {
			return "Internal server error"
		}
		return e.Msg
	}
	return "Internal server error"
}

// IsRetryable reports whether a caller may retry the operation.
func IsRetryable(err error) bool { return KindOf(err) == KindTransient }
