// Package errs defines the structured error kinds surfaced by the engine.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error for callers
type Kind int

const (
	Internal Kind = iota
	NotFound
	InvalidArgument
	Blocked
	Unauthenticated
	PermissionDenied
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case InvalidArgument:
		return "invalid_argument"
	case Blocked:
		return "blocked"
	case Unauthenticated:
		return "unauthenticated"
	case PermissionDenied:
		return "permission_denied"
	default:
		return "internal"
	}
}

// Error is an engine error carrying a Kind
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFoundf(format string, args ...interface{}) *Error {
	return New(NotFound, format, args...)
}

func InvalidArgumentf(format string, args ...interface{}) *Error {
	return New(InvalidArgument, format, args...)
}

func Blockedf(format string, args ...interface{}) *Error {
	return New(Blocked, format, args...)
}

func Unauthenticatedf(format string, args ...interface{}) *Error {
	return New(Unauthenticated, format, args...)
}

func PermissionDeniedf(format string, args ...interface{}) *Error {
	return New(PermissionDenied, format, args...)
}

// Internalf wraps a store failure
func Internalf(err error, format string, args ...interface{}) *Error {
	return Wrap(Internal, err, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain.
// Errors without one are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the client-safe message for err
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == Internal {
			return "internal error"
		}
		return e.Message
	}
	return "internal error"
}
