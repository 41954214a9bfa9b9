package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error independently of transport. The HTTP boundary
// maps kinds to status codes; everything below it reasons in kinds only.
type Kind string

const (
	Unauthenticated   Kind = "unauthenticated"
	Forbidden         Kind = "forbidden"
	NotFound          Kind = "not_found"
	Conflict          Kind = "conflict"
	InvalidInput      Kind = "invalid_input"
	Throttled         Kind = "throttled"
	ProviderExhausted Kind = "provider_exhausted"
	Cancelled         Kind = "cancelled"
	Transient         Kind = "transient"
	Fatal             Kind = "fatal"
)

// Error carries a Kind, a client-safe message, and an optional cause.
// The message never contains internals; the cause is for logs only.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an error of the given kind with a client-safe message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a cause. The message is still what clients may see.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf extracts the Kind from err, walking the wrap chain.
// Unclassified errors are Fatal: an unknown failure must never be
// presented as retriable or as a client mistake.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Fatal
}

// Is lets errors.Is match on kind: errors.Is(err, errs.New(errs.NotFound, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
