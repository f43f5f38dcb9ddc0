// Package gwerr defines the typed error kinds shared across the supervisor's
// components, so callers can branch on failure class with errors.As instead
// of matching error strings.
package gwerr

import "fmt"

// Kind identifies the category of a supervisor error.
type Kind string

const (
	KindConfig         Kind = "config"
	KindSpawn          Kind = "spawn"
	KindUnknownWorker  Kind = "unknown_worker"
	KindDuplicateName  Kind = "duplicate_name"
	KindInvalidState   Kind = "invalid_state"
	KindCircuitOpen    Kind = "circuit_open"
	KindSendFailed     Kind = "send_failed"
	KindQueueIO        Kind = "queue_io"
	KindSample         Kind = "sample"
)

// Error wraps an underlying cause with a Kind so it can be classified without
// string matching.
type Error struct {
	Kind  Kind
	Op    string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error for op/kind with no wrapped cause.
func New(op string, kind Kind) error {
	return &Error{Op: op, Kind: kind}
}

// Wrap builds an *Error for op/kind around cause. Returns nil if cause is nil.
func Wrap(op string, kind Kind, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Cause: cause}
}

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ge, ok := err.(*Error); ok {
			e = ge
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
