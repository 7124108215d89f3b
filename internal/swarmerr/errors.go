// Package swarmerr defines the error taxonomy surfaced to meta-tool callers.
//
// Every error the control surface reports to a client is an *Error built by
// New or Wrap and tagged with one of the kinds below. Callers distinguish
// kinds with swarmerr.Is, never by matching message text; Is still finds the
// *Error when it has been further wrapped with fmt.Errorf("...: %w", ...).
package swarmerr

import (
	"errors"
	"fmt"
)

// Kind is one taxonomy entry from spec §7. Is compares Kind values through
// errors.As; an Error without a cause also unwraps to the matching sentinel,
// while a Wrap'd Error unwraps to its cause.
type Kind string

const (
	BadInput     Kind = "bad_input"
	NotFound     Kind = "not_found"
	Conflict     Kind = "conflict"
	SpawnFailed  Kind = "spawn_failed"
	NotConnected Kind = "not_connected"
	Timeout      Kind = "timeout"
	WorkerError  Kind = "worker_error"
	Cancelled    Kind = "cancelled"
	Internal     Kind = "internal"
)

// sentinels let errors.Is match on Kind without string comparison.
var sentinels = map[Kind]error{
	BadInput:     errors.New("bad input"),
	NotFound:     errors.New("not found"),
	Conflict:     errors.New("conflict"),
	SpawnFailed:  errors.New("spawn failed"),
	NotConnected: errors.New("not connected"),
	Timeout:      errors.New("timeout"),
	WorkerError:  errors.New("worker error"),
	Cancelled:    errors.New("cancelled"),
	Internal:     errors.New("internal error"),
}

// Error is a taxonomy-tagged error returned to meta-tool callers.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // optional wrapped cause
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return sentinels[e.Kind]
}

// New builds a Kind-tagged error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags an existing error with a Kind, preserving it for errors.As/Unwrap.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return errors.Is(err, sentinels[kind])
}
