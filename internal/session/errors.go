package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned by commands before the session is ready.
	ErrNotReady = errors.New("session not ready")
	// ErrClosed is returned once the session was torn down.
	ErrClosed = errors.New("session closed")
	// ErrCapacity is returned when the live session limit is reached.
	ErrCapacity = errors.New("session limit reached")
	// ErrNotFound is returned for an unknown session handle.
	ErrNotFound = errors.New("session not found")
)

// Error is a failed session attempt. Stage is the stage that could not
// be reached.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("session failed before %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
