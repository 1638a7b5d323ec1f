// Package waiter bounds the two waits of a session start: the device
// reaching ONLINE and an app installation finishing.
package waiter

import (
	"errors"
	"fmt"

	"github.com/shehryarbajwa/devicecloud-mini/internal/network"
)

// Op names the wait that failed.
type Op string

const (
	OpReadiness    Op = "readiness"
	OpInstallation Op = "installation"
)

// Reason classifies a failed wait.
type Reason string

const (
	// ReasonFailed means the device or installation reported a failure.
	ReasonFailed Reason = "failed"
	// ReasonTimeout means the deadline passed first.
	ReasonTimeout Reason = "timeout"
	// ReasonCancelled means the caller gave up.
	ReasonCancelled Reason = "cancelled"
	// ReasonRequest means a status call failed.
	ReasonRequest Reason = "request"
)

// Error is returned by both waiters. Err carries the network error kind
// the failure maps to, so errors.Is(err, network.ErrUnauthorized) holds
// for failed and timed out installations.
type Error struct {
	Op     Op
	Reason Reason
	// Last is the last device state or installation status observed.
	Last string
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s wait %s", e.Op, e.Reason)
	if e.Last != "" {
		msg += " (last " + e.Last + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a waiter timeout.
func IsTimeout(err error) bool {
	var we *Error
	return errors.As(err, &we) && we.Reason == ReasonTimeout
}

func readinessError(reason Reason, last string, err error) *Error {
	if err == nil {
		err = network.ErrInvalidServerResponse
	}
	return &Error{Op: OpReadiness, Reason: reason, Last: last, Err: err}
}

func installationError(reason Reason, last string, err error) *Error {
	if err == nil {
		err = network.ErrUnauthorized
	}
	return &Error{Op: OpInstallation, Reason: reason, Last: last, Err: err}
}
