// Package errs holds the error taxonomy shared by every o2rt subsystem.
package errs

import (
	"github.com/pkg/errors"
)

// Kind classifies an error the way the core design separates recoverable
// protocol noise from fatal invariant breaks.
type Kind int

const (
	// KindInvariant is a bug: the caller should abort.
	KindInvariant Kind = iota
	// KindProtocol is a malformed frame or type string: drop and count.
	KindProtocol
	// KindResource is an allocator/resource failure: surfaced to the caller.
	KindResource
	// KindTransport is a socket error or peer drop: drop the peer, mark FAIL.
	KindTransport
	// KindState is an operation issued in the wrong lifecycle state.
	KindState
	// KindTiming is scheduling against a clock that isn't live.
	KindTiming
)

// Code mirrors the flat API's return-code table. SUCCESS is always zero;
// every error is distinct and negative.
type Code int32

const (
	Success            Code = 0
	ErrGeneric         Code = -1
	ErrServiceConflict Code = -2
	ErrNoService       Code = -3
	ErrNoMemory        Code = -4
	ErrAlreadyRunning  Code = -5
	ErrBadName         Code = -6
	ErrChannelHungUp   Code = -7
)

// Error is a taxonomy-tagged error with an optional cause.
type Error struct {
	Kind Kind
	Code Code
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newErr(kind Kind, code Code, msg string) *Error {
	return &Error{Kind: kind, Code: code, msg: msg}
}

var (
	ErrNotRunning        = newErr(KindState, ErrGeneric, "runtime not initialized")
	ErrAlreadyInit       = newErr(KindState, ErrAlreadyRunning, "runtime already running")
	ErrBadApplicationName = newErr(KindState, ErrBadName, "invalid application name")
	ErrServiceExists     = newErr(KindInvariant, ErrServiceConflict, "service name already registered")
	ErrServiceMissing    = newErr(KindState, ErrNoService, "no such service")
	ErrOutOfMemory       = newErr(KindResource, ErrNoMemory, "allocator failure")
	ErrPeerHungUp        = newErr(KindTransport, ErrChannelHungUp, "peer channel closed")
	ErrClockNotLive      = newErr(KindTiming, ErrGeneric, "scheduler clock is not live")
	ErrMalformedMessage  = newErr(KindProtocol, ErrGeneric, "malformed message")
)

// Wrap attaches context to err while preserving its Kind/Code when err is
// (or wraps) an *Error; otherwise it's treated as a generic protocol error.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, context)
}

// ToCode translates any error produced inside o2rt into the flat API's
// return code, per spec.md §6/§7.
func ToCode(err error) Code {
	if err == nil {
		return Success
	}
	var e *Error
	cause := errors.Cause(err)
	if ce, ok := cause.(*Error); ok {
		e = ce
	}
	if e == nil {
		return ErrGeneric
	}
	return e.Code
}

// KindOf reports the taxonomy kind of err, defaulting to KindProtocol for
// unrecognized errors (the safe "drop and count" default per §7).
func KindOf(err error) Kind {
	cause := errors.Cause(err)
	if e, ok := cause.(*Error); ok {
		return e.Kind
	}
	return KindProtocol
}

// New builds a fresh taxonomy-tagged error, for call sites that need a new
// instance rather than one of the shared sentinels above.
func New(kind Kind, code Code, msg string) error {
	return newErr(kind, code, msg)
}
