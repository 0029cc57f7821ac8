package domain

import "errors"

// Kind classifies a domain error so the gateway can map it onto a wire
// status code without string-sniffing.
type Kind int

const (
	KindInvalidPayload Kind = iota + 1
	KindAuthRequired
	KindNotFound
	KindInvalidState
	KindStaleAssignment
	KindRequestInFlight
	KindNoDriversAvailable
	KindMapUnavailable
	KindSelectorFailed
)

// Error wraps a Kind with a human-readable message. Orchestrator and
// selector code returns *Error so callers can type-switch on Kind instead of
// comparing strings.
type Error struct {
	Kind Kind
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

func NewError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// KindOf extracts the Kind from err, defaulting to 0 (unclassified) if err
// is not a *Error.
func KindOf(err error) Kind {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Kind
	}
	return 0
}

var (
	ErrNotFound        = NewError(KindNotFound, "resource not found", nil)
	ErrInvalidState    = NewError(KindInvalidState, "request is not in a valid state for this operation", nil)
	ErrStaleAssignment = NewError(KindStaleAssignment, "candidate assignment is stale", nil)
	ErrRequestInFlight = NewError(KindRequestInFlight, "rider already has an active request", nil)
	ErrNoDrivers       = NewError(KindNoDriversAvailable, "no drivers available for this request", nil)
	ErrMapUnavailable  = NewError(KindMapUnavailable, "map service unavailable", nil)
)
