package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidTransition reports an event that no transition rule accepts
	// from the current state. The flow state is left untouched.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrSessionClosed reports an operation against a session that has
	// already been stopped or reached a terminal state.
	ErrSessionClosed = errors.New("session closed")
)
