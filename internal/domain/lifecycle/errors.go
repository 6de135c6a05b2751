package lifecycle

import "errors"

var (
	// ErrInvalidTransition is returned when a trigger is not permitted in the current state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrTerminalState is returned when a trigger is fired on a settled transaction
	ErrTerminalState = errors.New("state is terminal")

	// ErrGuardFailed is returned when every guarded transition for a trigger rejects
	ErrGuardFailed = errors.New("guard condition failed")
)
