package ledger

import "errors"

var (
	// ErrInvalidTransition: the record is not in the state the transition
	// requires and is not already in the target state. Usually a replayed
	// or out-of-order callback.
	ErrInvalidTransition = errors.New("ledger: invalid status transition")

	// ErrAlreadyApplied: the record is already in the requested target
	// state. Harmless duplicate delivery; callers treat it as success
	// without re-running side effects.
	ErrAlreadyApplied = errors.New("ledger: transition already applied")

	ErrBadRecord = errors.New("ledger: malformed payment record")
)
