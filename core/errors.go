package core

import "errors"

// Engine error taxonomy. Callers match with errors.Is; wrapped variants keep
// the sentinel in the chain.
var (
	// ErrInvalidAmount rejects negative point awards.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrNotFound reports an unknown user, achievement, or badge reference.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyCompleted signals a redundant progress update. It is a
	// no-op marker, not a failure; callers may ignore it.
	ErrAlreadyCompleted = errors.New("already completed")

	// ErrConcurrencyConflict reports critical-section contention after
	// internal retries were exhausted. The update was not applied.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrInvalidDefinition reports malformed catalogue data.
	ErrInvalidDefinition = errors.New("invalid definition")
)
