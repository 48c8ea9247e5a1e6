package catalog

import "errors"

var (
	// ErrNotFound is returned when an operation references an id that does
	// not exist in the catalog.
	ErrNotFound = errors.New("catalog: entry not found")

	// ErrGone is returned by Enqueue when the target entry is GONE; the
	// design forbids resurrecting a tombstone.
	ErrGone = errors.New("catalog: entry is gone")

	// ErrInvariantViolation is returned when an operation would put the
	// catalog into a state the design forbids (for example, a second
	// IN_PROGRESS entry). Per the design notes this is a programming error,
	// not a recoverable condition: callers should treat it as fatal.
	ErrInvariantViolation = errors.New("catalog: invariant violation")
)
