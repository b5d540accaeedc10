package store

import "errors"

// Sentinel errors for the store package.
var (
	// ErrInvalidCursor is returned when a cursor cannot be decoded.
	ErrInvalidCursor = errors.New("invalid cursor format")

	// ErrInvalidEvent is returned when an event fails validation.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when an insert violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate")

	// ErrNotOwner is returned when a user modifies another user's row.
	ErrNotOwner = errors.New("not owner")

	// ErrMissingReference is returned when a referenced row (venue, tag, ledger entry) is absent.
	ErrMissingReference = errors.New("missing reference")
)
