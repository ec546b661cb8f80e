package store

import "errors"

// Sentinel errors shared by every repository implementation.
var (
	// ErrNotFound is returned for unknown template or instance ids.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when the stored revision differs from the
	// expected one, or when an insert collides with an existing row.
	ErrConflict = errors.New("store: revision conflict")
)
