package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when an entity does not exist within the
	// bound tenant's partition.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an entity with the given key already
	// exists.
	ErrConflict = errors.New("already exists")

	// ErrAlreadyBound is returned by Bind when the context already
	// carries an active tenant scope.
	ErrAlreadyBound = errors.New("tenant scope already bound")
)
