package storage

import "errors"

var (
	// ErrNotFound is returned when a record, key or blob does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrDuplicate is returned when an insert violates a unique constraint.
	ErrDuplicate = errors.New("storage: duplicate entry")
)
