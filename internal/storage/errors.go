package storage

import "errors"

// Storage errors shared by all backends.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists. The transaction journal is append-only.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned by Commit when a stored version no longer
	// matches the version the caller read. Nothing is written.
	ErrConflict = errors.New("version conflict")

	// ErrReadOnly is returned by Commit on stores that mirror external state.
	ErrReadOnly = errors.New("store is read-only")
)
