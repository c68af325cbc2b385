package core

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrVersionConflict = errors.New("version conflict")
	ErrInvalid         = errors.New("invalid")

	// ErrConcurrentModification is what engines surface after exhausting
	// their bounded retries of a read-decide-write cycle.
	ErrConcurrentModification = errors.New("concurrent modification")
)
