package repository

import "errors"

// Sentinel kinds for store errors.
var (
	// ErrConflict marks a natural-key race or serialization failure. The
	// whole transaction may be retried.
	ErrConflict = errors.New("store conflict")
	ErrNotFound = errors.New("record not found")
)
