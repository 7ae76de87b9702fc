// Package sentinel holds the infrastructure facts stores report. Stores
// return these, optionally wrapped with %w, and services translate them
// into domain errors.
//
// For validation failures use pkg/domain-errors directly.
package sentinel

import "errors"

var (
	// ErrNotFound: the row, record or document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict: a uniqueness constraint rejected the write.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState: the entity cannot take the requested transition,
	// such as accepting a second answer or deleting an accepted one.
	ErrInvalidState = errors.New("invalid state")
	// ErrUnavailable: a dependency could not be reached and no fallback exists.
	ErrUnavailable = errors.New("unavailable")
)
