// Package apperr holds the sentinel errors shared across packages.
// Callers wrap them with context and test with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// Caller errors: rejected before any mutation.
	ErrUnknownQueue    = errors.New("unknown queue")
	ErrInvalidFeedback = errors.New("invalid feedback")
	ErrDuplicateRange  = errors.New("duplicate excerpt range")
	ErrInvalidRange    = errors.New("invalid range")
	ErrMissingConfig   = errors.New("missing queue config")

	// ErrLineageTooDeep reports an ancestry chain that exceeds the depth cap
	// or loops back on itself. It indicates corrupt NoteSource rows.
	ErrLineageTooDeep = errors.New("lineage too deep")
)
