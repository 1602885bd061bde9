package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidInput      = errors.New("invalid input")

	// ErrConflict marks a lost compare-and-set or an idempotency replay.
	// It is handled internally and never returned to callers.
	ErrConflict = errors.New("conflict")
)
