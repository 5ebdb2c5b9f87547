// services/errors.go - Shared service errors
package services

import "errors"

var (
	// ErrNotFound is returned when an operation targets an id that
	// does not exist (or is in the wrong lifecycle state for it).
	ErrNotFound = errors.New("record not found")

	// ErrValidation is returned for missing or malformed required
	// input; nothing is committed when it is raised.
	ErrValidation = errors.New("validation failed")
)
