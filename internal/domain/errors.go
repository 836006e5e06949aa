package domain

import (
	"errors"
	"fmt"
)

// Domain-specific errors for business logic validation.
var (
	// Lookup errors
	ErrTaskNotFound     = errors.New("task not found")
	ErrProjectNotFound  = errors.New("project not found")
	ErrEmployeeNotFound = errors.New("employee not found")

	// Transition errors
	ErrNoOpOrStaleState  = errors.New("no-op or stale state")
	ErrStaleState        = fmt.Errorf("%w: task was modified concurrently", ErrNoOpOrStaleState)
	ErrInvalidTransition = errors.New("invalid status transition")

	// Permission errors
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidToken     = errors.New("invalid authentication token")

	// Store errors
	ErrStoreFailure = errors.New("store write failed")

	// Validation errors
	ErrInvalidStatus   = errors.New("invalid task status")
	ErrInvalidPriority = errors.New("invalid task priority")
	ErrValidation      = errors.New("validation failed")
)

// IsNotFound reports whether err belongs to the not-found family.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrProjectNotFound) ||
		errors.Is(err, ErrEmployeeNotFound)
}
