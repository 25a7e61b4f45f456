package booking

import (
	"errors"
	"fmt"
)

// Error kinds returned by the engine. All four are recoverable by the
// caller; a ConflictError in particular means "re-query availability and
// pick another slot", not "retry the same call".
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("slot conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("booking: %s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

func notFoundError(format string, args ...any) error {
	return fmt.Errorf("booking: %s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

func conflictError(format string, args ...any) error {
	return fmt.Errorf("booking: %s: %w", fmt.Sprintf(format, args...), ErrConflict)
}

func invalidTransitionError(from, to Status) error {
	return fmt.Errorf("booking: transition %s -> %s not allowed: %w", from, to, ErrInvalidTransition)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool { return errors.Is(err, ErrInvalidTransition) }
