package core

import (
	"errors"
	"fmt"
)

// Error classes. Callers branch on these with errors.Is.
var (
	// ErrValidation marks bad user input. Never retried automatically.
	ErrValidation = errors.New("validation failed")
	// ErrPersistence marks a transport or availability failure of the store.
	ErrPersistence = errors.New("persistence unavailable")
	// ErrNotFound marks a mutation against an id the store no longer has.
	ErrNotFound = errors.New("not found")
)

var (
	ErrInvalidAmount       = fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	ErrNoteTooLong         = fmt.Errorf("%w: note too long (max %d characters)", ErrValidation, MaxNoteLength)
	ErrMissingDate         = fmt.Errorf("%w: date cannot be zero", ErrValidation)
	ErrFutureDate          = fmt.Errorf("%w: date cannot be in the future", ErrValidation)
	ErrEmptyCategoryName   = fmt.Errorf("%w: category name cannot be empty", ErrValidation)
	ErrInvalidBudget       = fmt.Errorf("%w: budget must be greater than zero", ErrValidation)
	ErrInvalidPeriod       = fmt.Errorf("%w: period must be week, month or year", ErrValidation)
	ErrEmptyDisplayName    = fmt.Errorf("%w: display name cannot be empty", ErrValidation)
	ErrUnsupportedCurrency = fmt.Errorf("%w: unsupported currency", ErrValidation)
)

// Persistence wraps a store failure so that it matches ErrPersistence while
// keeping the underlying cause reachable. Errors that are already classified
// keep their class.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPersistence) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
