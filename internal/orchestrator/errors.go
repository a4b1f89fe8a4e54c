package orchestrator

import (
	"errors"
	"fmt"
)

// Validation failures reject the cycle before any side effect.
var (
	ErrEmptyPrompt     = errors.New("prompt must not be empty")
	ErrNoProviders     = errors.New("at least one provider id is required")
	ErrUnknownProvider = errors.New("unknown provider id")
)

// StoreError aborts a whole cycle: every turn and fact staged in it is
// rolled back and this single aggregate error is reported.
type StoreError struct {
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store failure, cycle rolled back: %v", e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a pre-side-effect rejection.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyPrompt) ||
		errors.Is(err, ErrNoProviders) ||
		errors.Is(err, ErrUnknownProvider)
}
