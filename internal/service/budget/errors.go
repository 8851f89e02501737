package budget

import (
	"errors"
	"fmt"
)

var (
	// ErrBudgetNotFound is returned when an agent has no budget row yet
	ErrBudgetNotFound = errors.New("budget not found")

	// ErrInvalidBudget is returned for empty agent IDs or non-positive ceilings
	ErrInvalidBudget = errors.New("invalid budget")
)

// InvalidCeilingError reports which ceiling was rejected
type InvalidCeilingError struct {
	Period string
	Value  float64
}

func (e *InvalidCeilingError) Error() string {
	return fmt.Sprintf("%s budget must be positive, got %.4f", e.Period, e.Value)
}

func (e *InvalidCeilingError) Unwrap() error {
	return ErrInvalidBudget
}
