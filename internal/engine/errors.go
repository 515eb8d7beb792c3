package engine

import "errors"

var (
	// ErrModelCall marks a failed Messages API call.
	ErrModelCall = errors.New("model call failed")

	// ErrMaxRounds is returned when a query hits the configured round limit.
	ErrMaxRounds = errors.New("maximum rounds reached")

	// ErrBudgetExhausted is returned when the spending cap is reached.
	ErrBudgetExhausted = errors.New("budget exhausted")
)

// ModelError wraps the underlying API or stream error of a failed model call.
// It matches ErrModelCall with errors.Is.
type ModelError struct {
	Err error
}

func (e *ModelError) Error() string { return "Error calling Claude API: " + e.Err.Error() }

func (e *ModelError) Unwrap() []error { return []error{ErrModelCall, e.Err} }
