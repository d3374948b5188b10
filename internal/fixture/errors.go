package fixture

import (
	"errors"
	"fmt"

	"github.com/roach88/actest/internal/bus"
)

// ErrNotFound is returned by index-based operations on an index outside the
// collection.
var ErrNotFound = errors.New("fixture not found")

// NotEnoughGasError is returned when a run is rejected at admission.
type NotEnoughGasError struct {
	Actual uint64 // gas available to the caller
	Needed uint64 // gas the collection declares
}

// Error implements the error interface.
func (e *NotEnoughGasError) Error() string {
	return fmt.Sprintf("not enough gas: %d available, %d needed", e.Actual, e.Needed)
}

// IsNotEnoughGas returns true if err is a run admission rejection.
// Uses errors.As to handle wrapped errors.
func IsNotEnoughGas(err error) bool {
	var ne *NotEnoughGasError
	return errors.As(err, &ne)
}

// FailureKind classifies why a fixture failed.
type FailureKind string

const (
	// PreparationSendFailed: a preparation request could not be dispatched.
	PreparationSendFailed FailureKind = "preparation send failed"

	// ExpectationSendFailed: an expectation request could not be dispatched.
	ExpectationSendFailed FailureKind = "expectation send failed"

	// ExecutionFailed: the target reported an error for an expectation.
	ExecutionFailed FailureKind = "execution failed"

	// PayloadMismatch: the reply differs from the expected payload.
	PayloadMismatch FailureKind = "payload mismatch"
)

// StepFailure is the first failure of one fixture.
type StepFailure struct {
	Kind     FailureKind
	Step     int    // index within the preparation or expectation list
	Expected []byte // PayloadMismatch only
	Actual   []byte // PayloadMismatch only
	Err      error  // send and execution failures
}

// Error implements the error interface. It doubles as the failure hint.
func (f *StepFailure) Error() string {
	phase := "expectation"
	if f.Kind == PreparationSendFailed {
		phase = "preparation"
	}

	switch f.Kind {
	case PayloadMismatch:
		return fmt.Sprintf("%s %d: %s: expected %q, got %q", phase, f.Step, f.Kind, f.Expected, f.Actual)
	case ExecutionFailed:
		var ee *bus.ExecutionError
		if errors.As(f.Err, &ee) {
			return fmt.Sprintf("%s %d: %s: %s", phase, f.Step, f.Kind, ee.Reason)
		}
		return fmt.Sprintf("%s %d: %s: %v", phase, f.Step, f.Kind, f.Err)
	default:
		return fmt.Sprintf("%s %d: %s: %v", phase, f.Step, f.Kind, f.Err)
	}
}

// Unwrap returns the underlying transport or execution error.
func (f *StepFailure) Unwrap() error {
	return f.Err
}
