package utils

import "fmt"

// ValidationError represents an error occurring during data validation.
type ValidationError struct {
	Message string
}

// Error returns the error message string.
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a new ValidationError with a specific message.
//
// Parameters:
//   - message: The validation error message.
//
// Returns:
//   - An error interface wrapping the ValidationError.
func NewValidationError(message string) error {
	return &ValidationError{
		Message: message,
	}
}

// NewValidationErrorf creates a new ValidationError with a formatted message.
//
// Parameters:
//   - format: The format string.
//   - args: Arguments for the format string.
//
// Returns:
//   - An error interface wrapping the ValidationError.
func NewValidationErrorf(format string, args ...interface{}) error {
	return &ValidationError{
		Message: fmt.Sprintf(format, args...),
	}
}

// MissingInputError is returned when no usable source data exists at all.
// The run cannot continue.
type MissingInputError struct {
	Source string
	Err    error
}

func (e *MissingInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("no usable input in %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("no usable input in %s", e.Source)
}

func (e *MissingInputError) Unwrap() error { return e.Err }

// InsufficientHistoryError is returned when fewer than the required number
// of usable periods survive extraction.
type InsufficientHistoryError struct {
	Usable   int
	Required int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history: %d usable periods, need at least %d", e.Usable, e.Required)
}

// InsufficientSamplesError is returned when the walk-forward training set
// is too small to fit the models.
type InsufficientSamplesError struct {
	Samples  int
	Required int
}

func (e *InsufficientSamplesError) Error() string {
	return fmt.Sprintf("insufficient training samples: got %d, need at least %d", e.Samples, e.Required)
}

// PerItemExtractionError marks a single item or period that could not be
// processed. It is recoverable: the offending record is dropped and logged.
type PerItemExtractionError struct {
	Period string
	Item   string
	Reason string
	Err    error
}

func (e *PerItemExtractionError) Error() string {
	msg := fmt.Sprintf("skipping item %q in period %q: %s", e.Item, e.Period, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PerItemExtractionError) Unwrap() error { return e.Err }

// NewPerItemExtractionError builds a PerItemExtractionError without a cause.
func NewPerItemExtractionError(period, item, reason string) error {
	return &PerItemExtractionError{Period: period, Item: item, Reason: reason}
}

// ModelFitError is returned when one of the regressors fails to fit. Without
// a fitted model no predictions can be made, so it is fatal.
type ModelFitError struct {
	Model string
	Err   error
}

func (e *ModelFitError) Error() string {
	return fmt.Sprintf("failed to fit %s: %v", e.Model, e.Err)
}

func (e *ModelFitError) Unwrap() error { return e.Err }
