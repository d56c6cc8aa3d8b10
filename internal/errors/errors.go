// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrScenarioNotFound   = errors.New("scenario not found")
	ErrInvalidProbability = errors.New("probability must be between 0 and 1")
	ErrInvalidHorizon     = errors.New("projection horizon must be at least 1 month")
	ErrNoScenarioResults  = errors.New("no scenario results provided")
	ErrUnknownVariable    = errors.New("unknown macroeconomic variable")
	ErrUnknownStress      = errors.New("unknown stress scenario")
	ErrInvalidExposure    = errors.New("invalid exposure")
	ErrDuplicateExposure  = errors.New("duplicate exposure id")
	ErrDataNotFound       = errors.New("data not found")
	ErrDatabaseError      = errors.New("database error")
)

// ValidationError represents a single violated data-quality rule.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// Unwrap lets callers match any validation failure with ErrInvalidExposure.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidExposure
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// CalculationError represents a failed ECL calculation for one exposure.
type CalculationError struct {
	ExposureID string
	Operation  string
	Err        error
}

func (e *CalculationError) Error() string {
	return fmt.Sprintf("calculation error [%s] %s: %v", e.ExposureID, e.Operation, e.Err)
}

func (e *CalculationError) Unwrap() error {
	return e.Err
}

// NewCalculationError creates a new CalculationError.
func NewCalculationError(exposureID, operation string, err error) *CalculationError {
	return &CalculationError{
		ExposureID: exposureID,
		Operation:  operation,
		Err:        err,
	}
}

// ScenarioError represents an invalid or unknown scenario.
type ScenarioError struct {
	Scenario string
	Reason   string
	Err      error
}

func (e *ScenarioError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scenario error [%s]: %s: %v", e.Scenario, e.Reason, e.Err)
	}
	return fmt.Sprintf("scenario error [%s]: %s", e.Scenario, e.Reason)
}

func (e *ScenarioError) Unwrap() error {
	return e.Err
}

// NewScenarioError creates a new ScenarioError.
func NewScenarioError(scenario, reason string, err error) *ScenarioError {
	return &ScenarioError{
		Scenario: scenario,
		Reason:   reason,
		Err:      err,
	}
}

// DataError represents a data loading or export error.
type DataError struct {
	Source  string
	Row     int
	Message string
	Err     error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] row %d: %s: %v", e.Source, e.Row, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] row %d: %s", e.Source, e.Row, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(source string, row int, message string, err error) *DataError {
	return &DataError{
		Source:  source,
		Row:     row,
		Message: message,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
