// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrDataLoad             = errors.New("dataset load failed")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrUnknownTool          = errors.New("unknown tool")
	ErrPlanningUnavailable  = errors.New("planning unavailable")
	ErrSynthesisUnavailable = errors.New("synthesis unavailable")
	ErrMalformedResponse    = errors.New("malformed reasoning response")
	ErrConfigInvalid        = errors.New("invalid configuration")
)

// DataError represents a failure while loading the dataset.
// Row is the 1-based data row (0 when the failure is not row specific).
type DataError struct {
	Source  string
	Row     int
	Column  string
	Message string
	Err     error
}

func (e *DataError) Error() string {
	loc := e.Source
	if e.Row > 0 {
		loc = fmt.Sprintf("%s row %d", loc, e.Row)
	}
	if e.Column != "" {
		loc = fmt.Sprintf("%s column %s", loc, e.Column)
	}
	if e.Err != nil {
		return fmt.Sprintf("data error [%s]: %s: %v", loc, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s]: %s", loc, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// Is makes every DataError match ErrDataLoad.
func (e *DataError) Is(target error) bool {
	return target == ErrDataLoad
}

// NewDataError creates a new DataError.
func NewDataError(source string, row int, column, message string, err error) *DataError {
	return &DataError{
		Source:  source,
		Row:     row,
		Column:  column,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents an invalid argument supplied to a tool or request.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %s (%v): %s", e.Field, e.Value, e.Message)
}

// Is makes every ValidationError match ErrInvalidArgument.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// AgentError represents a reasoning phase that failed after all attempts.
type AgentError struct {
	Phase    string
	Attempts int
	Sentinel error
	Err      error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent error [%s] after %d attempt(s): %v: %v", e.Phase, e.Attempts, e.Sentinel, e.Err)
}

// Unwrap exposes both the phase sentinel and the last underlying cause.
func (e *AgentError) Unwrap() []error {
	return []error{e.Sentinel, e.Err}
}

// NewAgentError creates a new AgentError.
func NewAgentError(phase string, attempts int, sentinel, err error) *AgentError {
	return &AgentError{
		Phase:    phase,
		Attempts: attempts,
		Sentinel: sentinel,
		Err:      err,
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
