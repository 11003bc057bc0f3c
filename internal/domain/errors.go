package domain

import (
	"fmt"
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// LookupError records a foreign-key resolution that did not yield exactly one row.
type LookupError struct {
	Table   string
	Column  string
	Value   string
	Matches int
}

// Error implements the error interface
func (e *LookupError) Error() string {
	if e.Matches == 0 {
		return fmt.Sprintf("no %s row with %s = %q", e.Table, e.Column, e.Value)
	}
	return fmt.Sprintf("%d %s rows with %s = %q", e.Matches, e.Table, e.Column, e.Value)
}

// Unwrap maps the lookup onto ErrNotFound or ErrAmbiguous.
func (e *LookupError) Unwrap() error {
	if e.Matches == 0 {
		return ErrNotFound
	}
	return ErrAmbiguous
}
