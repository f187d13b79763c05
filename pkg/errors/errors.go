package errors

import (
	"errors"
	"fmt"
)

// ErrorType defines different categories of errors
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "VALIDATION"
	ErrorTypeNotFound      ErrorType = "NOT_FOUND"
	ErrorTypeInternal      ErrorType = "INTERNAL"
	ErrorTypeMalformedKey  ErrorType = "MALFORMED_KEY"
	ErrorTypeInvalidField  ErrorType = "INVALID_FIELD"
	ErrorTypeFetchFailed   ErrorType = "FETCH_FAILED"
	ErrorTypeMergeConflict ErrorType = "MERGE_CONFLICT"
)

// AppError is the custom error type for the application
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work
func (e *AppError) Unwrap() error {
	return e.Err
}

// Constructor functions for different error types

// NewValidation creates a validation error
func NewValidation(message string) error {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewNotFound creates a not found error
func NewNotFound(message string) error {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewInternal creates an internal error
func NewInternal(message string, err error) error {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// NewMalformedKey creates a key decode error. Decode failures are the
// caller's bug and are never retried.
func NewMalformedKey(message string) error {
	return &AppError{
		Type:    ErrorTypeMalformedKey,
		Message: message,
	}
}

// NewInvalidField creates an error for a key field that cannot be encoded.
func NewInvalidField(message string) error {
	return &AppError{
		Type:    ErrorTypeInvalidField,
		Message: message,
	}
}

// NewFetchFailed creates an error for an external source that is
// unavailable or erroring. The run that hit it aborts cleanly and the
// scheduler retries on the next cycle.
func NewFetchFailed(message string, err error) error {
	return &AppError{
		Type:    ErrorTypeFetchFailed,
		Message: message,
		Err:     err,
	}
}

// NewMergeConflict creates an error for a write rejected by strict
// authority checking.
func NewMergeConflict(message string) error {
	return &AppError{
		Type:    ErrorTypeMergeConflict,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	// If it's already an AppError, preserve the type
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Type:    appErr.Type,
			Message: fmt.Sprintf("%s: %s", message, appErr.Message),
			Err:     appErr.Err,
		}
	}

	// Otherwise, create an internal error
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// Type checking functions

func isType(err error, t ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == t
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

// IsInternal checks if an error is an internal error
func IsInternal(err error) bool {
	return isType(err, ErrorTypeInternal)
}

// IsMalformedKey checks if an error is a key decode error
func IsMalformedKey(err error) bool {
	return isType(err, ErrorTypeMalformedKey)
}

// IsInvalidField checks if an error is a key encode error
func IsInvalidField(err error) bool {
	return isType(err, ErrorTypeInvalidField)
}

// IsFetchFailed checks if an error is an external fetch failure
func IsFetchFailed(err error) bool {
	return isType(err, ErrorTypeFetchFailed)
}

// IsMergeConflict checks if an error is a rejected authoritative write
func IsMergeConflict(err error) bool {
	return isType(err, ErrorTypeMergeConflict)
}
