package errors

import (
	"errors"
	"fmt"
)

// Error represents a typed engine error.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so that clones and wrapped
// copies of a predefined error still match it through errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code
}

// New creates a new Error instance.
func New(code string, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrValidation      = New("VALIDATION_ERROR", "validation failed")
	ErrStructural      = New("STRUCTURAL_ERROR", "inconsistent input data")
	ErrVersionConflict = New("VERSION_CONFLICT", "ledger was modified concurrently")
	ErrVerification    = New("VERIFICATION_FAILED", "solution violates a hard constraint")
	ErrBackend         = New("BACKEND_ERROR", "solver backend failed")
	ErrNotFound        = New("NOT_FOUND", "resource not found")
	ErrInternal        = New("INTERNAL_ERROR", "internal error")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Validation builds a validation error naming the offending field.
func Validation(field, reason string) *Error {
	return Clone(ErrValidation, fmt.Sprintf("invalid %s: %s", field, reason))
}
