package common

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of a pipeline error
type ErrorType string

const (
	// ErrorTypeIO covers unreadable or unwritable files
	ErrorTypeIO ErrorType = "io"
	// ErrorTypeFormat covers missing columns/fields, short rows and malformed documents
	ErrorTypeFormat ErrorType = "format"
	// ErrorTypeStructural covers records that reach a stage in an impossible state (e.g. unlinked)
	ErrorTypeStructural ErrorType = "structural"
	// ErrorTypeConfig covers invalid settings and unsupported output formats
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeNotFound covers lookups that resolve to nothing
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeAuth covers rejected credentials and tokens
	ErrorTypeAuth ErrorType = "auth"
)

// Error represents a categorised error with optional context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewError creates a new error with the given type and message
func NewError(errType ErrorType, message string) *Error {
	return &Error{Type: errType, Message: message}
}

// Errorf creates a new error with a formatted message
func Errorf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: errType, Message: fmt.Sprintf(format, args...)}
}

// WrapError wraps an existing error with a type and message. Returns nil for a nil err.
func WrapError(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Type: errType, Message: message, Cause: err}
}

// IsType checks if any error in the chain is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	if e.Type == errType {
		return true
	}
	return IsType(e.Cause, errType)
}

// TypeOf returns the type of the outermost categorised error, or "" when err is not one
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}
