package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a single validation error for a record
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RecordValidationResult holds validation results for a single record
type RecordValidationResult struct {
	RowNumber int               `json:"row_number"`
	RecordID  string            `json:"record_id,omitempty"`
	Valid     bool              `json:"valid"`
	Errors    []ValidationError `json:"errors,omitempty"`
}

// AddError adds a validation error to the result
func (r *RecordValidationResult) AddError(field, message string) {
	r.Valid = false
	r.Errors = append(r.Errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

// ToJSON converts validation errors to JSON string
func (r *RecordValidationResult) ToJSON() string {
	if len(r.Errors) == 0 {
		return ""
	}
	data, _ := json.Marshal(r.Errors)
	return string(data)
}

// ResultFromError converts a pipeline error into a validation result.
// Row and field details are taken from the error when present.
func ResultFromError(err error) RecordValidationResult {
	result := RecordValidationResult{Valid: true}
	field := string(TypeOf(err))
	var e *Error
	if errors.As(err, &e) {
		if row, ok := e.Details["row"].(int); ok {
			result.RowNumber = row
		}
		if f, ok := e.Details["field"].(string); ok {
			field = f
		}
		if id, ok := e.Details["designation"].(string); ok {
			result.RecordID = id
		}
	}
	if field == "" {
		field = "file"
	}
	result.AddError(field, err.Error())
	return result
}

// ValidateRequired checks if a string field is not empty
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s is required", field),
		}
	}
	return nil
}

// ValidateEnum checks if value is in allowed list
func ValidateEnum(field, value string, allowed []string) *ValidationError {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", ")),
	}
}
