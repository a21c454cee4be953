package errors

import (
	"errors"
	"fmt"
)

// DocvecError is the structured error type returned across package
// boundaries. It carries a stable code so callers and the CLI can classify
// failures without string matching.
type DocvecError struct {
	// Code is the unique error code (e.g., "ERR_201_FILE_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Suggestion is an actionable hint for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *DocvecError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *DocvecError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a DocvecError with the same code.
func (e *DocvecError) Is(target error) bool {
	if t, ok := target.(*DocvecError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *DocvecError) WithDetail(key, value string) *DocvecError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *DocvecError) WithSuggestion(suggestion string) *DocvecError {
	e.Suggestion = suggestion
	return e
}

// New creates a DocvecError. Category and severity are derived from the code.
func New(code string, message string, cause error) *DocvecError {
	return &DocvecError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Wrap creates a DocvecError from an existing error, reusing its message.
func Wrap(code string, err error) *DocvecError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinel returns a bare error carrying only a code, for use with errors.Is.
func Sentinel(code string) error {
	return &DocvecError{Code: code}
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *DocvecError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *DocvecError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *DocvecError {
	return New(ErrCodeInternal, message, cause)
}

// As extracts the first DocvecError in err's chain.
func As(err error) (*DocvecError, bool) {
	var de *DocvecError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if de, ok := As(err); ok {
		return de.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from the chain, or "" if none.
func GetCode(err error) string {
	if de, ok := As(err); ok {
		return de.Code
	}
	return ""
}

// GetCategory extracts the category from the chain, or "" if none.
func GetCategory(err error) Category {
	if de, ok := As(err); ok {
		return de.Category
	}
	return ""
}
