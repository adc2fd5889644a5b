package errors

import (
	"errors"
	"fmt"
)

// StratoError is the structured error type used across stratoindex.
type StratoError struct {
	// Code is the unique error code (e.g., "ERR_301_DIMENSION_MISMATCH").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity
	Kind     Kind

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *StratoError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *StratoError) Unwrap() error {
	return e.Cause
}

// Is matches by code so that errors.Is works against sentinel values.
func (e *StratoError) Is(target error) bool {
	if t, ok := target.(*StratoError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *StratoError) WithDetail(key, value string) *StratoError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *StratoError) WithSuggestion(suggestion string) *StratoError {
	e.Suggestion = suggestion
	return e
}

// New creates a new StratoError with the given code and message.
// Category, severity, kind and retryable flag are derived from the code.
func New(code string, message string, cause error) *StratoError {
	return &StratoError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Kind:      kindFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a StratoError from an existing error.
func Wrap(code string, err error) *StratoError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *StratoError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates an invalid-input error for queue items.
func ValidationError(message string, cause error) *StratoError {
	return New(ErrCodeInvalidVector, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *StratoError {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first StratoError in err's chain.
func As(err error) (*StratoError, bool) {
	var se *StratoError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if se, ok := As(err); ok {
		return se.Retryable
	}
	return false
}

// GetCode extracts the error code, or "" for foreign errors.
func GetCode(err error) string {
	if se, ok := As(err); ok {
		return se.Code
	}
	return ""
}

// KindOf classifies err. Errors without a code (including context
// deadlines) count as transient.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if se, ok := As(err); ok {
		return se.Kind
	}
	return KindTransient
}

// IsStructural reports whether err will keep failing until a rebuild.
func IsStructural(err error) bool {
	return KindOf(err) == KindStructural
}
