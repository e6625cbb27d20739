package errors

import (
	"fmt"
)

// OrgError is the structured error type for OrgMCP.
// It provides rich context for error handling, logging, and user presentation.
type OrgError struct {
	// Code is the unique error code (e.g., "ERR_205_VERSION_MISMATCH").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

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
func (e *OrgError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *OrgError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with OrgError.
func (e *OrgError) Is(target error) bool {
	if t, ok := target.(*OrgError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *OrgError) WithDetail(key, value string) *OrgError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *OrgError) WithSuggestion(suggestion string) *OrgError {
	e.Suggestion = suggestion
	return e
}

// New creates a new OrgError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *OrgError {
	return &OrgError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an OrgError from an existing error.
// The error's message becomes the OrgError message.
func Wrap(code string, err error) *OrgError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *OrgError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates an I/O-related error.
func IOError(message string, cause error) *OrgError {
	return New(ErrCodeFileNotFound, message, cause)
}

// NetworkError creates a network-related error.
// Network errors are typically retryable.
func NetworkError(message string, cause error) *OrgError {
	return New(ErrCodeNetworkTimeout, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *OrgError {
	return New(ErrCodeInvalidInput, message, cause)
}

// NotFoundError creates an error for a reference to an unknown id.
// Callers treat this as a negative result, not a failure.
func NotFoundError(kind, id string) *OrgError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found: %s", kind, id), nil).
		WithDetail("kind", kind).
		WithDetail("id", id)
}

// DimensionError creates an error for a vector of the wrong length.
func DimensionError(expected, got int) *OrgError {
	return New(ErrCodeDimensionMismatch,
		fmt.Sprintf("dimension mismatch: expected %d, got %d", expected, got), nil).
		WithDetail("expected", fmt.Sprintf("%d", expected)).
		WithDetail("got", fmt.Sprintf("%d", got))
}

// VersionError creates an error for a persisted artifact whose tags do not
// match the current configuration.
func VersionError(message string) *OrgError {
	return New(ErrCodeVersionMismatch, message, nil).
		WithSuggestion("rebuild the index with 'orgmcp index --force'")
}

// RebuildError creates an error for a failed index rebuild.
// The previous index remains authoritative.
func RebuildError(message string, cause error) *OrgError {
	return New(ErrCodeRebuildFailed, message, cause)
}

// StorageError creates an error for a source-store failure.
func StorageError(message string, cause error) *OrgError {
	return New(ErrCodeStorageFailed, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *OrgError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is an OrgError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if oe, ok := err.(*OrgError); ok {
		return oe.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if oe, ok := err.(*OrgError); ok {
		return oe.Severity == SeverityFatal
	}
	return false
}

// IsNotFound checks if an error carries the not-found code.
func IsNotFound(err error) bool {
	return GetCode(err) == ErrCodeNotFound
}

// GetCode extracts the error code from an OrgError.
// Returns empty string if not an OrgError.
func GetCode(err error) string {
	if oe, ok := err.(*OrgError); ok {
		return oe.Code
	}
	return ""
}

// GetCategory extracts the category from an OrgError.
// Returns empty string if not an OrgError.
func GetCategory(err error) Category {
	if oe, ok := err.(*OrgError); ok {
		return oe.Category
	}
	return ""
}
