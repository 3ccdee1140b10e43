package errors

import (
	stderrors "errors"
	"fmt"
)

// IndexerError is the structured error type for amanuensis.
// It carries a stable code for matching plus context for logs and the CLI.
type IndexerError struct {
	// Code is the unique error code (e.g., "ERR_601_ILLEGAL_BATCH_STATE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is derived from the code.
	Category Category

	// Severity is derived from the code.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable hint for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *IndexerError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *IndexerError) Unwrap() error {
	return e.Cause
}

// Is matches another IndexerError by code, so errors.Is works against the
// package sentinels.
func (e *IndexerError) Is(target error) bool {
	if t, ok := target.(*IndexerError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *IndexerError) WithDetail(key, value string) *IndexerError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *IndexerError) WithSuggestion(suggestion string) *IndexerError {
	e.Suggestion = suggestion
	return e
}

// New creates a new IndexerError with the given code and message.
func New(code string, message string, cause error) *IndexerError {
	return &IndexerError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an IndexerError from an existing error.
func Wrap(code string, err error) *IndexerError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *IndexerError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *IndexerError {
	return New(ErrCodeInvalidInput, message, cause)
}

// NetworkError creates a retryable transport error.
func NetworkError(message string, cause error) *IndexerError {
	return New(ErrCodeNetworkUnavailable, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *IndexerError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable reports whether any IndexerError in err's chain is retryable.
func IsRetryable(err error) bool {
	var ie *IndexerError
	if stderrors.As(err, &ie) {
		return ie.Retryable
	}
	return false
}

// IsFatal reports whether err carries fatal severity.
func IsFatal(err error) bool {
	var ie *IndexerError
	if stderrors.As(err, &ie) {
		return ie.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code of the first IndexerError in err's chain.
func GetCode(err error) string {
	var ie *IndexerError
	if stderrors.As(err, &ie) {
		return ie.Code
	}
	return ""
}
