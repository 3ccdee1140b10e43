// Package errors provides structured error handling for amanuensis.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (index files, journal, locks)
//   - 3XX: Network errors (daemon transport)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
//   - 6XX: Batch protocol and dispatch errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates daemon transport errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
	// CategoryBatch indicates batch protocol and dispatch errors.
	CategoryBatch Category = "BATCH"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates a programming error or unrecoverable state.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the operation failed but the caller can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates a transient condition.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeIndexOpen    = "ERR_201_INDEX_OPEN"
	ErrCodeCorruptIndex = "ERR_202_CORRUPT_INDEX"
	ErrCodeJournal      = "ERR_203_JOURNAL"

	// Network errors (300-399)
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable = "ERR_302_NETWORK_UNAVAILABLE"
	ErrCodeRemoteFailure      = "ERR_303_REMOTE_FAILURE"

	// Validation errors (400-499)
	ErrCodeInvalidInput     = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidIndexName = "ERR_402_INVALID_INDEX_NAME"
	ErrCodeInvalidQuery     = "ERR_403_INVALID_QUERY"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"

	// Batch errors (600-699)
	ErrCodeIllegalBatchState = "ERR_601_ILLEGAL_BATCH_STATE"
	ErrCodeDispatchFailed    = "ERR_602_DISPATCH_FAILED"
	ErrCodeIndexLocked       = "ERR_603_INDEX_LOCKED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion, e.g. "601" from "ERR_601_ILLEGAL_BATCH_STATE"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	case '6':
		return CategoryBatch
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeIllegalBatchState, ErrCodeCorruptIndex:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable:
		return true
	default:
		return false
	}
}
