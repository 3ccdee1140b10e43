package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// FormatForCLI formats an error for terminal output.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	var ie *IndexerError
	if !stderrors.As(err, &ie) {
		ie = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", err.Error()))

	if ie.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", ie.Suggestion))
	}
	sb.WriteString(fmt.Sprintf("  Code: %s\n", ie.Code))

	return sb.String()
}

// FormatForLog returns key-value pairs suitable for slog attributes.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	var ie *IndexerError
	if !stderrors.As(err, &ie) {
		return map[string]any{
			"error": err.Error(),
		}
	}

	result := map[string]any{
		"error":      err.Error(),
		"error_code": ie.Code,
		"category":   string(ie.Category),
		"severity":   string(ie.Severity),
		"retryable":  ie.Retryable,
	}
	if ie.Cause != nil {
		result["cause"] = ie.Cause.Error()
	}
	for k, v := range ie.Details {
		result["detail_"+k] = v
	}
	return result
}
