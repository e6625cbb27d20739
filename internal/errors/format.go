package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatForUser returns a user-friendly error message.
func FormatForUser(err error) string {
	if err == nil {
		return ""
	}

	oe, ok := err.(*OrgError)
	if !ok {
		// Standard error - just return message
		return err.Error()
	}

	var sb strings.Builder

	sb.WriteString("Error: ")
	sb.WriteString(oe.Message)
	sb.WriteString("\n")

	if oe.Suggestion != "" {
		sb.WriteString("\nSuggestion: ")
		sb.WriteString(oe.Suggestion)
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("\n[%s]", oe.Code))

	return sb.String()
}

// FormatForCLI formats an error for CLI output.
// Uses a concise format suitable for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	oe, ok := err.(*OrgError)
	if !ok {
		// Wrap standard error
		oe = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Error: %s\n", oe.Message))

	if oe.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", oe.Suggestion))
	}

	sb.WriteString(fmt.Sprintf("  Code: %s\n", oe.Code))

	return sb.String()
}

// jsonError is the JSON representation of an error.
type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON returns a JSON representation of the error.
// Suitable for machine consumption and structured logging.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	oe, ok := err.(*OrgError)
	if !ok {
		oe = Wrap(ErrCodeInternal, err)
	}

	je := jsonError{
		Code:       oe.Code,
		Message:    oe.Message,
		Category:   string(oe.Category),
		Severity:   string(oe.Severity),
		Details:    oe.Details,
		Suggestion: oe.Suggestion,
		Retryable:  oe.Retryable,
	}

	if oe.Cause != nil {
		je.Cause = oe.Cause.Error()
	}

	return json.Marshal(je)
}

// FormatForLog formats an error for structured logging.
// Returns key-value pairs suitable for slog attributes.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	oe, ok := err.(*OrgError)
	if !ok {
		return map[string]any{
			"error": err.Error(),
		}
	}

	result := map[string]any{
		"error_code": oe.Code,
		"message":    oe.Message,
		"category":   string(oe.Category),
		"severity":   string(oe.Severity),
		"retryable":  oe.Retryable,
	}

	if oe.Cause != nil {
		result["cause"] = oe.Cause.Error()
	}

	if oe.Suggestion != "" {
		result["suggestion"] = oe.Suggestion
	}

	for k, v := range oe.Details {
		result["detail_"+k] = v
	}

	return result
}
