package errors

import (
	"errors"
	"fmt"
	"strings"
)

// FormatReply renders an error as the one-line verb reply the tool surface
// returns: "Rejected: <reason>" for pipeline refusals, otherwise
// "Error: <kind>: <message>".
func FormatReply(err error) string {
	if err == nil {
		return ""
	}

	var me *MemoryError
	if !errors.As(err, &me) {
		return fmt.Sprintf("Error: InternalError: %s", err.Error())
	}

	if IsRejection(me) {
		return fmt.Sprintf("Rejected: %s", me.Message)
	}
	return fmt.Sprintf("Error: %s: %s", me.Kind(), me.Message)
}

// FormatForCLI formats an error for CLI output.
// Uses a concise format suitable for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	var me *MemoryError
	if !errors.As(err, &me) {
		me = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Error: %s\n", me.Message))

	if me.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", me.Suggestion))
	}

	sb.WriteString(fmt.Sprintf("  Code: %s\n", me.Code))

	return sb.String()
}
