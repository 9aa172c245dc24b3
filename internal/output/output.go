// Package output formats CLI command output: headers, labeled fields,
// and pass/warn/fail lines, styled through the ui palette when the
// destination is a terminal.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/openclaw/openclaw-memory/internal/ui"
)

// Glyphs for result lines. ASCII-safe fallbacks keep piped output clean.
const (
	glyphOK   = "✓"
	glyphWarn = "!"
	glyphFail = "✗"
)

// Writer renders formatted command output.
type Writer struct {
	out    io.Writer
	styles ui.Styles
}

// New builds a Writer for out, with color decided by the destination.
func New(out io.Writer) *Writer {
	return &Writer{
		out:    out,
		styles: ui.GetStyles(!ui.ColorEnabled(out)),
	}
}

// NewPlain builds a Writer that never colors, for tests and pipes.
func NewPlain(out io.Writer) *Writer {
	return &Writer{out: out, styles: ui.NoColorStyles()}
}

// Header prints a bold section header.
func (w *Writer) Header(title string) {
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(title))
}

// Status prints an unadorned line.
// Write errors are ignored for console output.
func (w *Writer) Status(msg string) {
	_, _ = fmt.Fprintln(w.out, msg)
}

// Statusf prints a formatted line.
func (w *Writer) Statusf(format string, args ...any) {
	w.Status(fmt.Sprintf(format, args...))
}

// Field prints an indented "label: value" line.
func (w *Writer) Field(label, value string) {
	_, _ = fmt.Fprintf(w.out, "  %s %s\n",
		w.styles.Label.Render(label+":"), w.styles.Value.Render(value))
}

// Fieldf prints a Field with a formatted value.
func (w *Writer) Fieldf(label, format string, args ...any) {
	w.Field(label, fmt.Sprintf(format, args...))
}

// Success prints a pass line.
func (w *Writer) Success(msg string) {
	_, _ = fmt.Fprintf(w.out, "%s %s\n", w.styles.Success.Render(glyphOK), msg)
}

// Successf prints a formatted pass line.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warn line.
func (w *Writer) Warning(msg string) {
	_, _ = fmt.Fprintf(w.out, "%s %s\n", w.styles.Warning.Render(glyphWarn), msg)
}

// Warningf prints a formatted warn line.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints a fail line.
func (w *Writer) Error(msg string) {
	_, _ = fmt.Fprintf(w.out, "%s %s\n", w.styles.Error.Render(glyphFail), msg)
}

// Errorf prints a formatted fail line.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Code prints an indented block, for config snippets and JSON payloads.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
