// Package output provides consistent status lines for CLI commands that do
// not use the build renderer.
package output

import (
	"fmt"
	"io"
	"strings"
)

// Writer prints status lines. Write errors are ignored; this is console
// output.
type Writer struct {
	out   io.Writer
	quiet bool
}

// New creates a new output Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// NewQuiet returns a Writer that only prints warnings and errors.
func NewQuiet(out io.Writer) *Writer {
	return &Writer{out: out, quiet: true}
}

// Status prints a message after icon, or indented when icon is empty.
func (w *Writer) Status(icon, msg string) {
	if w.quiet {
		return
	}
	w.line(icon, msg)
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message. Quiet writers still print it.
func (w *Writer) Warning(msg string) {
	w.line("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message. Quiet writers still print it.
func (w *Writer) Error(msg string) {
	w.line("❌", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// KeyValue prints an aligned "key: value" pair under the previous status.
func (w *Writer) KeyValue(key, value string) {
	if w.quiet {
		return
	}
	_, _ = fmt.Fprintf(w.out, "   %-10s %s\n", key+":", value)
}

// Code prints a block indented by two spaces and framed by blank lines.
func (w *Writer) Code(content string) {
	if w.quiet {
		return
	}
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	if w.quiet {
		return
	}
	_, _ = fmt.Fprintln(w.out)
}

func (w *Writer) line(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}
