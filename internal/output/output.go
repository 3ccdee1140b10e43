// Package output formats CLI output, with color when writing to a terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorDim    = "\033[2m"
)

// Writer provides formatted output for the CLI.
type Writer struct {
	out      io.Writer
	useColor bool
	tty      bool
}

// New creates a Writer. Color is enabled only for terminals and only when
// NO_COLOR is unset.
func New(out io.Writer) *Writer {
	tty := IsTTY(out)
	return &Writer{
		out:      out,
		tty:      tty,
		useColor: tty && !NoColor(),
	}
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// NoColor reports whether the NO_COLOR convention is in effect.
func NoColor() bool {
	_, set := os.LookupEnv("NO_COLOR")
	return set
}

// IsTerminal reports whether the writer targets a terminal.
func (w *Writer) IsTerminal() bool { return w.tty }

func (w *Writer) paint(color, s string) string {
	if !w.useColor {
		return s
	}
	return color + s + colorReset
}

// Status prints a message with an icon. Write errors are ignored for
// console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Status(w.paint(colorGreen, "✓"), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status(w.paint(colorYellow, "!"), msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status(w.paint(colorRed, "✗"), msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Field is one row of a KeyValues listing.
type Field struct {
	Key   string
	Value any
}

// KeyValues prints aligned "key: value" rows.
func (w *Writer) KeyValues(fields ...Field) {
	width := 0
	for _, f := range fields {
		if len(f.Key) > width {
			width = len(f.Key)
		}
	}
	for _, f := range fields {
		key := fmt.Sprintf("%-*s", width+1, f.Key+":")
		_, _ = fmt.Fprintf(w.out, "  %s %v\n", w.paint(colorDim, key), f.Value)
	}
}

// JSON prints v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Progress redraws a progress bar in place. It prints nothing when the
// writer is not a terminal.
func (w *Writer) Progress(current, total int, msg string) {
	if total <= 0 || !w.tty {
		return
	}

	pct := float64(current) / float64(total) * 100
	_, _ = fmt.Fprintf(w.out, "\r[%s] %.0f%% %s", renderProgressBar(current, total, 30), pct, msg)
	if current >= total {
		_, _ = fmt.Fprintln(w.out)
	}
}

// renderProgressBar creates a text progress bar.
func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}

	filled := int(float64(current) / float64(total) * float64(width))
	filled = max(0, min(filled, width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
