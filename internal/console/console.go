// Package console prints the human-readable deploy narrative: one line per
// step, OK/WARN/FAIL markers and a closing banner. Structured diagnostics go
// through slog instead.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorReset  = "\033[0m"
)

// Printer writes narrative lines to w. Colors are used only when enabled.
type Printer struct {
	w     io.Writer
	color bool
}

// New returns a Printer for w. Colour is enabled when w is a terminal.
func New(w io.Writer) *Printer {
	color := false
	if f, ok := w.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &Printer{w: w, color: color}
}

// Plain returns a Printer that never emits ANSI sequences.
func Plain(w io.Writer) *Printer { return &Printer{w: w} }

// Writer exposes the underlying writer (for progress bars and prompts).
func (p *Printer) Writer() io.Writer { return p.w }

func (p *Printer) paint(c, s string) string {
	if !p.color {
		return s
	}
	return c + s + colorReset
}

// Step announces the start of a stage.
func (p *Printer) Step(format string, args ...any) {
	fmt.Fprintf(p.w, "%s %s\n", p.paint(colorCyan, "==>"), fmt.Sprintf(format, args...))
}

// Info prints an indented detail line.
func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintf(p.w, "    %s\n", fmt.Sprintf(format, args...))
}

// OK marks a finished stage.
func (p *Printer) OK(format string, args ...any) {
	fmt.Fprintf(p.w, "%-70s%s\n", fmt.Sprintf(format, args...), p.paint(colorGreen, "[OK]"))
}

// Warn marks a non-fatal problem.
func (p *Printer) Warn(format string, args ...any) {
	fmt.Fprintf(p.w, "%-70s%s\n", fmt.Sprintf(format, args...), p.paint(colorYellow, "[WARN]"))
}

// Fail marks a fatal problem.
func (p *Printer) Fail(format string, args ...any) {
	fmt.Fprintf(p.w, "%-70s%s\n", fmt.Sprintf(format, args...), p.paint(colorRed, "[FAIL]"))
}

// Hint prints a remediation suggestion.
func (p *Printer) Hint(format string, args ...any) {
	fmt.Fprintf(p.w, "    %s %s\n", p.paint(colorYellow, "hint:"), fmt.Sprintf(format, args...))
}

// Banner prints the final outcome framed by rules.
func (p *Printer) Banner(ok bool, msg string) {
	rule := strings.Repeat("=", 60)
	c := colorGreen
	if !ok {
		c = colorRed
	}
	fmt.Fprintf(p.w, "\n%s\n%s\n%s\n", rule, p.paint(c, msg), rule)
}
