// Package colors provides color output utilities for command line messages.
package colors

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

const checkmark = "✓"

// Printer writes prefixed, colored status lines. Colors are dropped when
// the writer is not a terminal.
type Printer struct {
	mu      sync.Mutex
	w       io.Writer
	errorSt lipgloss.Style
	warnSt  lipgloss.Style
	infoSt  lipgloss.Style
	okSt    lipgloss.Style
}

// New creates a printer writing to w.
func New(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:       w,
		errorSt: r.NewStyle().Foreground(lipgloss.Color("1")),
		warnSt:  r.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		infoSt:  r.NewStyle().Foreground(lipgloss.Color("4")),
		okSt:    r.NewStyle().Foreground(lipgloss.Color("2")),
	}
}

// Error outputs an error message.
func (p *Printer) Error(msgs ...string) {
	p.print(p.errorSt.Render("Error:"), msgs)
}

// Warning outputs a warning message.
func (p *Printer) Warning(msgs ...string) {
	p.print(p.warnSt.Render("Warning:"), msgs)
}

// Info outputs an informational message.
func (p *Printer) Info(msgs ...string) {
	p.print(p.infoSt.Render("Info:"), msgs)
}

// Success outputs a success message.
func (p *Printer) Success(msgs ...string) {
	p.print(p.okSt.Render(checkmark), msgs)
}

func (p *Printer) print(prefix string, msgs []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	// Ignore write errors: there is nowhere left to report them.
	_, _ = fmt.Fprintf(p.w, "%s %s\n", prefix, strings.Join(msgs, " "))
}
