// Package printer renders toasts and the connection-status line on the
// terminal. It is the engine's default Notifier.
package printer

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Printer writes user-facing status output. Safe for concurrent use; toast
// calls arrive from write-confirmation goroutines as well as the frame loop.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

func New() *Printer {
	return &Printer{out: os.Stdout}
}

// NewWriter directs output elsewhere, for tests.
func NewWriter(w io.Writer) *Printer {
	return &Printer{out: w}
}

// Toast shows a mutation outcome summary, e.g. "closed 2".
func (p *Printer) Toast(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	green.Fprintf(p.out, "✓ %s\n", msg)
}

// ToastError shows a mutation failure after rollback.
func (p *Printer) ToastError(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	red.Fprintf(p.out, "✗ %s\n", msg)
}

// Status shows the passive connection indicator; degraded is informational,
// never an error.
func (p *Printer) Status(connected bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if connected {
		cyan.Fprintln(p.out, "stream: connected")
		return
	}
	yellow.Fprintln(p.out, "stream: degraded (polling only)")
}

// Info prints a plain informational line.
func (p *Printer) Info(format string, a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", a...)
}
