// File: internal/ui/progress_console.go
// Brief: Terminal rendering of pipeline progress events.

// Package ui renders pipeline progress for the CLI.
package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"github.com/example/repodeploy/internal/notify"
)

type ProgressConsoleOptions struct {
	// Spinner animates the active state; only useful on a terminal.
	Spinner bool
	// Quiet suppresses informative sub-events.
	Quiet bool
	// Width, when positive, truncates spinner lines so they never wrap.
	Width int
}

// ProgressConsole prints one line per state transition and sub-event. It is
// a notify.Sink.
type ProgressConsole struct {
	out  io.Writer
	opts ProgressConsoleOptions

	mu      sync.Mutex
	phase   string
	started time.Time
	stop    func(success bool)
	phases  []phaseBadge
}

type phaseBadge struct {
	Name    string
	Elapsed time.Duration
	OK      bool
}

// NewProgressConsole writes to out.
func NewProgressConsole(out io.Writer, opts ProgressConsoleOptions) *ProgressConsole {
	return &ProgressConsole{out: out, opts: opts}
}

// Deliver implements notify.Sink.
func (c *ProgressConsole) Deliver(ev notify.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch ev.Type {
	case notify.EventState:
		c.closePhase(true, ev.Time)
		c.phase = ev.State
		c.started = ev.Time
		msg := ev.Message
		if c.opts.Spinner && c.opts.Width > 0 {
			msg = truncate(msg, c.opts.Width-16)
		}
		line := fmt.Sprintf("%s %s", stateToken(ev.State), msg)
		if c.opts.Spinner {
			c.stop = StartSpinner(c.out, line)
			return
		}
		fmt.Fprintln(c.out, line)
	case notify.EventInfo:
		if c.opts.Quiet {
			return
		}
		c.clearSpinnerLine()
		fmt.Fprintf(c.out, "  %s %s\n", color.New(color.FgHiBlack).Sprint("·"), ev.Message)
	case notify.EventReady:
		c.closePhase(true, ev.Time)
		fmt.Fprintf(c.out, "%s %s\n", color.New(color.FgGreen, color.Bold).Sprint("READY"), ev.Message)
	case notify.EventFailed:
		c.closePhase(false, ev.Time)
		kind := ev.Kind
		if kind == "" {
			kind = "Failed"
		}
		fmt.Fprintf(c.out, "%s %s\n", color.New(color.FgRed, color.Bold).Sprint("FAILED"), color.New(color.FgRed).Sprintf("[%s] %s", kind, ev.Message))
	}
}

// Summary prints the time spent in every completed phase.
func (c *ProgressConsole) Summary() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.phases) == 0 {
		return
	}
	parts := make([]string, 0, len(c.phases))
	for _, p := range c.phases {
		status := color.New(color.FgGreen).Sprint(p.Name)
		if !p.OK {
			status = color.New(color.FgRed).Sprint(p.Name)
		}
		parts = append(parts, fmt.Sprintf("%s %s", status, p.Elapsed.Round(100*time.Millisecond)))
	}
	fmt.Fprintf(c.out, "%s %s\n", color.New(color.FgHiBlack).Sprint("phases:"), strings.Join(parts, ", "))
}

func (c *ProgressConsole) closePhase(ok bool, at time.Time) {
	if c.stop != nil {
		c.stop(ok)
		c.stop = nil
	}
	if c.phase == "" {
		return
	}
	var elapsed time.Duration
	if !at.IsZero() && !c.started.IsZero() {
		elapsed = at.Sub(c.started)
	}
	c.phases = append(c.phases, phaseBadge{Name: c.phase, Elapsed: elapsed, OK: ok})
	c.phase = ""
}

func (c *ProgressConsole) clearSpinnerLine() {
	if c.stop != nil {
		fmt.Fprint(c.out, "\r\033[K")
	}
}

func stateToken(state string) string {
	return color.New(color.FgCyan, color.Bold).Sprintf("%-12s", strings.ToUpper(state))
}

func truncate(s string, n int) string {
	if n <= 3 {
		return s
	}
	return runewidth.Truncate(s, n, "...")
}
