// Package iface defines the interface port: the boundary through
// which the core reports progress, warnings and errors, and asks for
// interactive confirmation, without depending on any particular UI
// toolkit (TTY, curses, web, desktop). TTY below is the reference
// implementation, writing plain lines to a pair of io.Writers.
package iface

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Progress is a single registered download/operation's progress
// handle, returned by Interface.Progress.
type Progress interface {
	// SetTotal records the expected total size, if known.
	SetTotal(total int64)
	// Add reports n additional bytes/units completed.
	Add(n int64)
	// Done marks the operation finished, successfully or not.
	Done()
}

// Interface is the port the core reports through and asks through; it
// never blocks on anything but AskYesNo.
type Interface interface {
	Warning(msg string)
	Error(msg string)
	Info(msg string)

	ShowStatus(label string)
	HideStatus()

	// AskYesNo blocks for interactive confirmation. Returning false
	// aborts the transaction cleanly with no side effect on the
	// cache.
	AskYesNo(question string) bool

	// Progress returns a handle for target; register indicates the
	// progress bar should be displayed rather than tracked silently.
	Progress(target string, register bool) Progress
}

// TTY is a reference Interface implementation writing to plain
// io.Writers, plus a bufio.Scanner for interactive confirmation.
type TTY struct {
	Out, Err io.Writer
	In       *bufio.Scanner

	// AssumeYes makes AskYesNo answer true without reading In,
	// matching the CLI's -y/--yes flag.
	AssumeYes bool

	statusLabel string
}

// NewTTY returns a TTY writing to out/errw and reading confirmations
// from in.
func NewTTY(out, errw io.Writer, in io.Reader) *TTY {
	return &TTY{Out: out, Err: errw, In: bufio.NewScanner(in)}
}

func (t *TTY) Warning(msg string) { fmt.Fprintf(t.Err, "warning: %s\n", msg) }
func (t *TTY) Error(msg string)   { fmt.Fprintf(t.Err, "error: %s\n", msg) }
func (t *TTY) Info(msg string)    { fmt.Fprintf(t.Out, "%s\n", msg) }

func (t *TTY) ShowStatus(label string) {
	t.statusLabel = label
	fmt.Fprintf(t.Out, "%s...\n", label)
}

func (t *TTY) HideStatus() {
	t.statusLabel = ""
}

// AskYesNo prints question, then reads a line from In unless AssumeYes
// is set. Only "y" and "yes" (case-insensitive) count as yes;
// everything else, including empty input and EOF, is no.
func (t *TTY) AskYesNo(question string) bool {
	if t.AssumeYes {
		fmt.Fprintf(t.Out, "%s [Y/n] y\n", question)
		return true
	}
	fmt.Fprintf(t.Out, "%s [y/N] ", question)
	if !t.In.Scan() {
		return false
	}
	ans := strings.TrimSpace(strings.ToLower(t.In.Text()))
	return ans == "y" || ans == "yes"
}

func (t *TTY) Progress(target string, register bool) Progress {
	if !register {
		return noopProgress{}
	}
	return &ttyProgress{w: t.Out, target: target}
}

type noopProgress struct{}

func (noopProgress) SetTotal(int64) {}
func (noopProgress) Add(int64)      {}
func (noopProgress) Done()          {}

// ttyProgress renders a running total line per Add call rather than a
// redraw-in-place bar, keeping output line-oriented and free of TTY
// control codes.
type ttyProgress struct {
	w      io.Writer
	target string
	total  int64
	done   int64
}

func (p *ttyProgress) SetTotal(total int64) { p.total = total }

func (p *ttyProgress) Add(n int64) {
	p.done += n
	if p.total > 0 {
		fmt.Fprintf(p.w, "%s: %d/%d\n", p.target, p.done, p.total)
	} else {
		fmt.Fprintf(p.w, "%s: %d\n", p.target, p.done)
	}
}

func (p *ttyProgress) Done() {
	fmt.Fprintf(p.w, "%s: done\n", p.target)
}
