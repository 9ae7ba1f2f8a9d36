package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/KaramelBytes/docqa-cli/internal/qa"
	"github.com/fatih/color"
)

// PendingPlaceholder stands in for an answer that has not arrived yet.
const PendingPlaceholder = "…"

// Console renders documents and conversation turns to a terminal.
type Console struct {
	out io.Writer

	question *color.Color
	answer   *color.Color
	pending  *color.Color
	errc     *color.Color
	ok       *color.Color
	muted    *color.Color
	active   *color.Color
}

// NewConsole writes to out, colored unless useColor is false.
func NewConsole(out io.Writer, useColor bool) *Console {
	c := &Console{
		out:      out,
		question: color.New(color.FgCyan, color.Bold),
		answer:   color.New(color.Reset),
		pending:  color.New(color.FgYellow),
		errc:     color.New(color.FgRed),
		ok:       color.New(color.FgGreen),
		muted:    color.New(color.FgHiBlack),
		active:   color.New(color.FgGreen, color.Bold),
	}
	for _, cc := range []*color.Color{c.question, c.answer, c.pending, c.errc, c.ok, c.muted, c.active} {
		if useColor {
			cc.EnableColor()
		} else {
			cc.DisableColor()
		}
	}
	return c
}

// Documents prints a numbered list; the active document is marked with "*".
func (c *Console) Documents(docs []qa.Document, activeID string) {
	if len(docs) == 0 {
		fmt.Fprintln(c.out, c.muted.Sprint("(no documents)"))
		return
	}
	for i, d := range docs {
		marker := " "
		name := d.Filename
		if d.ID == activeID {
			marker = "*"
			name = c.active.Sprint(d.Filename)
		}
		date := ""
		if !d.UploadedAt.IsZero() {
			date = " " + c.muted.Sprint(d.UploadedAt.Format("2006-01-02"))
		}
		fmt.Fprintf(c.out, "%s %d. %s%s %s\n", marker, i+1, name, date, c.muted.Sprintf("[%s]", d.ID))
	}
}

// Turns prints every turn in order.
func (c *Console) Turns(turns []qa.Turn) {
	if len(turns) == 0 {
		fmt.Fprintln(c.out, c.muted.Sprint("(no questions yet)"))
		return
	}
	for _, t := range turns {
		c.Turn(t)
	}
}

// Turn prints one question and its answer, or the placeholder while pending.
func (c *Console) Turn(t qa.Turn) {
	fmt.Fprintf(c.out, "%s %s\n", c.question.Sprint("Q:"), t.Question)
	if t.Pending {
		fmt.Fprintf(c.out, "%s %s\n", c.pending.Sprint("A:"), c.pending.Sprint(PendingPlaceholder))
		return
	}
	fmt.Fprintf(c.out, "%s %s\n", c.answer.Sprint("A:"), indentContinuation(t.Answer, "   "))
}

// Error prints the error banner.
func (c *Console) Error(msg string) {
	if msg == "" {
		return
	}
	fmt.Fprintln(c.out, c.errc.Sprint("✗ "+msg))
}

// Success prints a confirmation line.
func (c *Console) Success(format string, args ...any) {
	fmt.Fprintln(c.out, c.ok.Sprintf("✓ "+format, args...))
}

// Info prints a dimmed informational line.
func (c *Console) Info(format string, args ...any) {
	fmt.Fprintln(c.out, c.muted.Sprintf(format, args...))
}

func indentContinuation(s, prefix string) string {
	return strings.ReplaceAll(s, "\n", "\n"+prefix)
}
