package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/Kocoro-lab/deepresearch/internal/research"
)

// ruleWidth returns the terminal width for separators, capped at 80.
func ruleWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 && width < 80 {
			return width
		}
	}
	return 80
}

func rule(w io.Writer) string {
	return strings.Repeat("─", ruleWidth(w))
}

// progressPrinter renders pipeline events as they happen.
type progressPrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out}
}

func (p *progressPrinter) Emit(_ context.Context, ev research.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ts := ev.Timestamp.Format("15:04:05")
	fmt.Fprintf(p.out, "%s %s %s\n", color.HiBlackString(ts), eventLabel(ev.Type), ev.Message)
}

func eventLabel(typ string) string {
	label := fmt.Sprintf("%-14s", strings.ToLower(typ))
	switch typ {
	case research.EventError:
		return color.RedString(label)
	case research.EventReport:
		return color.GreenString(label)
	case research.EventClarification:
		return color.YellowString(label)
	case research.EventDispatch, research.EventRoundComplete:
		return color.CyanString(label)
	default:
		return color.BlueString(label)
	}
}

func statusString(s research.Status) string {
	switch s {
	case research.StatusDone:
		return color.GreenString(string(s))
	case research.StatusAwaitingInput:
		return color.YellowString(string(s))
	default:
		return color.CyanString(string(s))
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// truncateStr truncates s to n characters with an ellipsis.
func truncateStr(s string, n int) string {
	if n < 4 {
		n = 4
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
