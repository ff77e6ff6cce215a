package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/term"
	"github.com/dustin/go-humanize"
)

var (
	colorAccent = lipgloss.Color("86")
	colorDim    = lipgloss.Color("245")
	colorWarn   = lipgloss.Color("214")
	colorOK     = lipgloss.Color("10")

	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent)

	styleLabel = lipgloss.NewStyle().
			Foreground(colorDim).
			Width(14)

	styleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent).
			Padding(0, 1)

	styleCell = lipgloss.NewStyle().
			Padding(0, 1)

	styleActive = lipgloss.NewStyle().
			Foreground(colorOK).
			Padding(0, 1)

	styleWarn = lipgloss.NewStyle().
			Foreground(colorWarn)
)

// isTerminal reports whether w is an interactive terminal. Styling is
// dropped otherwise so output stays greppable.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(f.Fd())
}

func render(w io.Writer, style lipgloss.Style, s string) string {
	if !isTerminal(w) {
		return s
	}
	return style.Render(s)
}

// field prints one "Label: value" line.
func field(w io.Writer, label, value string) {
	if isTerminal(w) {
		fmt.Fprintln(w, styleLabel.Render(label)+value)
		return
	}
	fmt.Fprintf(w, "%-14s%s\n", label, value)
}

// newTable returns a bordered table whose header row and active rows are
// highlighted.
func newTable(headers []string, rows [][]string, active func(row int) bool) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return styleHeader
			case active != nil && active(row):
				return styleActive
			default:
				return styleCell
			}
		}).
		Headers(headers...).
		Rows(rows...)
}

func formatAgo(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

func formatCount(n uint64) string {
	return humanize.Comma(int64(n))
}

func formatSize(n int64) string {
	return humanize.IBytes(uint64(n))
}
