package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/term"
)

const defaultTerminalWidth = 80

var (
	idPrefixStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	headerStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle    = lipgloss.NewStyle().Faint(true)
	doneStyle     = lipgloss.NewStyle().Faint(true).Strikethrough(true)
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	overdueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)

	priorityStyles = map[int]lipgloss.Style{
		1: lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		2: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		3: lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
	}
)

// colorEnabled is a var so tests can force plain output.
var colorEnabled = func() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func render(style lipgloss.Style, value string) string {
	if value == "" || !colorEnabled() {
		return value
	}
	return style.Render(value)
}

// Header styles a table header or section title.
func Header(value string) string {
	return render(headerStyle, value)
}

// Muted styles secondary text.
func Muted(value string) string {
	return render(mutedStyle, value)
}

// Done styles a completed todo.
func Done(value string) string {
	return render(doneStyle, value)
}

// Warn styles a warning.
func Warn(value string) string {
	return render(warnStyle, value)
}

// Error styles an error.
func Error(value string) string {
	return render(errorStyle, value)
}

// Overdue styles a date in the past.
func Overdue(value string) string {
	return render(overdueStyle, value)
}

// Priority styles a priority label; the default priority is unstyled.
func Priority(priority int, value string) string {
	style, ok := priorityStyles[priority]
	if !ok {
		return value
	}
	return render(style, value)
}

// TerminalWidth returns the width of stdout, or 80 when it is not a
// terminal.
func TerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return defaultTerminalWidth
	}
	return width
}

// Wrap word-wraps text to width.
func Wrap(text string, width int) string {
	if width <= 0 {
		width = defaultTerminalWidth
	}
	return wordwrap.String(text, width)
}
