package tui

import (
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Profile returns the colour profile to use for f. Pipes and files get Ascii.
func Profile(f *os.File) termenv.Profile {
	if !IsTerminal(f) {
		return termenv.Ascii
	}
	return termenv.NewOutput(f).Profile
}

// NewRenderer returns a function that renders markdown.
// When rich is false (output is piped) the markdown is passed through untouched.
func NewRenderer(rich bool) func(string) (string, error) {
	plain := func(markdown string) (string, error) {
		return markdown, nil
	}
	if !rich {
		return plain
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return plain
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}
