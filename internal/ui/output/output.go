// Package output builds termenv outputs with the color handling used across the CLI.
package output

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// ColorProfile returns Ascii when NO_COLOR is set and the detected terminal profile otherwise.
func ColorProfile() termenv.Profile {
	if os.Getenv("NO_COLOR") != "" {
		return termenv.Ascii
	}
	return termenv.EnvColorProfile()
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// New creates a termenv.Output for w. A nil writer means stderr. Files that
// are not terminals, such as redirected stdout, get no colors.
func New(w io.Writer, opts ...termenv.OutputOption) *termenv.Output {
	if w == nil {
		w = os.Stderr
	}

	profile := ColorProfile()
	if f, ok := w.(*os.File); ok && !IsTerminal(f) {
		profile = termenv.Ascii
	}

	opts = append(opts,
		termenv.WithProfile(profile),
		termenv.WithTTY(true),
	)

	return termenv.NewOutput(w, opts...)
}

// Paint renders s in color c using the profile of out.
func Paint(out *termenv.Output, c lipgloss.Color, s string) string {
	return out.String(s).Foreground(out.Color(string(c))).String()
}
