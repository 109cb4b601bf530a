// Package ui renders CLI output and prompts.
package ui

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

const (
	colorPass   = "#10B981"
	colorWarn   = "#F59E0B"
	colorFail   = "#EF4444"
	colorAccent = "#60A5FA"
	colorMuted  = "#6B7280"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(colorPass)).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(colorWarn))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(colorFail)).Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colorAccent))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted))
)

// DisableColor switches every style to plain ASCII output.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// RenderPass renders a success marker.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn renders a warning.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail renders an error.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderAccent renders an identifier or value worth noticing.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderMuted renders secondary text.
func RenderMuted(s string) string { return mutedStyle.Render(s) }

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// ErrNotConfirmed is returned when the user declines a prompt.
var ErrNotConfirmed = errors.New("not confirmed")

// Confirm asks the user to approve a destructive action. Without a
// terminal on stdin it refuses, so scripts must pass an explicit flag.
func Confirm(title, description string) error {
	if !IsTerminal(os.Stdin) {
		return fmt.Errorf("%w: stdin is not a terminal, pass --yes", ErrNotConfirmed)
	}

	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Delete").
		Negative("Cancel").
		Value(&ok).
		Run()
	if err != nil {
		return fmt.Errorf("prompt failed: %w", err)
	}
	if !ok {
		return ErrNotConfirmed
	}
	return nil
}

// Fprintf writes a formatted line prefixed with a rendered marker.
func Fprintf(w io.Writer, marker func(string) string, symbol, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", marker(symbol), fmt.Sprintf(format, args...))
}
