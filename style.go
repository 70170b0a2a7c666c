package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/dgnsrekt/sinkpool/internal/device"
)

var (
	keyword = lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}).
		Render

	paragraph = lipgloss.NewStyle().
			Width(78).
			Padding(0, 0, 0, 2).
			Render

	faint = lipgloss.NewStyle().Faint(true).Render

	okStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
)

// stdoutIsTerminal reports whether output goes to a terminal.
func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// setupStyles drops colors when stdout is not a terminal.
func setupStyles() {
	if !stdoutIsTerminal() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

func statusStyle(s device.Status) lipgloss.Style {
	if s == device.StatusOK {
		return okStyle
	}
	return errStyle
}
