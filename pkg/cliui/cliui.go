// Package cliui provides the terminal styles shared by ollamaproxy CLI
// commands.
package cliui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	SuccessMark = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")

	KeyStyle   = lipgloss.NewStyle().Bold(true)
	ValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	DimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// NotSet is shown in place of an empty value.
const NotSet = "<not set>"

// Mark returns a ✓ for nil errors or ✗ for non-nil errors.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// ConfigSource prints which config file is in use, if any.
func ConfigSource(w io.Writer, target string) {
	if target == "" {
		fmt.Fprintf(w, "\n  %s\n\n", DimStyle.Render("No config file found. Using defaults."))
		return
	}
	fmt.Fprintf(w, "\n  %s %s\n\n", KeyStyle.Render("Config file:"), DimStyle.Render(target))
}

// KeyValue prints one aligned key/value line. keyWidth pads the key; zero
// disables padding.
func KeyValue(w io.Writer, key, value string, keyWidth int) {
	k := KeyStyle.Width(keyWidth).Render(key)
	if value == "" {
		fmt.Fprintf(w, "  %s  %s\n", k, DimStyle.Render(NotSet))
		return
	}
	fmt.Fprintf(w, "  %s  %s\n", k, ValueStyle.Render(value))
}
