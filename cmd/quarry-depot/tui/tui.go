// Package tui implements the local terminal inspector for quarry-depot
// (spec §2: "NOT the out-of-scope real-time dashboard — a local terminal
// inspector only"). It renders a snapshot handed to it by the CLI; it
// never polls the depot itself.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// supportedViews allow-lists, by exact name, the view types Run accepts,
// keeping TUI mode opt-in and read-only.
var supportedViews = []string{"inspect_workspace", "status_leaf"}

// IsTUISupported reports whether viewType has a renderer.
func IsTUISupported(viewType string) bool {
	for _, v := range supportedViews {
		if v == viewType {
			return true
		}
	}
	return false
}

// SupportedTUIViews returns the view types Run accepts, for error messages.
func SupportedTUIViews() []string {
	return append([]string(nil), supportedViews...)
}

// Run starts the bubbletea program for viewType against data and blocks
// until the user quits.
func Run(viewType string, data any) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("tui: unsupported view %q (supported: %s)", viewType, strings.Join(supportedViews, ", "))
	}
	model := newInspectModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
