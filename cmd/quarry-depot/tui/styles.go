package tui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor   = lipgloss.Color("99")  // purple
	successColor   = lipgloss.Color("42")  // green
	warningColor   = lipgloss.Color("214") // amber
	errorColor     = lipgloss.Color("196") // red
	mutedColor     = lipgloss.Color("244") // gray
	highlightColor = lipgloss.Color("39")  // blue
)

var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).MarginBottom(1)

	LabelStyle = lipgloss.NewStyle().Foreground(mutedColor)

	ValueStyle = lipgloss.NewStyle().Foreground(highlightColor)

	SuccessStyle = lipgloss.NewStyle().Foreground(successColor)

	WarningStyle = lipgloss.NewStyle().Foreground(warningColor)

	ErrorStyle = lipgloss.NewStyle().Foreground(errorColor)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	HelpStyle = lipgloss.NewStyle().Foreground(mutedColor).MarginTop(1)

	StatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 2).
			MarginRight(1)

	StatLabelStyle = lipgloss.NewStyle().Foreground(mutedColor)

	StatValueStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
)

// StateStyle maps a source/run status string to the style used to render
// it, so a glance at the color communicates success/failure without
// reading the text.
func StateStyle(state string) lipgloss.Style {
	switch state {
	case "PROCESSED", "PERSISTENT_PROCESSED", "CACHE_LOADED", "PERSISTENT_CACHED":
		return SuccessStyle
	case "SESSION_BROKEN", "CONNECTION_ERROR", "PARSING_ERROR":
		return ErrorStyle
	case "PROCESSING":
		return WarningStyle
	default:
		return LabelStyle
	}
}
