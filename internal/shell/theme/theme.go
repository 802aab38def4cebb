// Package theme provides the visual theme for the interactive shell.
package theme

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Bigsy/mcpcli/internal/events"
)

var (
	primaryColor = lipgloss.AdaptiveColor{Light: "#EA580C", Dark: "#FB923C"} // Orange
	borderColor  = lipgloss.AdaptiveColor{Light: "#D0D7DE", Dark: "#3B4261"}
)

// Theme holds all the styles used by the shell.
type Theme struct {
	// Text styles
	Base  lipgloss.Style
	Muted lipgloss.Style
	Faint lipgloss.Style
	Title lipgloss.Style

	// Accent colors
	Primary lipgloss.Style
	Success lipgloss.Style
	Warn    lipgloss.Style
	Danger  lipgloss.Style

	// Prompt and status line
	Prompt    lipgloss.Style
	StatusBar lipgloss.Style

	// Tool listings
	ToolName lipgloss.Style
	Required lipgloss.Style
	Kind     lipgloss.Style
}

// New creates the default theme (orange accent).
func New() Theme {
	success := lipgloss.AdaptiveColor{Light: "#0F7B0F", Dark: "#9ECE6A"}
	warn := lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"}
	danger := lipgloss.AdaptiveColor{Light: "#B00020", Dark: "#F7768E"}
	muted := lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A9B1D6"}
	faint := lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#565F89"}

	return Theme{
		Base:  lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#111827", Dark: "#C0CAF5"}),
		Muted: lipgloss.NewStyle().Foreground(muted),
		Faint: lipgloss.NewStyle().Foreground(faint),
		Title: lipgloss.NewStyle().Bold(true),

		Primary: lipgloss.NewStyle().Foreground(primaryColor),
		Success: lipgloss.NewStyle().Foreground(success),
		Warn:    lipgloss.NewStyle().Foreground(warn),
		Danger:  lipgloss.NewStyle().Foreground(danger),

		Prompt:    lipgloss.NewStyle().Bold(true).Foreground(primaryColor),
		StatusBar: lipgloss.NewStyle().Foreground(muted),

		ToolName: lipgloss.NewStyle().Bold(true).Foreground(primaryColor),
		Required: lipgloss.NewStyle().Foreground(danger),
		Kind:     lipgloss.NewStyle().Italic(true).Foreground(faint),
	}
}

// Plain returns a theme without colors, for output that is not a terminal.
func Plain() Theme {
	s := lipgloss.NewStyle()
	return Theme{
		Base: s, Muted: s, Faint: s, Title: s,
		Primary: s, Success: s, Warn: s, Danger: s,
		Prompt: s, StatusBar: s,
		ToolName: s, Required: s, Kind: s,
	}
}

// StatusIcon returns the icon for a connection state.
func (t Theme) StatusIcon(state events.ConnState) string {
	switch state {
	case events.StateConnected:
		return t.Success.Render("●")
	case events.StateConnecting:
		return t.Warn.Render("◐")
	default:
		return t.Faint.Render("○")
	}
}

// StatusPill renders a connection state with a background color.
func (t Theme) StatusPill(state events.ConnState) string {
	pill := lipgloss.NewStyle().Padding(0, 1).Bold(true)
	switch state {
	case events.StateConnected:
		return pill.Background(lipgloss.Color("#14532D")).
			Foreground(lipgloss.Color("#DCFCE7")).Render("● CONNECTED")
	case events.StateConnecting:
		return pill.Background(lipgloss.Color("#713F12")).
			Foreground(lipgloss.Color("#FEF3C7")).Render("◐ CONNECTING")
	default:
		return pill.Background(lipgloss.Color("#374151")).
			Foreground(lipgloss.Color("#E5E7EB")).Render("○ DISCONNECTED")
	}
}

// RenderPane renders content in a pane with the title embedded in the top border.
//
//	╭─┤ Title ├──────────────────────────────╮
//	│ content here                           │
//	╰────────────────────────────────────────╯
func (t Theme) RenderPane(title, content string, width int) string {
	// Guard against very small widths that would cause panics
	if width < 10 {
		width = 10
	}

	borderStyle := lipgloss.NewStyle().Foreground(borderColor)
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(primaryColor)

	contentWidth := width - 4 // 2 for borders, 2 for padding

	titleText := titleStyle.Render(title)
	// "╭─┤ " + title + " ├" + rest + "╮"
	restWidth := max(width-lipgloss.Width(titleText)-7, 0)
	header := borderStyle.Render("╭─┤ ") + titleText + borderStyle.Render(" ├"+strings.Repeat("─", restWidth)+"╮")

	var body strings.Builder
	for _, line := range strings.Split(content, "\n") {
		padding := max(contentWidth-lipgloss.Width(line), 0)
		body.WriteString(borderStyle.Render("│ "))
		body.WriteString(line)
		body.WriteString(strings.Repeat(" ", padding))
		body.WriteString(borderStyle.Render(" │"))
		body.WriteString("\n")
	}

	footer := borderStyle.Render("╰" + strings.Repeat("─", max(width-2, 0)) + "╯")
	return header + "\n" + body.String() + footer
}
