// Package tui provides a live terminal view of a log wait.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for
// styling. It shows which expected messages have appeared in a command's
// log file and how much of the timeout is left.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// lateFraction is how much of the timeout may pass before the deadline
// bar turns amber.
const lateFraction = 0.8

// Palette.
var (
	colorAccent = lipgloss.Color("#7C3AED")
	colorTitle  = lipgloss.Color("#06B6D4")
	colorFound  = lipgloss.Color("#10B981")
	colorLate   = lipgloss.Color("#F59E0B")
	colorFailed = lipgloss.Color("#EF4444")
	colorText   = lipgloss.Color("#E5E7EB")
	colorMuted  = lipgloss.Color("#9CA3AF")
	colorFaint  = lipgloss.Color("#6B7280")
	colorRule   = lipgloss.Color("#374151")
)

var (
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	dimStyle   = lipgloss.NewStyle().Foreground(colorFaint)

	// Message and wait states.
	statusOK      = lipgloss.NewStyle().Foreground(colorFound).Bold(true)
	statusWarning = lipgloss.NewStyle().Foreground(colorLate).Bold(true)
	statusError   = lipgloss.NewStyle().Foreground(colorFailed).Bold(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorAccent).
			Bold(true).
			Padding(0, 1).
			MarginBottom(1)

	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorTitle).
				Bold(true).
				MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorRule).
			Padding(0, 1)

	footerStyle = lipgloss.NewStyle().Foreground(colorMuted).MarginTop(1)

	labelStyle = lipgloss.NewStyle().Foreground(colorMuted).Width(12)
	valueStyle = lipgloss.NewStyle().Foreground(colorText).Bold(true)

	barOnTimeStyle = lipgloss.NewStyle().Foreground(colorAccent)
	barLateStyle   = lipgloss.NewStyle().Foreground(colorLate)
	barEmptyStyle  = lipgloss.NewStyle().Foreground(colorRule)
)

// RenderKeyValue renders "label: value" with the label in a fixed column.
func RenderKeyValue(label, value string) string {
	return labelStyle.Render(label+":") + valueStyle.Render(value)
}

// RenderProgressBar renders how much of a deadline has been used.
// progress is clamped to [0, 1]; width is at least 10 cells, plus the
// percentage. Past lateFraction the bar turns amber.
func RenderProgressBar(progress float64, width int) string {
	width = max(width, 10)
	progress = min(max(progress, 0), 1)

	filled := int(progress * float64(width))
	fill := barOnTimeStyle
	if progress >= lateFraction {
		fill = barLateStyle
	}

	return fill.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", width-filled)) +
		valueStyle.Render(fmt.Sprintf(" %3.0f%%", progress*100))
}
