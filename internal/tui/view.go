package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-cli-e2e-harness/internal/stats"
)

func (m Model) render() string {
	var sections []string

	sections = append(sections, headerStyle.Render("cli-e2e-harness · waiting for log messages"))

	info := []string{
		RenderKeyValue("Log file", m.logFile),
		RenderKeyValue("Elapsed", fmt.Sprintf("%s / %s",
			stats.FormatDuration(m.elapsed), stats.FormatDuration(m.timeout))),
		RenderKeyValue("Polls", fmt.Sprintf("%d every %s", m.polls, m.period)),
	}
	sections = append(sections, strings.Join(info, "\n"))

	barWidth := m.width - 20
	if barWidth > 60 {
		barWidth = 60
	}
	sections = append(sections, RenderProgressBar(m.Progress(), barWidth))

	sections = append(sections, sectionHeaderStyle.Render(
		fmt.Sprintf("Expected messages (%d/%d found)", len(m.expected)-len(m.missing), len(m.expected))))
	sections = append(sections, boxStyle.Render(m.renderExpected()))

	sections = append(sections, m.renderStatus())
	sections = append(sections, footerStyle.Render("q: quit"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderExpected() string {
	if len(m.expected) == 0 {
		return dimStyle.Render("(nothing expected)")
	}

	lines := make([]string, 0, len(m.expected))
	for _, e := range m.expected {
		if m.missing[e] {
			lines = append(lines, statusError.Render("✗")+" "+mutedStyle.Render(e))
		} else {
			lines = append(lines, statusOK.Render("✓")+" "+e)
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderStatus() string {
	switch {
	case m.met:
		return statusOK.Render("All messages found")
	case m.done:
		return statusError.Render(fmt.Sprintf("Timed out, %d message(s) missing", len(m.missing)))
	case m.polls == 0:
		return dimStyle.Render("Waiting for first poll...")
	default:
		return statusWarning.Render("Waiting...")
	}
}
