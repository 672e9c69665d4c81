// Package dashboard renders the latest stats snapshot.
package dashboard

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/googol/statsview/internal/model"
	"github.com/googol/statsview/internal/theme"
)

// TimeFormat is the layout of the "Last updated" line.
const TimeFormat = "2006-01-02 15:04:05"

// Model holds the dashboard state. Only the most recent snapshot is kept.
type Model struct {
	Width  int
	latest *model.StatsSnapshot
}

// New creates a dashboard model with nothing to show.
func New() Model {
	return Model{}
}

// SetSnapshot replaces the displayed snapshot.
func (m *Model) SetSnapshot(s model.StatsSnapshot) {
	m.latest = &s
}

// Latest returns the displayed snapshot, if any.
func (m Model) Latest() (model.StatsSnapshot, bool) {
	if m.latest == nil {
		return model.StatsSnapshot{}, false
	}
	return *m.latest, true
}

// View renders the stats panel.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	title := theme.StyleHeader.Render(" STATS ")
	if m.latest == nil {
		body := theme.StyleDimmed.Render("Waiting for stats...")
		return m.panel(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, "", body))
	}

	updated := "Last updated: " + lastUpdated(*m.latest)
	body := strings.TrimRight(m.latest.FormattedStats, "\n")
	if body == "" {
		body = theme.StyleDimmed.Render("(no stats)")
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		title,
		theme.StyleDimmed.Render(updated),
		"",
		body,
	)
	return m.panel(width).Render(content)
}

func (m Model) panel(width int) lipgloss.Style {
	return theme.StyleBorder.
		Width(width-2).
		Padding(0, 1)
}

func lastUpdated(s model.StatsSnapshot) string {
	if s.LastUpdated.IsZero() {
		return "unknown"
	}
	return s.LastUpdated.Local().Format(TimeFormat)
}
