package status

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/googol/statsview/internal/model"
	"github.com/googol/statsview/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	State    model.ConnectionState
	Endpoint string
	Pushes   int
	LastPush time.Time
	Width    int
}

// New creates a status bar model for endpoint.
func New(endpoint string) Model {
	return Model{Endpoint: endpoint}
}

// Received counts one delivered snapshot.
func (m *Model) Received(at time.Time) {
	m.Pushes++
	m.LastPush = at
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	connStr := lipgloss.NewStyle().
		Foreground(theme.ConnectionColor(m.State)).
		Render(theme.ConnectionBadge(m.State))

	pushes := fmt.Sprintf("%d updates", m.Pushes)
	if !m.LastPush.IsZero() {
		pushes += " (last " + m.LastPush.Format(time.TimeOnly) + ")"
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + pushes
	if m.Endpoint != "" {
		content += sep + theme.StyleDimmed.Render(m.Endpoint)
	}

	bar := lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)

	return bar
}
