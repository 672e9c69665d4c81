// Package prompt provides the story-id input used to submit indexing
// requests, and the notification line that shows the outcome.
package prompt

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/googol/statsview/internal/model"
	"github.com/googol/statsview/internal/theme"
)

// Model holds the prompt and the latest notification.
type Model struct {
	input  textinput.Model
	query  textinput.Model
	Width  int
	Busy   bool
	result *model.IndexResult
}

// New creates a hidden prompt whose query field starts at query.
func New(query string) Model {
	ti := textinput.New()
	ti.Placeholder = "story ids, e.g. 39012345, 39012346"
	ti.Prompt = "ids>   "
	ti.CharLimit = 512

	q := textinput.New()
	q.Placeholder = "search term"
	q.Prompt = "query> "
	q.CharLimit = 256
	q.SetValue(query)

	return Model{input: ti, query: q}
}

// Open focuses the id field and clears any previous ids. The query is kept
// from the last submission.
func (m *Model) Open() tea.Cmd {
	m.input.Reset()
	m.query.Blur()
	return m.input.Focus()
}

// Close hides the prompt.
func (m *Model) Close() {
	m.input.Blur()
	m.query.Blur()
}

// Active reports whether either field has focus.
func (m Model) Active() bool {
	return m.input.Focused() || m.query.Focused()
}

// Value returns the typed ids.
func (m Model) Value() string {
	return m.input.Value()
}

// Query returns the search term sent with the ids.
func (m Model) Query() string {
	return m.query.Value()
}

// toggle moves focus between the id and query fields.
func (m *Model) toggle() tea.Cmd {
	if m.input.Focused() {
		m.input.Blur()
		return m.query.Focus()
	}
	m.query.Blur()
	return m.input.Focus()
}

// SetResult replaces the notification.
func (m *Model) SetResult(r model.IndexResult) {
	m.result = &r
	m.Busy = false
}

// Result returns the notification, if any.
func (m Model) Result() (model.IndexResult, bool) {
	if m.result == nil {
		return model.IndexResult{}, false
	}
	return *m.result, true
}

// Update forwards input events to the focused field while the prompt is
// open. Tab switches fields.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if !m.Active() {
		return m, nil
	}
	if k, ok := msg.(tea.KeyMsg); ok && (k.Type == tea.KeyTab || k.Type == tea.KeyShiftTab) {
		return m, m.toggle()
	}
	var cmd tea.Cmd
	if m.query.Focused() {
		m.query, cmd = m.query.Update(msg)
	} else {
		m.input, cmd = m.input.Update(msg)
	}
	return m, cmd
}

// View renders the prompt line (when open) above the notification line.
func (m Model) View() string {
	var lines []string
	if m.Active() {
		m.input.Width = max(m.Width-10, 10)
		m.query.Width = max(m.Width-10, 10)
		hint := theme.StyleDimmed.Render("  tab:switch field  enter:submit  esc:cancel")
		lines = append(lines, m.input.View(), m.query.View(), hint)
	}

	switch {
	case m.Busy:
		lines = append(lines, theme.StyleDimmed.Render("Indexing..."))
	case m.result != nil:
		level := m.result.Level()
		line := theme.LevelGlyph(level) + " " + m.result.Message
		lines = append(lines, lipgloss.NewStyle().Foreground(theme.LevelColor(level)).Render(line))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
