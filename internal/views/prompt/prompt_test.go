package prompt

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/googol/statsview/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenClose(t *testing.T) {
	m := New("go")
	assert.False(t, m.Active())
	assert.Empty(t, m.View())

	m.Open()
	require.True(t, m.Active())
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("42")})
	assert.Equal(t, "42", m.Value())
	assert.Equal(t, "go", m.Query())
	assert.Contains(t, m.View(), "query> ")

	m.Close()
	assert.False(t, m.Active())

	m.Open()
	assert.Empty(t, m.Value(), "reopening clears the input")
}

func TestTabEditsQuery(t *testing.T) {
	m := New("go")
	m.Open()

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("lang")})
	assert.Equal(t, "golang", m.Query())
	assert.Empty(t, m.Value())

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("9")})
	assert.Equal(t, "9", m.Value())

	m.Close()
	m.Open()
	assert.Equal(t, "golang", m.Query(), "the query survives reopening")
}

func TestUpdateIgnoredWhenClosed(t *testing.T) {
	m := New("")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("7")})
	assert.Empty(t, m.Value())
}

func TestResultLine(t *testing.T) {
	m := New("")
	m.Busy = true
	assert.Contains(t, m.View(), "Indexing...")

	m.SetResult(model.IndexResult{Status: model.StatusWarning, Message: "Please select at least one story to index"})
	assert.False(t, m.Busy)
	assert.Contains(t, m.View(), "! Please select at least one story to index")

	res, ok := m.Result()
	require.True(t, ok)
	assert.Equal(t, model.LevelWarning, res.Level())
}
