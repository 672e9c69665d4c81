// Package debug provides a scrollable overlay listing channel, stats and
// indexing events.
package debug

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/googol/statsview/internal/model"
	"github.com/googol/statsview/internal/theme"
)

const maxEntries = 200

// Kind classifies an entry.
type Kind int

const (
	KindChannel Kind = iota
	KindStats
	KindIndex
	KindError
	numKinds
)

func (k Kind) String() string {
	switch k {
	case KindChannel:
		return "chan"
	case KindStats:
		return "stat"
	case KindIndex:
		return "idx"
	case KindError:
		return "err"
	default:
		return "?"
	}
}

func (k Kind) color() lipgloss.Color {
	switch k {
	case KindChannel:
		return theme.ColorChannel
	case KindStats:
		return theme.ColorStats
	case KindIndex:
		return theme.ColorIndex
	case KindError:
		return theme.ColorFailure
	default:
		return theme.ColorDimmed
	}
}

// Entry is one event log line. Repeat counts identical consecutive
// snapshots folded into it.
type Entry struct {
	Time    time.Time
	Kind    Kind
	Message string
	Repeat  int

	body string
}

// Model holds the event log.
type Model struct {
	Entries []Entry
	Offset  int // lines scrolled up from the newest entry
	totals  [numKinds]int
}

// New creates an empty log.
func New() Model {
	return Model{}
}

// Connection records a connection state change.
func (m *Model) Connection(at time.Time, state model.ConnectionState) {
	m.add(Entry{Time: at, Kind: KindChannel, Message: "connection " + state.String()})
}

// Snapshot records a pushed snapshot. A push identical to the previous entry
// bumps its repeat count instead of adding a line.
func (m *Model) Snapshot(at time.Time, snap model.StatsSnapshot) {
	if n := len(m.Entries); n > 0 {
		last := &m.Entries[n-1]
		if last.Kind == KindStats && last.body == snap.FormattedStats {
			m.totals[KindStats]++
			last.Repeat++
			last.Time = at
			m.Offset = 0
			return
		}
	}

	updated := "unknown"
	if !snap.LastUpdated.IsZero() {
		updated = snap.LastUpdated.Local().Format(time.TimeOnly)
	}
	lines := strings.Count(strings.TrimRight(snap.FormattedStats, "\n"), "\n") + 1
	m.add(Entry{
		Time:    at,
		Kind:    KindStats,
		Message: fmt.Sprintf("snapshot, %d lines, updated %s", lines, updated),
		body:    snap.FormattedStats,
	})
}

// IndexResult records the outcome of an indexing request.
func (m *Model) IndexResult(at time.Time, r model.IndexResult) {
	kind := KindIndex
	if r.Level() == model.LevelFailure {
		kind = KindError
	}
	m.add(Entry{Time: at, Kind: kind, Message: r.Status + ": " + r.Message})
}

// Note records a free-form line.
func (m *Model) Note(at time.Time, kind Kind, message string) {
	m.add(Entry{Time: at, Kind: kind, Message: message})
}

func (m *Model) add(e Entry) {
	m.totals[e.Kind]++
	m.Entries = append(m.Entries, e)
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
	m.Offset = 0
}

// Total returns how many events of kind were recorded, including folded
// repeats and entries that have aged out.
func (m Model) Total(kind Kind) int {
	if kind < 0 || kind >= numKinds {
		return 0
	}
	return m.totals[kind]
}

// ScrollUp moves the viewport towards older entries.
func (m *Model) ScrollUp(n int) {
	m.Offset = min(m.Offset+n, max(len(m.Entries)-1, 0))
}

// ScrollDown moves the viewport towards the newest entry.
func (m *Model) ScrollDown(n int) {
	m.Offset = max(m.Offset-n, 0)
}

func (m Model) line(e Entry, width int) string {
	msg := e.Message
	if e.Repeat > 0 {
		msg += fmt.Sprintf(" (x%d)", e.Repeat+1)
	}
	if limit := width - 20; limit > 3 && len(msg) > limit {
		msg = msg[:limit-3] + "..."
	}
	ts := theme.StyleDimmed.Render(e.Time.Format("15:04:05.000"))
	kind := lipgloss.NewStyle().Foreground(e.Kind.color()).Width(4).Render(e.Kind.String())
	return ts + " " + kind + " " + msg
}

// View renders the log as an overlay panel of the given size.
func (m Model) View(width, height int) string {
	innerW := max(width-4, 20)
	visible := max(height-6, 3)

	title := theme.StyleHeader.Render(" EVENT LOG ")
	help := theme.StyleDimmed.Render(fmt.Sprintf("j/k:scroll  esc:close  %d chan  %d stat  %d idx  %d err",
		m.totals[KindChannel], m.totals[KindStats], m.totals[KindIndex], m.totals[KindError]))

	panel := lipgloss.NewStyle().
		Width(innerW).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder)

	if len(m.Entries) == 0 {
		body := theme.StyleDimmed.Render("  No events recorded yet.")
		return panel.Render(lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", help))
	}

	end := max(len(m.Entries)-m.Offset, 0)
	start := max(end-visible, 0)
	lines := make([]string, 0, end-start)
	for _, e := range m.Entries[start:end] {
		lines = append(lines, m.line(e, innerW))
	}

	more := ""
	if m.Offset > 0 {
		more = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d newer", m.Offset))
	}
	return panel.Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"), more, help))
}
