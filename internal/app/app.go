package app

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/googol/statsview/internal/indexing"
	"github.com/googol/statsview/internal/model"
	"github.com/googol/statsview/internal/theme"
	"github.com/googol/statsview/internal/views/dashboard"
	"github.com/googol/statsview/internal/views/debug"
	"github.com/googol/statsview/internal/views/prompt"
	"github.com/googol/statsview/internal/views/status"
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayEvents
)

// Controller is the part of the session the UI drives.
type Controller interface {
	Connect()
	Disconnect()
}

// Indexer submits story ids for indexing.
type Indexer interface {
	Submit(ctx context.Context, ids []int, query string) model.IndexResult
}

// Messages delivered by ProgramSink.
type (
	ConnectionStateMsg struct{ State model.ConnectionState }
	SnapshotMsg        struct{ Snapshot model.StatsSnapshot }
	IndexResultMsg     struct{ Result model.IndexResult }
)

// Options configures the root model.
type Options struct {
	Session  Controller
	Indexer  Indexer
	Query    string
	Endpoint string
	// Context bounds indexing requests. Defaults to context.Background.
	Context context.Context
	// Sink receives index results. It must deliver them back to the
	// program, as ProgramSink does. When nil the result is returned as a
	// message directly.
	Sink model.Sink
}

// Model is the root Bubble Tea model.
type Model struct {
	session Controller
	indexer Indexer
	results model.Sink
	ctx     context.Context

	keys    KeyMap
	width   int
	height  int
	overlay Overlay
	state   model.ConnectionState

	// Sub-views.
	statusBar status.Model
	dashboard dashboard.Model
	prompt    prompt.Model
	events    debug.Model
}

// New creates the root model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return Model{
		session:   opts.Session,
		indexer:   opts.Indexer,
		results:   opts.Sink,
		ctx:       ctx,
		keys:      DefaultKeyMap(),
		statusBar: status.New(opts.Endpoint),
		dashboard: dashboard.New(),
		prompt:    prompt.New(opts.Query),
		events:    debug.New(),
	}
}

// Init does nothing; the session connects on its own.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.dashboard.Width = msg.Width
		m.prompt.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ConnectionStateMsg:
		m.state = msg.State
		m.statusBar.State = msg.State
		m.events.Connection(time.Now(), msg.State)
		return m, nil

	case SnapshotMsg:
		now := time.Now()
		m.dashboard.SetSnapshot(msg.Snapshot)
		m.statusBar.Received(now)
		m.events.Snapshot(now, msg.Snapshot)
		return m, nil

	case IndexResultMsg:
		m.prompt.SetResult(msg.Result)
		m.events.IndexResult(time.Now(), msg.Result)
		return m, nil
	}

	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.prompt.Active() {
		return m.handlePromptKey(msg)
	}

	if m.overlay != OverlayNone {
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Events):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Up):
			m.events.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.events.ScrollDown(1)
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Connect):
		if m.session != nil {
			m.session.Connect()
		}
		return m, nil

	case key.Matches(msg, m.keys.Disconnect):
		if m.session != nil {
			m.session.Disconnect()
		}
		return m, nil

	case key.Matches(msg, m.keys.Index):
		return m, m.prompt.Open()

	case key.Matches(msg, m.keys.Events):
		m.overlay = OverlayEvents
		return m, nil
	}

	return m, nil
}

func (m Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ForceQuit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Escape):
		m.prompt.Close()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		ids, err := indexing.ParseIDs(m.prompt.Value())
		m.prompt.Close()
		if err != nil {
			return m, result(model.IndexResult{Status: model.StatusWarning, Message: err.Error()})
		}
		m.prompt.Busy = true
		m.events.Note(time.Now(), debug.KindIndex, fmt.Sprintf("submitting %d stories", len(ids)))
		return m, m.submit(ids)
	}

	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

// submit runs the indexing request off the UI goroutine.
func (m Model) submit(ids []int) tea.Cmd {
	indexer, out, ctx, query := m.indexer, m.results, m.ctx, m.prompt.Query()
	if indexer == nil {
		return result(model.IndexResult{Status: model.StatusFailure, Message: "Error: indexing is not configured"})
	}
	return func() tea.Msg {
		res := indexer.Submit(ctx, ids, query)
		if out != nil {
			out.OnIndexResult(res)
			return nil
		}
		return IndexResultMsg{Result: res}
	}
}

func result(r model.IndexResult) tea.Cmd {
	return func() tea.Msg { return IndexResultMsg{Result: r} }
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	body := m.dashboard.View()
	if m.overlay == OverlayEvents {
		body = m.events.View(m.width, m.height-4)
	}

	sections := []string{
		m.statusBar.View(),
		body,
	}
	if p := m.prompt.View(); p != "" {
		sections = append(sections, p)
	}
	if m.state == model.Disconnected && m.overlay == OverlayNone {
		sections = append(sections, lipgloss.NewStyle().Foreground(theme.ColorDisconnected).Render("  Not receiving live stats. Press r to connect."))
	}
	sections = append(sections, theme.StyleDimmed.Render("  r:connect/refresh  x:disconnect  i:index  d:events  q:quit"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
