package app

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/googol/statsview/internal/model"
)

// ProgramSink forwards sink callbacks to a running tea.Program as messages.
// Attach must be called before any callback fires; until then events are
// dropped.
type ProgramSink struct {
	program *tea.Program
}

// Attach sets the program that receives events.
func (s *ProgramSink) Attach(p *tea.Program) {
	s.program = p
}

func (s *ProgramSink) send(msg tea.Msg) {
	if s.program != nil {
		s.program.Send(msg)
	}
}

func (s *ProgramSink) OnConnectionState(state model.ConnectionState) {
	s.send(ConnectionStateMsg{State: state})
}

func (s *ProgramSink) OnStatsSnapshot(snap model.StatsSnapshot) {
	s.send(SnapshotMsg{Snapshot: snap})
}

func (s *ProgramSink) OnIndexResult(r model.IndexResult) {
	s.send(IndexResultMsg{Result: r})
}
