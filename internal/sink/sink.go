// Package sink provides render sinks that do not need a terminal UI.
package sink

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/googol/statsview/internal/model"
)

// TimeFormat is used for lastUpdated in printed output.
const TimeFormat = "2006-01-02 15:04:05"

// Writer prints one block per event to an io.Writer.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewWriter creates a Writer sink.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, now: time.Now}
}

func (s *Writer) OnConnectionState(state model.ConnectionState) {
	s.printf("[%s] connection %s\n", s.stamp(), state)
}

func (s *Writer) OnStatsSnapshot(snap model.StatsSnapshot) {
	updated := "unknown"
	if !snap.LastUpdated.IsZero() {
		updated = snap.LastUpdated.Local().Format(TimeFormat)
	}
	body := strings.TrimRight(snap.FormattedStats, "\n")
	s.printf("[%s] stats (last updated %s)\n%s\n", s.stamp(), updated, body)
}

func (s *Writer) OnIndexResult(r model.IndexResult) {
	s.printf("[%s] index %s: %s\n", s.stamp(), r.Status, r.Message)
}

func (s *Writer) stamp() string {
	return s.now().Format(time.TimeOnly)
}

func (s *Writer) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}

// Recorder keeps every event it receives. It is safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	states    []model.ConnectionState
	snapshots []model.StatsSnapshot
	results   []model.IndexResult
}

func (r *Recorder) OnConnectionState(state model.ConnectionState) {
	r.mu.Lock()
	r.states = append(r.states, state)
	r.mu.Unlock()
}

func (r *Recorder) OnStatsSnapshot(snap model.StatsSnapshot) {
	r.mu.Lock()
	r.snapshots = append(r.snapshots, snap)
	r.mu.Unlock()
}

func (r *Recorder) OnIndexResult(res model.IndexResult) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
}

// States returns a copy of the connection states seen so far.
func (r *Recorder) States() []model.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ConnectionState(nil), r.states...)
}

// Snapshots returns a copy of the snapshots seen so far.
func (r *Recorder) Snapshots() []model.StatsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.StatsSnapshot(nil), r.snapshots...)
}

// Results returns a copy of the index results seen so far.
func (r *Recorder) Results() []model.IndexResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.IndexResult(nil), r.results...)
}

// Last returns the most recent connection state, or Disconnected.
func (r *Recorder) Last() model.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return model.Disconnected
	}
	return r.states[len(r.states)-1]
}

// Multi fans every event out to several sinks in order.
type Multi []model.Sink

func (m Multi) OnConnectionState(state model.ConnectionState) {
	for _, s := range m {
		s.OnConnectionState(state)
	}
}

func (m Multi) OnStatsSnapshot(snap model.StatsSnapshot) {
	for _, s := range m {
		s.OnStatsSnapshot(snap)
	}
}

func (m Multi) OnIndexResult(r model.IndexResult) {
	for _, s := range m {
		s.OnIndexResult(r)
	}
}
