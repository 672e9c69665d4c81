package sink

import (
	"bytes"
	"testing"
	"time"

	"github.com/googol/statsview/internal/model"
	"github.com/stretchr/testify/assert"
)

func newTestWriter() (*Writer, *bytes.Buffer) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.now = func() time.Time { return time.Date(2024, 3, 1, 8, 0, 5, 0, time.Local) }
	return w, &buf
}

func TestWriterConnectionState(t *testing.T) {
	w, buf := newTestWriter()
	w.OnConnectionState(model.Connecting)
	w.OnConnectionState(model.Connected)
	assert.Equal(t, "[08:00:05] connection connecting\n[08:00:05] connection connected\n", buf.String())
}

func TestWriterSnapshot(t *testing.T) {
	w, buf := newTestWriter()
	at := time.Date(2024, 3, 1, 7, 59, 0, 0, time.Local)
	w.OnStatsSnapshot(model.StatsSnapshot{LastUpdated: at, FormattedStats: "Stories: 4\nComments: 9\n"})
	assert.Equal(t, "[08:00:05] stats (last updated 2024-03-01 07:59:00)\nStories: 4\nComments: 9\n", buf.String())
}

func TestWriterSnapshotWithoutTimestamp(t *testing.T) {
	w, buf := newTestWriter()
	w.OnStatsSnapshot(model.StatsSnapshot{FormattedStats: "x"})
	assert.Contains(t, buf.String(), "last updated unknown")
}

func TestWriterIndexResult(t *testing.T) {
	w, buf := newTestWriter()
	w.OnIndexResult(model.IndexResult{Status: model.StatusWarning, Message: "Please select at least one story"})
	assert.Equal(t, "[08:00:05] index warning: Please select at least one story\n", buf.String())
}

func TestRecorder(t *testing.T) {
	var r Recorder
	assert.Equal(t, model.Disconnected, r.Last())

	r.OnConnectionState(model.Connecting)
	r.OnConnectionState(model.Connected)
	r.OnStatsSnapshot(model.StatsSnapshot{FormattedStats: "a"})
	r.OnIndexResult(model.IndexResult{Status: model.StatusSuccess})

	assert.Equal(t, []model.ConnectionState{model.Connecting, model.Connected}, r.States())
	assert.Equal(t, model.Connected, r.Last())
	assert.Len(t, r.Snapshots(), 1)
	assert.Len(t, r.Results(), 1)

	states := r.States()
	states[0] = model.Disconnected
	assert.Equal(t, model.Connecting, r.States()[0], "copies are returned")
}

func TestMulti(t *testing.T) {
	var a, b Recorder
	m := Multi{&a, &b}
	m.OnConnectionState(model.Connected)
	m.OnStatsSnapshot(model.StatsSnapshot{})
	m.OnIndexResult(model.IndexResult{})

	for _, r := range []*Recorder{&a, &b} {
		assert.Len(t, r.States(), 1)
		assert.Len(t, r.Snapshots(), 1)
		assert.Len(t, r.Results(), 1)
	}
}
