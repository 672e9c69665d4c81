package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/googol/statsview/internal/model"
	"github.com/googol/statsview/internal/stomp"
	"github.com/googol/statsview/internal/stomptest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wait = 2 * time.Second

type recorder struct {
	mu     sync.Mutex
	frames []*stomp.Frame
	drops  []error
}

func (r *recorder) HandleFrame(f *stomp.Frame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
}

func (r *recorder) HandleDrop(err error) {
	r.mu.Lock()
	r.drops = append(r.drops, err)
	r.mu.Unlock()
}

func (r *recorder) counts() (frames, drops int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames), len(r.drops)
}

func newTransport(t *testing.T, b *stomptest.Broker, h Handler) *Transport {
	t.Helper()
	tr := New(Options{
		URL:              b.URL,
		HandshakeTimeout: wait,
		WriteTimeout:     wait,
	}, h)
	t.Cleanup(func() { tr.Disconnect() })
	return tr
}

func TestConnect(t *testing.T) {
	b := stomptest.NewBroker()
	defer b.Close()
	tr := newTransport(t, b, nil)

	assert.Equal(t, model.Disconnected, tr.State())
	frame, err := tr.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stomp.CmdConnected, frame.Command)
	assert.Equal(t, "1.2", frame.Header.Get(stomp.HdrVersion))
	assert.Equal(t, model.Connected, tr.State())
	assert.Equal(t, 1, b.ClientCount())
}

func TestConnectWhileConnectedIsBusy(t *testing.T) {
	b := stomptest.NewBroker()
	defer b.Close()
	tr := newTransport(t, b, nil)

	_, err := tr.Connect(context.Background())
	require.NoError(t, err)
	_, err = tr.Connect(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 1, b.Connects())
}

func TestConnectRejected(t *testing.T) {
	b := stomptest.NewBroker()
	defer b.Close()
	b.Reject("origin not allowed")
	tr := newTransport(t, b, nil)

	_, err := tr.Connect(context.Background())
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "origin not allowed")
	assert.Equal(t, model.Disconnected, tr.State())
}

func TestConnectDialFailure(t *testing.T) {
	tr := New(Options{URL: "ws://127.0.0.1:1/stats", HandshakeTimeout: wait}, nil)
	_, err := tr.Connect(context.Background())
	assert.Error(t, err)
	assert.Equal(t, model.Disconnected, tr.State())
}

func TestConnectCancelled(t *testing.T) {
	b := stomptest.NewBroker()
	defer b.Close()
	tr := newTransport(t, b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.Connect(ctx)
	assert.Error(t, err)
	assert.Equal(t, model.Disconnected, tr.State())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	b := stomptest.NewBroker()
	defer b.Close()
	rec := &recorder{}
	tr := newTransport(t, b, rec)

	assert.False(t, tr.Disconnect(), "disconnect before connect is a no-op")

	_, err := tr.Connect(context.Background())
	require.NoError(t, err)
	assert.True(t, tr.Disconnect())
	assert.Equal(t, model.Disconnected, tr.State())
	assert.False(t, tr.Disconnect())

	require.True(t, b.Await(wait, func(b *stomptest.Broker) bool {
		return b.Count(stomp.CmdDisconnect) == 1 && b.ClientCount() == 0
	}))
	_, drops := rec.counts()
	assert.Zero(t, drops, "manual disconnect is not a drop")
}

func TestSendWhileDisconnected(t *testing.T) {
	tr := New(Options{URL: "ws://unused"}, nil)
	assert.ErrorIs(t, tr.Send("/app/topic/stats", nil), ErrNotConnected)
	assert.ErrorIs(t, tr.Subscribe("s", "/topic/stats"), ErrNotConnected)
	assert.ErrorIs(t, tr.Unsubscribe("s"), ErrNotConnected)
}

func TestSendAndReceive(t *testing.T) {
	b := stomptest.NewBroker()
	defer b.Close()
	rec := &recorder{}
	tr := newTransport(t, b, rec)

	_, err := tr.Connect(context.Background())
	require.NoError(t, err)
	require.NoError(t, tr.Subscribe("sub-1", "/topic/stats"))
	require.True(t, b.Await(wait, func(b *stomptest.Broker) bool {
		return b.Subscriptions("/topic/stats") == 1
	}))

	require.NoError(t, tr.Send("/app/topic/stats", nil))
	require.True(t, b.Await(wait, func(b *stomptest.Broker) bool {
		return b.Count(stomp.CmdSend) == 1
	}))
	sent := b.Frames()[1]
	assert.Equal(t, "/app/topic/stats", sent.Header.Get(stomp.HdrDestination))
	assert.Empty(t, sent.Body)

	// Heart-beats and garbage are skipped, the real frames arrive in order.
	b.SendRaw([]byte("\n"))
	b.SendRaw([]byte("garbage"))
	assert.Equal(t, 1, b.Publish("/topic/stats", []byte(`{"n":1}`)))
	assert.Equal(t, 1, b.Publish("/topic/stats", []byte(`{"n":2}`)))

	require.Eventually(t, func() bool {
		n, _ := rec.counts()
		return n == 2
	}, wait, 5*time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, `{"n":1}`, string(rec.frames[0].Body))
	assert.Equal(t, `{"n":2}`, string(rec.frames[1].Body))
	assert.Equal(t, "sub-1", rec.frames[0].Header.Get(stomp.HdrSubscription))
}

func TestDropReportedOnce(t *testing.T) {
	b := stomptest.NewBroker()
	defer b.Close()
	rec := &recorder{}
	tr := newTransport(t, b, rec)

	_, err := tr.Connect(context.Background())
	require.NoError(t, err)
	b.DropAll()

	require.Eventually(t, func() bool {
		_, drops := rec.counts()
		return drops == 1
	}, wait, 5*time.Millisecond)
	assert.Equal(t, model.Disconnected, tr.State())
	assert.False(t, tr.Disconnect())

	// The transport is reusable after a drop.
	_, err = tr.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, b.Connects())
	_, drops := rec.counts()
	assert.Equal(t, 1, drops)
}
