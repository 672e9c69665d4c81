package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/googol/statsview/internal/model"
	"github.com/googol/statsview/internal/sink"
	"github.com/googol/statsview/internal/stomp"
	"github.com/googol/statsview/internal/stomptest"
	"github.com/googol/statsview/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	topic   = "/topic/stats"
	refresh = "/app/topic/stats"
	wait    = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type harness struct {
	broker *stomptest.Broker
	sess   *Session
	rec    *sink.Recorder
	cancel context.CancelFunc
	result chan error

	once sync.Once
	err  error
}

func start(t *testing.T, autoConnect bool) *harness {
	t.Helper()
	rec := &sink.Recorder{}
	h := startWith(t, autoConnect, rec)
	h.rec = rec
	return h
}

func startWith(t *testing.T, autoConnect bool, out model.Sink) *harness {
	t.Helper()
	b := stomptest.NewBroker()
	t.Cleanup(b.Close)

	sess := New(Options{
		Transport: transport.Options{
			URL:              b.URL,
			HandshakeTimeout: time.Second,
			WriteTimeout:     time.Second,
		},
		Topic:              topic,
		RefreshDestination: refresh,
		AutoConnect:        autoConnect,
	}, out)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{broker: b, sess: sess, cancel: cancel, result: make(chan error, 1)}
	go func() { h.result <- sess.Run(ctx) }()
	t.Cleanup(func() { h.stop() })
	return h
}

// stop cancels Run and waits for it to return.
func (h *harness) stop() (bool, error) {
	returned := false
	h.once.Do(func() {
		h.cancel()
		select {
		case h.err = <-h.result:
			returned = true
		case <-time.After(wait):
		}
	})
	return returned, h.err
}

// replyOnRefresh makes the broker answer each refresh trigger with body.
func (h *harness) replyOnRefresh(body string) {
	h.broker.OnSend(refresh, func(b *stomptest.Broker, f *stomp.Frame) {
		b.Publish(topic, []byte(body))
	})
}

func (h *harness) awaitConnected(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return h.rec.Last() == model.Connected }, wait, tick)
}

func (h *harness) awaitRefreshes(t *testing.T, n int) {
	t.Helper()
	require.True(t, h.broker.Await(wait, func(b *stomptest.Broker) bool {
		return b.Count(stomp.CmdSend) == n
	}), "want %d refresh triggers, got %d", n, h.broker.Count(stomp.CmdSend))
}

func TestAutoConnectSubscribesAndRenders(t *testing.T) {
	h := start(t, true)
	h.replyOnRefresh(`{"lastUpdated":1709296200000,"formattedStats":"Stories indexed: 12"}`)

	h.awaitConnected(t)
	require.Eventually(t, func() bool { return len(h.rec.Snapshots()) == 1 }, wait, tick)

	snap := h.rec.Snapshots()[0]
	assert.Equal(t, "Stories indexed: 12", snap.FormattedStats)
	assert.True(t, time.UnixMilli(1709296200000).Equal(snap.LastUpdated))
	assert.Equal(t, []model.ConnectionState{model.Connecting, model.Connected}, h.rec.States())

	assert.Equal(t, 1, h.broker.Subscriptions(topic))
	assert.Equal(t, 1, h.broker.Count(stomp.CmdSubscribe))
	assert.Equal(t, 1, h.broker.Count(stomp.CmdSend))
}

func TestNoAutoConnect(t *testing.T) {
	h := start(t, false)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, h.broker.Connects())
	assert.Empty(t, h.rec.States())

	h.sess.Connect()
	h.awaitConnected(t)
	assert.Equal(t, model.Connected, h.sess.State())
}

func TestEveryPushIsRendered(t *testing.T) {
	h := start(t, true)
	h.awaitConnected(t)
	h.awaitRefreshes(t, 1)

	h.broker.Publish(topic, []byte(`{"lastUpdated":1,"formattedStats":"a"}`))
	h.broker.Publish(topic, []byte(`{"broken":`))
	h.broker.Publish(topic, []byte(`{"lastUpdated":2,"formattedStats":"b"}`))
	h.broker.Publish(topic, []byte(`{"lastUpdated":3,"formattedStats":"c"}`))

	require.Eventually(t, func() bool { return len(h.rec.Snapshots()) == 3 }, wait, tick)
	var got []string
	for _, s := range h.rec.Snapshots() {
		got = append(got, s.FormattedStats)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestConnectWhileConnectedResyncs(t *testing.T) {
	h := start(t, true)
	h.replyOnRefresh(`{"lastUpdated":null,"formattedStats":"x"}`)
	h.awaitConnected(t)
	h.awaitRefreshes(t, 1)

	h.sess.Connect()
	h.awaitRefreshes(t, 2)
	require.Eventually(t, func() bool { return len(h.rec.Snapshots()) == 2 }, wait, tick)

	assert.Equal(t, 1, h.broker.Connects(), "resync reuses the channel")
	assert.Equal(t, 2, h.broker.Count(stomp.CmdSubscribe))
	assert.Equal(t, 1, h.broker.Count(stomp.CmdUnsubscribe))
	assert.Equal(t, 1, h.broker.Subscriptions(topic), "never two live subscriptions")
	assert.Equal(t, []model.ConnectionState{model.Connecting, model.Connected}, h.rec.States())
}

func TestReconnectSubscribesOncePerConnect(t *testing.T) {
	h := start(t, true)
	h.awaitConnected(t)
	h.awaitRefreshes(t, 1)

	for i := 2; i <= 3; i++ {
		h.sess.Disconnect()
		require.Eventually(t, func() bool { return h.rec.Last() == model.Disconnected }, wait, tick)
		h.sess.Connect()
		h.awaitConnected(t)
		h.awaitRefreshes(t, i)
	}

	assert.Equal(t, 3, h.broker.Connects())
	assert.Equal(t, 3, h.broker.Count(stomp.CmdSubscribe))
	assert.Equal(t, 3, h.broker.Count(stomp.CmdSend))
	assert.Equal(t, 1, h.broker.Subscriptions(topic))
}

func TestDisconnectUnsubscribesFirst(t *testing.T) {
	h := start(t, true)
	h.awaitConnected(t)
	h.awaitRefreshes(t, 1)

	h.sess.Disconnect()
	require.True(t, h.broker.Await(wait, func(b *stomptest.Broker) bool {
		return b.Count(stomp.CmdDisconnect) == 1
	}))

	var order []string
	for _, f := range h.broker.Frames() {
		order = append(order, f.Command)
	}
	assert.Equal(t, []string{stomp.CmdSubscribe, stomp.CmdSend, stomp.CmdUnsubscribe, stomp.CmdDisconnect}, order)
	assert.Equal(t, []model.ConnectionState{model.Connecting, model.Connected, model.Disconnected}, h.rec.States())

	// A second disconnect changes nothing.
	h.sess.Disconnect()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.broker.Count(stomp.CmdDisconnect))
	assert.Len(t, h.rec.States(), 3)
}

func TestDropIsReportedWithoutReconnect(t *testing.T) {
	h := start(t, true)
	h.awaitConnected(t)
	h.awaitRefreshes(t, 1)

	h.broker.DropAll()
	require.Eventually(t, func() bool { return h.rec.Last() == model.Disconnected }, wait, tick)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, h.broker.Connects(), "no automatic reconnect")
	assert.Equal(t, model.Disconnected, h.sess.State())

	h.sess.Connect()
	h.awaitConnected(t)
	h.awaitRefreshes(t, 2)
}

func TestConnectFailure(t *testing.T) {
	h := start(t, false)
	h.broker.Reject("bad credentials")

	h.sess.Connect()
	require.Eventually(t, func() bool { return len(h.rec.States()) == 2 }, wait, tick)
	assert.Equal(t, []model.ConnectionState{model.Connecting, model.Disconnected}, h.rec.States())
	assert.Equal(t, model.Disconnected, h.sess.State())
}

func TestRunExitDisconnects(t *testing.T) {
	h := start(t, true)
	h.awaitConnected(t)
	h.awaitRefreshes(t, 1)

	returned, err := h.stop()
	require.True(t, returned, "Run did not return")
	assert.NoError(t, err)

	assert.True(t, h.broker.Await(wait, func(b *stomptest.Broker) bool {
		return b.Count(stomp.CmdDisconnect) == 1
	}))
	assert.Equal(t, model.Disconnected, h.rec.Last())

	// Requests after Run has returned do not block.
	h.sess.Connect()
	h.sess.Disconnect()
}

func TestRunTwice(t *testing.T) {
	h := start(t, false)
	require.Eventually(t, func() bool { return h.sess.running.Load() }, wait, tick)
	assert.ErrorIs(t, h.sess.Run(context.Background()), ErrRunning)
}

// handoffSink delivers every event over an unbuffered channel, the way
// tea.Program.Send hands messages to the UI loop.
type handoffSink struct {
	events chan any
	quit   chan struct{}
}

func newHandoffSink() *handoffSink {
	return &handoffSink{events: make(chan any), quit: make(chan struct{})}
}

func (s *handoffSink) deliver(v any) {
	select {
	case s.events <- v:
	case <-s.quit:
	}
}

func (s *handoffSink) OnConnectionState(state model.ConnectionState) { s.deliver(state) }
func (s *handoffSink) OnStatsSnapshot(snap model.StatsSnapshot)     { s.deliver(snap) }
func (s *handoffSink) OnIndexResult(r model.IndexResult)             { s.deliver(r) }

func TestRequestsDoNotBlockOnBusySink(t *testing.T) {
	out := newHandoffSink()
	h := startWith(t, true, out)
	t.Cleanup(func() { close(out.quit) })

	// Follow the UI side until the channel is live.
	for state := range out.events {
		if state == model.Connected {
			break
		}
	}
	h.awaitRefreshes(t, 1)

	for i := 0; i < 200; i++ {
		h.broker.Publish(topic, []byte(`{"lastUpdated":1,"formattedStats":"burst"}`))
	}
	<-out.events
	time.Sleep(100 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		h.sess.Connect()
		h.sess.Disconnect()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(wait):
		t.Fatal("Connect blocked while the session was delivering to the sink")
	}

	// Draining the sink lets the queued disconnect through.
	disconnected := make(chan struct{})
	go func() {
		for {
			select {
			case ev := <-out.events:
				if ev == model.Disconnected {
					close(disconnected)
					return
				}
			case <-out.quit:
				return
			}
		}
	}()
	select {
	case <-disconnected:
	case <-time.After(wait):
		t.Fatal("disconnect was never rendered")
	}
}
