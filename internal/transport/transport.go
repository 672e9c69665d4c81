// Package transport owns the single STOMP-over-WebSocket connection to the
// stats endpoint: handshake, raw frame writes, the inbound read loop and
// keep-alive pings. It never reconnects by itself.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/googol/statsview/internal/logging"
	"github.com/googol/statsview/internal/model"
	"github.com/googol/statsview/internal/stomp"
	"github.com/gorilla/websocket"
)

var (
	ErrNotConnected = errors.New("transport: not connected")
	ErrBusy         = errors.New("transport: already connecting or connected")
	ErrRejected     = errors.New("transport: handshake rejected")
	ErrAborted      = errors.New("transport: connect aborted")
)

// heartBeat disables STOMP heart-beating; liveness is covered by WebSocket
// pings instead.
const heartBeat = "0,0"

const closeGrace = time.Second

// Handler receives inbound traffic. Both methods are called from the read
// goroutine of the current connection, in arrival order.
type Handler interface {
	HandleFrame(frame *stomp.Frame)
	// HandleDrop is called once when the peer or the network ends a
	// connection. It is not called after Disconnect.
	HandleDrop(err error)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are skipped.
type HandlerFuncs struct {
	Frame func(*stomp.Frame)
	Drop  func(error)
}

func (h HandlerFuncs) HandleFrame(f *stomp.Frame) {
	if h.Frame != nil {
		h.Frame(f)
	}
}

func (h HandlerFuncs) HandleDrop(err error) {
	if h.Drop != nil {
		h.Drop(err)
	}
}

// Options configures a Transport.
type Options struct {
	URL              string
	Origin           string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// PingInterval of zero disables keep-alive pings.
	PingInterval time.Duration
	// PongTimeout of zero disables the read deadline.
	PongTimeout time.Duration
	Logger      *log.Logger
}

// Transport is a single reusable STOMP channel. Connect may be called again
// after the channel returns to Disconnected.
type Transport struct {
	opts    Options
	handler Handler
	logger  *log.Logger
	dialer  *websocket.Dialer

	mu         sync.Mutex
	state      model.ConnectionState
	conn       *websocket.Conn
	done       chan struct{} // closed when conn is torn down
	cancelDial context.CancelFunc
	gen        uint64 // bumped whenever the current attempt or connection ends

	writeMu sync.Mutex // serialises all conn writes
}

// New creates a disconnected transport delivering inbound frames to handler.
func New(opts Options, handler Handler) *Transport {
	if handler == nil {
		handler = HandlerFuncs{}
	}
	return &Transport{
		opts:    opts,
		handler: handler,
		logger:  logging.Component(opts.Logger, "transport"),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
	}
}

// State returns the current connection state.
func (t *Transport) State() model.ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Connect dials the endpoint and performs the STOMP handshake. It returns
// the CONNECTED frame on success. On failure the transport is back in
// Disconnected and nothing is retried.
func (t *Transport) Connect(ctx context.Context) (*stomp.Frame, error) {
	t.mu.Lock()
	if t.state != model.Disconnected {
		t.mu.Unlock()
		return nil, ErrBusy
	}
	var dialCtx context.Context
	var cancel context.CancelFunc
	if t.opts.HandshakeTimeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, t.opts.HandshakeTimeout)
	} else {
		dialCtx, cancel = context.WithCancel(ctx)
	}
	t.gen++
	attempt := t.gen
	t.state = model.Connecting
	t.cancelDial = cancel
	t.mu.Unlock()
	defer cancel()

	t.logger.Debug("dialing", "url", t.opts.URL)
	frame, conn, err := t.handshake(dialCtx)

	t.mu.Lock()
	defer t.mu.Unlock()
	aborted := t.gen != attempt
	if !aborted {
		t.cancelDial = nil
	}
	if err != nil {
		if aborted {
			return nil, fmt.Errorf("%w: %v", ErrAborted, err)
		}
		t.state = model.Disconnected
		return nil, err
	}
	if aborted {
		conn.Close()
		return nil, ErrAborted
	}

	done := make(chan struct{})
	t.conn = conn
	t.done = done
	t.state = model.Connected

	go t.readLoop(conn, done)
	if t.opts.PingInterval > 0 {
		go t.pingLoop(conn, done)
	}

	t.logger.Info("connected",
		"url", t.opts.URL,
		"version", frame.Header.Get(stomp.HdrVersion),
		"server", frame.Header.Get(stomp.HdrServer),
	)
	return frame, nil
}

func (t *Transport) handshake(ctx context.Context) (*stomp.Frame, *websocket.Conn, error) {
	u, err := url.Parse(t.opts.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse url: %w", err)
	}

	header := http.Header{}
	if t.opts.Origin != "" {
		header.Set("Origin", t.opts.Origin)
	}
	conn, resp, err := t.dialer.DialContext(ctx, t.opts.URL, header)
	if err != nil {
		if resp != nil {
			return nil, nil, fmt.Errorf("dial %s: %w (HTTP %d)", t.opts.URL, err, resp.StatusCode)
		}
		return nil, nil, fmt.Errorf("dial %s: %w", t.opts.URL, err)
	}

	// Cancelling ctx unblocks the CONNECTED read below.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	fail := func(err error) (*stomp.Frame, *websocket.Conn, error) {
		stop()
		conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, fmt.Errorf("handshake: %w", ctxErr)
		}
		return nil, nil, err
	}

	if err := t.write(conn, stomp.Connect(u.Host, heartBeat)); err != nil {
		return fail(fmt.Errorf("send CONNECT: %w", err))
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}

	var frame *stomp.Frame
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fail(fmt.Errorf("await CONNECTED: %w", err))
		}
		frame, err = stomp.Decode(data)
		if errors.Is(err, stomp.ErrHeartbeat) {
			continue
		}
		if err != nil {
			return fail(fmt.Errorf("await CONNECTED: %w", err))
		}
		break
	}

	switch frame.Command {
	case stomp.CmdConnected:
	case stomp.CmdError:
		return fail(fmt.Errorf("%w: %s", ErrRejected, frame.Header.Get(stomp.HdrMessage)))
	default:
		return fail(fmt.Errorf("%w: unexpected %s frame", ErrRejected, frame.Command))
	}

	if !stop() {
		return fail(fmt.Errorf("handshake: %w", context.Cause(ctx)))
	}
	conn.SetReadDeadline(time.Time{})
	return frame, conn, nil
}

// Disconnect closes the channel. A pending handshake is cancelled. It
// reports whether anything was open; calling it while Disconnected is a
// no-op.
func (t *Transport) Disconnect() bool {
	t.mu.Lock()
	switch t.state {
	case model.Disconnected:
		t.mu.Unlock()
		return false
	case model.Connecting:
		t.gen++
		t.state = model.Disconnected
		cancel := t.cancelDial
		t.cancelDial = nil
		t.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		t.logger.Debug("connect cancelled")
		return true
	}

	conn, done := t.conn, t.done
	t.gen++
	t.conn = nil
	t.done = nil
	t.state = model.Disconnected
	close(done)
	t.mu.Unlock()

	if err := t.write(conn, stomp.Disconnect(uuid.NewString())); err != nil {
		t.logger.Debug("send DISCONNECT failed", "error", err)
	}
	t.writeMu.Lock()
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGrace),
	)
	t.writeMu.Unlock()
	conn.Close()

	t.logger.Info("disconnected")
	return true
}

// Send writes a SEND frame to destination. An empty body is allowed.
func (t *Transport) Send(destination string, body []byte) error {
	return t.SendFrame(stomp.Send(destination, body))
}

// Subscribe writes a SUBSCRIBE frame.
func (t *Transport) Subscribe(id, destination string) error {
	return t.SendFrame(stomp.Subscribe(id, destination))
}

// Unsubscribe writes an UNSUBSCRIBE frame.
func (t *Transport) Unsubscribe(id string) error {
	return t.SendFrame(stomp.Unsubscribe(id))
}

// SendFrame writes any frame to the live connection.
func (t *Transport) SendFrame(f *stomp.Frame) error {
	t.mu.Lock()
	conn := t.conn
	connected := t.state == model.Connected
	t.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}
	if err := t.write(conn, f); err != nil {
		return fmt.Errorf("write %s: %w", f.Command, err)
	}
	return nil
}

func (t *Transport) write(conn *websocket.Conn, f *stomp.Frame) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.opts.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout))
	}
	data, err := stomp.Encode(f)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (t *Transport) readLoop(conn *websocket.Conn, done chan struct{}) {
	extend := func() {
		if t.opts.PongTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(t.opts.PongTimeout))
		}
	}
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})
	extend()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.dropped(conn, err)
			return
		}
		extend()

		frame, err := stomp.Decode(data)
		if errors.Is(err, stomp.ErrHeartbeat) {
			continue
		}
		if err != nil {
			t.logger.Warn("dropping malformed frame", "error", err)
			continue
		}

		select {
		case <-done:
			return
		default:
		}
		t.handler.HandleFrame(frame)
	}
}

// dropped handles the end of a read loop. Only the current connection
// reports a drop; a connection closed by Disconnect ends silently.
func (t *Transport) dropped(conn *websocket.Conn, err error) {
	t.mu.Lock()
	current := t.conn == conn
	if current {
		t.gen++
		t.conn = nil
		close(t.done)
		t.done = nil
		t.state = model.Disconnected
	}
	t.mu.Unlock()
	conn.Close()

	if current {
		t.logger.Warn("connection lost", "error", err)
		t.handler.HandleDrop(err)
	}
}

// pingLoop sends periodic pings on conn until it is torn down.
func (t *Transport) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(t.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			deadline := time.Now().Add(closeGrace)
			if t.opts.WriteTimeout > 0 {
				deadline = time.Now().Add(t.opts.WriteTimeout)
			}
			err := conn.WriteControl(websocket.PingMessage, nil, deadline)
			t.writeMu.Unlock()
			if err != nil {
				t.logger.Debug("ping failed", "error", err)
				return
			}
		}
	}
}
