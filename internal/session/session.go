// Package session ties the transport, the subscription manager and the stats
// protocol together behind a single event loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/googol/statsview/internal/config"
	"github.com/googol/statsview/internal/logging"
	"github.com/googol/statsview/internal/model"
	"github.com/googol/statsview/internal/stats"
	"github.com/googol/statsview/internal/stomp"
	"github.com/googol/statsview/internal/subscription"
	"github.com/googol/statsview/internal/transport"
)

// ErrRunning is returned by a second call to Run.
var ErrRunning = errors.New("session: already running")

const (
	eventBuffer   = 64
	requestBuffer = 8
)

// Options configures a Session.
type Options struct {
	Transport          transport.Options
	Topic              string
	RefreshDestination string
	// AutoConnect connects as soon as Run starts.
	AutoConnect bool
	Logger      *log.Logger
}

// OptionsFromConfig maps the loaded configuration onto Options.
func OptionsFromConfig(cfg *config.Config, logger *log.Logger) (Options, error) {
	u, err := cfg.StatsURL()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Transport: transport.Options{
			URL:              u,
			Origin:           cfg.Server.Origin,
			HandshakeTimeout: cfg.Stats.HandshakeTimeout,
			WriteTimeout:     cfg.Stats.WriteTimeout,
			PingInterval:     cfg.Stats.PingInterval,
			PongTimeout:      cfg.Stats.PongTimeout,
			Logger:           logger,
		},
		Topic:              cfg.Stats.Topic,
		RefreshDestination: cfg.Stats.RefreshDestination,
		AutoConnect:        cfg.Stats.AutoConnect,
		Logger:             logger,
	}, nil
}

type event interface{ isEvent() }

type (
	connectRequest    struct{}
	disconnectRequest struct{}
	connectResult     struct {
		attempt uint64
		frame   *stomp.Frame
		err     error
	}
	inboundFrame struct{ frame *stomp.Frame }
	connDropped  struct{ err error }
)

func (connectRequest) isEvent()    {}
func (disconnectRequest) isEvent() {}
func (connectResult) isEvent()     {}
func (inboundFrame) isEvent()      {}
func (connDropped) isEvent()       {}

// Session is one client's live-stats channel. Connect and Disconnect may be
// called from any goroutine; everything else happens inside Run.
type Session struct {
	opts      Options
	logger    *log.Logger
	transport *transport.Transport
	subs      *subscription.Manager
	proto     *stats.Protocol

	events   chan event
	requests chan event
	done     chan struct{}
	running atomic.Bool

	// Owned by the Run goroutine.
	connecting bool
	attempt    uint64
}

// New wires a session that reports to sink.
func New(opts Options, sink model.Sink) *Session {
	s := &Session{
		opts:   opts,
		logger: logging.Component(opts.Logger, "session"),
		events:   make(chan event, eventBuffer),
		requests: make(chan event, requestBuffer),
		done:     make(chan struct{}),
	}
	s.transport = transport.New(opts.Transport, transport.HandlerFuncs{
		Frame: func(f *stomp.Frame) { s.post(inboundFrame{frame: f}) },
		Drop:  func(err error) { s.post(connDropped{err: err}) },
	})
	s.subs = subscription.NewManager(s.transport, opts.Logger)
	s.proto = stats.New(s.subs, s.transport, sink, stats.Options{
		Topic:              opts.Topic,
		RefreshDestination: opts.RefreshDestination,
		Logger:             opts.Logger,
	})
	return s
}

// State returns the transport's connection state.
func (s *Session) State() model.ConnectionState {
	return s.transport.State()
}

// Connect asks the session to connect, or to resync when already connected.
// It never blocks.
func (s *Session) Connect() {
	s.request(connectRequest{})
}

// Disconnect asks the session to tear down the subscription and close the
// channel. It never blocks.
func (s *Session) Disconnect() {
	s.request(disconnectRequest{})
}

// request queues a control request without waiting for the loop, which may
// itself be blocked delivering to the sink. When the queue is full the oldest
// request is dropped.
func (s *Session) request(ev event) {
	for {
		select {
		case <-s.done:
			return
		default:
		}
		select {
		case s.requests <- ev:
			return
		default:
		}
		select {
		case old := <-s.requests:
			s.logger.Warn("request queue full, dropping oldest", "request", fmt.Sprintf("%T", old))
		default:
		}
	}
}

// post queues a transport event. After Run has returned it is a no-op.
func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// Run processes events until ctx is done, then disconnects. Each event is
// handled to completion before the next one is read.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(s.done)

	if s.opts.AutoConnect {
		s.connect(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("shutting down")
			s.disconnect()
			return nil
		case ev := <-s.requests:
			s.handle(ctx, ev)
		case ev := <-s.events:
			s.handle(ctx, ev)
		}
	}
}

func (s *Session) handle(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case connectRequest:
		s.connect(ctx)
	case disconnectRequest:
		s.disconnect()
	case connectResult:
		s.connectDone(ev)
	case inboundFrame:
		s.proto.HandleFrame(ev.frame)
	case connDropped:
		if s.transport.State() == model.Connected {
			s.logger.Debug("ignoring drop of a replaced connection", "error", ev.err)
			return
		}
		s.logger.Warn("channel dropped", "error", ev.err)
		s.proto.Disconnected()
		if s.connecting {
			s.proto.Connecting()
		}
	}
}

func (s *Session) connect(ctx context.Context) {
	if s.connecting {
		s.logger.Debug("connect ignored, handshake in progress")
		return
	}
	if s.transport.State() == model.Connected {
		if err := s.proto.Resync(); err != nil {
			s.logger.Warn("resync failed", "error", err)
		}
		return
	}

	s.connecting = true
	s.attempt++
	attempt := s.attempt
	s.proto.Connecting()
	go func() {
		frame, err := s.transport.Connect(ctx)
		s.post(connectResult{attempt: attempt, frame: frame, err: err})
	}()
}

func (s *Session) connectDone(res connectResult) {
	if res.attempt != s.attempt || !s.connecting {
		s.logger.Debug("discarding stale connect result", "attempt", res.attempt, "error", res.err)
		return
	}
	s.connecting = false
	if res.err != nil {
		s.proto.ConnectFailed(res.err)
		return
	}
	if err := s.proto.Connected(res.frame); err != nil {
		s.logger.Warn("connected without a subscription", "error", err)
	}
}

func (s *Session) disconnect() {
	s.connecting = false
	s.proto.Disconnected()
	if !s.transport.Disconnect() {
		s.logger.Debug("disconnect ignored, not connected")
	}
}
