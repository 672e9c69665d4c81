// Package stats implements the live-stats sync protocol: subscribe to the
// stats topic on every fresh connect, immediately ask the server to push the
// current figures, and hand every decoded snapshot to the render sink.
package stats

import (
	"github.com/charmbracelet/log"
	"github.com/googol/statsview/internal/logging"
	"github.com/googol/statsview/internal/model"
	"github.com/googol/statsview/internal/stomp"
	"github.com/googol/statsview/internal/subscription"
)

// Phase is the protocol state.
type Phase int

const (
	Idle Phase = iota
	Subscribing
	Active
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Subscribing:
		return "subscribing"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// Sender writes a SEND frame on the channel.
type Sender interface {
	Send(destination string, body []byte) error
}

// Options names the two fixed destinations.
type Options struct {
	// Topic is where the server broadcasts snapshots.
	Topic string
	// RefreshDestination receives the empty-body trigger that makes the
	// server push the current snapshot on Topic.
	RefreshDestination string
	Logger             *log.Logger
}

// Protocol drives one session's stats subscription. Like the subscription
// manager it is owned by the session event loop and never called
// concurrently.
type Protocol struct {
	subs   *subscription.Manager
	sender Sender
	sink   model.Sink
	opts   Options
	logger *log.Logger

	phase    Phase
	notified model.ConnectionState
}

// New creates an idle protocol.
func New(subs *subscription.Manager, sender Sender, sink model.Sink, opts Options) *Protocol {
	return &Protocol{
		subs:     subs,
		sender:   sender,
		sink:     sink,
		opts:     opts,
		logger:   logging.Component(opts.Logger, "stats"),
		notified: model.Disconnected,
	}
}

// Phase returns the current phase.
func (p *Protocol) Phase() Phase {
	return p.phase
}

// Connecting tells the sink a handshake is under way.
func (p *Protocol) Connecting() {
	p.notify(model.Connecting)
}

// ConnectFailed reports a failed handshake. The protocol stays idle.
func (p *Protocol) ConnectFailed(err error) {
	p.logger.Warn("connect failed", "error", err)
	p.phase = Idle
	p.notify(model.Disconnected)
}

// Connected runs the connect-success transition: subscribe, then request
// the current stats. Calling it again without Disconnected in between
// replaces the subscription instead of adding a second one.
func (p *Protocol) Connected(frame *stomp.Frame) error {
	p.logger.Info("channel ready",
		"version", frame.Header.Get(stomp.HdrVersion),
		"session", frame.Header.Get(stomp.HdrSession),
	)
	p.notify(model.Connected)
	return p.subscribe()
}

// Resync re-runs the connect-success transition on a live channel: the
// subscription is replaced and a fresh refresh request goes out.
func (p *Protocol) Resync() error {
	p.logger.Debug("resync")
	return p.subscribe()
}

func (p *Protocol) subscribe() error {
	p.phase = Subscribing
	if _, err := p.subs.SubscribeToTopic(p.opts.Topic, p.handleMessage); err != nil {
		p.logger.Error("subscribe failed", "topic", p.opts.Topic, "error", err)
		p.phase = Idle
		return err
	}
	p.phase = Active
	p.requestUpdate()
	return nil
}

// requestUpdate sends the refresh trigger. The answer, if any, arrives later
// on the topic like any other push.
func (p *Protocol) requestUpdate() {
	p.logger.Debug("requesting stats update", "destination", p.opts.RefreshDestination)
	if err := p.sender.Send(p.opts.RefreshDestination, nil); err != nil {
		p.logger.Warn("refresh request not sent", "error", err)
	}
}

// HandleFrame processes one inbound frame.
func (p *Protocol) HandleFrame(f *stomp.Frame) {
	switch f.Command {
	case stomp.CmdMessage:
		p.subs.Dispatch(f)
	case stomp.CmdError:
		p.logger.Error("server error",
			"message", f.Header.Get(stomp.HdrMessage),
			"body", string(f.Body),
		)
	case stomp.CmdReceipt:
		p.logger.Debug("receipt", "id", f.Header.Get(stomp.HdrReceiptID))
	default:
		p.logger.Debug("ignoring frame", "command", f.Command)
	}
}

func (p *Protocol) handleMessage(body []byte) {
	snap, err := DecodeSnapshot(body)
	if err != nil {
		p.logger.Warn("dropping stats message", "error", err)
		return
	}
	p.logger.Debug("stats received", "last_updated", snap.LastUpdated)
	p.sink.OnStatsSnapshot(snap)
}

// Disconnected tears the subscription down and returns to Idle. Call it
// before closing the transport so the UNSUBSCRIBE can still be written.
func (p *Protocol) Disconnected() {
	p.subs.Teardown()
	p.phase = Idle
	p.notify(model.Disconnected)
}

// notify passes state changes to the sink, skipping repeats.
func (p *Protocol) notify(state model.ConnectionState) {
	if state == p.notified {
		return
	}
	p.notified = state
	p.sink.OnConnectionState(state)
}
