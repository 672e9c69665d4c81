// Package subscription keeps the single live topic subscription of a session.
package subscription

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/googol/statsview/internal/logging"
	"github.com/googol/statsview/internal/model"
	"github.com/googol/statsview/internal/stomp"
)

// ErrNotConnected is returned when subscribing without a live channel. The
// stats protocol only subscribes from the connected callback, so seeing it
// means the caller broke that ordering.
var ErrNotConnected = errors.New("subscription: channel not connected")

// Channel is the part of the transport the manager drives.
type Channel interface {
	State() model.ConnectionState
	Subscribe(id, destination string) error
	Unsubscribe(id string) error
}

// Handler receives the raw body of each message on the subscribed topic.
type Handler func(body []byte)

// Subscription is the handle for "listening on Topic with a handler".
type Subscription struct {
	ID      string
	Topic   string
	handler Handler
}

// Manager owns at most one Subscription. It is not safe for concurrent use;
// the session event loop is its only caller.
type Manager struct {
	channel Channel
	logger  *log.Logger
	current *Subscription
	newID   func() string
}

// NewManager creates a manager with an empty slot.
func NewManager(channel Channel, logger *log.Logger) *Manager {
	return &Manager{
		channel: channel,
		logger:  logging.Component(logger, "subscription"),
		newID:   uuid.NewString,
	}
}

// SubscribeToTopic replaces the held subscription with a new one on topic.
// The old subscription is unsubscribed first; from then on its handler never
// receives again, even for frames already in flight.
func (m *Manager) SubscribeToTopic(topic string, onMessage Handler) (*Subscription, error) {
	if m.channel.State() != model.Connected {
		return nil, ErrNotConnected
	}

	m.Teardown()

	sub := &Subscription{
		ID:      m.newID(),
		Topic:   topic,
		handler: onMessage,
	}
	if err := m.channel.Subscribe(sub.ID, topic); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	m.current = sub
	m.logger.Debug("subscribed", "topic", topic, "id", sub.ID)
	return sub, nil
}

// Teardown unsubscribes and clears the slot. It is safe to call with nothing
// held, and the slot is cleared even if the UNSUBSCRIBE cannot be sent.
func (m *Manager) Teardown() {
	sub := m.current
	if sub == nil {
		return
	}
	m.current = nil

	if err := m.channel.Unsubscribe(sub.ID); err != nil {
		m.logger.Debug("unsubscribe not sent", "topic", sub.Topic, "id", sub.ID, "error", err)
		return
	}
	m.logger.Debug("unsubscribed", "topic", sub.Topic, "id", sub.ID)
}

// Current returns the held subscription, or nil.
func (m *Manager) Current() *Subscription {
	return m.current
}

// Dispatch hands a MESSAGE frame to the live handler. It reports false for
// frames of any other command and for frames addressed to a subscription id
// that is no longer held.
func (m *Manager) Dispatch(f *stomp.Frame) bool {
	if f.Command != stomp.CmdMessage || m.current == nil {
		return false
	}
	if f.Header.Get(stomp.HdrSubscription) != m.current.ID {
		m.logger.Debug("dropping message for stale subscription",
			"subscription", f.Header.Get(stomp.HdrSubscription),
			"destination", f.Header.Get(stomp.HdrDestination),
		)
		return false
	}
	if h := m.current.handler; h != nil {
		h(f.Body)
	}
	return true
}
