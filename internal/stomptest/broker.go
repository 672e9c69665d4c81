// Package stomptest runs an in-process STOMP-over-WebSocket broker for
// tests. It speaks just enough of the protocol to stand in for the stats
// server: CONNECT, SUBSCRIBE, UNSUBSCRIBE, SEND, DISCONNECT and MESSAGE.
package stomptest

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/googol/statsview/internal/stomp"
	"github.com/gorilla/websocket"
)

type client struct {
	conn *websocket.Conn
	send chan []byte
	subs map[string]string // subscription id → destination
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
		subs: make(map[string]string),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// SendHandler answers a SEND frame. It runs on the broker's read goroutine.
type SendHandler func(b *Broker, f *stomp.Frame)

// Broker is a fake STOMP server on an httptest.Server.
type Broker struct {
	server *httptest.Server
	// URL is the ws:// address of the broker.
	URL string

	mu       sync.Mutex
	clients  map[*client]bool
	frames   []*stomp.Frame
	connects int
	reject   string
	handlers map[string]SendHandler
	seq      int
}

// NewBroker starts a broker. Callers must Close it.
func NewBroker() *Broker {
	b := &Broker{
		clients:  make(map[*client]bool),
		handlers: make(map[string]SendHandler),
	}
	b.server = httptest.NewServer(http.HandlerFunc(b.serveWS))
	b.URL = "ws" + strings.TrimPrefix(b.server.URL, "http")
	return b
}

// Close drops every client and stops the server.
func (b *Broker) Close() {
	b.DropAll()
	b.server.Close()
}

// Reject makes every later CONNECT fail with an ERROR frame carrying msg.
func (b *Broker) Reject(msg string) {
	b.mu.Lock()
	b.reject = msg
	b.mu.Unlock()
}

// OnSend registers fn for SEND frames addressed to destination.
func (b *Broker) OnSend(destination string, fn SendHandler) {
	b.mu.Lock()
	b.handlers[destination] = fn
	b.mu.Unlock()
}

// Publish delivers body as a MESSAGE to every subscription on destination
// and returns how many subscriptions received it.
func (b *Broker) Publish(destination string, body []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for c := range b.clients {
		for id, dest := range c.subs {
			if dest != destination {
				continue
			}
			b.seq++
			f := stomp.New(stomp.CmdMessage,
				stomp.HdrDestination, destination,
				stomp.HdrSubscription, id,
				stomp.HdrMessageID, strconv.Itoa(b.seq),
				stomp.HdrContentType, "application/json",
			)
			f.Body = body
			data, err := stomp.Encode(f)
			if err != nil {
				continue
			}
			if b.push(c, data) {
				delivered++
			}
		}
	}
	return delivered
}

// SendRaw writes data verbatim to every client.
func (b *Broker) SendRaw(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		b.push(c, data)
	}
}

// push queues data for c. Callers hold b.mu.
func (b *Broker) push(c *client, data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// DropAll closes every client connection without a DISCONNECT, as a
// network failure would.
func (b *Broker) DropAll() {
	b.mu.Lock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
		delete(b.clients, c)
	}
	b.mu.Unlock()
	for _, c := range clients {
		c.close()
		c.conn.Close()
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Connects returns how many handshakes were attempted.
func (b *Broker) Connects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects
}

// Subscriptions returns how many live subscriptions target destination.
func (b *Broker) Subscriptions(destination string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for c := range b.clients {
		for _, dest := range c.subs {
			if dest == destination {
				n++
			}
		}
	}
	return n
}

// Frames returns a copy of every frame received after CONNECT.
func (b *Broker) Frames() []*stomp.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*stomp.Frame, len(b.frames))
	copy(out, b.frames)
	return out
}

// Count returns how many received frames have command.
func (b *Broker) Count(command string) int {
	n := 0
	for _, f := range b.Frames() {
		if f.Command == command {
			n++
		}
	}
	return n
}

// Await polls cond until it holds or timeout passes.
func (b *Broker) Await(timeout time.Duration, cond func(b *Broker) bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond(b) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (b *Broker) serveWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return
	}
	hello, err := stomp.Decode(data)
	if err != nil || hello.Command != stomp.CmdConnect {
		conn.Close()
		return
	}

	b.mu.Lock()
	b.connects++
	reject := b.reject
	b.mu.Unlock()

	if reject != "" {
		b.write(conn, stomp.New(stomp.CmdError, stomp.HdrMessage, reject))
		conn.Close()
		return
	}

	connected := stomp.New(stomp.CmdConnected,
		stomp.HdrVersion, "1.2",
		stomp.HdrHeartBeat, "0,0",
		stomp.HdrServer, "stomptest",
	)
	if err := b.write(conn, connected); err != nil {
		conn.Close()
		return
	}

	c := newClient(conn)
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	b.readLoop(c)
}

func (b *Broker) write(conn *websocket.Conn, f *stomp.Frame) error {
	data, err := stomp.Encode(f)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (b *Broker) readLoop(c *client) {
	defer b.remove(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := stomp.Decode(data)
		if err != nil {
			continue
		}

		b.mu.Lock()
		b.frames = append(b.frames, f)
		var handler SendHandler
		switch f.Command {
		case stomp.CmdSubscribe:
			c.subs[f.Header.Get(stomp.HdrID)] = f.Header.Get(stomp.HdrDestination)
		case stomp.CmdUnsubscribe:
			delete(c.subs, f.Header.Get(stomp.HdrID))
		case stomp.CmdSend:
			handler = b.handlers[f.Header.Get(stomp.HdrDestination)]
		}
		b.mu.Unlock()

		if f.Command == stomp.CmdDisconnect {
			return
		}
		if handler != nil {
			handler(b, f)
		}
	}
}

func (b *Broker) remove(c *client) {
	b.mu.Lock()
	delete(b.clients, c)
	b.mu.Unlock()
	c.close()
}
