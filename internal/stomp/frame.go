// Package stomp adapts go-stomp frames to a channel that carries one frame
// per WebSocket text message, and builds the client-side commands for the
// handshake, subscriptions and sends.
package stomp

import (
	"strconv"

	"github.com/go-stomp/stomp/v3/frame"
)

// Client commands.
const (
	CmdConnect     = frame.CONNECT
	CmdSend        = frame.SEND
	CmdSubscribe   = frame.SUBSCRIBE
	CmdUnsubscribe = frame.UNSUBSCRIBE
	CmdDisconnect  = frame.DISCONNECT
)

// Server commands.
const (
	CmdConnected = frame.CONNECTED
	CmdMessage   = frame.MESSAGE
	CmdReceipt   = frame.RECEIPT
	CmdError     = frame.ERROR
)

// Header names.
const (
	HdrAcceptVersion = frame.AcceptVersion
	HdrVersion       = frame.Version
	HdrHost          = frame.Host
	HdrHeartBeat     = frame.HeartBeat
	HdrServer        = frame.Server
	HdrSession       = frame.Session
	HdrDestination   = frame.Destination
	HdrID            = frame.Id
	HdrAck           = frame.Ack
	HdrSubscription  = frame.Subscription
	HdrMessageID     = frame.MessageId
	HdrContentLength = frame.ContentLength
	HdrContentType   = frame.ContentType
	HdrReceipt       = frame.Receipt
	HdrReceiptID     = frame.ReceiptId
	HdrMessage       = frame.Message
)

// SupportedVersions is sent in accept-version on CONNECT.
const SupportedVersions = "1.2,1.1"

// Frame is a STOMP frame. Headers keep their order; repeated keys are
// allowed and Get returns the first one.
type Frame = frame.Frame

// New builds a frame from alternating header keys and values.
func New(command string, headers ...string) *Frame {
	return frame.New(command, headers...)
}

// Connect builds the handshake frame. heartBeat is the "cx,cy" pair in
// milliseconds.
func Connect(host, heartBeat string) *Frame {
	return New(CmdConnect,
		HdrAcceptVersion, SupportedVersions,
		HdrHost, host,
		HdrHeartBeat, heartBeat,
	)
}

// Subscribe builds a SUBSCRIBE frame with automatic acknowledgement.
func Subscribe(id, destination string) *Frame {
	return New(CmdSubscribe, HdrID, id, HdrDestination, destination, HdrAck, "auto")
}

// Unsubscribe builds an UNSUBSCRIBE frame.
func Unsubscribe(id string) *Frame {
	return New(CmdUnsubscribe, HdrID, id)
}

// Send builds a SEND frame. An empty body sends no content-type.
func Send(destination string, body []byte) *Frame {
	f := New(CmdSend, HdrDestination, destination)
	f.Body = body
	if len(body) > 0 {
		f.Header.Add(HdrContentType, "application/json")
		f.Header.Add(HdrContentLength, strconv.Itoa(len(body)))
	}
	return f
}

// Disconnect builds a DISCONNECT frame. receipt may be empty.
func Disconnect(receipt string) *Frame {
	f := New(CmdDisconnect)
	if receipt != "" {
		f.Header.Add(HdrReceipt, receipt)
	}
	return f
}
