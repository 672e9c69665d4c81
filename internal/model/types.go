// Package model holds the data carried between the stats channel, the
// indexing client and the render sinks. Types mirror the backend wire format
// without importing any transport code.
package model

import "time"

// ConnectionState is the lifecycle state of the stats channel.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// StatsSnapshot is one point-in-time statistics payload pushed on the topic.
type StatsSnapshot struct {
	LastUpdated    time.Time
	FormattedStats string
}

// IndexRequest is the body of POST /hackernews/index.
type IndexRequest struct {
	StoryIDs []int  `json:"storyIds"`
	Query    string `json:"query"`
}

// Status values carried by IndexResult. StatusWarning never comes from the
// backend; it marks a submission rejected before any network call.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusWarning = "warning"
)

// IndexResult is the response of the indexing endpoint, or a locally
// synthesised equivalent.
type IndexResult struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	IndexedCount int    `json:"indexedCount,omitempty"`
}

// Level classifies a result for display. Any backend status other than
// "success" (the server answers "error") is a failure.
type Level int

const (
	LevelSuccess Level = iota
	LevelWarning
	LevelFailure
)

// Level returns the display class of r.
func (r IndexResult) Level() Level {
	switch r.Status {
	case StatusSuccess:
		return LevelSuccess
	case StatusWarning:
		return LevelWarning
	default:
		return LevelFailure
	}
}

// Sink receives everything the client wants displayed. Implementations
// decide how to paint it.
type Sink interface {
	OnConnectionState(state ConnectionState)
	OnStatsSnapshot(snapshot StatsSnapshot)
	OnIndexResult(result IndexResult)
}
