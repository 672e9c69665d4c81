package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/googol/statsview/internal/model"
)

// ErrDecode wraps every snapshot decoding failure.
var ErrDecode = errors.New("stats: undecodable snapshot")

type wireSnapshot struct {
	LastUpdated    json.RawMessage `json:"lastUpdated"`
	FormattedStats *string         `json:"formattedStats"`
}

// timeLayouts are tried in order for string timestamps. The server's JSON
// mapper emits epoch milliseconds by default; the string forms cover a
// configured date format.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999-0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// DecodeSnapshot parses one message body from the stats topic.
func DecodeSnapshot(body []byte) (model.StatsSnapshot, error) {
	var w wireSnapshot
	if err := json.Unmarshal(body, &w); err != nil {
		return model.StatsSnapshot{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if w.FormattedStats == nil {
		return model.StatsSnapshot{}, fmt.Errorf("%w: missing formattedStats", ErrDecode)
	}
	ts, err := parseTimestamp(w.LastUpdated)
	if err != nil {
		return model.StatsSnapshot{}, fmt.Errorf("%w: lastUpdated: %v", ErrDecode, err)
	}
	return model.StatsSnapshot{
		LastUpdated:    ts,
		FormattedStats: *w.FormattedStats,
	}, nil
}

// parseTimestamp accepts epoch milliseconds (number or numeric string), an
// ISO-8601 string, or null.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return time.Time{}, nil
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return time.Time{}, err
		}
		return parseTimeString(str)
	}
	return parseEpochMillis(s)
}

func parseTimeString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if ts, err := parseEpochMillis(s); err == nil {
		return ts, nil
	}
	for _, layout := range timeLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func parseEpochMillis(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("non-finite timestamp %q", s)
	}
	if math.Abs(f) >= math.MaxInt64 {
		return time.Time{}, fmt.Errorf("timestamp %q out of range", s)
	}
	return time.UnixMilli(int64(f)), nil
}
