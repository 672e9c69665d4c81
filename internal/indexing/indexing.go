// Package indexing submits story ids to the backend's indexing endpoint.
package indexing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/googol/statsview/internal/logging"
	"github.com/googol/statsview/internal/model"
)

// MsgNoSelection is the warning shown when nothing was selected.
const MsgNoSelection = "Please select at least one story"

// Client posts IndexRequests. It never retries.
type Client struct {
	url    string
	client *http.Client
	logger *log.Logger
}

// NewClient creates a client for the full endpoint URL. A zero timeout
// leaves the HTTP client without an overall deadline.
func NewClient(endpoint string, timeout time.Duration, logger *log.Logger) *Client {
	return &Client{
		url:    endpoint,
		client: &http.Client{Timeout: timeout},
		logger: logging.Component(logger, "indexing"),
	}
}

// Submit sends one indexing request for ids with query. Every outcome,
// including local validation and network failures, comes back as an
// IndexResult for display.
func (c *Client) Submit(ctx context.Context, ids []int, query string) model.IndexResult {
	ids = normalize(ids)
	if len(ids) == 0 {
		return model.IndexResult{Status: model.StatusWarning, Message: MsgNoSelection}
	}

	res, err := c.post(ctx, model.IndexRequest{StoryIDs: ids, Query: query})
	if err != nil {
		c.logger.Error("index request failed", "stories", len(ids), "error", err)
		return model.IndexResult{Status: model.StatusFailure, Message: "Error: " + err.Error()}
	}
	c.logger.Info("index request done", "stories", len(ids), "status", res.Status, "indexed", res.IndexedCount)
	return res
}

func (c *Client) post(ctx context.Context, body model.IndexRequest) (model.IndexResult, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return model.IndexResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return model.IndexResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return model.IndexResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return model.IndexResult{}, fmt.Errorf("network response was not ok (HTTP %d)", resp.StatusCode)
	}

	var out model.IndexResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return model.IndexResult{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func normalize(ids []int) []int {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// ParseIDs reads story ids separated by spaces or commas.
func ParseIDs(input string) ([]int, error) {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	ids := make([]int, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.Atoi(f)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid story id %q", f)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
