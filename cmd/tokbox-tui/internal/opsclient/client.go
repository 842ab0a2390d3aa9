// Package opsclient reads the tokbox ops API for the TUI.
package opsclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tokbox/tokbox/internal/domain"
	"github.com/tokbox/tokbox/internal/service"
)

// Client wraps access to /api/v1.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	// streamClient has no overall timeout; streams end with their context.
	streamClient *http.Client
}

// NewClient creates a new ops API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		streamClient: &http.Client{},
	}
}

// BaseURL returns the server the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// EventFilter selects events from /api/v1/events.
type EventFilter struct {
	Severity   string
	Category   string
	Search     string
	Limit      int
	Historical bool
}

// EventPage is one page of events.
type EventPage struct {
	Events  []domain.Event `json:"events"`
	Total   int            `json:"total"`
	HasMore bool           `json:"has_more"`
}

// Stats returns the server's ops stats.
func (c *Client) Stats(ctx context.Context) (*service.OpsStats, error) {
	body, err := c.get(ctx, "/api/v1/stats", nil)
	if err != nil {
		return nil, err
	}
	var stats service.OpsStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("parse stats: %w", err)
	}
	return &stats, nil
}

// RecentAnalyses returns the newest analyses across all callers.
func (c *Client) RecentAnalyses(ctx context.Context, limit int) ([]service.RecentAnalysis, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	body, err := c.get(ctx, "/api/v1/analyses", q)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Analyses []service.RecentAnalysis `json:"analyses"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse analyses: %w", err)
	}
	return payload.Analyses, nil
}

// EventStats returns counters of the event log.
func (c *Client) EventStats(ctx context.Context) (*service.EventStats, error) {
	body, err := c.get(ctx, "/api/v1/events/stats", nil)
	if err != nil {
		return nil, err
	}
	var stats service.EventStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("parse event stats: %w", err)
	}
	return &stats, nil
}

// Events lists events matching f, newest first.
func (c *Client) Events(ctx context.Context, f EventFilter) (*EventPage, error) {
	q := url.Values{}
	if f.Severity != "" {
		q.Set("severity", f.Severity)
	}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Historical {
		q.Set("historical", "true")
	}

	body, err := c.get(ctx, "/api/v1/events", q)
	if err != nil {
		return nil, err
	}
	var page EventPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("parse events: %w", err)
	}
	return &page, nil
}

// Stream follows /api/v1/events/stream and calls fn for every event until
// ctx is cancelled or the server closes the stream.
func (c *Client) Stream(ctx context.Context, fn func(domain.Event)) error {
	req, err := c.newRequest(ctx, "/api/v1/events/stream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ops api (%d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	return readSSE(resp.Body, func(name, data string) {
		if name != "event" {
			return
		}
		var e domain.Event
		if err := json.Unmarshal([]byte(data), &e); err == nil {
			fn(e)
		}
	})
}

// readSSE splits a server-sent event stream into (event, data) pairs.
func readSSE(r io.Reader, fn func(name, data string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var name string
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				fn(name, strings.Join(data, "\n"))
			}
			name, data = "", nil
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return scanner.Err()
}

func (c *Client) newRequest(ctx context.Context, path string, q url.Values) (*http.Request, error) {
	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "tokbox-tui")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return req, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	req, err := c.newRequest(ctx, path, q)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ops api (%d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}
