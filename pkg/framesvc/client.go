// Package framesvc is the client for the external frame extraction and
// embedding microservice.
package framesvc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tokbox/tokbox/internal/config"
	"github.com/tokbox/tokbox/internal/downloader"
)

// ErrNoFrames is returned when the service answers successfully but extracted nothing.
var ErrNoFrames = errors.New("frame service returned no frames")

// Extractor turns a video URL into frames.
type Extractor interface {
	Extract(ctx context.Context, videoURL string) (*Result, error)
}

// Result is the service response. Frames are base64 encoded JPEGs.
type Result struct {
	Embedding []float64 `json:"embedding"`
	Frames    []string  `json:"frames"`
	Duration  float64   `json:"duration"`
	NumFrames int       `json:"numFrames"`
}

type extractRequest struct {
	VideoURL  string `json:"video_url"`
	NumFrames int    `json:"num_frames"`
}

// StatusError is a non-200 answer from the service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("frame service error (status %d): %s", e.StatusCode, e.Body)
}

// Client implements Extractor over HTTP.
type Client struct {
	baseURL    string
	numFrames  int
	retry      downloader.RetryConfig
	httpClient *http.Client
}

// NewClient creates a frame service client.
func NewClient(cfg config.FramesConfig) *Client {
	retry := downloader.DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		numFrames: cfg.NumFrames,
		retry:     retry,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Extract asks the service for frames of videoURL.
func (c *Client) Extract(ctx context.Context, videoURL string) (*Result, error) {
	res, err := downloader.RetryWithCheck(ctx, c.retry, func() (*Result, error) {
		return c.extractOnce(ctx, videoURL)
	}, isRetryable)
	if err != nil {
		return nil, err
	}
	if len(res.Frames) == 0 {
		return nil, ErrNoFrames
	}
	return res, nil
}

func (c *Client) extractOnce(ctx context.Context, videoURL string) (*Result, error) {
	body, err := json.Marshal(extractRequest{VideoURL: videoURL, NumFrames: c.numFrames})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(respBody)
		if len(msg) > 256 {
			msg = msg[:256]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: msg}
	}

	var out Result
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response after %s: %w", time.Since(start).Round(time.Millisecond), err)
	}
	if out.NumFrames == 0 {
		out.NumFrames = len(out.Frames)
	}
	return &out, nil
}

func isRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500
	}
	return true
}
