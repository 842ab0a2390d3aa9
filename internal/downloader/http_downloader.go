package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tokbox/tokbox/internal/config"
)

// ErrTooLarge is returned when a payload exceeds the configured limit.
var ErrTooLarge = errors.New("payload exceeds size limit")

// StatusError is a non-200 answer from the remote host.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}

// HTTPFetcher implements Fetcher over plain HTTP GETs.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	retry     RetryConfig
	logger    *slog.Logger
}

// NewHTTPFetcher creates a fetcher bounded by cfg.Timeout and cfg.MaxBytes.
func NewHTTPFetcher(cfg config.FetchConfig, logger *slog.Logger) *HTTPFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxBytes,
		retry:     DefaultRetryConfig(),
		logger:    logger,
	}
}

// Fetch downloads url. Client errors (4xx) are never retried.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Object, error) {
	obj, err := RetryWithCheck(ctx, f.retry, func() (*Object, error) {
		return f.fetchOnce(ctx, url)
	}, isRetryableError)
	if err != nil {
		f.logger.Debug("fetch failed", "url", url, "error", err)
		return nil, err
	}
	return obj, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) (*Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "image/*,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return nil, ErrTooLarge
	}

	body := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, ErrTooLarge
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	return &Object{Data: data, ContentType: contentType}, nil
}

func isRetryableError(err error) bool {
	if errors.Is(err, ErrTooLarge) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	return true
}
