package downloader

import (
	"context"
)

// Fetcher retrieves small binary objects such as staged frame images.
type Fetcher interface {
	// Fetch downloads url fully into memory.
	Fetch(ctx context.Context, url string) (*Object, error)
}

// Object is a fetched payload with its declared content type.
type Object struct {
	Data        []byte
	ContentType string
}
