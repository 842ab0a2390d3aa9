// Package storage writes videos and frames to object storage and issues
// presigned upload URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Errors returned by stores.
var (
	ErrInvalidKey     = errors.New("invalid object key")
	ErrObjectTooLarge = errors.New("object too large")
)

// Store is the object storage surface used by the service layer.
type Store interface {
	// PresignPut returns a URL that accepts a single PUT of key until ttl elapses.
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)

	// Put writes an object.
	Put(ctx context.Context, key, contentType string, r io.Reader) error

	// PublicURL is the stable URL an object can be read from when the
	// backend serves objects publicly.
	PublicURL(key string) string

	// ReadURL returns a URL that can GET key until ttl elapses, whether or
	// not the backend serves objects publicly.
	ReadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// VideoKey returns a fresh object key for an uploaded video.
func VideoKey(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" || len(ext) > 6 {
		ext = ".mp4"
	}
	return "videos/" + uuid.NewString() + ext
}

// FrameKey returns the object key for frame i of an analysis.
func FrameKey(analysisID string, i int) string {
	return fmt.Sprintf("frames/%s/%d.jpg", analysisID, i)
}

// ContentTypeForKey guesses a content type from the key's extension.
func ContentTypeForKey(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	default:
		return "application/octet-stream"
	}
}

// CleanKey normalizes an object key and rejects keys escaping the root.
func CleanKey(key string) (string, error) {
	k := strings.TrimPrefix(path.Clean("/"+key), "/")
	if k == "" || k == "." || strings.HasPrefix(k, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return k, nil
}
