package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"time"

	"github.com/tokbox/tokbox/internal/config"
	"github.com/tokbox/tokbox/internal/domain"
	"github.com/tokbox/tokbox/internal/storage"
)

// UploadURL is a presigned direct-to-storage upload target.
type UploadURL struct {
	UploadURL string `json:"uploadUrl"`
	VideoURL  string `json:"videoUrl"`
	Key       string `json:"s3Key"`
}

// UploadService issues presigned video uploads and stores embedded payloads.
type UploadService struct {
	store   storage.Store
	expiry  time.Duration
	maxSize int64
	logger  *slog.Logger
}

// NewUploadService creates a new upload service.
func NewUploadService(store storage.Store, cfg config.StorageConfig, logger *slog.Logger) *UploadService {
	expiry := cfg.UploadExpiry
	if expiry <= 0 {
		expiry = 600 * time.Second
	}
	return &UploadService{
		store:   store,
		expiry:  expiry,
		maxSize: cfg.MaxVideoSize,
		logger:  logger,
	}
}

// CreateUploadURL returns a signed PUT URL for a new video object.
func (s *UploadService) CreateUploadURL(ctx context.Context, filename, contentType string) (*UploadURL, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, fmt.Errorf("%w: filename is required", domain.ErrInvalidRequest)
	}
	if !isVideoType(contentType) {
		return nil, domain.ErrUnsupportedContentType
	}

	key := storage.VideoKey(filename)
	url, err := s.store.PresignPut(ctx, key, contentType, s.expiry)
	if err != nil {
		return nil, fmt.Errorf("%w: presign %s: %v", domain.ErrStorageFailed, key, err)
	}

	// The client submits VideoURL after finishing the PUT, so it must stay
	// readable for the upload window plus one analysis run.
	videoURL, err := s.store.ReadURL(ctx, key, s.expiry+readURLTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: sign %s: %v", domain.ErrStorageFailed, key, err)
	}

	s.logger.Info("upload url issued", "key", key, "content_type", contentType)
	return &UploadURL{
		UploadURL: url,
		VideoURL:  videoURL,
		Key:       key,
	}, nil
}

// UploadVideoData decodes a base64 (or data URI) video and stores it,
// returning the URL the frame service can read it from.
func (s *UploadService) UploadVideoData(ctx context.Context, payload string) (string, error) {
	data, contentType, err := decodePayload(payload)
	if err != nil {
		return "", fmt.Errorf("%w: videoData: %v", domain.ErrInvalidRequest, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: videoData is empty", domain.ErrInvalidRequest)
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return "", fmt.Errorf("%w: videoData exceeds %d bytes", domain.ErrInvalidRequest, s.maxSize)
	}
	if contentType == "" {
		contentType = "video/mp4"
	}
	if !isVideoType(contentType) {
		return "", domain.ErrUnsupportedContentType
	}

	key := storage.VideoKey("upload" + extensionFor(contentType))
	if err := s.store.Put(ctx, key, contentType, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("%w: put %s: %v", domain.ErrStorageFailed, key, err)
	}
	u, err := s.store.ReadURL(ctx, key, readURLTTL)
	if err != nil {
		return "", fmt.Errorf("%w: sign %s: %v", domain.ErrStorageFailed, key, err)
	}
	return u, nil
}

func isVideoType(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mt, "video/")
}

func extensionFor(contentType string) string {
	switch contentType {
	case "video/webm":
		return ".webm"
	case "video/quicktime":
		return ".mov"
	default:
		return ".mp4"
	}
}

// decodePayload accepts raw base64 or a data URI and returns the bytes and
// the declared media type, if any.
func decodePayload(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	var contentType string
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, "", fmt.Errorf("malformed data URI")
		}
		meta := s[len("data:"):comma]
		if !strings.HasSuffix(meta, ";base64") {
			return nil, "", fmt.Errorf("data URI is not base64 encoded")
		}
		contentType = strings.TrimSuffix(meta, ";base64")
		s = s[comma+1:]
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if raw, rawErr := base64.RawStdEncoding.DecodeString(s); rawErr == nil {
			return raw, contentType, nil
		}
		return nil, "", fmt.Errorf("decode base64: %w", err)
	}
	return data, contentType, nil
}
