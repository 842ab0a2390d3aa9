package service

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tokbox/tokbox/internal/config"
	"github.com/tokbox/tokbox/internal/domain"
)

func newUploadService(store *fakeStore, maxSize int64) *UploadService {
	return NewUploadService(store, config.StorageConfig{UploadExpiry: 600 * time.Second, MaxVideoSize: maxSize}, testLogger())
}

func TestCreateUploadURL(t *testing.T) {
	svc := newUploadService(newFakeStore(), 0)

	got, err := svc.CreateUploadURL(context.Background(), "My Clip.MOV", "video/quicktime")
	if err != nil {
		t.Fatalf("CreateUploadURL() error = %v", err)
	}
	if !strings.HasPrefix(got.Key, "videos/") || !strings.HasSuffix(got.Key, ".mov") {
		t.Errorf("key = %q", got.Key)
	}
	if got.VideoURL != "https://cdn.test/"+got.Key {
		t.Errorf("video url = %q", got.VideoURL)
	}
	if !strings.Contains(got.UploadURL, "ttl=10m0s") {
		t.Errorf("upload url = %q, want 600s expiry", got.UploadURL)
	}
}

func TestCreateUploadURL_VideoURLOutlivesUpload(t *testing.T) {
	store := newFakeStore()
	store.signReads = true
	svc := newUploadService(store, 0)

	got, err := svc.CreateUploadURL(context.Background(), "clip.mp4", "video/mp4")
	if err != nil {
		t.Fatalf("CreateUploadURL() error = %v", err)
	}
	if got.VideoURL != "https://signed.test/"+got.Key+"?ttl=25m0s" {
		t.Errorf("video url = %q, want signed for upload expiry plus one run", got.VideoURL)
	}
}

func TestCreateUploadURL_Rejects(t *testing.T) {
	svc := newUploadService(newFakeStore(), 0)

	tests := []struct {
		name        string
		filename    string
		contentType string
		want        error
	}{
		{"image", "a.png", "image/png", domain.ErrUnsupportedContentType},
		{"empty type", "a.mp4", "", domain.ErrUnsupportedContentType},
		{"no filename", " ", "video/mp4", domain.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateUploadURL(context.Background(), tt.filename, tt.contentType)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCreateUploadURL_StorageError(t *testing.T) {
	store := newFakeStore()
	store.putErr = errors.New("no credentials")
	svc := newUploadService(store, 0)

	_, err := svc.CreateUploadURL(context.Background(), "a.mp4", "video/mp4")
	if !errors.Is(err, domain.ErrStorageFailed) {
		t.Errorf("error = %v, want ErrStorageFailed", err)
	}
}

func TestUploadVideoData(t *testing.T) {
	store := newFakeStore()
	svc := newUploadService(store, 16)
	payload := base64.StdEncoding.EncodeToString([]byte("webm-bytes"))

	url, err := svc.UploadVideoData(context.Background(), "data:video/webm;base64,"+payload)
	if err != nil {
		t.Fatalf("UploadVideoData() error = %v", err)
	}
	if !strings.HasSuffix(url, ".webm") {
		t.Errorf("url = %q", url)
	}
	keys := store.keys()
	if len(keys) != 1 || string(store.objects[keys[0]]) != "webm-bytes" {
		t.Errorf("stored objects = %v", keys)
	}

	// Raw base64 defaults to mp4.
	url, err = svc.UploadVideoData(context.Background(), payload)
	if err != nil || !strings.HasSuffix(url, ".mp4") {
		t.Errorf("raw payload: url = %q, err = %v", url, err)
	}
}

func TestUploadVideoData_ReturnsReadURL(t *testing.T) {
	store := newFakeStore()
	store.signReads = true
	svc := newUploadService(store, 0)

	url, err := svc.UploadVideoData(context.Background(), base64.StdEncoding.EncodeToString([]byte("mp4")))
	if err != nil {
		t.Fatalf("UploadVideoData() error = %v", err)
	}
	if !strings.HasPrefix(url, "https://signed.test/videos/") || !strings.HasSuffix(url, "?ttl=15m0s") {
		t.Errorf("url = %q, want signed read url", url)
	}

	store.readErr = errors.New("no signing credentials")
	if _, err := svc.UploadVideoData(context.Background(), base64.StdEncoding.EncodeToString([]byte("mp4"))); !errors.Is(err, domain.ErrStorageFailed) {
		t.Errorf("sign failure error = %v, want ErrStorageFailed", err)
	}
}

func TestUploadVideoData_Rejects(t *testing.T) {
	svc := newUploadService(newFakeStore(), 4)

	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"not base64", "%%%", domain.ErrInvalidRequest},
		{"too large", base64.StdEncoding.EncodeToString([]byte("12345")), domain.ErrInvalidRequest},
		{"image data uri", "data:image/png;base64,QUJD", domain.ErrUnsupportedContentType},
		{"not base64 data uri", "data:video/mp4,abc", domain.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UploadVideoData(context.Background(), tt.payload)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}
