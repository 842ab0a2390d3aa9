package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tokbox/tokbox/internal/config"
	"github.com/tokbox/tokbox/pkg/crypto"
)

func newTestStore(t *testing.T) *FilesystemStore {
	t.Helper()
	s, err := NewFilesystemStore(config.StorageConfig{
		BasePath:      t.TempDir(),
		PublicBaseURL: "http://localhost:8080/uploads/",
		SigningKey:    "test-signing-key",
		MaxVideoSize:  64,
	})
	if err != nil {
		t.Fatalf("NewFilesystemStore() error = %v", err)
	}
	return s
}

func TestVideoKey(t *testing.T) {
	tests := []struct {
		filename string
		wantExt  string
	}{
		{"clip.MOV", ".mov"},
		{"clip.mp4", ".mp4"},
		{"noext", ".mp4"},
		{"weird.extension", ".mp4"},
	}
	for _, tt := range tests {
		key := VideoKey(tt.filename)
		if !strings.HasPrefix(key, "videos/") || !strings.HasSuffix(key, tt.wantExt) {
			t.Errorf("VideoKey(%q) = %q, want videos/*%s", tt.filename, key, tt.wantExt)
		}
	}
	if VideoKey("a.mp4") == VideoKey("a.mp4") {
		t.Error("VideoKey() not unique")
	}
}

func TestFrameKey(t *testing.T) {
	if got := FrameKey("abc", 2); got != "frames/abc/2.jpg" {
		t.Errorf("FrameKey() = %q", got)
	}
}

func TestCleanKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"videos/a.mp4", "videos/a.mp4", false},
		{"/videos//a.mp4", "videos/a.mp4", false},
		{"../etc/passwd", "etc/passwd", false},
		{"", "", true},
		{"/", "", true},
	}
	for _, tt := range tests {
		got, err := CleanKey(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("CleanKey(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("CleanKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContentTypeForKey(t *testing.T) {
	if got := ContentTypeForKey("frames/x/0.jpg"); got != "image/jpeg" {
		t.Errorf("jpg = %q", got)
	}
	if got := ContentTypeForKey("videos/x.mov"); got != "video/quicktime" {
		t.Errorf("mov = %q", got)
	}
	if got := ContentTypeForKey("blob"); got != "application/octet-stream" {
		t.Errorf("none = %q", got)
	}
}

func TestFilesystemStore_PutOpen(t *testing.T) {
	s := newTestStore(t)

	if err := s.Put(context.Background(), "frames/a1/0.jpg", "image/jpeg", strings.NewReader("jpegdata")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	f, err := s.Open("frames/a1/0.jpg")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "jpegdata" {
		t.Errorf("content = %q", data)
	}

	if got := s.PublicURL("frames/a1/0.jpg"); got != "http://localhost:8080/uploads/frames/a1/0.jpg" {
		t.Errorf("PublicURL() = %q", got)
	}
}

func TestFilesystemStore_ReadURL(t *testing.T) {
	s := newTestStore(t)

	got, err := s.ReadURL(context.Background(), "/frames//a1/0.jpg", time.Minute)
	if err != nil {
		t.Fatalf("ReadURL() error = %v", err)
	}
	if got != "http://localhost:8080/uploads/frames/a1/0.jpg" {
		t.Errorf("ReadURL() = %q", got)
	}
	if _, err := s.ReadURL(context.Background(), "../etc/passwd", time.Minute); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("ReadURL(escape) error = %v, want ErrInvalidKey", err)
	}
}

func TestFilesystemStore_HidesPartialUploads(t *testing.T) {
	s := newTestStore(t)
	dir := filepath.Join(s.BasePath(), "videos")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".upload-123"), []byte("partial"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Open("videos/.upload-123"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Open(temp) error = %v, want ErrNotExist", err)
	}
	err := s.Put(context.Background(), "videos/.upload-999", "video/mp4", strings.NewReader("x"))
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Put(temp name) error = %v, want ErrInvalidKey", err)
	}
}

func TestFilesystemStore_PutTooLarge(t *testing.T) {
	s := newTestStore(t)
	err := s.Put(context.Background(), "videos/big.mp4", "video/mp4", strings.NewReader(strings.Repeat("x", 65)))
	if err == nil {
		t.Fatal("Put() over limit succeeded")
	}
	if _, err := s.Open("videos/big.mp4"); err == nil {
		t.Error("oversized object was committed")
	}
}

func TestFilesystemStore_PresignVerify(t *testing.T) {
	s := newTestStore(t)

	raw, err := s.PresignPut(context.Background(), "videos/a.mp4", "video/mp4", 10*time.Minute)
	if err != nil {
		t.Fatalf("PresignPut() error = %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse presigned url: %v", err)
	}
	if u.Path != "/uploads/videos/a.mp4" {
		t.Errorf("path = %q", u.Path)
	}

	q := u.Query()
	if err := s.VerifyPut("videos/a.mp4", q.Get("expires"), q.Get("sig")); err != nil {
		t.Errorf("VerifyPut() error = %v", err)
	}
	if err := s.VerifyPut("videos/b.mp4", q.Get("expires"), q.Get("sig")); !errors.Is(err, crypto.ErrSignatureMismatch) {
		t.Errorf("VerifyPut(other key) error = %v, want mismatch", err)
	}
}

func TestNewFilesystemStore_RequiresKey(t *testing.T) {
	_, err := NewFilesystemStore(config.StorageConfig{BasePath: t.TempDir()})
	if err == nil {
		t.Error("NewFilesystemStore() without signing key succeeded")
	}
}

func TestFilesystemStore_SweepTemp(t *testing.T) {
	s := newTestStore(t)
	dir := filepath.Join(s.BasePath(), "videos")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}

	stale := filepath.Join(dir, ".upload-111")
	fresh := filepath.Join(dir, ".upload-222")
	keep := filepath.Join(dir, "clip.mp4")
	for _, p := range []string{stale, fresh, keep} {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(keep, old, old); err != nil {
		t.Fatal(err)
	}

	n, err := s.SweepTemp(time.Hour)
	if err != nil {
		t.Fatalf("SweepTemp() error = %v", err)
	}
	if n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale temp file survived")
	}
	for _, p := range []string{fresh, keep} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s removed: %v", filepath.Base(p), err)
		}
	}
}
