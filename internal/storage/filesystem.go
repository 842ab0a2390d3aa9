package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tokbox/tokbox/internal/config"
	"github.com/tokbox/tokbox/pkg/crypto"
)

// FilesystemStore implements Store on local disk. Presigned URLs point back
// at this service's /uploads route and carry an expiring signature.
type FilesystemStore struct {
	basePath string
	baseURL  string
	maxSize  int64
	signer   *crypto.Signer
}

// NewFilesystemStore creates a disk-backed store rooted at cfg.BasePath.
func NewFilesystemStore(cfg config.StorageConfig) (*FilesystemStore, error) {
	signer, err := crypto.NewSigner(cfg.SigningKey)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FilesystemStore{
		basePath: cfg.BasePath,
		baseURL:  strings.TrimRight(cfg.PublicBaseURL, "/"),
		maxSize:  cfg.MaxVideoSize,
		signer:   signer,
	}, nil
}

// PresignPut returns a signed URL for the /uploads PUT route.
func (s *FilesystemStore) PresignPut(_ context.Context, key, _ string, ttl time.Duration) (string, error) {
	clean, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	expires, sig := s.signer.Sign("PUT", clean, ttl)
	q := url.Values{}
	q.Set("expires", expires)
	q.Set("sig", sig)
	return s.PublicURL(clean) + "?" + q.Encode(), nil
}

// Put writes an object to disk atomically.
func (s *FilesystemStore) Put(_ context.Context, key, _ string, r io.Reader) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}

	if isTempName(filepath.Base(path)) {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidKey, key)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}
	n, err := io.Copy(tmp, src)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("write object: %w", err)
	}
	if s.maxSize > 0 && n > s.maxSize {
		tmp.Close()
		return fmt.Errorf("%w: limit %d bytes", ErrObjectTooLarge, s.maxSize)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("commit object: %w", err)
	}
	return nil
}

// PublicURL returns the /uploads URL for key.
func (s *FilesystemStore) PublicURL(key string) string {
	return s.baseURL + "/" + (&url.URL{Path: key}).EscapedPath()
}

// ReadURL returns the /uploads URL for key. Objects on disk are served
// without a signature, so ttl is unused.
func (s *FilesystemStore) ReadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	clean, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return s.PublicURL(clean), nil
}

// VerifyPut checks a presigned PUT signature.
func (s *FilesystemStore) VerifyPut(key, expires, sig string) error {
	clean, err := CleanKey(key)
	if err != nil {
		return err
	}
	return s.signer.Verify("PUT", clean, expires, sig)
}

// Open opens a stored object for reading. In-flight partial uploads are
// reported as missing.
func (s *FilesystemStore) Open(key string) (*os.File, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	if isTempName(filepath.Base(path)) {
		return nil, &fs.PathError{Op: "open", Path: key, Err: fs.ErrNotExist}
	}
	return os.Open(path)
}

// SweepTemp removes partial uploads left behind by interrupted PUTs.
func (s *FilesystemStore) SweepTemp(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isTempName(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		return nil
	})
	return removed, err
}

// BasePath returns the storage root.
func (s *FilesystemStore) BasePath() string {
	return s.basePath
}

const tempPrefix = ".upload-"

func isTempName(name string) bool {
	return strings.HasPrefix(name, tempPrefix)
}

func (s *FilesystemStore) path(key string) (string, error) {
	clean, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(clean)), nil
}
