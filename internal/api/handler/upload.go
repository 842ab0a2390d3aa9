package handler

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tokbox/tokbox/internal/domain"
	"github.com/tokbox/tokbox/internal/service"
	"github.com/tokbox/tokbox/internal/storage"
	"github.com/tokbox/tokbox/pkg/crypto"
)

// UploadURLCreator issues presigned uploads.
type UploadURLCreator interface {
	CreateUploadURL(ctx context.Context, filename, contentType string) (*service.UploadURL, error)
}

// UploadHandler handles presigned upload requests.
type UploadHandler struct {
	svc    UploadURLCreator
	logger *slog.Logger
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(svc UploadURLCreator, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{svc: svc, logger: logger}
}

// UploadURLRequest is the body of POST /api/upload-url.
type UploadURLRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

// CreateURL handles POST /api/upload-url.
func (h *UploadHandler) CreateURL(w http.ResponseWriter, r *http.Request) {
	var req UploadURLRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	out, err := h.svc.CreateUploadURL(r.Context(), req.Filename, req.ContentType)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ObjectHandler serves the filesystem store at /uploads/*: signed PUTs from
// presigned URLs and public GETs.
type ObjectHandler struct {
	store  *storage.FilesystemStore
	logger *slog.Logger
}

// NewObjectHandler creates a new object handler.
func NewObjectHandler(store *storage.FilesystemStore, logger *slog.Logger) *ObjectHandler {
	return &ObjectHandler{store: store, logger: logger}
}

// Put handles PUT /uploads/*.
func (h *ObjectHandler) Put(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	q := r.URL.Query()

	if err := h.store.VerifyPut(key, q.Get("expires"), q.Get("sig")); err != nil {
		if errors.Is(err, crypto.ErrSignatureExpired) || errors.Is(err, crypto.ErrSignatureMismatch) {
			writeError(w, http.StatusForbidden, domain.ErrInvalidSignature.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid object key")
		return
	}

	ct := r.Header.Get("Content-Type")
	if err := h.store.Put(r.Context(), key, ct, r.Body); err != nil {
		if errors.Is(err, storage.ErrObjectTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "object too large")
			return
		}
		h.logger.Error("failed to store upload", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store object")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Get handles GET /uploads/*.
func (h *ObjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	f, err := h.store.Open(key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "object not found")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid object key")
		return
	}
	defer f.Close()

	var modTime time.Time
	if info, err := f.Stat(); err == nil {
		if info.IsDir() {
			writeError(w, http.StatusNotFound, "object not found")
			return
		}
		modTime = info.ModTime()
	}
	w.Header().Set("Content-Type", storage.ContentTypeForKey(key))
	http.ServeContent(w, r, key, modTime, io.ReadSeeker(f))
}
