package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	mw "github.com/tokbox/tokbox/internal/api/middleware"
	"github.com/tokbox/tokbox/internal/domain"
	"github.com/tokbox/tokbox/internal/service"
)

// Analyzer runs an analysis for a caller.
type Analyzer interface {
	Analyze(ctx context.Context, id domain.Identity, req service.AnalyzeRequest) (*domain.AnalysisResult, error)
}

// AnalyzeHandler handles POST /api/analyze.
type AnalyzeHandler struct {
	svc     Analyzer
	maxBody int64
	logger  *slog.Logger
}

// NewAnalyzeHandler creates a new analyze handler. maxVideoSize bounds
// embedded videoData; the body limit allows for base64 overhead.
func NewAnalyzeHandler(svc Analyzer, maxVideoSize int64, logger *slog.Logger) *AnalyzeHandler {
	maxBody := int64(1 << 20)
	if maxVideoSize > 0 {
		maxBody += maxVideoSize/3*4 + 4
	}
	return &AnalyzeHandler{svc: svc, maxBody: maxBody, logger: logger}
}

// AnalyzeRequest is the JSON body of an analyze call.
type AnalyzeRequest struct {
	VideoURL  string `json:"videoUrl"`
	VideoData string `json:"videoData"`
	Mood      string `json:"mood"`
}

// Analyze handles POST /api/analyze.
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	var req AnalyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := mw.IdentityFrom(r.Context())
	result, err := h.svc.Analyze(r.Context(), id, service.AnalyzeRequest{
		VideoURL:  req.VideoURL,
		VideoData: req.VideoData,
		Mood:      req.Mood,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
