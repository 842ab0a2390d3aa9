package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	mw "github.com/tokbox/tokbox/internal/api/middleware"
	"github.com/tokbox/tokbox/internal/domain"
	"github.com/tokbox/tokbox/internal/mood"
	"github.com/tokbox/tokbox/internal/service"
)

// UsageChecker reports remaining quota.
type UsageChecker interface {
	CheckUsage(ctx context.Context, id domain.Identity) (*service.UsageStatus, error)
}

// HistoryProvider serves a user's past analyses.
type HistoryProvider interface {
	List(ctx context.Context, id domain.Identity, limit int) ([]service.HistoryEntry, error)
	Get(ctx context.Context, id domain.Identity, analysisID domain.AnalysisID) (*service.HistoryDetail, error)
}

// AccountHandler serves the caller's usage and history.
type AccountHandler struct {
	usage   UsageChecker
	history HistoryProvider
	logger  *slog.Logger
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(usage UsageChecker, history HistoryProvider, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{usage: usage, history: history, logger: logger}
}

// CheckUsage handles GET /api/check-usage.
func (h *AccountHandler) CheckUsage(w http.ResponseWriter, r *http.Request) {
	status, err := h.usage.CheckUsage(r.Context(), mw.IdentityFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HistoryListResponse wraps a history page.
type HistoryListResponse struct {
	Analyses []service.HistoryEntry `json:"analyses"`
}

// History handles GET /api/history[?id=][&limit=].
func (h *AccountHandler) History(w http.ResponseWriter, r *http.Request) {
	id := mw.IdentityFrom(r.Context())
	q := r.URL.Query()

	if analysisID := q.Get("id"); analysisID != "" {
		detail, err := h.history.Get(r.Context(), id, domain.AnalysisID(analysisID))
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
		return
	}

	limit := 0
	if l := q.Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	entries, err := h.history.List(r.Context(), id, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryListResponse{Analyses: entries})
}

// MoodHandler serves the mood catalogue.
type MoodHandler struct {
	moods *mood.Table
}

// NewMoodHandler creates a new mood handler.
func NewMoodHandler(moods *mood.Table) *MoodHandler {
	return &MoodHandler{moods: moods}
}

// MoodEntry is one catalogue item.
type MoodEntry struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
}

// List handles GET /api/moods.
func (h *MoodHandler) List(w http.ResponseWriter, r *http.Request) {
	strategies := h.moods.List()
	out := make([]MoodEntry, 0, len(strategies))
	for _, s := range strategies {
		out = append(out, MoodEntry{ID: s.ID, Name: s.Name, Emoji: s.Emoji})
	}
	writeJSON(w, http.StatusOK, map[string][]MoodEntry{"moods": out})
}

// Get handles GET /api/moods/{moodID}.
func (h *MoodHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.moods.Get(chi.URLParam(r, "moodID"))
	if !ok {
		writeError(w, http.StatusNotFound, "mood not found")
		return
	}
	writeJSON(w, http.StatusOK, s)
}
