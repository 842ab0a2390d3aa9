package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tokbox/tokbox/internal/service"
)

// Pinger checks a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// OpsStatsProvider collects operator statistics.
type OpsStatsProvider interface {
	Stats(ctx context.Context) (*service.OpsStats, error)
	Recent(ctx context.Context, limit int) ([]service.RecentAnalysis, error)
}

// HealthHandler handles health check and ops stats endpoints.
type HealthHandler struct {
	db     Pinger
	stats  OpsStatsProvider
	logger *slog.Logger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db Pinger, stats OpsStatsProvider, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, stats: stats, logger: logger}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Database  string `json:"database,omitempty"`
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness probe.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "error",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Database:  "unreachable",
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Database:  "ok",
	})
}

// Stats handles GET /api/v1/stats.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to collect stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to collect stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Recent handles GET /api/v1/analyses?limit=.
func (h *HealthHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	recent, err := h.stats.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list recent analyses", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list analyses")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]service.RecentAnalysis{"analyses": recent})
}
