package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tokbox/tokbox/internal/domain"
)

// History page sizes.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

// HistoryReader is the read side of the analyses table.
type HistoryReader interface {
	Get(ctx context.Context, id domain.AnalysisID) (*domain.Analysis, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Analysis, error)
}

// HistoryEntry is one row of a user's history list.
type HistoryEntry struct {
	ID         domain.AnalysisID `json:"id"`
	Mood       string            `json:"mood"`
	Grade      string            `json:"grade"`
	ViralScore int               `json:"viralScore"`
	CreatedAt  time.Time         `json:"createdAt"`
	HasResults bool              `json:"hasResults"`
}

// HistoryDetail is a single analysis with its stored result.
type HistoryDetail struct {
	HistoryEntry
	Results json.RawMessage `json:"results,omitempty"`
}

// HistoryService serves a signed-in user's past analyses.
type HistoryService struct {
	repo   HistoryReader
	logger *slog.Logger
}

// NewHistoryService creates a new history service.
func NewHistoryService(repo HistoryReader, logger *slog.Logger) *HistoryService {
	return &HistoryService{repo: repo, logger: logger}
}

// List returns the newest analyses for the caller.
func (s *HistoryService) List(ctx context.Context, id domain.Identity, limit int) ([]HistoryEntry, error) {
	if id.IsAnonymous() {
		return nil, domain.ErrUnauthenticated
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	rows, err := s.repo.ListByUser(ctx, id.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	out := make([]HistoryEntry, 0, len(rows))
	for _, a := range rows {
		out = append(out, entryFor(a))
	}
	return out, nil
}

// Get returns one analysis owned by the caller. Records owned by someone
// else are reported as not found.
func (s *HistoryService) Get(ctx context.Context, id domain.Identity, analysisID domain.AnalysisID) (*HistoryDetail, error) {
	if id.IsAnonymous() {
		return nil, domain.ErrUnauthenticated
	}

	a, err := s.repo.Get(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	if a.UserID != id.UserID {
		return nil, domain.ErrAnalysisNotFound
	}

	detail := &HistoryDetail{HistoryEntry: entryFor(a)}
	if a.HasResults() {
		if json.Valid(a.Results) {
			detail.Results = json.RawMessage(a.Results)
		} else {
			s.logger.Warn("stored result is not valid JSON", "analysis_id", a.ID)
			detail.HasResults = false
		}
	}
	return detail, nil
}

func entryFor(a *domain.Analysis) HistoryEntry {
	return HistoryEntry{
		ID:         a.ID,
		Mood:       a.Mood,
		Grade:      a.Grade,
		ViralScore: a.ViralScore,
		CreatedAt:  a.CreatedAt,
		HasResults: a.HasResults(),
	}
}
