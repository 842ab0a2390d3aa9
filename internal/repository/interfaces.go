package repository

import (
	"context"
	"time"

	"github.com/tokbox/tokbox/internal/domain"
)

// AnalysisRepository persists completed analyses. Rows are insert-only.
type AnalysisRepository interface {
	// Insert stores a new analysis.
	Insert(ctx context.Context, a *domain.Analysis) error

	// Get retrieves an analysis by ID.
	Get(ctx context.Context, id domain.AnalysisID) (*domain.Analysis, error)

	// ListByUser returns a user's analyses, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Analysis, error)

	// ListRecent returns the newest analyses across all callers.
	ListRecent(ctx context.Context, limit int) ([]*domain.Analysis, error)

	// CountAnonymousByIP counts analyses with no user for an IP.
	CountAnonymousByIP(ctx context.Context, ip string) (int, error)

	// CountByUser counts a user's analyses created at or after since.
	CountByUser(ctx context.Context, userID string, since time.Time) (int, error)

	// CountPremiumByUser counts a user's premium-tier analyses created at or after since.
	CountPremiumByUser(ctx context.Context, userID string, since time.Time) (int, error)

	// Stats returns aggregate counters for operators.
	Stats(ctx context.Context, dayStart time.Time) (*AnalysisStats, error)
}

// ProfileRepository reads the plan column maintained by billing.
type ProfileRepository interface {
	// Get returns the profile for a user. Missing rows yield a free profile.
	Get(ctx context.Context, userID string) (*domain.Profile, error)
}

// AnalysisStats contains aggregate analysis counters.
type AnalysisStats struct {
	Total          int            `json:"total"`
	Today          int            `json:"today"`
	Anonymous      int            `json:"anonymous"`
	Premium        int            `json:"premium"`
	AverageScore   float64        `json:"average_score"`
	GradeHistogram map[string]int `json:"grade_histogram"`
}
