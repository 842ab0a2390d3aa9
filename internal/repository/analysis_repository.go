package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tokbox/tokbox/internal/domain"
)

// SQLAnalysisRepository implements AnalysisRepository on database/sql.
type SQLAnalysisRepository struct {
	db *DB
}

// NewSQLAnalysisRepository creates a new analysis repository.
func NewSQLAnalysisRepository(db *DB) *SQLAnalysisRepository {
	return &SQLAnalysisRepository{db: db}
}

const analysisColumns = `id, user_id, user_email, ip_address, mood, video_url,
	video_duration_seconds, grade, viral_score, model_used, results, created_at`

// Insert stores a new analysis.
func (r *SQLAnalysisRepository) Insert(ctx context.Context, a *domain.Analysis) error {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var duration sql.NullFloat64
	if a.VideoDurationSeconds != nil {
		duration = sql.NullFloat64{Float64: *a.VideoDurationSeconds, Valid: true}
	}
	var results sql.NullString
	if a.HasResults() {
		results = sql.NullString{String: string(a.Results), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO analyses (`+analysisColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID.String(),
		nullString(a.UserID),
		nullString(a.UserEmail),
		nullString(a.IPAddress),
		a.Mood,
		a.VideoURL,
		duration,
		a.Grade,
		a.ViralScore,
		string(a.ModelUsed),
		results,
		createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

// Get retrieves an analysis by ID.
func (r *SQLAnalysisRepository) Get(ctx context.Context, id domain.AnalysisID) (*domain.Analysis, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT `+analysisColumns+` FROM analyses WHERE id = ?`), id.String())
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAnalysisNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return a, nil
}

// ListByUser returns a user's analyses, newest first.
func (r *SQLAnalysisRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Analysis, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`SELECT `+analysisColumns+` FROM analyses
		WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	return collect(rows)
}

// ListRecent returns the newest analyses across all callers.
func (r *SQLAnalysisRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Analysis, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`SELECT `+analysisColumns+` FROM analyses
		ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list recent analyses: %w", err)
	}
	return collect(rows)
}

// CountAnonymousByIP counts analyses with no user for an IP.
func (r *SQLAnalysisRepository) CountAnonymousByIP(ctx context.Context, ip string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM analyses WHERE user_id IS NULL AND ip_address = ?`, ip)
}

// CountByUser counts a user's analyses created at or after since.
func (r *SQLAnalysisRepository) CountByUser(ctx context.Context, userID string, since time.Time) (int, error) {
	if since.IsZero() {
		return r.count(ctx, `SELECT COUNT(*) FROM analyses WHERE user_id = ?`, userID)
	}
	return r.count(ctx, `SELECT COUNT(*) FROM analyses WHERE user_id = ? AND created_at >= ?`, userID, since.UTC())
}

// CountPremiumByUser counts a user's premium-tier analyses created at or after since.
func (r *SQLAnalysisRepository) CountPremiumByUser(ctx context.Context, userID string, since time.Time) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM analyses WHERE user_id = ? AND model_used = ? AND created_at >= ?`,
		userID, string(domain.TierPremium), since.UTC())
}

// Stats returns aggregate counters for operators.
func (r *SQLAnalysisRepository) Stats(ctx context.Context, dayStart time.Time) (*AnalysisStats, error) {
	stats := &AnalysisStats{GradeHistogram: make(map[string]int)}

	var avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN user_id IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN model_used = ? THEN 1 ELSE 0 END), 0),
			AVG(viral_score)
		FROM analyses`), dayStart.UTC(), string(domain.TierPremium)).
		Scan(&stats.Total, &stats.Today, &stats.Anonymous, &stats.Premium, &avg)
	if err != nil {
		return nil, fmt.Errorf("analysis stats: %w", err)
	}
	stats.AverageScore = avg.Float64

	rows, err := r.db.QueryContext(ctx, `SELECT grade, COUNT(*) FROM analyses GROUP BY grade`)
	if err != nil {
		return nil, fmt.Errorf("grade histogram: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var grade string
		var n int
		if err := rows.Scan(&grade, &n); err != nil {
			return nil, fmt.Errorf("scan grade histogram: %w", err)
		}
		stats.GradeHistogram[grade] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("grade histogram: %w", err)
	}

	return stats, nil
}

func (r *SQLAnalysisRepository) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, r.db.Rebind(query), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count analyses: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(s scanner) (*domain.Analysis, error) {
	var (
		a         domain.Analysis
		id        string
		userID    sql.NullString
		userEmail sql.NullString
		ip        sql.NullString
		duration  sql.NullFloat64
		modelUsed string
		results   sql.NullString
	)
	if err := s.Scan(&id, &userID, &userEmail, &ip, &a.Mood, &a.VideoURL,
		&duration, &a.Grade, &a.ViralScore, &modelUsed, &results, &a.CreatedAt); err != nil {
		return nil, err
	}

	a.ID = domain.AnalysisID(id)
	a.UserID = userID.String
	a.UserEmail = userEmail.String
	a.IPAddress = ip.String
	a.ModelUsed = domain.ModelTier(modelUsed)
	if duration.Valid {
		d := duration.Float64
		a.VideoDurationSeconds = &d
	}
	if results.Valid {
		a.Results = []byte(results.String)
	}
	return &a, nil
}

func collect(rows *sql.Rows) ([]*domain.Analysis, error) {
	defer rows.Close()

	var out []*domain.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analyses: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
