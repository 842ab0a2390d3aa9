package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tokbox/tokbox/internal/domain"
)

// SQLProfileRepository implements ProfileRepository.
type SQLProfileRepository struct {
	db *DB
}

// NewSQLProfileRepository creates a new profile repository.
func NewSQLProfileRepository(db *DB) *SQLProfileRepository {
	return &SQLProfileRepository{db: db}
}

// Get returns the profile for a user. A missing row is a free user.
func (r *SQLProfileRepository) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	var email, plan string
	err := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT email, plan FROM profiles WHERE user_id = ?`), userID).
		Scan(&email, &plan)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.Profile{UserID: userID, Plan: domain.PlanFree}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &domain.Profile{UserID: userID, Email: email, Plan: domain.ParsePlan(plan)}, nil
}
