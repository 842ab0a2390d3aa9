package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tokbox/tokbox/internal/domain"
)

// UsageStatus answers check-usage for the current caller.
type UsageStatus struct {
	LimitReached  bool        `json:"limitReached"`
	Plan          domain.Plan `json:"plan"`
	Message       string      `json:"message"`
	AnalysesUsed  int         `json:"analysesUsed"`
	AnalysesLimit int         `json:"analysesLimit"`
	PeriodLabel   string      `json:"periodLabel"`
	Email         string      `json:"email,omitempty"`
}

// UsageService reports remaining quota without consuming any.
type UsageService struct {
	quota  QuotaChecker
	logger *slog.Logger
}

// NewUsageService creates a new usage service.
func NewUsageService(q QuotaChecker, logger *slog.Logger) *UsageService {
	return &UsageService{quota: q, logger: logger}
}

// CheckUsage runs the quota decision for id and describes it.
func (s *UsageService) CheckUsage(ctx context.Context, id domain.Identity) (*UsageStatus, error) {
	d, err := s.quota.Check(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("check usage: %w", err)
	}

	status := &UsageStatus{
		LimitReached:  !d.Allowed,
		Plan:          d.Plan,
		Message:       d.Message,
		AnalysesUsed:  d.Used,
		AnalysesLimit: d.Limit,
		PeriodLabel:   d.PeriodLabel,
		Email:         id.Email,
	}
	if d.Allowed && status.Message == "" {
		status.Message = fmt.Sprintf("%d of %d analyses used (%s)", d.Used, d.Limit, d.PeriodLabel)
	}
	return status, nil
}
