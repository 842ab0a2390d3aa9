package service

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/tokbox/tokbox/internal/domain"
	"github.com/tokbox/tokbox/internal/repository"
)

var startTime = time.Now()

// AnalysisStatsReader exposes the aggregate counters of the analyses table.
type AnalysisStatsReader interface {
	Stats(ctx context.Context, dayStart time.Time) (*repository.AnalysisStats, error)
	ListRecent(ctx context.Context, limit int) ([]*domain.Analysis, error)
}

// RecentAnalysis is one row of the operator's recent-analyses view. Caller
// identity is reduced to whether the run was anonymous.
type RecentAnalysis struct {
	ID         domain.AnalysisID `json:"id"`
	Mood       string            `json:"mood,omitempty"`
	Grade      string            `json:"grade"`
	ViralScore int               `json:"viral_score"`
	ModelUsed  domain.ModelTier  `json:"model_used"`
	Anonymous  bool              `json:"anonymous"`
	HasResults bool              `json:"has_results"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Recent-analyses page size bounds.
const (
	DefaultRecentLimit = 20
	MaxRecentLimit     = 100
)

// SystemStats is the process and disk part of the ops stats.
type SystemStats struct {
	UptimeSeconds  int64   `json:"uptime_seconds"`
	UptimeHuman    string  `json:"uptime_human"`
	MemAllocMB     int64   `json:"mem_alloc_mb"`
	MemSysMB       int64   `json:"mem_sys_mb"`
	NumGoroutines  int     `json:"num_goroutines"`
	NumCPU         int     `json:"num_cpu"`
	StoragePath    string  `json:"storage_path,omitempty"`
	DiskTotalBytes int64   `json:"disk_total_bytes,omitempty"`
	DiskFreeBytes  int64   `json:"disk_free_bytes,omitempty"`
	DiskUsedPct    float64 `json:"disk_used_pct,omitempty"`
}

// OpsStats is served on /api/v1/stats.
type OpsStats struct {
	Analyses *repository.AnalysisStats `json:"analyses"`
	Events   EventStats                `json:"events"`
	System   SystemStats               `json:"system"`
}

// StatsService aggregates operator statistics.
type StatsService struct {
	analyses    AnalysisStatsReader
	events      *EventService
	storagePath string
	now         func() time.Time
}

// NewStatsService creates a stats service. storagePath is the filesystem
// storage root and may be empty when objects live in a bucket.
func NewStatsService(analyses AnalysisStatsReader, events *EventService, storagePath string) *StatsService {
	return &StatsService{
		analyses:    analyses,
		events:      events,
		storagePath: storagePath,
		now:         time.Now,
	}
}

// Stats collects the current counters.
func (s *StatsService) Stats(ctx context.Context) (*OpsStats, error) {
	now := s.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	analyses, err := s.analyses.Stats(ctx, dayStart)
	if err != nil {
		return nil, fmt.Errorf("analysis stats: %w", err)
	}

	out := &OpsStats{Analyses: analyses, System: s.system()}
	if s.events != nil {
		out.Events = s.events.Stats()
	}
	return out, nil
}

// Recent lists the newest analyses across all callers.
func (s *StatsService) Recent(ctx context.Context, limit int) ([]RecentAnalysis, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	rows, err := s.analyses.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent analyses: %w", err)
	}

	out := make([]RecentAnalysis, 0, len(rows))
	for _, a := range rows {
		out = append(out, RecentAnalysis{
			ID:         a.ID,
			Mood:       a.Mood,
			Grade:      a.Grade,
			ViralScore: a.ViralScore,
			ModelUsed:  a.ModelUsed,
			Anonymous:  a.UserID == "",
			HasResults: a.HasResults(),
			CreatedAt:  a.CreatedAt,
		})
	}
	return out, nil
}

func (s *StatsService) system() SystemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)
	st := SystemStats{
		UptimeSeconds: int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		MemSysMB:      int64(m.Sys / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
	}

	if s.storagePath != "" {
		st.StoragePath = s.storagePath
		if total, free, ok := diskUsage(s.storagePath); ok && total > 0 {
			st.DiskTotalBytes = total
			st.DiskFreeBytes = free
			st.DiskUsedPct = float64(total-free) / float64(total) * 100
		}
	}
	return st
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
