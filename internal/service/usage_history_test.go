package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tokbox/tokbox/internal/domain"
	"github.com/tokbox/tokbox/internal/quota"
	"github.com/tokbox/tokbox/internal/repository"
)

func TestCheckUsage(t *testing.T) {
	tests := []struct {
		name     string
		decision quota.Decision
		wantHit  bool
		wantMsg  string
	}{
		{
			name:     "remaining",
			decision: quota.Decision{Allowed: true, Plan: domain.PlanCreator, Used: 3, Limit: 30, PeriodLabel: "this month"},
			wantMsg:  "3 of 30 analyses used (this month)",
		},
		{
			name:     "exhausted",
			decision: quota.Decision{Plan: domain.PlanFree, Used: 1, Limit: 1, PeriodLabel: "total", UpgradeRequired: true, Message: "upgrade"},
			wantHit:  true,
			wantMsg:  "upgrade",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewUsageService(&fakeQuota{decision: tt.decision}, testLogger())
			got, err := svc.CheckUsage(context.Background(), domain.Identity{UserID: "u", Email: "e@x"})
			if err != nil {
				t.Fatalf("CheckUsage() error = %v", err)
			}
			if got.LimitReached != tt.wantHit || got.Message != tt.wantMsg || got.Email != "e@x" {
				t.Errorf("status = %+v", got)
			}
			if got.AnalysesUsed != tt.decision.Used || got.AnalysesLimit != tt.decision.Limit {
				t.Errorf("counts = %d/%d", got.AnalysesUsed, got.AnalysesLimit)
			}
		})
	}
}

func TestCheckUsage_Error(t *testing.T) {
	svc := NewUsageService(&fakeQuota{err: errors.New("db")}, testLogger())
	if _, err := svc.CheckUsage(context.Background(), domain.Identity{}); err == nil {
		t.Fatal("expected error")
	}
}

type fakeHistory struct {
	rows      map[domain.AnalysisID]*domain.Analysis
	lastLimit int
}

func (f *fakeHistory) Get(_ context.Context, id domain.AnalysisID) (*domain.Analysis, error) {
	a, ok := f.rows[id]
	if !ok {
		return nil, domain.ErrAnalysisNotFound
	}
	return a, nil
}

func (f *fakeHistory) ListByUser(_ context.Context, userID string, limit int) ([]*domain.Analysis, error) {
	f.lastLimit = limit
	var out []*domain.Analysis
	for _, a := range f.rows {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func newFakeHistory() *fakeHistory {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &fakeHistory{rows: map[domain.AnalysisID]*domain.Analysis{
		"a1": {ID: "a1", UserID: "u1", Mood: "funny", Grade: "B", ViralScore: 84, CreatedAt: created, Results: []byte(`{"grade":"B"}`)},
		"a2": {ID: "a2", UserID: "u1", Grade: "F", ViralScore: 40, CreatedAt: created},
		"a3": {ID: "a3", UserID: "u2", Grade: "A", ViralScore: 95, CreatedAt: created},
	}}
}

func TestHistory_RequiresAuth(t *testing.T) {
	svc := NewHistoryService(newFakeHistory(), testLogger())
	anon := domain.Identity{IPAddress: "1.2.3.4"}

	if _, err := svc.List(context.Background(), anon, 0); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("List error = %v", err)
	}
	if _, err := svc.Get(context.Background(), anon, "a1"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("Get error = %v", err)
	}
}

func TestHistory_List(t *testing.T) {
	repo := newFakeHistory()
	svc := NewHistoryService(repo, testLogger())
	user := domain.Identity{UserID: "u1"}

	tests := []struct {
		limit, want int
	}{
		{0, DefaultHistoryLimit},
		{10, 10},
		{500, MaxHistoryLimit},
	}
	for _, tt := range tests {
		entries, err := svc.List(context.Background(), user, tt.limit)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if repo.lastLimit != tt.want {
			t.Errorf("limit %d passed as %d, want %d", tt.limit, repo.lastLimit, tt.want)
		}
		if len(entries) != 2 {
			t.Errorf("entries = %d, want 2", len(entries))
		}
	}
}

func TestHistory_Get(t *testing.T) {
	svc := NewHistoryService(newFakeHistory(), testLogger())
	user := domain.Identity{UserID: "u1"}

	got, err := svc.Get(context.Background(), user, "a1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.HasResults || string(got.Results) != `{"grade":"B"}` || got.ViralScore != 84 {
		t.Errorf("detail = %+v", got)
	}

	got, err = svc.Get(context.Background(), user, "a2")
	if err != nil || got.HasResults || got.Results != nil {
		t.Errorf("a2 detail = %+v, err %v", got, err)
	}

	if _, err := svc.Get(context.Background(), user, "a3"); !errors.Is(err, domain.ErrAnalysisNotFound) {
		t.Errorf("other user's record: error = %v", err)
	}
	if _, err := svc.Get(context.Background(), user, "missing"); !errors.Is(err, domain.ErrAnalysisNotFound) {
		t.Errorf("missing record: error = %v", err)
	}
}

type fakeStatsReader struct {
	dayStart  time.Time
	limit     int
	recent    []*domain.Analysis
	recentErr error
}

func (f *fakeStatsReader) ListRecent(_ context.Context, limit int) ([]*domain.Analysis, error) {
	f.limit = limit
	return f.recent, f.recentErr
}

func (f *fakeStatsReader) Stats(_ context.Context, dayStart time.Time) (*repository.AnalysisStats, error) {
	f.dayStart = dayStart
	return &repository.AnalysisStats{Total: 7, GradeHistogram: map[string]int{"B": 7}}, nil
}

func TestStatsService(t *testing.T) {
	reader := &fakeStatsReader{}
	events := NewEventService(configWithBuffer(4), nil, testLogger())
	events.EmitWarning(domain.EventCategoryQuota, "quota", "failed open", nil)

	svc := NewStatsService(reader, events, t.TempDir())
	svc.now = func() time.Time { return time.Date(2026, 5, 17, 15, 30, 0, 0, time.UTC) }

	got, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if !reader.dayStart.Equal(time.Date(2026, 5, 17, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("day start = %v", reader.dayStart)
	}
	if got.Analyses.Total != 7 || got.Events.ByCategory[domain.EventCategoryQuota] != 1 {
		t.Errorf("stats = %+v", got)
	}
	if got.System.NumCPU == 0 || got.System.StoragePath == "" {
		t.Errorf("system = %+v", got.System)
	}
}

func TestStatsService_Recent(t *testing.T) {
	created := time.Date(2026, 5, 17, 9, 0, 0, 0, time.UTC)
	reader := &fakeStatsReader{recent: []*domain.Analysis{
		{ID: "a1", UserID: "u1", Mood: "funny", Grade: "B", ViralScore: 84, ModelUsed: domain.TierPremium, Results: []byte(`{}`), CreatedAt: created},
		{ID: "a2", IPAddress: "hash", Grade: "F", ViralScore: 41, ModelUsed: domain.TierFast, CreatedAt: created},
	}}
	svc := NewStatsService(reader, nil, "")

	tests := []struct {
		limit     int
		wantLimit int
	}{
		{0, DefaultRecentLimit},
		{5, 5},
		{1000, MaxRecentLimit},
	}
	for _, tt := range tests {
		got, err := svc.Recent(context.Background(), tt.limit)
		if err != nil {
			t.Fatalf("Recent(%d) error = %v", tt.limit, err)
		}
		if reader.limit != tt.wantLimit {
			t.Errorf("Recent(%d) queried limit %d, want %d", tt.limit, reader.limit, tt.wantLimit)
		}
		if len(got) != 2 {
			t.Fatalf("Recent() = %d rows", len(got))
		}
		if got[0].Anonymous || !got[0].HasResults || got[0].Mood != "funny" {
			t.Errorf("row 0 = %+v", got[0])
		}
		if !got[1].Anonymous || got[1].HasResults || got[1].ModelUsed != domain.TierFast {
			t.Errorf("row 1 = %+v", got[1])
		}
	}

	reader.recentErr = errors.New("no such table")
	if _, err := svc.Recent(context.Background(), 10); err == nil {
		t.Error("expected error from reader")
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Minute, "5m"},
		{3*time.Hour + 2*time.Minute, "3h 2m"},
		{50*time.Hour + 1*time.Minute, "2d 2h 1m"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.d); got != tt.want {
			t.Errorf("formatUptime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
