package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tokbox/tokbox/internal/config"
	"github.com/tokbox/tokbox/internal/domain"
	"github.com/tokbox/tokbox/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestDB(t *testing.T) *repository.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "events.db")
	db, err := repository.Open(context.Background(), config.DatabaseConfig{Driver: repository.DriverSQLite, DSN: dsn})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEventService_Emit(t *testing.T) {
	svc := NewEventService(config.EventsConfig{RingBufferSize: 10}, nil, testLogger())
	defer svc.Close()

	svc.EmitWarning(domain.EventCategoryQuota, "quota", "count failed", domain.EventMetadata{"plan": "pro"})

	events := svc.GetRecent(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.Message != "count failed" || e.Category != domain.EventCategoryQuota || e.Severity != domain.EventSeverityWarning {
		t.Errorf("unexpected event: %+v", e)
	}
	if e.ID == "" || e.Timestamp.IsZero() {
		t.Error("id and timestamp should be filled in")
	}
	if string(e.Metadata) != `{"plan":"pro"}` {
		t.Errorf("metadata = %s", e.Metadata)
	}
}

func TestEventService_RingBuffer(t *testing.T) {
	svc := NewEventService(config.EventsConfig{RingBufferSize: 5}, nil, testLogger())
	defer svc.Close()

	for i := 0; i < 10; i++ {
		svc.EmitInfo(domain.EventCategorySystem, "test", fmt.Sprintf("message %d", i), nil)
	}

	events := svc.GetRecent(10)
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	if events[0].Message != "message 9" {
		t.Errorf("newest = %q, want message 9", events[0].Message)
	}
	if events[4].Message != "message 5" {
		t.Errorf("oldest = %q, want message 5", events[4].Message)
	}
}

func TestEventService_QueryFilter(t *testing.T) {
	svc := NewEventService(config.EventsConfig{RingBufferSize: 100}, nil, testLogger())
	defer svc.Close()

	svc.EmitInfo(domain.EventCategoryAI, "analysis", "analysis complete", nil)
	svc.EmitError(domain.EventCategoryUpstream, "frames", "frame service unreachable", nil)
	svc.EmitWarning(domain.EventCategoryStorage, "storage", "slow bucket write", nil)
	svc.EmitWarning(domain.EventCategoryAI, "hooks", "hooks degraded to placeholder", nil)

	errSev := domain.EventSeverityError
	aiCat := domain.EventCategoryAI

	tests := []struct {
		name   string
		filter domain.EventFilter
		want   int
	}{
		{"severity", domain.EventFilter{Severity: &errSev}, 1},
		{"category", domain.EventFilter{Category: &aiCat}, 2},
		{"source", domain.EventFilter{Source: "storage"}, 1},
		{"search is case-insensitive", domain.EventFilter{SearchText: "PLACEHOLDER"}, 1},
		{"none", domain.EventFilter{}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Query(context.Background(), domain.EventQuery{Filter: tt.filter, Limit: 10})
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(res.Events) != tt.want {
				t.Errorf("got %d events, want %d", len(res.Events), tt.want)
			}
		})
	}
}

func TestEventService_Pagination(t *testing.T) {
	svc := NewEventService(config.EventsConfig{RingBufferSize: 100}, nil, testLogger())
	defer svc.Close()

	for i := 0; i < 25; i++ {
		svc.EmitInfo(domain.EventCategorySystem, "test", fmt.Sprintf("event %d", i), nil)
	}

	pages := []struct {
		offset  int
		want    int
		hasMore bool
	}{
		{0, 10, true},
		{10, 10, true},
		{20, 5, false},
		{30, 0, false},
	}
	for _, p := range pages {
		res, err := svc.Query(context.Background(), domain.EventQuery{Limit: 10, Offset: p.offset})
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		if len(res.Events) != p.want || res.HasMore != p.hasMore || res.Total != 25 {
			t.Errorf("offset %d: got %d events hasMore=%v total=%d", p.offset, len(res.Events), res.HasMore, res.Total)
		}
	}
}

func TestEventService_Subscribe(t *testing.T) {
	svc := NewEventService(config.EventsConfig{RingBufferSize: 10}, nil, testLogger())
	defer svc.Close()

	id, ch := svc.Subscribe()
	if got := svc.Stats().Subscribers; got != 1 {
		t.Fatalf("subscribers = %d, want 1", got)
	}

	svc.EmitInfo(domain.EventCategorySystem, "test", "live", nil)

	select {
	case e := <-ch:
		if e.Message != "live" {
			t.Errorf("received %q", e.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	svc.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}
	if got := svc.Stats().Subscribers; got != 0 {
		t.Errorf("subscribers = %d, want 0", got)
	}
}

func TestEventService_ConcurrentEmit(t *testing.T) {
	svc := NewEventService(config.EventsConfig{RingBufferSize: 1000}, nil, testLogger())
	defer svc.Close()

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 150; i++ {
				svc.EmitInfo(domain.EventCategorySystem, "test", "concurrent", domain.EventMetadata{"g": g, "i": i})
			}
		}(g)
	}
	wg.Wait()

	stats := svc.Stats()
	if stats.BufferUsed != 1000 {
		t.Errorf("buffer used = %d, want 1000", stats.BufferUsed)
	}
	if stats.ByCategory[domain.EventCategorySystem] != 1500 {
		t.Errorf("system count = %d, want 1500", stats.ByCategory[domain.EventCategorySystem])
	}
}

func TestEventService_PersistDisabledWithoutFlag(t *testing.T) {
	db := openTestDB(t)
	svc := NewEventService(config.EventsConfig{RingBufferSize: 10}, db, testLogger())
	svc.EmitInfo(domain.EventCategorySystem, "test", "memory only", nil)
	svc.Close()

	if svc.Stats().Persisted {
		t.Error("persistence should be off")
	}
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM ops_events").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("rows = %d, want 0", n)
	}
}

func TestEventService_QueryHistorical(t *testing.T) {
	db := openTestDB(t)
	svc := NewEventService(config.EventsConfig{RingBufferSize: 2, Persist: true, RetentionDays: 30}, db, testLogger())

	svc.Emit(domain.Event{
		Severity:  domain.EventSeverityWarning,
		Category:  domain.EventCategoryQuota,
		Source:    "quota",
		Message:   "ancient",
		Timestamp: time.Now().UTC().AddDate(0, 0, -60),
	})
	svc.EmitError(domain.EventCategoryUpstream, "frames", "frame service down", domain.EventMetadata{"status": 502})
	svc.EmitInfo(domain.EventCategorySystem, "server", "started", nil)
	svc.EmitInfo(domain.EventCategorySystem, "server", "ready", nil)
	svc.Close()

	ctx := context.Background()
	res, err := svc.QueryHistorical(ctx, domain.EventQuery{Limit: 10})
	if err != nil {
		t.Fatalf("QueryHistorical() error = %v", err)
	}
	// The ring only holds two, the table holds all four.
	if res.Total != 4 || len(svc.GetRecent(10)) != 2 {
		t.Errorf("total = %d, ring = %d", res.Total, len(svc.GetRecent(10)))
	}

	up := domain.EventCategoryUpstream
	res, err = svc.QueryHistorical(ctx, domain.EventQuery{Filter: domain.EventFilter{Category: &up}})
	if err != nil {
		t.Fatalf("QueryHistorical(category) error = %v", err)
	}
	if len(res.Events) != 1 || res.Events[0].Message != "frame service down" {
		t.Fatalf("category filter = %+v", res.Events)
	}
	if string(res.Events[0].Metadata) != `{"status":502}` {
		t.Errorf("metadata = %s", res.Events[0].Metadata)
	}

	if err := svc.CleanupOldEvents(ctx); err != nil {
		t.Fatalf("CleanupOldEvents() error = %v", err)
	}
	res, err = svc.QueryHistorical(ctx, domain.EventQuery{Filter: domain.EventFilter{SearchText: "ancient"}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 0 {
		t.Errorf("expired event survived cleanup")
	}
}

func TestEventService_QueryHistoricalWithoutDB(t *testing.T) {
	svc := NewEventService(config.EventsConfig{Persist: true}, nil, testLogger())
	res, err := svc.QueryHistorical(context.Background(), domain.EventQuery{})
	if err != nil {
		t.Fatalf("QueryHistorical() error = %v", err)
	}
	if len(res.Events) != 0 {
		t.Errorf("expected no events, got %d", len(res.Events))
	}
}

func configWithBuffer(n int) config.EventsConfig {
	return config.EventsConfig{RingBufferSize: n}
}
