package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tokbox/tokbox/internal/config"
	"github.com/tokbox/tokbox/internal/domain"
	"github.com/tokbox/tokbox/internal/repository"
)

// EventService keeps recent ops events in a ring buffer and optionally
// mirrors them to the ops_events table.
type EventService struct {
	cfg    config.EventsConfig
	logger *slog.Logger

	mu     sync.RWMutex
	events []domain.Event
	head   int
	count  int
	seq    uint64

	// nil when persistence is off
	db      *repository.DB
	writers sync.WaitGroup

	subMu       sync.RWMutex
	subscribers map[uint64]chan domain.Event
	subSeq      uint64

	byCategory map[domain.EventCategory]int
	bySeverity map[domain.EventSeverity]int
}

// NewEventService creates an event service. db may be nil; it is only used
// when cfg.Persist is set.
func NewEventService(cfg config.EventsConfig, db *repository.DB, logger *slog.Logger) *EventService {
	if cfg.RingBufferSize <= 0 {
		cfg.RingBufferSize = 1000
	}

	svc := &EventService{
		cfg:         cfg,
		logger:      logger,
		events:      make([]domain.Event, cfg.RingBufferSize),
		subscribers: make(map[uint64]chan domain.Event),
		byCategory:  make(map[domain.EventCategory]int),
		bySeverity:  make(map[domain.EventSeverity]int),
	}
	if cfg.Persist && db != nil {
		svc.db = db
		logger.Info("event persistence enabled", "driver", db.Driver)
	}
	return svc
}

// Close waits for pending writes. The database itself is owned by the caller.
func (s *EventService) Close() error {
	s.writers.Wait()
	return nil
}

// Emit records an event.
func (s *EventService) Emit(event domain.Event) {
	if event.ID == "" {
		seq := atomic.AddUint64(&s.seq, 1)
		event.ID = domain.EventID(fmt.Sprintf("evt_%d_%d", time.Now().UnixNano(), seq))
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	s.events[s.head] = event
	s.head = (s.head + 1) % s.cfg.RingBufferSize
	if s.count < s.cfg.RingBufferSize {
		s.count++
	}
	s.byCategory[event.Category]++
	s.bySeverity[event.Severity]++
	s.mu.Unlock()

	if s.db != nil {
		s.writers.Add(1)
		go func() {
			defer s.writers.Done()
			s.persist(event)
		}()
	}

	s.notify(event)

	level := slog.LevelInfo
	switch event.Severity {
	case domain.EventSeverityWarning:
		level = slog.LevelWarn
	case domain.EventSeverityError:
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, "ops event",
		"event_id", event.ID,
		"category", event.Category,
		"severity", event.Severity,
		"message", event.Message,
		"source", event.Source,
	)
}

// EmitInfo records an info event.
func (s *EventService) EmitInfo(category domain.EventCategory, source, message string, metadata domain.EventMetadata) {
	s.emit(domain.EventSeverityInfo, category, source, message, metadata)
}

// EmitWarning records a warning event.
func (s *EventService) EmitWarning(category domain.EventCategory, source, message string, metadata domain.EventMetadata) {
	s.emit(domain.EventSeverityWarning, category, source, message, metadata)
}

// EmitError records an error event.
func (s *EventService) EmitError(category domain.EventCategory, source, message string, metadata domain.EventMetadata) {
	s.emit(domain.EventSeverityError, category, source, message, metadata)
}

// EmitSuccess records a success event.
func (s *EventService) EmitSuccess(category domain.EventCategory, source, message string, metadata domain.EventMetadata) {
	s.emit(domain.EventSeveritySuccess, category, source, message, metadata)
}

func (s *EventService) emit(sev domain.EventSeverity, category domain.EventCategory, source, message string, metadata domain.EventMetadata) {
	s.Emit(domain.Event{
		Severity: sev,
		Category: category,
		Source:   source,
		Message:  message,
		Metadata: metadata.ToJSON(),
	})
}

func (s *EventService) persist(event domain.Event) {
	var metadata sql.NullString
	if len(event.Metadata) > 0 {
		metadata = sql.NullString{String: string(event.Metadata), Valid: true}
	}

	_, err := s.db.Exec(s.db.Rebind(`
		INSERT INTO ops_events (id, timestamp, severity, category, message, source, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		event.ID.String(), event.Timestamp.UTC(), string(event.Severity), string(event.Category),
		event.Message, event.Source, metadata)
	if err != nil {
		s.logger.Warn("failed to persist event", "event_id", event.ID, "error", err)
	}
}

func normalizeLimit(q *domain.EventQuery) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 200 {
		q.Limit = 200
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
}

// Query filters the in-memory buffer, newest first.
func (s *EventService) Query(ctx context.Context, query domain.EventQuery) (*domain.EventQueryResult, error) {
	normalizeLimit(&query)

	s.mu.RLock()
	matched := make([]domain.Event, 0, s.count)
	for i := 0; i < s.count; i++ {
		event := s.events[s.index(i)]
		if matchesFilter(event, query.Filter) {
			matched = append(matched, event)
		}
	}
	s.mu.RUnlock()

	total := len(matched)
	if query.Offset >= total {
		return &domain.EventQueryResult{Events: []domain.Event{}, Total: total}, nil
	}
	end := query.Offset + query.Limit
	if end > total {
		end = total
	}
	return &domain.EventQueryResult{
		Events:  matched[query.Offset:end],
		Total:   total,
		HasMore: end < total,
	}, nil
}

// QueryHistorical queries persisted events. It returns an empty result when
// persistence is off.
func (s *EventService) QueryHistorical(ctx context.Context, query domain.EventQuery) (*domain.EventQueryResult, error) {
	if s.db == nil {
		return &domain.EventQueryResult{Events: []domain.Event{}}, nil
	}
	normalizeLimit(&query)

	var (
		conds []string
		args  []any
	)
	f := query.Filter
	if f.Severity != nil {
		conds = append(conds, "severity = ?")
		args = append(args, string(*f.Severity))
	}
	if f.Category != nil {
		conds = append(conds, "category = ?")
		args = append(args, string(*f.Category))
	}
	if f.Source != "" {
		conds = append(conds, "source = ?")
		args = append(args, f.Source)
	}
	if f.StartTime != nil {
		conds = append(conds, "timestamp >= ?")
		args = append(args, f.StartTime.UTC())
	}
	if f.EndTime != nil {
		conds = append(conds, "timestamp <= ?")
		args = append(args, f.EndTime.UTC())
	}
	if f.SearchText != "" {
		conds = append(conds, "LOWER(message) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.SearchText)+"%")
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, s.db.Rebind("SELECT COUNT(*) FROM ops_events "+where), args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
		SELECT id, timestamp, severity, category, message, source, metadata
		FROM ops_events `+where+`
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?`), append(args, query.Limit, query.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0, query.Limit)
	for rows.Next() {
		var (
			e        domain.Event
			source   sql.NullString
			metadata sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Severity, &e.Category, &e.Message, &source, &metadata); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Source = source.String
		if metadata.Valid && metadata.String != "" {
			e.Metadata = json.RawMessage(metadata.String)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return &domain.EventQueryResult{
		Events:  events,
		Total:   total,
		HasMore: query.Offset+len(events) < total,
	}, nil
}

// GetRecent returns up to n events, newest first.
func (s *EventService) GetRecent(n int) []domain.Event {
	if n <= 0 {
		n = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if n > s.count {
		n = s.count
	}
	out := make([]domain.Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s.events[s.index(i)])
	}
	return out
}

// index maps the i-th newest event to its slot. Callers hold mu.
func (s *EventService) index(i int) int {
	return (s.head - 1 - i + s.cfg.RingBufferSize) % s.cfg.RingBufferSize
}

func matchesFilter(event domain.Event, f domain.EventFilter) bool {
	if f.Severity != nil && event.Severity != *f.Severity {
		return false
	}
	if f.Category != nil && event.Category != *f.Category {
		return false
	}
	if f.Source != "" && event.Source != f.Source {
		return false
	}
	if f.StartTime != nil && event.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && event.Timestamp.After(*f.EndTime) {
		return false
	}
	if f.SearchText != "" && !strings.Contains(strings.ToLower(event.Message), strings.ToLower(f.SearchText)) {
		return false
	}
	return true
}

// Subscribe registers a live listener. Call Unsubscribe when done.
func (s *EventService) Subscribe() (uint64, <-chan domain.Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.subSeq++
	id := s.subSeq
	ch := make(chan domain.Event, 100)
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (s *EventService) Unsubscribe(id uint64) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

func (s *EventService) notify(event domain.Event) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for id, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			s.logger.Warn("event subscriber full, dropping event", "subscriber_id", id, "event_id", event.ID)
		}
	}
}

// EventStats summarises the event log.
type EventStats struct {
	BufferSize  int                          `json:"buffer_size"`
	BufferUsed  int                          `json:"buffer_used"`
	Subscribers int                          `json:"subscribers"`
	Persisted   bool                         `json:"persisted"`
	ByCategory  map[domain.EventCategory]int `json:"by_category"`
	BySeverity  map[domain.EventSeverity]int `json:"by_severity"`
}

// Stats returns counters since process start.
func (s *EventService) Stats() EventStats {
	s.mu.RLock()
	stats := EventStats{
		BufferSize: s.cfg.RingBufferSize,
		BufferUsed: s.count,
		Persisted:  s.db != nil,
		ByCategory: make(map[domain.EventCategory]int, len(s.byCategory)),
		BySeverity: make(map[domain.EventSeverity]int, len(s.bySeverity)),
	}
	for k, v := range s.byCategory {
		stats.ByCategory[k] = v
	}
	for k, v := range s.bySeverity {
		stats.BySeverity[k] = v
	}
	s.mu.RUnlock()

	s.subMu.RLock()
	stats.Subscribers = len(s.subscribers)
	s.subMu.RUnlock()
	return stats
}

// CleanupOldEvents deletes persisted events past the retention window.
func (s *EventService) CleanupOldEvents(ctx context.Context) error {
	if s.db == nil || s.cfg.RetentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.RetentionDays)
	res, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM ops_events WHERE timestamp < ?"), cutoff)
	if err != nil {
		return fmt.Errorf("delete old events: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Info("cleaned up old events", "deleted", n, "cutoff", cutoff)
	}
	return nil
}
