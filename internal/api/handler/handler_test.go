package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	mw "github.com/tokbox/tokbox/internal/api/middleware"
	"github.com/tokbox/tokbox/internal/config"
	"github.com/tokbox/tokbox/internal/domain"
	"github.com/tokbox/tokbox/internal/mood"
	"github.com/tokbox/tokbox/internal/service"
	"github.com/tokbox/tokbox/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAnalyzer struct {
	result *domain.AnalysisResult
	err    error
	gotID  domain.Identity
	gotReq service.AnalyzeRequest
}

func (f *fakeAnalyzer) Analyze(_ context.Context, id domain.Identity, req service.AnalyzeRequest) (*domain.AnalysisResult, error) {
	f.gotID = id
	f.gotReq = req
	return f.result, f.err
}

func postJSON(path, body string, id domain.Identity) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(mw.WithIdentity(req.Context(), id))
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return v
}

func TestAnalyze_Success(t *testing.T) {
	fake := &fakeAnalyzer{result: &domain.AnalysisResult{ID: "an-1", Grade: "B+", Captions: []string{"a"}}}
	h := NewAnalyzeHandler(fake, 1024, testLogger())
	id := domain.Identity{UserID: "u1", Plan: domain.PlanCreator}

	w := httptest.NewRecorder()
	h.Analyze(w, postJSON("/api/analyze", `{"videoUrl":"https://v","mood":"funny"}`, id))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if fake.gotID.UserID != "u1" || fake.gotReq.VideoURL != "https://v" || fake.gotReq.Mood != "funny" {
		t.Errorf("service got id=%+v req=%+v", fake.gotID, fake.gotReq)
	}
	got := decodeBody[map[string]any](t, w)
	if got["grade"] != "B+" || got["id"] != "an-1" {
		t.Errorf("body = %v", got)
	}
}

func TestAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"malformed body", `{"videoUrl":`, nil, http.StatusBadRequest, "invalid request body"},
		{"missing input", `{}`, fmt.Errorf("%w: videoUrl or videoData is required", domain.ErrInvalidRequest), http.StatusBadRequest, ""},
		{"upstream", `{"videoUrl":"x"}`, domain.NewAnalysisError("a", "ingest", fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, errors.New("502"))), http.StatusServiceUnavailable, domain.ErrUpstreamUnavailable.Error()},
		{"analysis", `{"videoUrl":"x"}`, fmt.Errorf("%w: parse", domain.ErrAnalysisFailed), http.StatusInternalServerError, domain.ErrAnalysisFailed.Error()},
		{"storage", `{"videoUrl":"x"}`, fmt.Errorf("%w: put", domain.ErrStorageFailed), http.StatusInternalServerError, domain.ErrStorageFailed.Error()},
		{"unclassified", `{"videoUrl":"x"}`, errors.New("secret dsn leaked"), http.StatusInternalServerError, "internal server error"},
		{"timeout", `{"videoUrl":"x"}`, fmt.Errorf("frames: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "request timed out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAnalyzeHandler(&fakeAnalyzer{err: tt.err}, 1024, testLogger())
			req := postJSON("/api/analyze", tt.body, domain.Identity{IPAddress: "ip"})
			req = req.WithContext(context.WithValue(req.Context(), chimw.RequestIDKey, "req-42"))
			w := httptest.NewRecorder()

			h.Analyze(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			body := decodeBody[ErrorResponse](t, w)
			if tt.wantError != "" && body.Error != tt.wantError {
				t.Errorf("error = %q, want %q", body.Error, tt.wantError)
			}
			if strings.Contains(w.Body.String(), "secret dsn") {
				t.Error("raw internal error leaked to client")
			}
			if tt.wantStatus == http.StatusInternalServerError && body.Details != "req-42" {
				t.Errorf("details = %q, want request id", body.Details)
			}
		})
	}
}

func TestAnalyze_LimitReached(t *testing.T) {
	limitErr := &domain.LimitError{
		Plan: domain.PlanFree, Message: "Upgrade to analyze more videos.", UpgradeRequired: true,
		Used: 1, Limit: 1, PeriodLabel: "total",
	}
	h := NewAnalyzeHandler(&fakeAnalyzer{err: limitErr}, 1024, testLogger())
	w := httptest.NewRecorder()

	h.Analyze(w, postJSON("/api/analyze", `{"videoUrl":"x"}`, domain.Identity{UserID: "u"}))

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d", w.Code)
	}
	got := decodeBody[LimitResponse](t, w)
	want := LimitResponse{
		Error: "limit_reached", Message: limitErr.Message, UpgradeRequired: true,
		CurrentPlan: domain.PlanFree, Usage: LimitUsage{Used: 1, Limit: 1, PeriodLabel: "total"},
	}
	if got != want {
		t.Errorf("body = %+v, want %+v", got, want)
	}
	if strings.Contains(w.Body.String(), "requiresSignUp") {
		t.Error("requiresSignUp should be omitted when false")
	}
}

func TestAnalyze_BodyTooLarge(t *testing.T) {
	h := NewAnalyzeHandler(&fakeAnalyzer{}, 0, testLogger())
	big := `{"videoData":"` + strings.Repeat("A", 2<<20) + `"}`
	w := httptest.NewRecorder()

	h.Analyze(w, postJSON("/api/analyze", big, domain.Identity{}))

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
}

type fakeUploadCreator struct {
	err error
}

func (f *fakeUploadCreator) CreateUploadURL(_ context.Context, filename, contentType string) (*service.UploadURL, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.UploadURL{UploadURL: "https://put/" + filename, VideoURL: "https://get/" + filename, Key: "videos/" + filename}, nil
}

func TestCreateUploadURL(t *testing.T) {
	h := NewUploadHandler(&fakeUploadCreator{}, testLogger())
	w := httptest.NewRecorder()
	h.CreateURL(w, postJSON("/api/upload-url", `{"filename":"a.mp4","contentType":"video/mp4"}`, domain.Identity{}))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	got := decodeBody[map[string]string](t, w)
	if got["uploadUrl"] != "https://put/a.mp4" || got["videoUrl"] != "https://get/a.mp4" || got["s3Key"] != "videos/a.mp4" {
		t.Errorf("body = %v", got)
	}

	h = NewUploadHandler(&fakeUploadCreator{err: domain.ErrUnsupportedContentType}, testLogger())
	w = httptest.NewRecorder()
	h.CreateURL(w, postJSON("/api/upload-url", `{"filename":"a.png","contentType":"image/png"}`, domain.Identity{}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

type fakeUsage struct{}

func (fakeUsage) CheckUsage(_ context.Context, id domain.Identity) (*service.UsageStatus, error) {
	return &service.UsageStatus{Plan: id.Plan, AnalysesUsed: 2, AnalysesLimit: 5, PeriodLabel: "today", Email: id.Email}, nil
}

type fakeHistory struct{}

func (fakeHistory) List(_ context.Context, id domain.Identity, limit int) ([]service.HistoryEntry, error) {
	if id.IsAnonymous() {
		return nil, domain.ErrUnauthenticated
	}
	return []service.HistoryEntry{{ID: "a1", Grade: "C", ViralScore: limit}}, nil
}

func (fakeHistory) Get(_ context.Context, id domain.Identity, analysisID domain.AnalysisID) (*service.HistoryDetail, error) {
	if id.IsAnonymous() {
		return nil, domain.ErrUnauthenticated
	}
	if analysisID != "a1" {
		return nil, domain.ErrAnalysisNotFound
	}
	return &service.HistoryDetail{
		HistoryEntry: service.HistoryEntry{ID: "a1", HasResults: true},
		Results:      json.RawMessage(`{"grade":"C"}`),
	}, nil
}

func TestAccount(t *testing.T) {
	h := NewAccountHandler(fakeUsage{}, fakeHistory{}, testLogger())
	user := domain.Identity{UserID: "u1", Email: "pro@example.com", Plan: domain.PlanPro}
	anon := domain.Identity{IPAddress: "ip"}

	tests := []struct {
		name       string
		handler    http.HandlerFunc
		target     string
		id         domain.Identity
		wantStatus int
		wantBody   string
	}{
		{"check usage", h.CheckUsage, "/api/check-usage", user, http.StatusOK, `"email":"pro@example.com"`},
		{"history anonymous", h.History, "/api/history", anon, http.StatusUnauthorized, ""},
		{"history list", h.History, "/api/history?limit=7", user, http.StatusOK, `"viralScore":7`},
		{"history bad limit", h.History, "/api/history?limit=abc", user, http.StatusBadRequest, ""},
		{"history single", h.History, "/api/history?id=a1", user, http.StatusOK, `"results":{"grade":"C"}`},
		{"history unknown id", h.History, "/api/history?id=zzz", user, http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			req = req.WithContext(mw.WithIdentity(req.Context(), tt.id))
			w := httptest.NewRecorder()

			tt.handler(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantBody != "" && !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body %s missing %s", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestMoods(t *testing.T) {
	table := mood.Default()
	h := NewMoodHandler(table)

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/moods", nil))
	got := decodeBody[map[string][]MoodEntry](t, w)
	if len(got["moods"]) != table.Len() {
		t.Errorf("moods = %d, want %d", len(got["moods"]), table.Len())
	}

	r := chi.NewRouter()
	r.Get("/api/moods/{moodID}", h.Get)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/moods/funny", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"hookStyle"`) {
		t.Errorf("get funny: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/moods/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("get unknown: %d", w.Code)
	}
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

type fakeStats struct{}

func (fakeStats) Stats(context.Context) (*service.OpsStats, error) {
	return &service.OpsStats{System: service.SystemStats{NumCPU: 4}}, nil
}

func (fakeStats) Recent(_ context.Context, limit int) ([]service.RecentAnalysis, error) {
	return []service.RecentAnalysis{{ID: "a1", Grade: "A-", ViralScore: limit}}, nil
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		pinger fakePinger
		want   int
	}{
		{"ready", fakePinger{}, http.StatusOK},
		{"db down", fakePinger{err: errors.New("refused")}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.pinger, fakeStats{}, testLogger())
			w := httptest.NewRecorder()
			h.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	h := NewHealthHandler(fakePinger{}, fakeStats{}, testLogger())
	w := httptest.NewRecorder()
	h.Live(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("live status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.Stats(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"num_cpu":4`) {
		t.Errorf("stats = %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	h.Recent(w, httptest.NewRequest(http.MethodGet, "/api/v1/analyses?limit=3", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"viral_score":3`) {
		t.Errorf("recent = %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	h.Recent(w, httptest.NewRequest(http.MethodGet, "/api/v1/analyses?limit=0", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("recent bad limit = %d", w.Code)
	}
}

func TestEvents(t *testing.T) {
	events := service.NewEventService(config.EventsConfig{RingBufferSize: 10}, nil, testLogger())
	events.EmitWarning(domain.EventCategoryQuota, "quota", "failed open", nil)
	events.EmitError(domain.EventCategoryUpstream, "ingest", "frame service down", nil)
	h := NewEventHandler(events, testLogger())

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/events?category=upstream", nil))
	got := decodeBody[EventListResponse](t, w)
	if got.Total != 1 || got.Events[0].Message != "frame service down" {
		t.Errorf("events = %+v", got)
	}

	w = httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/events?start_time=yesterday", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad start_time status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.Stats(w, httptest.NewRequest(http.MethodGet, "/api/v1/events/stats", nil))
	if !strings.Contains(w.Body.String(), `"quota":1`) {
		t.Errorf("stats body = %s", w.Body.String())
	}
}

func TestObjects_PutGet(t *testing.T) {
	store, err := storage.NewFilesystemStore(config.StorageConfig{
		BasePath:      t.TempDir(),
		SigningKey:    "signing-key",
		PublicBaseURL: "http://localhost:8080/uploads",
		MaxVideoSize:  16,
	})
	if err != nil {
		t.Fatal(err)
	}
	h := NewObjectHandler(store, testLogger())
	r := chi.NewRouter()
	r.Put("/uploads/*", h.Put)
	r.Get("/uploads/*", h.Get)

	presigned, err := store.PresignPut(context.Background(), "videos/clip.mp4", "video/mp4", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(presigned)
	if err != nil {
		t.Fatal(err)
	}

	put := func(target string, body []byte) int {
		req := httptest.NewRequest(http.MethodPut, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "video/mp4")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := put(u.RequestURI(), []byte("video!")); code != http.StatusOK {
		t.Fatalf("signed PUT status = %d", code)
	}
	if code := put("/uploads/videos/clip.mp4?expires=1&sig=bad", []byte("x")); code != http.StatusForbidden {
		t.Errorf("bad signature status = %d, want 403", code)
	}
	if code := put(u.RequestURI(), bytes.Repeat([]byte("x"), 32)); code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized PUT status = %d, want 413", code)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/uploads/videos/clip.mp4", nil))
	if w.Code != http.StatusOK || w.Body.String() != "video!" || w.Header().Get("Content-Type") != "video/mp4" {
		t.Errorf("GET = %d %q %q", w.Code, w.Body.String(), w.Header().Get("Content-Type"))
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/uploads/videos/missing.mp4", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing GET = %d", w.Code)
	}

	partial := filepath.Join(store.BasePath(), "videos", ".upload-42")
	if err := os.WriteFile(partial, []byte("half a video"), 0644); err != nil {
		t.Fatal(err)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/uploads/videos/.upload-42", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("partial upload GET = %d, want 404", w.Code)
	}
}
