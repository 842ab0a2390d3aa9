package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tokbox/tokbox/internal/domain"
	"github.com/tokbox/tokbox/internal/downloader"
	"github.com/tokbox/tokbox/internal/extract"
	"github.com/tokbox/tokbox/internal/grading"
	"github.com/tokbox/tokbox/internal/mood"
	"github.com/tokbox/tokbox/internal/prompt"
	"github.com/tokbox/tokbox/internal/quota"
	"github.com/tokbox/tokbox/internal/storage"
	"github.com/tokbox/tokbox/pkg/framesvc"
	"github.com/tokbox/tokbox/pkg/llm"
)

// ModelClient is an LLM provider that maps a tier to one of its models.
type ModelClient interface {
	llm.Client
	ModelFor(tier domain.ModelTier) string
}

// QuotaChecker decides whether an identity may run an analysis.
type QuotaChecker interface {
	Check(ctx context.Context, id domain.Identity) (quota.Decision, error)
}

// VideoUploader stores an embedded video payload and returns its URL.
type VideoUploader interface {
	UploadVideoData(ctx context.Context, payload string) (string, error)
}

// AnalysisRecorder persists a completed analysis.
type AnalysisRecorder interface {
	Insert(ctx context.Context, a *domain.Analysis) error
}

// AnalyzeRequest is the input of one analysis run.
type AnalyzeRequest struct {
	VideoURL  string
	VideoData string
	Mood      string
}

// Pipeline stages, in execution order.
const (
	StageAuthorize   = "authorize"
	StageIngest      = "ingest"
	StageStageFrames = "stage_frames"
	StageAnalysis    = "analysis"
	StageHooks       = "hooks"
	StageCaptions    = "captions"
	StageRecord      = "record"
)

// readURLTTL bounds the signed read URLs handed to the frame service and the
// frame fetcher. It must outlast one analysis run.
const readURLTTL = 15 * time.Minute

type failurePolicy int

const (
	// policyFatal aborts the run with the stage's sentinel error.
	policyFatal failurePolicy = iota
	// policyDegrade substitutes a placeholder and continues.
	policyDegrade
	// policyReport logs and alerts but keeps the result.
	policyReport
)

type stagePolicy struct {
	onFailure failurePolicy
	sentinel  error
	category  domain.EventCategory
}

var stagePolicies = map[string]stagePolicy{
	StageIngest:      {onFailure: policyFatal, sentinel: domain.ErrUpstreamUnavailable, category: domain.EventCategoryUpstream},
	StageStageFrames: {onFailure: policyFatal, sentinel: domain.ErrStorageFailed, category: domain.EventCategoryStorage},
	StageAnalysis:    {onFailure: policyFatal, sentinel: domain.ErrAnalysisFailed, category: domain.EventCategoryAI},
	StageHooks:       {onFailure: policyDegrade, category: domain.EventCategoryAI},
	StageCaptions:    {onFailure: policyDegrade, category: domain.EventCategoryAI},
	StageRecord:      {onFailure: policyReport, category: domain.EventCategoryDatabase},
}

// outcome is the tagged result of one stage.
type outcome[T any] struct {
	value    T
	degraded bool
	err      error
}

// runStage executes fn and applies the stage's failure policy. Fatal
// outcomes carry an *domain.AnalysisError wrapping the stage sentinel.
func runStage[T any](ctx context.Context, s *AnalysisService, id domain.AnalysisID, stage string, fn func(context.Context) (T, error), placeholder func() T) outcome[T] {
	start := time.Now()
	v, err := fn(ctx)
	if err == nil {
		s.logger.Debug("stage complete", "analysis_id", id, "stage", stage, "duration", time.Since(start))
		return outcome[T]{value: v}
	}

	policy := stagePolicies[stage]
	meta := domain.EventMetadata{"analysis_id": id.String(), "stage": stage, "error": err.Error()}

	switch policy.onFailure {
	case policyDegrade:
		s.logger.Warn("stage degraded", "analysis_id", id, "stage", stage, "error", err)
		s.emitWarning(policy.category, stage, "Stage degraded to placeholder output", meta)
		var fallback T
		if placeholder != nil {
			fallback = placeholder()
		}
		return outcome[T]{value: fallback, degraded: true}
	case policyReport:
		s.logger.Error("stage failed, continuing", "analysis_id", id, "stage", stage, "error", err)
		s.emitError(policy.category, stage, "Stage failed; response still returned", meta)
		return outcome[T]{value: v, degraded: true}
	default:
		s.logger.Error("stage failed", "analysis_id", id, "stage", stage, "error", err)
		if ctx.Err() == nil {
			s.emitError(policy.category, stage, "Analysis aborted", meta)
		}
		wrapped := err
		if policy.sentinel != nil && !errors.Is(err, policy.sentinel) {
			wrapped = fmt.Errorf("%w: %w", policy.sentinel, err)
		}
		return outcome[T]{err: domain.NewAnalysisError(id, stage, wrapped)}
	}
}

// AnalysisService runs the analyze pipeline: authorize, ingest, stage frames,
// analysis, hooks, captions, grade, record and compose.
type AnalysisService struct {
	quota    QuotaChecker
	frames   framesvc.Extractor
	uploader VideoUploader
	store    storage.Store
	fetcher  downloader.Fetcher
	analyzer ModelClient
	writer   ModelClient
	recorder AnalysisRecorder
	moods    *mood.Table
	events   domain.EventEmitter
	logger   *slog.Logger

	analysisExtractor extract.Extractor
	textExtractor     extract.Extractor

	now   func() time.Time
	newID func() domain.AnalysisID
}

// AnalysisDeps groups the collaborators of AnalysisService.
type AnalysisDeps struct {
	Quota    QuotaChecker
	Frames   framesvc.Extractor
	Uploader VideoUploader
	Store    storage.Store
	Fetcher  downloader.Fetcher
	// Analyzer runs the structured comprehensive analysis.
	Analyzer ModelClient
	// Writer generates hooks and captions.
	Writer   ModelClient
	Recorder AnalysisRecorder
	Moods    *mood.Table
	Events   domain.EventEmitter
}

// NewAnalysisService creates a new analysis service.
func NewAnalysisService(deps AnalysisDeps, logger *slog.Logger) *AnalysisService {
	moods := deps.Moods
	if moods == nil {
		moods = mood.Default()
	}
	return &AnalysisService{
		quota:             deps.Quota,
		frames:            deps.Frames,
		uploader:          deps.Uploader,
		store:             deps.Store,
		fetcher:           deps.Fetcher,
		analyzer:          deps.Analyzer,
		writer:            deps.Writer,
		recorder:          deps.Recorder,
		moods:             moods,
		events:            deps.Events,
		logger:            logger,
		analysisExtractor: extract.Chain(extract.Strict, extract.Greedy),
		textExtractor:     extract.Greedy,
		now:               time.Now,
		newID:             func() domain.AnalysisID { return domain.AnalysisID(uuid.NewString()) },
	}
}

// Analyze runs one analysis for id. A *domain.LimitError is returned when
// the caller has no quota left.
func (s *AnalysisService) Analyze(ctx context.Context, id domain.Identity, req AnalyzeRequest) (*domain.AnalysisResult, error) {
	req.VideoURL = strings.TrimSpace(req.VideoURL)
	req.Mood = strings.TrimSpace(req.Mood)
	if req.VideoURL == "" && req.VideoData == "" {
		return nil, fmt.Errorf("%w: videoUrl or videoData is required", domain.ErrInvalidRequest)
	}

	start := s.now()
	analysisID := s.newID()
	logger := s.logger.With("analysis_id", analysisID, "user_id", id.UserID)

	decision, err := s.quota.Check(ctx, id)
	if err != nil {
		return nil, domain.NewAnalysisError(analysisID, StageAuthorize, fmt.Errorf("check usage: %w", err))
	}
	if !decision.Allowed {
		logger.Info("analysis rejected by quota", "plan", decision.Plan, "used", decision.Used, "limit", decision.Limit)
		return nil, decision.LimitError()
	}

	var strategy *mood.Strategy
	if req.Mood != "" {
		if m, ok := s.moods.Get(req.Mood); ok {
			strategy = &m
		} else {
			logger.Warn("unknown mood, analyzing without persona", "mood", req.Mood)
		}
	}

	if req.VideoURL == "" {
		url, err := s.uploader.UploadVideoData(ctx, req.VideoData)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidRequest) || errors.Is(err, domain.ErrUnsupportedContentType) {
				return nil, err
			}
			return nil, domain.NewAnalysisError(analysisID, StageIngest, err)
		}
		req.VideoURL = url
	}

	logger.Info("analysis started", "plan", decision.Plan, "tier", decision.Tier, "mood", req.Mood)

	ingest := runStage(ctx, s, analysisID, StageIngest, func(ctx context.Context) (*framesvc.Result, error) {
		return s.frames.Extract(ctx, req.VideoURL)
	}, nil)
	if ingest.err != nil {
		return nil, ingest.err
	}
	video := ingest.value

	staged := runStage(ctx, s, analysisID, StageStageFrames, func(ctx context.Context) ([]string, error) {
		return s.stageFrames(ctx, analysisID, video.Frames)
	}, nil)
	if staged.err != nil {
		return nil, staged.err
	}

	images := s.encodeFrames(ctx, prompt.LimitFrames(staged.value, prompt.MaxAnalysisFrames))

	analysis := runStage(ctx, s, analysisID, StageAnalysis, func(ctx context.Context) (*prompt.AnalysisOutput, error) {
		return s.runAnalysis(ctx, decision.Tier, strategy, video.Duration, images)
	}, nil)
	if analysis.err != nil {
		return nil, analysis.err
	}
	out := analysis.value

	hooks := runStage(ctx, s, analysisID, StageHooks, func(ctx context.Context) (prompt.HooksOutput, error) {
		return s.runHooks(ctx, decision.Tier, strategy, out, prompt.LimitFrames(images, prompt.MaxHookFrames))
	}, prompt.PlaceholderHooks)

	captions := runStage(ctx, s, analysisID, StageCaptions, func(ctx context.Context) (prompt.CaptionsOutput, error) {
		return s.runCaptions(ctx, decision.Tier, strategy, out)
	}, prompt.PlaceholderCaptions)

	result := s.compose(analysisID, decision, strategy, out, hooks.value, captions.value)
	result.ProcessingTimeMs = s.now().Sub(start).Milliseconds()

	record := &domain.Analysis{
		ID:         analysisID,
		UserID:     id.UserID,
		UserEmail:  id.Email,
		IPAddress:  id.IPAddress,
		Mood:       req.Mood,
		VideoURL:   req.VideoURL,
		Grade:      result.Grade,
		ViralScore: result.ViralPotential,
		ModelUsed:  decision.Tier,
		CreatedAt:  s.now().UTC(),
	}
	if video.Duration > 0 {
		d := video.Duration
		record.VideoDurationSeconds = &d
	}
	runStage(ctx, s, analysisID, StageRecord, func(ctx context.Context) (struct{}, error) {
		blob, err := json.Marshal(result)
		if err != nil {
			return struct{}{}, fmt.Errorf("marshal result: %w", err)
		}
		record.Results = blob
		return struct{}{}, s.recorder.Insert(ctx, record)
	}, nil)

	logger.Info("analysis complete",
		"grade", result.Grade,
		"viral_potential", result.ViralPotential,
		"hooks_degraded", hooks.degraded,
		"captions_degraded", captions.degraded,
		"duration_ms", result.ProcessingTimeMs,
	)
	return result, nil
}

// stageFrames writes each base64 frame to storage and returns short-lived
// read URLs in frame order.
func (s *AnalysisService) stageFrames(ctx context.Context, id domain.AnalysisID, frames []string) ([]string, error) {
	urls := make([]string, len(frames))
	g, gctx := errgroup.WithContext(ctx)
	for i, frame := range frames {
		g.Go(func() error {
			data, _, err := decodePayload(frame)
			if err != nil {
				return fmt.Errorf("decode frame %d: %w", i, err)
			}
			key := storage.FrameKey(id.String(), i)
			if err := s.store.Put(gctx, key, "image/jpeg", bytes.NewReader(data)); err != nil {
				return fmt.Errorf("put frame %d: %w", i, err)
			}
			u, err := s.store.ReadURL(gctx, key, readURLTTL)
			if err != nil {
				return fmt.Errorf("sign frame %d: %w", i, err)
			}
			urls[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

// encodeFrames fetches frame images concurrently and returns them as data
// URIs in input order. Frames that fail to load are skipped.
func (s *AnalysisService) encodeFrames(ctx context.Context, urls []string) []string {
	encoded := make([]string, len(urls))
	var g errgroup.Group
	for i, url := range urls {
		g.Go(func() error {
			obj, err := s.fetcher.Fetch(ctx, url)
			if err != nil {
				s.logger.Warn("frame fetch failed, skipping", "url", url, "error", err)
				return nil
			}
			ct := obj.ContentType
			if !strings.HasPrefix(ct, "image/") {
				ct = "image/jpeg"
			}
			encoded[i] = "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(obj.Data)
			return nil
		})
	}
	_ = g.Wait()

	out := encoded[:0]
	for _, e := range encoded {
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

func (s *AnalysisService) runAnalysis(ctx context.Context, tier domain.ModelTier, strategy *mood.Strategy, duration float64, images []string) (*prompt.AnalysisOutput, error) {
	if len(images) == 0 {
		return nil, errors.New("no frame images could be loaded")
	}

	p := prompt.Analysis(prompt.AnalysisInput{Mood: strategy, DurationSeconds: duration, FrameCount: len(images)})
	text, err := s.analyzer.Complete(ctx, llm.Request{
		Model:       s.analyzer.ModelFor(tier),
		System:      p.System,
		Prompt:      p.User,
		Images:      images,
		JSON:        true,
		MaxTokens:   2000,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("analysis completion: %w", err)
	}

	var out prompt.AnalysisOutput
	if err := s.analysisExtractor.Extract(text, &out); err != nil {
		return nil, fmt.Errorf("parse analysis: %w", err)
	}
	return &out, nil
}

func (s *AnalysisService) runHooks(ctx context.Context, tier domain.ModelTier, strategy *mood.Strategy, a *prompt.AnalysisOutput, images []string) (prompt.HooksOutput, error) {
	p := prompt.Hooks(prompt.HooksInput{
		ContentDescription:  a.ContentDescription,
		Intent:              a.Intent,
		IsTrendFormat:       a.IsTrendFormat,
		TrendType:           deref(a.TrendType),
		ExistingTextOverlay: deref(a.ExistingTextOverlay),
		Mood:                strategy,
	})
	text, err := s.writer.Complete(ctx, llm.Request{
		Model:       s.writer.ModelFor(tier),
		System:      p.System,
		Prompt:      p.User,
		Images:      images,
		MaxTokens:   1200,
		Temperature: 0.9,
	})
	if err != nil {
		return prompt.HooksOutput{}, fmt.Errorf("hooks completion: %w", err)
	}

	var out prompt.HooksOutput
	if err := s.textExtractor.Extract(text, &out); err != nil {
		return prompt.HooksOutput{}, fmt.Errorf("parse hooks: %w", err)
	}
	if len(out.TextHooks)+len(out.VerbalHooks)+len(out.VisualHooks) == 0 {
		return prompt.HooksOutput{}, errors.New("hooks response had no hooks")
	}
	return out, nil
}

func (s *AnalysisService) runCaptions(ctx context.Context, tier domain.ModelTier, strategy *mood.Strategy, a *prompt.AnalysisOutput) (prompt.CaptionsOutput, error) {
	p := prompt.Captions(prompt.CaptionsInput{
		ContentDescription: a.ContentDescription,
		Intent:             a.Intent,
		Mood:               strategy,
	})
	text, err := s.writer.Complete(ctx, llm.Request{
		Model:       s.writer.ModelFor(tier),
		System:      p.System,
		Prompt:      p.User,
		MaxTokens:   600,
		Temperature: 0.9,
	})
	if err != nil {
		return prompt.CaptionsOutput{}, fmt.Errorf("captions completion: %w", err)
	}

	var out prompt.CaptionsOutput
	if !extract.ExtractOr(s.textExtractor, text, &out, prompt.CaptionsOutput{}) || len(out.Captions) == 0 {
		return prompt.CaptionsOutput{}, errors.New("captions response had no captions")
	}
	return out, nil
}

func (s *AnalysisService) compose(id domain.AnalysisID, d quota.Decision, strategy *mood.Strategy, a *prompt.AnalysisOutput, hooks prompt.HooksOutput, captions prompt.CaptionsOutput) *domain.AnalysisResult {
	hook := grading.NormalizeSubScore(a.Scores.Hook.Score)
	visual := grading.NormalizeSubScore(a.Scores.Visual.Score)
	pacing := grading.NormalizeSubScore(a.Scores.Pacing.Score)
	g := grading.Grade(float64(hook), float64(visual), float64(pacing))

	used := d.Used + 1
	result := &domain.AnalysisResult{
		ID:                  id,
		Grade:               g.Letter,
		GradeColor:          g.Color,
		ViralPotential:      g.ViralPotential,
		Summary:             a.Summary,
		ExistingTextOverlay: nonEmpty(a.ExistingTextOverlay),
		IsTrendFormat:       a.IsTrendFormat,
		TrendType:           nonEmpty(a.TrendType),
		Intent:              a.Intent,
		Scores: domain.Scores{
			Hook:   domain.ScoreDetail{Score: hook, Feedback: a.Scores.Hook.Feedback},
			Visual: domain.ScoreDetail{Score: visual, Feedback: a.Scores.Visual.Feedback},
			Pacing: domain.ScoreDetail{Score: pacing, Feedback: a.Scores.Pacing.Feedback},
		},
		ContentDescription: a.ContentDescription,
		Strengths:          orEmpty(a.Strengths),
		Improvements:       orEmpty(a.Improvements),
		TheOneThing:        a.TheOneThing,
		AdvancedInsight:    a.AdvancedInsight,
		Hooks: domain.HookSet{
			TextHooks:   orEmpty(hooks.TextHooks),
			VerbalHooks: orEmpty(hooks.VerbalHooks),
			VisualHooks: orEmpty(hooks.VisualHooks),
		},
		RecommendedHookType:    hooks.RecommendedHookType,
		ExistingTextAssessment: hooks.ExistingTextAssessment,
		WhyThisHookType:        hooks.WhyThisHookType,
		Captions:               orEmpty(captions.Captions),
		Usage: domain.UsageSummary{
			Plan:               d.Plan,
			ModelUsed:          d.Tier,
			AnalysesUsed:       used,
			AnalysesLimit:      d.Limit,
			IsLastFreeAnalysis: !d.Plan.IsPaid() && used >= d.Limit,
		},
	}
	if strategy != nil {
		result.MoodStrategy = &domain.MoodSummary{
			ID:           strategy.ID,
			Name:         strategy.Name,
			HookStyle:    strategy.HookStyle,
			CaptionStyle: strategy.CaptionStyle,
		}
	}
	return result
}

func (s *AnalysisService) emitWarning(category domain.EventCategory, source, msg string, meta domain.EventMetadata) {
	if s.events != nil {
		s.events.EmitWarning(category, source, msg, meta)
	}
}

func (s *AnalysisService) emitError(category domain.EventCategory, source, msg string, meta domain.EventMetadata) {
	if s.events != nil {
		s.events.EmitError(category, source, msg, meta)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// nonEmpty drops empty strings so they serialize as absent.
func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
