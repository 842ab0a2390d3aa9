package domain

// ScoreDetail is one graded dimension with the model's feedback.
type ScoreDetail struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// Scores groups the three graded dimensions. Pacing is the execution score.
type Scores struct {
	Hook   ScoreDetail `json:"hook"`
	Visual ScoreDetail `json:"visual"`
	Pacing ScoreDetail `json:"pacing"`
}

// HookSet holds generated hook variants per category.
type HookSet struct {
	TextHooks   []string `json:"textHooks"`
	VerbalHooks []string `json:"verbalHooks"`
	VisualHooks []string `json:"visualHooks"`
}

// MoodSummary is the subset of a mood strategy echoed back to the client.
type MoodSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	HookStyle    string `json:"hookStyle"`
	CaptionStyle string `json:"captionStyle"`
}

// UsageSummary lets the client render "X of Y used" without another request.
type UsageSummary struct {
	Plan               Plan      `json:"plan"`
	ModelUsed          ModelTier `json:"modelUsed"`
	AnalysesUsed       int       `json:"analysesUsed"`
	AnalysesLimit      int       `json:"analysesLimit"`
	IsLastFreeAnalysis bool      `json:"isLastFreeAnalysis"`
}

// AnalysisResult is the payload returned by a successful analyze call.
type AnalysisResult struct {
	ID                     AnalysisID   `json:"id"`
	ProcessingTimeMs       int64        `json:"processingTimeMs"`
	Grade                  string       `json:"grade"`
	GradeColor             string       `json:"gradeColor"`
	ViralPotential         int          `json:"viralPotential"`
	Summary                string       `json:"summary"`
	ExistingTextOverlay    *string      `json:"existingTextOverlay,omitempty"`
	IsTrendFormat          bool         `json:"isTrendFormat"`
	TrendType              *string      `json:"trendType,omitempty"`
	Intent                 string       `json:"intent,omitempty"`
	Scores                 Scores       `json:"scores"`
	ContentDescription     string       `json:"contentDescription"`
	Strengths              []string     `json:"strengths"`
	Improvements           []string     `json:"improvements"`
	TheOneThing            string       `json:"theOneThing,omitempty"`
	AdvancedInsight        string       `json:"advancedInsight,omitempty"`
	Hooks                  HookSet      `json:"hooks"`
	RecommendedHookType    string       `json:"recommendedHookType"`
	ExistingTextAssessment string       `json:"existingTextAssessment,omitempty"`
	WhyThisHookType        string       `json:"whyThisHookType,omitempty"`
	Captions               []string     `json:"captions"`
	MoodStrategy           *MoodSummary `json:"moodStrategy,omitempty"`
	Usage                  UsageSummary `json:"usage"`
}
