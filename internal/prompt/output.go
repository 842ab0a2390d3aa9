package prompt

// ScoreOutput is one sub-score as the model returns it. Score is a pointer so
// a missing value can be told apart from zero.
type ScoreOutput struct {
	Score    *float64 `json:"score"`
	Feedback string   `json:"feedback"`
}

// AnalysisOutput is the JSON shape requested by the comprehensive analysis prompt.
type AnalysisOutput struct {
	ExistingTextOverlay *string `json:"existing_text_overlay"`
	IsTrendFormat       bool    `json:"is_trend_format"`
	TrendType           *string `json:"trend_type"`
	Intent              string  `json:"intent"`
	ContentDescription  string  `json:"content_description"`
	Summary             string  `json:"summary"`
	Scores              struct {
		Hook   ScoreOutput `json:"hook"`
		Visual ScoreOutput `json:"visual"`
		Pacing ScoreOutput `json:"pacing"`
	} `json:"scores"`
	Strengths       []string `json:"strengths"`
	Improvements    []string `json:"improvements"`
	TheOneThing     string   `json:"the_one_thing"`
	AdvancedInsight string   `json:"advanced_insight"`
}

// HooksOutput is the JSON shape requested by the hook generation prompt.
type HooksOutput struct {
	TextHooks              []string `json:"text_hooks"`
	VerbalHooks            []string `json:"verbal_hooks"`
	VisualHooks            []string `json:"visual_hooks"`
	RecommendedHookType    string   `json:"recommended_hook_type"`
	ExistingTextAssessment string   `json:"existing_text_assessment"`
	WhyThisHookType        string   `json:"why_this_hook_type"`
}

// CaptionsOutput is the JSON shape requested by the caption prompt.
type CaptionsOutput struct {
	Captions []string `json:"captions"`
}

// PlaceholderHooks is served when hook generation fails. It points the creator
// back at their own footage instead of showing an error.
func PlaceholderHooks() HooksOutput {
	return HooksOutput{
		TextHooks: []string{
			"Watch your first second back: what would make a stranger keep watching?",
		},
		VerbalHooks: []string{
			"Look at your own video and say the most surprising thing in it out loud, first.",
		},
		VisualHooks: []string{
			"Look at your own video and open on its most striking frame.",
		},
		RecommendedHookType: "visual",
		WhyThisHookType:     "Hook suggestions could not be generated for this video. Your strongest frame is the safest opener.",
	}
}

// PlaceholderCaptions is served when caption generation fails.
func PlaceholderCaptions() CaptionsOutput {
	return CaptionsOutput{
		Captions: []string{
			"The ending of this one though",
			"Had to share this one",
			"Would you try this?",
		},
	}
}
