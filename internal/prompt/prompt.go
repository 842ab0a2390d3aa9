// Package prompt builds the three LLM prompts used by an analysis run:
// the comprehensive analysis, hook generation and caption generation.
package prompt

import (
	"fmt"
	"strings"

	"github.com/tokbox/tokbox/internal/mood"
)

// Frame limits per call.
const (
	MaxAnalysisFrames = 5
	MaxHookFrames     = 3
)

// BannedPhrases are openers the hook prompt forbids because they are generic.
var BannedPhrases = []string{
	"You won't believe",
	"Wait for it",
	"Watch till the end",
	"POV:",
	"Nobody is talking about",
	"This changed my life",
	"Here's why",
	"Let me tell you",
	"Did you know",
	"Stop scrolling",
}

// Prompt is a system and user message pair.
type Prompt struct {
	System string
	User   string
}

// AnalysisInput parameterizes the comprehensive analysis prompt.
type AnalysisInput struct {
	Mood            *mood.Strategy // nil omits the persona section
	DurationSeconds float64
	FrameCount      int
}

// HooksInput parameterizes the hook prompt with fields parsed from the analysis.
type HooksInput struct {
	ContentDescription  string
	Intent              string
	IsTrendFormat       bool
	TrendType           string
	ExistingTextOverlay string
	Mood                *mood.Strategy
}

// CaptionsInput parameterizes the caption prompt.
type CaptionsInput struct {
	ContentDescription string
	Intent             string
	Mood               *mood.Strategy
}

// LimitFrames returns at most n frames, keeping order.
func LimitFrames(frames []string, n int) []string {
	if len(frames) <= n {
		return frames
	}
	return frames[:n]
}

const analysisSystem = `You are a short-form video strategist who has reviewed thousands of TikToks, Reels and Shorts.
You grade honestly: most videos are average and deserve a 5 or 6. Reserve 9 and 10 for work that is genuinely exceptional.
Return ONLY a JSON object. No markdown, no explanation.`

// Analysis builds the comprehensive analysis prompt.
func Analysis(in AnalysisInput) Prompt {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("You are looking at %d frames sampled in order from a short-form video", in.FrameCount))
	if in.DurationSeconds > 0 {
		sb.WriteString(fmt.Sprintf(" that runs %.1f seconds", in.DurationSeconds))
	}
	sb.WriteString(".\n\n")

	if in.Mood != nil {
		writePersona(&sb, in.Mood)
	}

	sb.WriteString(`SCORING RUBRIC (each score is an integer from 1 to 10):
- hook: does the first second stop the scroll? Judge the opening frame, any text overlay and the implied first line.
- visual: lighting, framing, focus, colour and on-screen text legibility.
- pacing: cut frequency, dead air, whether the video earns its length.

First read any text overlay already burned into the video. If there is none, use null.
Decide whether the video follows a recognizable trend format and name it if so.
State the creator's intent in a few words (for example "educate", "entertain", "sell", "inspire").

Return JSON with exactly these fields:
{
  "existing_text_overlay": string or null,
  "is_trend_format": boolean,
  "trend_type": string or null,
  "intent": string,
  "content_description": "2-3 sentences describing what happens in the video",
  "summary": "one sentence verdict for the creator",
  "scores": {
    "hook": {"score": integer, "feedback": string},
    "visual": {"score": integer, "feedback": string},
    "pacing": {"score": integer, "feedback": string}
  },
  "strengths": [string, string, string],
  "improvements": [string, string, string],
  "the_one_thing": "the single change with the biggest impact",
  "advanced_insight": "one non-obvious observation an expert would make"
}`)

	return Prompt{System: analysisSystem, User: sb.String()}
}

func writePersona(sb *strings.Builder, m *mood.Strategy) {
	sb.WriteString(fmt.Sprintf("CREATOR MOOD: %s %s\n", m.Name, m.Emoji))
	sb.WriteString("Judge this video as an expert in this style of content.\n\n")
	sb.WriteString("Audience psychology:\n")
	sb.WriteString(m.Psychology)
	sb.WriteString("\n\nCommon mistakes in this style:\n")
	for _, mistake := range m.CommonMistakes {
		sb.WriteString("- ")
		sb.WriteString(mistake)
		sb.WriteString("\n")
	}
	sb.WriteString("\nScoring focus:\n")
	sb.WriteString(m.ScoringFocus)
	sb.WriteString("\n\nAdvanced tips you may draw on:\n")
	for _, tip := range m.AdvancedTips {
		sb.WriteString("- ")
		sb.WriteString(tip)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

const hooksSystem = `You write scroll-stopping hooks for short-form video. Every hook must be specific to the footage you are shown.
Return ONLY a JSON object.`

// Hooks builds the hook generation prompt.
func Hooks(in HooksInput) Prompt {
	var sb strings.Builder

	sb.WriteString("Write hooks for this video.\n\n")
	sb.WriteString(fmt.Sprintf("What happens: %s\n", in.ContentDescription))
	if in.Intent != "" {
		sb.WriteString(fmt.Sprintf("Creator intent: %s\n", in.Intent))
	}
	if in.IsTrendFormat {
		trend := in.TrendType
		if trend == "" {
			trend = "unnamed trend"
		}
		sb.WriteString(fmt.Sprintf("Trend format: %s\n", trend))
	}
	if in.ExistingTextOverlay != "" {
		sb.WriteString(fmt.Sprintf("Text already on screen: %q\n", in.ExistingTextOverlay))
	}
	if in.Mood != nil {
		sb.WriteString(fmt.Sprintf("Mood: %s. Hook style: %s\n", in.Mood.Name, in.Mood.HookStyle))
	}

	sb.WriteString("\nNever start a hook with any of these phrases:\n")
	for _, p := range BannedPhrases {
		sb.WriteString(fmt.Sprintf("- %q\n", p))
	}

	sb.WriteString(`
Return JSON with exactly these fields:
{
  "text_hooks": [3 short on-screen text overlays],
  "verbal_hooks": [3 opening lines the creator could say],
  "visual_hooks": [3 ways to open the video visually],
  "recommended_hook_type": "text" | "verbal" | "visual",
  "existing_text_assessment": "how well the current on-screen text works, or empty if there is none",
  "why_this_hook_type": "one sentence"
}`)

	return Prompt{System: hooksSystem, User: sb.String()}
}

const captionsSystem = `You write captions for short-form video posts. Captions are short and sound like a person, not a brand.
Return ONLY a JSON object.`

// Captions builds the text-only caption prompt.
func Captions(in CaptionsInput) Prompt {
	var sb strings.Builder

	sb.WriteString("Write three captions for this video.\n\n")
	sb.WriteString(fmt.Sprintf("What happens: %s\n", in.ContentDescription))
	if in.Intent != "" {
		sb.WriteString(fmt.Sprintf("Creator intent: %s\n", in.Intent))
	}
	if in.Mood != nil {
		sb.WriteString(fmt.Sprintf("Mood: %s. Caption style: %s\n", in.Mood.Name, in.Mood.CaptionStyle))
	}
	sb.WriteString(`
Each caption is under 150 characters and may end with up to three relevant hashtags.
Return JSON: {"captions": [string, string, string]}`)

	return Prompt{System: captionsSystem, User: sb.String()}
}
