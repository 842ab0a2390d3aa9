// Package grading turns the three analysis sub-scores into a letter grade.
package grading

import "math"

// Sub-score weights. They sum to 1.
const (
	HookWeight      = 0.40
	VisualWeight    = 0.35
	ExecutionWeight = 0.25
)

// DefaultSubScore is used by callers when the model omitted a sub-score.
const DefaultSubScore = 5

// Result is the outcome of grading one analysis.
type Result struct {
	Letter         string
	Color          string
	Percentage     float64
	ViralPotential int
}

type breakpoint struct {
	min    float64
	letter string
	color  string
}

// Descending, right-inclusive thresholds. Anything below the last one is F.
var breakpoints = []breakpoint{
	{97, "A+", "emerald"},
	{93, "A", "emerald"},
	{90, "A-", "emerald"},
	{87, "B+", "green"},
	{83, "B", "green"},
	{80, "B-", "green"},
	{77, "C+", "yellow"},
	{73, "C", "yellow"},
	{70, "C-", "yellow"},
	{67, "D+", "orange"},
	{63, "D", "orange"},
	{60, "D-", "orange"},
}

// Grade computes the weighted grade for hook, visual and execution scores.
func Grade(hook, visual, execution float64) Result {
	weighted := hook*HookWeight + visual*VisualWeight + execution*ExecutionWeight
	// 6,6,6 must land on exactly 60, not 59.99999999999999.
	pct := math.Round(weighted*10*1e6) / 1e6

	letter, color := "F", "red"
	for _, bp := range breakpoints {
		if pct >= bp.min {
			letter, color = bp.letter, bp.color
			break
		}
	}

	// Floored so that the potential never reaches the next letter's
	// threshold: 76.5 is a C with potential 76, not 77.
	return Result{
		Letter:         letter,
		Color:          color,
		Percentage:     pct,
		ViralPotential: int(math.Floor(pct)),
	}
}

// NormalizeSubScore applies the caller-side policy: a missing score becomes
// DefaultSubScore, fractional scores are rounded and the result is clamped
// to 1..10.
func NormalizeSubScore(score *float64) int {
	if score == nil {
		return DefaultSubScore
	}
	n := int(math.Round(*score))
	switch {
	case n < 1:
		return 1
	case n > 10:
		return 10
	default:
		return n
	}
}

// Letters returns every grade from best to worst.
func Letters() []string {
	out := make([]string, 0, len(breakpoints)+1)
	for _, bp := range breakpoints {
		out = append(out, bp.letter)
	}
	return append(out, "F")
}
