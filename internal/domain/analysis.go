package domain

import (
	"time"
)

// AnalysisID is a unique identifier for a completed analysis.
type AnalysisID string

// String returns the string representation of the AnalysisID.
func (id AnalysisID) String() string {
	return string(id)
}

// Plan is a billing tier. Anonymous callers are modelled as their own plan.
type Plan string

const (
	PlanAnonymous Plan = "anonymous"
	PlanFree      Plan = "free"
	PlanCreator   Plan = "creator"
	PlanPro       Plan = "pro"
)

// ParsePlan maps a stored plan column to a Plan. Unknown values fall back to free.
func ParsePlan(s string) Plan {
	switch Plan(s) {
	case PlanCreator, PlanPro, PlanFree:
		return Plan(s)
	default:
		return PlanFree
	}
}

// IsPaid reports whether the plan is a paid subscription.
func (p Plan) IsPaid() bool {
	return p == PlanCreator || p == PlanPro
}

// ModelTier selects which model of each LLM provider is used for a run.
type ModelTier string

const (
	TierPremium ModelTier = "premium"
	TierFast    ModelTier = "fast"
)

// Identity is the caller of a request: an authenticated user or an anonymous IP.
type Identity struct {
	UserID    string
	Email     string
	IPAddress string
	Plan      Plan
}

// IsAnonymous returns true when no authenticated user is attached.
func (i Identity) IsAnonymous() bool {
	return i.UserID == ""
}

// Analysis is the persisted record of one completed analysis.
// Records are immutable once inserted.
type Analysis struct {
	ID                   AnalysisID
	UserID               string
	UserEmail            string
	IPAddress            string
	Mood                 string
	VideoURL             string
	VideoDurationSeconds *float64
	Grade                string
	ViralScore           int
	ModelUsed            ModelTier
	Results              []byte // serialized AnalysisResult, may be empty
	CreatedAt            time.Time
}

// HasResults reports whether the full result blob was stored.
func (a *Analysis) HasResults() bool {
	return len(a.Results) > 0
}

// Profile is the account row maintained by the billing integration.
type Profile struct {
	UserID string
	Email  string
	Plan   Plan
}
