package domain

import "errors"

// Domain errors.
var (
	// ErrInvalidRequest is returned when a request is missing required input.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnsupportedContentType is returned when an upload is not a video.
	ErrUnsupportedContentType = errors.New("only video uploads are allowed")

	// ErrUnauthenticated is returned when an operation requires a signed-in user.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrAnalysisNotFound is returned when an analysis cannot be found.
	ErrAnalysisNotFound = errors.New("analysis not found")

	// ErrUpstreamUnavailable is returned when the frame extraction service is
	// unreachable or returns no frames.
	ErrUpstreamUnavailable = errors.New("video processing service unavailable")

	// ErrAnalysisFailed is returned when the primary analysis call fails or its
	// output cannot be parsed.
	ErrAnalysisFailed = errors.New("video analysis failed")

	// ErrStorageFailed is returned when an object cannot be written to storage.
	ErrStorageFailed = errors.New("storage write failed")

	// ErrInvalidSignature is returned when a signed upload URL does not verify.
	ErrInvalidSignature = errors.New("invalid or expired upload signature")
)

// LimitError is returned when a caller has no remaining quota.
// It carries the remediation the client should offer.
type LimitError struct {
	Plan            Plan
	Message         string
	RequiresSignUp  bool
	UpgradeRequired bool
	Used            int
	Limit           int
	PeriodLabel     string
}

func (e *LimitError) Error() string {
	return "limit reached [" + string(e.Plan) + "]: " + e.Message
}

// AnalysisError wraps an error with the analysis id and the stage that failed.
type AnalysisError struct {
	AnalysisID AnalysisID
	Stage      string
	Err        error
}

func (e *AnalysisError) Error() string {
	if e.AnalysisID != "" {
		return e.Stage + " [" + e.AnalysisID.String() + "]: " + e.Err.Error()
	}
	return e.Stage + ": " + e.Err.Error()
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// NewAnalysisError creates a new AnalysisError.
func NewAnalysisError(id AnalysisID, stage string, err error) *AnalysisError {
	return &AnalysisError{
		AnalysisID: id,
		Stage:      stage,
		Err:        err,
	}
}
