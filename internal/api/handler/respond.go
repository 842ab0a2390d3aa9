package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tokbox/tokbox/internal/domain"
)

// ErrorResponse is the body of every non-2xx answer except 403 limit_reached.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// LimitUsage is the usage block of a limit_reached answer.
type LimitUsage struct {
	Used        int    `json:"used"`
	Limit       int    `json:"limit"`
	PeriodLabel string `json:"periodLabel"`
}

// LimitResponse is the 403 body returned when a caller is out of quota.
type LimitResponse struct {
	Error           string      `json:"error"`
	Message         string      `json:"message"`
	UpgradeRequired bool        `json:"upgradeRequired,omitempty"`
	RequiresSignUp  bool        `json:"requiresSignUp,omitempty"`
	CurrentPlan     domain.Plan `json:"currentPlan"`
	Usage           LimitUsage  `json:"usage"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps a service error to a status code. Unclassified
// errors are logged in full and answered with the request id only.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var limitErr *domain.LimitError
	if errors.As(err, &limitErr) {
		writeJSON(w, http.StatusForbidden, LimitResponse{
			Error:           "limit_reached",
			Message:         limitErr.Message,
			UpgradeRequired: limitErr.UpgradeRequired,
			RequiresSignUp:  limitErr.RequiresSignUp,
			CurrentPlan:     limitErr.Plan,
			Usage: LimitUsage{
				Used:        limitErr.Used,
				Limit:       limitErr.Limit,
				PeriodLabel: limitErr.PeriodLabel,
			},
		})
		return
	}

	requestID := chimw.GetReqID(r.Context())

	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrUnsupportedContentType):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated.Error())
	case errors.Is(err, domain.ErrAnalysisNotFound):
		writeError(w, http.StatusNotFound, domain.ErrAnalysisNotFound.Error())
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		logger.Warn("upstream unavailable", "error", err, "request_id", requestID)
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:   domain.ErrUpstreamUnavailable.Error(),
			Details: "The video processor is not responding. Please try again in a minute.",
		})
	case errors.Is(err, context.DeadlineExceeded):
		logger.Error("request timed out", "error", err, "request_id", requestID)
		writeJSON(w, http.StatusGatewayTimeout, ErrorResponse{Error: "request timed out", Details: requestID})
	case errors.Is(err, domain.ErrAnalysisFailed):
		logger.Error("analysis failed", "error", err, "request_id", requestID)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: domain.ErrAnalysisFailed.Error(), Details: requestID})
	case errors.Is(err, domain.ErrStorageFailed):
		logger.Error("storage failed", "error", err, "request_id", requestID)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: domain.ErrStorageFailed.Error(), Details: requestID})
	default:
		logger.Error("request failed", "error", err, "request_id", requestID)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Details: requestID})
	}
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}
