package web

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/vbonduro/insightstudio/internal/analysis"
)

type analyzeResponse struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Model      string `json:"model"`
	DurationMS int64  `json:"duration_ms"`
}

type errorResponse struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// handleAPIAnalyze accepts the same multipart form as the page and answers
// with JSON. The text field carries the raw model output.
func (s *Server) handleAPIAnalyze(w http.ResponseWriter, r *http.Request) {
	logger := s.loggerFor(r)

	sub, err := s.parseSubmission(w, r)
	if err != nil {
		s.writeAPIError(w, err)
		return
	}

	result, err := s.gateway.Analyze(context.WithoutCancel(r.Context()), sub.request())
	if err != nil {
		if analysis.KindOf(err) == analysis.KindServiceFailure {
			logger.Error("api analysis failed", "error", err)
		}
		s.writeAPIError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, analyzeResponse{
		ID:         result.ID,
		Text:       result.Text,
		Model:      result.Model,
		DurationMS: result.Duration.Milliseconds(),
	})
}

func (s *Server) writeAPIError(w http.ResponseWriter, err error) {
	kind := analysis.KindOf(err)
	s.writeJSON(w, statusFor(kind), errorResponse{Kind: kind.String(), Error: err.Error()})
}

func statusFor(kind analysis.ErrorKind) int {
	switch kind {
	case analysis.KindMissingInput, analysis.KindInvalidImage:
		return http.StatusBadRequest
	case analysis.KindBusy:
		return http.StatusTooManyRequests
	case analysis.KindServiceFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("write json failed", "error", err)
	}
}
