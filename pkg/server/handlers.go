package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"talentgrid-hq/conductor/pkg/engines"
	"talentgrid-hq/conductor/pkg/execution"
	"talentgrid-hq/conductor/pkg/monitor"
	"talentgrid-hq/conductor/pkg/orchestrator"
	"talentgrid-hq/conductor/pkg/telemetry/logging"
	"talentgrid-hq/conductor/pkg/traffic"
)

// adminSource tags rollout changes issued through the admin API.
const adminSource = "admin"

// ErrorBody is the JSON envelope of every failed response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failure.
type ErrorDetail struct {
	Code     string          `json:"code"`
	Message  string          `json:"message"`
	Field    string          `json:"field,omitempty"`
	Attempts []AttemptDetail `json:"attempts,omitempty"`
}

// AttemptDetail is one failed engine attempt.
type AttemptDetail struct {
	Engine  string `json:"engine"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// RolloutRequest is the body of PUT /admin/rollout.
type RolloutRequest struct {
	Percentage *float64 `json:"percentage"`
}

// RolloutStatus describes the effective and pending rollout stages.
type RolloutStatus struct {
	Current traffic.Stage   `json:"current"`
	Pending []traffic.Stage `json:"pending"`
}

// StatusResponse is the body of GET /admin/status.
type StatusResponse struct {
	Rollout RolloutStatus          `json:"rollout"`
	Engines []monitor.EngineStatus `json:"engines"`
	Time    time.Time              `json:"time"`
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	}

	var req engines.MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorBody{Error: ErrorDetail{
				Code:    orchestrator.CodeInvalidRequest,
				Message: "request body too large",
			}})
			return
		}
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: ErrorDetail{
			Code:    orchestrator.CodeInvalidRequest,
			Message: "malformed JSON: " + err.Error(),
		}})
		return
	}
	if req.RequestID == "" {
		req.RequestID = logging.GetRequestID(r.Context())
	}

	resp, err := s.deps.Matcher.Match(r.Context(), &req)
	if err != nil {
		code, body := matchError(err)
		writeJSON(w, code, body)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// matchError maps a Match failure to its status code and body.
func matchError(err error) (int, ErrorBody) {
	detail := ErrorDetail{Code: orchestrator.ErrorCode(err), Message: err.Error()}

	var invalid *orchestrator.InvalidRequestError
	var failed *execution.AllEnginesFailedError
	switch {
	case errors.As(err, &invalid):
		detail.Field = invalid.Field
		detail.Message = invalid.Message
		return http.StatusBadRequest, ErrorBody{Error: detail}
	case detail.Code == orchestrator.CodeNoEngineAvailable:
		return http.StatusServiceUnavailable, ErrorBody{Error: detail}
	case detail.Code == orchestrator.CodeCanceled:
		return http.StatusGatewayTimeout, ErrorBody{Error: detail}
	case errors.As(err, &failed):
		for _, a := range failed.Attempts {
			detail.Attempts = append(detail.Attempts, AttemptDetail{
				Engine:  a.Engine,
				Kind:    a.Kind,
				Message: a.Message(),
			})
		}
		return http.StatusBadGateway, ErrorBody{Error: detail}
	default:
		detail.Message = "an internal error occurred"
		return http.StatusInternalServerError, ErrorBody{Error: detail}
	}
}

func (s *Server) handleSetRollout(w http.ResponseWriter, r *http.Request) {
	var body RolloutRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil || body.Percentage == nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: ErrorDetail{
			Code:    "InvalidRollout",
			Message: "body must be {\"percentage\": <0-100>}",
		}})
		return
	}

	stage, err := s.deps.Rollout.SetRollout(r.Context(), *body.Percentage, adminSource)
	if err != nil {
		s.rolloutError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stage)
}

func (s *Server) handleForceLegacy(w http.ResponseWriter, r *http.Request) {
	stage, err := s.deps.Rollout.ForceLegacy(r.Context(), adminSource)
	if err != nil {
		s.rolloutError(w, err)
		return
	}
	s.logger.WarnContext(r.Context(), "legacy override requested", "version", stage.Version)
	writeJSON(w, http.StatusOK, stage)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	stage, err := s.deps.Rollout.Release(r.Context(), adminSource)
	if err != nil {
		s.rolloutError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stage)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Rollout: RolloutStatus{
			Current: s.deps.Rollout.Current(),
			Pending: s.deps.Rollout.Pending(),
		},
		Time: time.Now().UTC(),
	}
	if s.deps.Engines != nil {
		resp.Engines = s.deps.Engines.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) rolloutError(w http.ResponseWriter, err error) {
	if errors.Is(err, traffic.ErrInvalidRollout) {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: ErrorDetail{Code: "InvalidRollout", Message: err.Error()}})
		return
	}
	s.logger.Error("rollout change failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, ErrorBody{Error: ErrorDetail{Code: orchestrator.CodeInternal, Message: "rollout change failed"}})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
