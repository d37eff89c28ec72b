package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/jonathan/job-matcher/internal/llm"
	"github.com/jonathan/job-matcher/internal/logging"
	"go.uber.org/zap"
)

// StageRequest is the body the workflow engine posts for each stage.
type StageRequest struct {
	RunID string `json:"run_id" validate:"required,uuid"`
}

// StageFailureRequest reports a stage the workflow engine gave up on.
type StageFailureRequest struct {
	RunID string `json:"run_id" validate:"required,uuid"`
	Error string `json:"error"`
}

// StageResponse carries a stage's checkpointed output back to the engine.
type StageResponse struct {
	RunID  uuid.UUID       `json:"run_id"`
	Stage  string          `json:"stage"`
	Output json.RawMessage `json:"output"`
}

// handleExecuteStage runs one stage for an external engine. Transient failures answer
// 503 so the engine retries; a repeated request for a completed stage returns its
// checkpoint.
func (s *Server) handleExecuteStage(w http.ResponseWriter, r *http.Request) {
	var req StageRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	runID, err := uuid.Parse(req.RunID)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid run_id")
		return
	}
	stage := r.PathValue("stage")

	output, err := s.svc.ExecuteStage(r.Context(), runID, stage)
	if err != nil {
		if llm.IsTransient(err) {
			s.logger.Warn("stage failed transiently", append(logging.RunFields(runID, stage), zap.Error(err))...)
		}
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, StageResponse{RunID: runID, Stage: stage, Output: output})
}

func (s *Server) handleFailStage(w http.ResponseWriter, r *http.Request) {
	var req StageFailureRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	runID, err := uuid.Parse(req.RunID)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid run_id")
		return
	}
	stage := r.PathValue("stage")

	if err := s.svc.FailStage(r.Context(), runID, stage, req.Error); err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.logger.Info("stage reported failed by engine", logging.RunFields(runID, stage)...)
	w.WriteHeader(http.StatusNoContent)
}
