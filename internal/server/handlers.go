package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/jonathan/job-matcher/internal/server/middleware"
	"github.com/jonathan/job-matcher/internal/types"
)

// StartWorkflowRequest is the body of POST /workflows.
type StartWorkflowRequest struct {
	CVRef string `json:"cv_ref" validate:"required"`
}

// ProgressResponse is a progress record plus the percentage a client should render.
type ProgressResponse struct {
	*types.ProgressRecord
	DisplayPercentage int `json:"display_percentage"`
}

func newProgressResponse(rec *types.ProgressRecord) *ProgressResponse {
	if rec == nil {
		return nil
	}
	return &ProgressResponse{ProgressRecord: rec, DisplayPercentage: rec.DisplayPercentage()}
}

// WorkflowStatusResponse is the body of GET /workflows/{run_id}.
type WorkflowStatusResponse struct {
	RunID  uuid.UUID          `json:"run_id"`
	Status types.RunStatus    `json:"status"`
	Result *types.SaveReceipt `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// StepsResponse is the body of GET /workflows/{run_id}/steps.
type StepsResponse struct {
	RunID uuid.UUID          `json:"run_id"`
	Steps []types.StepRecord `json:"steps"`
}

func (s *Server) handleStartWorkflow(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req StartWorkflowRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	started, err := s.svc.StartWorkflow(r.Context(), userID, req.CVRef)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, started)
}

func (s *Server) handleWorkflowStatus(w http.ResponseWriter, r *http.Request) {
	userID, runID, ok := s.userAndPathID(w, r, "run_id")
	if !ok {
		return
	}
	status, err := s.svc.GetWorkflowStatus(r.Context(), runID, userID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, WorkflowStatusResponse{
		RunID:  runID,
		Status: status.Type,
		Result: status.Result,
		Error:  status.Error,
	})
}

func (s *Server) handleSavedResults(w http.ResponseWriter, r *http.Request) {
	userID, runID, ok := s.userAndPathID(w, r, "run_id")
	if !ok {
		return
	}
	saved, err := s.svc.GetSavedResults(r.Context(), runID, userID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, saved)
}

func (s *Server) handleListSteps(w http.ResponseWriter, r *http.Request) {
	userID, runID, ok := s.userAndPathID(w, r, "run_id")
	if !ok {
		return
	}
	records, err := s.svc.ListSteps(r.Context(), runID, userID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	if records == nil {
		records = []types.StepRecord{}
	}
	s.jsonResponse(w, http.StatusOK, StepsResponse{RunID: runID, Steps: records})
}

func (s *Server) handleCancelWorkflow(w http.ResponseWriter, r *http.Request) {
	userID, runID, ok := s.userAndPathID(w, r, "run_id")
	if !ok {
		return
	}
	if err := s.svc.CancelWorkflow(r.Context(), runID, userID); err != nil {
		s.serviceError(w, r, err)
		return
	}
	status, err := s.svc.GetWorkflowStatus(r.Context(), runID, userID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, WorkflowStatusResponse{RunID: runID, Status: status.Type, Result: status.Result, Error: status.Error})
}

// handleProgress returns the caller's progress record, or null when it does not exist.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	userID, trackingID, ok := s.userAndPathID(w, r, "tracking_id")
	if !ok {
		return
	}
	rec, err := s.svc.GetProgress(r.Context(), trackingID, userID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, newProgressResponse(rec))
}

func (s *Server) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return uuid.Nil, false
	}
	return userID, true
}

func (s *Server) userAndPathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := s.userID(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, uuid.Nil, false
	}
	return userID, id, true
}
