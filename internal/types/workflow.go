package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is wrapped by every lookup that fails because the record, file or run does not exist.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when a caller reads a record owned by another user.
var ErrForbidden = errors.New("forbidden")

// ValidationError reports a request field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// RunStatus is the lifecycle state of a workflow run.
type RunStatus string

// Run statuses.
const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCanceled  RunStatus = "canceled"
)

// Terminal reports whether no further transition is possible.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCanceled
}

// WorkflowRun is one execution of the five-stage pipeline.
type WorkflowRun struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	CVRef         string     `json:"cv_ref"`
	TrackingID    uuid.UUID  `json:"tracking_id"`
	Status        RunStatus  `json:"status"`
	Engine        string     `json:"engine"`
	ExecutionName string     `json:"execution_name,omitempty"`
	Error         string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// ProgressStatus is the explicit state carried alongside a progress stage label.
type ProgressStatus string

// Progress statuses.
const (
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressError      ProgressStatus = "error"
	ProgressCompleted  ProgressStatus = "completed"
)

// StageCompletedLabel is the terminal stage token of a successful run.
const StageCompletedLabel = "completed"

// ProgressRecord is the lightweight, pollable view of a run's progress.
type ProgressRecord struct {
	TrackingID  uuid.UUID      `json:"tracking_id"`
	UserID      uuid.UUID      `json:"user_id"`
	Stage       string         `json:"stage"`
	Status      ProgressStatus `json:"status"`
	Percentage  int            `json:"percentage"`
	UpdatedBy   uuid.UUID      `json:"updated_by"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// DisplayPercentage is the percentage a client should render: error states show 0.
func (r *ProgressRecord) DisplayPercentage() int {
	if r.Status == ProgressError {
		return 0
	}
	return r.Percentage
}

// StepStatus is the state of one stage within a run.
type StepStatus string

// Step statuses.
const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// StepRecord is the execution history of one stage of a run.
type StepRecord struct {
	RunID       uuid.UUID  `json:"run_id"`
	Step        string     `json:"step"`
	Status      StepStatus `json:"status"`
	Attempts    int        `json:"attempts"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  *int64     `json:"duration_ms,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Checkpoint is the persisted output of a completed stage. A run resumes from its
// checkpoints without re-executing the stages that produced them.
type Checkpoint struct {
	RunID       uuid.UUID       `json:"run_id"`
	Step        string          `json:"step"`
	Output      json.RawMessage `json:"output"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Transition moves the step to status at now. Entering in_progress counts an attempt
// and keeps the first start time; a terminal status records completion and duration.
func (r *StepRecord) Transition(status StepStatus, errMsg string, now time.Time) {
	r.Status = status
	r.Error = errMsg
	switch status {
	case StepInProgress:
		r.Attempts++
		if r.StartedAt == nil {
			started := now
			r.StartedAt = &started
		}
		r.CompletedAt = nil
		r.DurationMs = nil
	case StepCompleted, StepFailed:
		completed := now
		r.CompletedAt = &completed
		if r.StartedAt != nil {
			d := now.Sub(*r.StartedAt).Milliseconds()
			r.DurationMs = &d
		}
	}
}
