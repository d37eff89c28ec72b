// Package server provides the HTTP API for starting and observing job-matching workflows.
package server

import (
	"errors"
	"net/http"

	"github.com/jonathan/job-matcher/internal/llm"
	"github.com/jonathan/job-matcher/internal/pipeline/steps"
	"github.com/jonathan/job-matcher/internal/types"
	"github.com/jonathan/job-matcher/internal/workflow"
)

// HTTPStatus returns the HTTP status code for an error returned by the workflow service.
func HTTPStatus(err error) int {
	var verr *types.ValidationError
	var depErr *steps.DependencyError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, workflow.ErrRunFinished), errors.As(err, &depErr):
		return http.StatusConflict
	case llm.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides internal error details behind a generic message.
func publicMessage(err error, status int) string {
	if status == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
