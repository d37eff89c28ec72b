package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/jonathan/job-matcher/internal/schemas"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// TransientError marks a completion failure caused by service unavailability.
// The workflow engine retries stages that fail with it.
type TransientError struct {
	Op    string
	Cause error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient completion failure: %v", e.Op, e.Cause)
}

func (e *TransientError) Unwrap() error {
	return e.Cause
}

// Transient reports true; retry policies detect it through this method.
func (e *TransientError) Transient() bool {
	return true
}

// SchemaError means the completion response did not conform to its declared
// schema. It is never retried.
type SchemaError struct {
	Name   string
	Schema string
	Cause  error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: response does not match schema %s: %v", e.Name, e.Schema, e.Cause)
}

func (e *SchemaError) Unwrap() error {
	return e.Cause
}

// IsTransient reports whether any error in err's chain declares itself transient.
func IsTransient(err error) bool {
	var t interface{ Transient() bool }
	return errors.As(err, &t) && t.Transient()
}

// IsSchemaError reports whether err is a schema violation.
func IsSchemaError(err error) bool {
	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		return true
	}
	var validationErr *schemas.ValidationError
	return errors.As(err, &validationErr)
}

// classify wraps provider errors that indicate unavailability in a TransientError.
// Everything else is returned wrapped with op.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isTransientCause(err) {
		return &TransientError{Op: op, Cause: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isTransientCause(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}

	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
