// Package trigger starts workflows from Cloud Storage upload events.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/jonathan/job-matcher/internal/logging"
	"github.com/jonathan/job-matcher/internal/types"
	"github.com/jonathan/job-matcher/internal/workflow"
	"go.uber.org/zap"
)

// FinalizedEventType is the CloudEvent type emitted when an object upload completes.
const FinalizedEventType = "google.cloud.storage.object.v1.finalized"

// MetadataUserID is the object metadata key naming the uploading user.
const MetadataUserID = "user_id"

// StorageObject is the data payload of a Cloud Storage object event.
type StorageObject struct {
	Bucket      string            `json:"bucket"`
	Name        string            `json:"name"`
	ContentType string            `json:"contentType"`
	Metadata    map[string]string `json:"metadata"`
}

// Starter starts a workflow for an uploaded CV.
type Starter interface {
	StartWorkflow(ctx context.Context, userID uuid.UUID, cvRef string) (*workflow.StartResult, error)
}

// UploadHandler starts one workflow per CV uploaded under a prefix.
type UploadHandler struct {
	starter Starter
	prefix  string
	logger  *zap.Logger
}

// NewUploadHandler creates a handler for objects whose name starts with prefix.
func NewUploadHandler(starter Starter, prefix string, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{starter: starter, prefix: prefix, logger: logging.OrNop(logger)}
}

// Handle processes one event. Events that can never succeed are logged and
// acknowledged; only failures to start the workflow are returned, so the event is
// redelivered.
func (h *UploadHandler) Handle(ctx context.Context, e cloudevents.Event) error {
	if e.Type() != FinalizedEventType {
		h.logger.Debug("ignoring event", zap.String("type", e.Type()))
		return nil
	}

	var obj StorageObject
	if err := json.Unmarshal(e.Data(), &obj); err != nil {
		h.logger.Error("malformed storage event", zap.String("event_id", e.ID()), zap.Error(err))
		return nil
	}
	log := h.logger.With(zap.String("bucket", obj.Bucket), zap.String("object", obj.Name))

	if !strings.HasPrefix(obj.Name, h.prefix) || strings.HasSuffix(obj.Name, "/") {
		log.Debug("object outside the CV prefix")
		return nil
	}

	userID, err := ownerOf(obj, h.prefix)
	if err != nil {
		log.Warn("cannot attribute upload to a user", zap.Error(err))
		return nil
	}

	cvRef := fmt.Sprintf("gs://%s/%s", obj.Bucket, obj.Name)
	started, err := h.starter.StartWorkflow(ctx, userID, cvRef)
	if err != nil {
		var verr *types.ValidationError
		if errors.As(err, &verr) {
			log.Warn("upload rejected", zap.Error(err))
			return nil
		}
		return fmt.Errorf("failed to start workflow for %s: %w", cvRef, err)
	}

	log.Info("workflow started for upload",
		append(logging.RunFields(started.WorkflowRunID, ""),
			zap.String(logging.FieldTrackingID, started.TrackingID.String()),
			zap.String(logging.FieldUserID, userID.String()))...)
	return nil
}

// ownerOf reads the user from object metadata, falling back to the first path
// segment after the prefix: <prefix><user_id>/<file>.
func ownerOf(obj StorageObject, prefix string) (uuid.UUID, error) {
	if raw := obj.Metadata[MetadataUserID]; raw != "" {
		return uuid.Parse(raw)
	}
	first, _, found := strings.Cut(strings.TrimPrefix(obj.Name, prefix), "/")
	if !found {
		return uuid.Nil, errors.New("no user_id metadata and no user segment in object name")
	}
	return uuid.Parse(first)
}
