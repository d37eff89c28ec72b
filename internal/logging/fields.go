package logging

import (
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Structured field keys shared by all components.
const (
	FieldRunID      = "run_id"
	FieldTrackingID = "tracking_id"
	FieldUserID     = "user_id"
	FieldStage      = "stage"
	FieldProvider   = "ai_provider"
	FieldModel      = "ai_model"
	FieldSchema     = "schema"
	FieldJobID      = "job_id"
)

// RunFields identifies a workflow run and, when non-empty, the stage being executed.
func RunFields(runID uuid.UUID, stage string) []zap.Field {
	fields := []zap.Field{zap.String(FieldRunID, runID.String())}
	if stage = strings.TrimSpace(stage); stage != "" {
		fields = append(fields, zap.String(FieldStage, stage))
	}
	return fields
}

// AIFields describes the provider and model behind a completion call, omitting empty values.
func AIFields(provider, model string) []zap.Field {
	fields := make([]zap.Field, 0, 2)
	if provider = strings.TrimSpace(provider); provider != "" {
		fields = append(fields, zap.String(FieldProvider, provider))
	}
	if model = strings.TrimSpace(model); model != "" {
		fields = append(fields, zap.String(FieldModel, model))
	}
	return fields
}

// With attaches fields to logger, tolerating a nil logger.
func With(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	logger = OrNop(logger)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}
