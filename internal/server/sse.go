package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonathan/job-matcher/internal/types"
	"go.uber.org/zap"
)

// SSEWriter writes Server-Sent Events.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter sets the stream headers. It fails when w cannot flush.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent sends one event with a JSON payload.
func (s *SSEWriter) WriteEvent(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteError sends an error event.
func (s *SSEWriter) WriteError(message string) error {
	return s.WriteEvent("error", map[string]string{"error": message})
}

// WriteComplete sends the final event of a progress stream.
func (s *SSEWriter) WriteComplete(rec *types.ProgressRecord) error {
	return s.WriteEvent("complete", map[string]any{
		"tracking_id": rec.TrackingID,
		"status":      rec.Status,
		"stage":       rec.Stage,
	})
}

// handleProgressStream polls the caller's progress record and streams every change
// until the record reaches a terminal status or the client goes away.
func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	userID, trackingID, ok := s.userAndPathID(w, r, "tracking_id")
	if !ok {
		return
	}
	ctx := r.Context()

	rec, err := s.svc.GetProgress(ctx, trackingID, userID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	if rec == nil {
		s.errorResponse(w, http.StatusNotFound, "progress not found")
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var last *types.ProgressRecord
	for {
		if changed(last, rec) {
			if err := sse.WriteEvent("progress", newProgressResponse(rec)); err != nil {
				s.logger.Debug("progress stream closed", zap.Error(err))
				return
			}
			last = rec
		}
		if rec.Status != types.ProgressInProgress {
			_ = sse.WriteComplete(rec)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		next, err := s.svc.GetProgress(ctx, trackingID, userID)
		if err != nil {
			if ctx.Err() == nil {
				_ = sse.WriteError(publicMessage(err, HTTPStatus(err)))
			}
			return
		}
		if next != nil {
			rec = next
		}
	}
}

func changed(prev, cur *types.ProgressRecord) bool {
	return prev == nil ||
		prev.Stage != cur.Stage ||
		prev.Status != cur.Status ||
		prev.Percentage != cur.Percentage
}
