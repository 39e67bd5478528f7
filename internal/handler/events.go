package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/young1lin/agentsearch/internal/ui"
)

// SSEWriter handles writing Server-Sent Events
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	logger  *zap.Logger
}

// NewSSEWriter creates a new SSE writer, or returns false when the
// response cannot be flushed incrementally
func NewSSEWriter(w http.ResponseWriter, logger *zap.Logger) (*SSEWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	return &SSEWriter{w: w, flusher: flusher, logger: logger}, true
}

// WriteEvent writes an SSE event
func (s *SSEWriter) WriteEvent(event, data string) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	s.logger.Debug("SSE event sent", zap.String("event", event), zap.String("data", data))
	return nil
}

// stateEvent is the payload of a "state" event
type stateEvent struct {
	State         string `json:"state"`
	InputDisabled bool   `json:"inputDisabled"`
}

// handleEvents streams the profile's state changes until the client leaves
func (h *WidgetHandler) handleEvents(w http.ResponseWriter, r *http.Request, profile string, log *zap.Logger) {
	writer, ok := NewSSEWriter(w, log)
	if !ok {
		h.handleError(w, r, http.StatusInternalServerError, "streaming_unsupported", "Streaming is not supported", log)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	updates, cancel := h.controller(profile, true).Subscribe()
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			log.Debug("event stream closed by client")
			return
		case s := <-updates:
			if err := writer.WriteEvent("state", encodeState(s)); err != nil {
				log.Debug("event stream write failed", zap.Error(err))
				return
			}
		}
	}
}

func encodeState(s ui.Handles) string {
	data, _ := json.Marshal(stateEvent{State: s.Active.String(), InputDisabled: s.InputDisabled})
	return string(data)
}
