package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/zombar/visumax/internal/models"
	"github.com/zombar/visumax/pkg/logging"
)

// Server-sent event names
const (
	eventProgress = "progress"
	eventResult   = "result"
	eventError    = "error"
)

type progressEvent struct {
	Stage    string  `json:"stage"`
	Progress float64 `json:"progress"`
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// streamAnalysis runs the analysis while streaming progress as server-sent
// events. The status is always 200 once streaming starts, so failures are
// reported as an error event.
func (h *Handler) streamAnalysis(ctx context.Context, w http.ResponseWriter, r *http.Request, image []byte, gender models.Gender) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(event string, data interface{}) {
		if err := writeEvent(w, event, data); err != nil {
			h.logger.DebugContext(ctx, "failed to write event", "event", event, "error", err)
			return
		}
		if err := rc.Flush(); err != nil {
			h.logger.DebugContext(ctx, "failed to flush event", "event", event, "error", err)
		}
	}

	result, err := h.analyzer.AnalyzeFace(ctx, image, gender, func(stage string, percent float64) {
		send(eventProgress, progressEvent{Stage: stage, Progress: percent})
	})
	if err != nil {
		logging.HTTPErrorLogger(h.logger, http.StatusInternalServerError, err, r)
		send(eventError, map[string]string{"error": err.Error()})
		return
	}

	send(eventResult, result)
}

func writeEvent(w io.Writer, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}
