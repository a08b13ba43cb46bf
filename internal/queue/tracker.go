package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/zombar/visumax/internal/analytics"
)

const enqueueTimeout = 2 * time.Second

type eventEnqueuer interface {
	EnqueueTrackEvent(ctx context.Context, event analytics.Event) (string, error)
}

// Tracker hands analytics events to the delivery queue. Enqueue failures are
// logged and dropped.
type Tracker struct {
	enqueuer eventEnqueuer
	logger   *slog.Logger
}

// NewTracker creates a tracker that enqueues through c
func NewTracker(c *Client, logger *slog.Logger) *Tracker {
	return newTracker(c, logger)
}

func newTracker(e eventEnqueuer, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{enqueuer: e, logger: logger}
}

// Track implements analytics.Tracker. The request context may already be
// cancelled when the last events fire, so only its values are kept.
func (t *Tracker) Track(ctx context.Context, event analytics.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()

	if _, err := t.enqueuer.EnqueueTrackEvent(ctx, event); err != nil {
		t.logger.Warn("failed to enqueue analytics event",
			"event", event.Name,
			"insert_id", event.InsertID,
			"error", err,
		)
	}
}
