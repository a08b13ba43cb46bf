package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zombar/visumax/internal/analytics"
)

// Task type constants
const (
	TypeTrackEvent = "analytics:track_event"
)

// QueueAnalytics is the queue analytics deliveries are placed on
const QueueAnalytics = "analytics"

// TrackEventPayload represents the payload for delivering one analytics event
type TrackEventPayload struct {
	Event analytics.Event `json:"event"`
	// Tracing and timing fields
	TraceID    string `json:"trace_id,omitempty"`
	SpanID     string `json:"span_id,omitempty"`
	EnqueuedAt int64  `json:"enqueued_at"` // Unix timestamp in nanoseconds
}

// Client wraps the Asynq client for enqueueing tasks
type Client struct {
	client *asynq.Client
}

// ClientConfig contains configuration for the queue client
type ClientConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func (c ClientConfig) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// NewClient creates a new queue client
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		client: asynq.NewClient(cfg.redisOpt()),
	}
}

// EnqueueTrackEvent enqueues delivery of event. The event's insert ID is used
// as the task ID, so enqueueing the same event twice is a no-op.
func (c *Client) EnqueueTrackEvent(ctx context.Context, event analytics.Event) (string, error) {
	if event.InsertID == "" {
		return "", errors.New("event has no insert id")
	}

	payload := TrackEventPayload{
		Event:      event,
		EnqueuedAt: time.Now().UnixNano(),
	}

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		spanCtx := span.SpanContext()
		payload.TraceID = spanCtx.TraceID().String()
		payload.SpanID = spanCtx.SpanID().String()

		span.AddEvent("task_enqueued", trace.WithAttributes(
			attribute.String("task.type", TypeTrackEvent),
			attribute.String("task.id", event.InsertID),
			attribute.String("event.name", event.Name),
			attribute.Int64("enqueued_at", payload.EnqueuedAt),
		))
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task payload: %w", err)
	}

	task := asynq.NewTask(TypeTrackEvent, payloadBytes, asynq.TaskID(event.InsertID))

	opts := []asynq.Option{
		asynq.MaxRetry(5),
		asynq.Timeout(30 * time.Second),
		asynq.Queue(QueueAnalytics),
		asynq.Retention(24 * time.Hour),
	}

	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return event.InsertID, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to enqueue track event task: %w", err)
	}

	return info.ID, nil
}

// Close closes the client connection
func (c *Client) Close() error {
	return c.client.Close()
}
