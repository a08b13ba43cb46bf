package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zombar/visumax/internal/analytics"
)

const tracerName = "github.com/zombar/visumax/internal/queue"

// handleTrackEvent delivers one queued analytics event to the sink
func (w *Worker) handleTrackEvent(ctx context.Context, t *asynq.Task) error {
	var payload TrackEventPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.logger.Error("failed to unmarshal task payload", "error", err)
		w.observeDelivery("invalid")
		return fmt.Errorf("invalid task payload: %v: %w", err, asynq.SkipRetry)
	}

	event := payload.Event

	var queueWaitTime time.Duration
	if payload.EnqueuedAt > 0 {
		queueWaitTime = time.Since(time.Unix(0, payload.EnqueuedAt))
	}

	ctx, span := startTaskSpan(ctx, payload,
		attribute.String("task.type", TypeTrackEvent),
		attribute.String("event.name", event.Name),
		attribute.String("event.insert_id", event.InsertID),
		attribute.Float64("queue.wait_time_seconds", queueWaitTime.Seconds()),
	)
	defer span.End()

	w.logger.Debug("delivering analytics event",
		"event", event.Name,
		"insert_id", event.InsertID,
		"queue_wait_seconds", queueWaitTime.Seconds(),
	)

	if err := w.sink.Send(ctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		if errors.Is(err, analytics.ErrRejected) {
			w.logger.Warn("analytics event rejected",
				"event", event.Name,
				"insert_id", event.InsertID,
				"error", err,
			)
			w.observeDelivery("rejected")
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}

		w.observeDelivery("retry")
		return fmt.Errorf("failed to deliver event %s: %w", event.Name, err)
	}

	w.observeDelivery("delivered")
	return nil
}

func (w *Worker) observeDelivery(status string) {
	if w.businessMetrics == nil {
		return
	}
	w.businessMetrics.DeliveriesTotal.WithLabelValues(status).Inc()
}

// startTaskSpan starts the consumer span for a task. When the payload carries
// the enqueuing span, the new span joins that trace.
func startTaskSpan(ctx context.Context, payload TrackEventPayload, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if remote, ok := remoteSpanContext(payload.TraceID, payload.SpanID); ok {
		ctx = trace.ContextWithRemoteSpanContext(ctx, remote)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "asynq.task.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attrs...),
	)
	span.AddEvent("task_processing_started")
	return ctx, span
}

func remoteSpanContext(traceIDHex, spanIDHex string) (trace.SpanContext, bool) {
	if traceIDHex == "" || spanIDHex == "" {
		return trace.SpanContext{}, false
	}
	traceID, err := trace.TraceIDFromHex(traceIDHex)
	if err != nil {
		return trace.SpanContext{}, false
	}
	spanID, err := trace.SpanIDFromHex(spanIDHex)
	if err != nil {
		return trace.SpanContext{}, false
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}), true
}
