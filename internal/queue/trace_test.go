package queue

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zombar/visumax/internal/analytics"
)

func setupSpanRecorder(t *testing.T) (*tracetest.SpanRecorder, *tracesdk.TracerProvider) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })
	return recorder, tp
}

// TestTraceContextPropagation_Process tests that the worker span joins the
// trace of the request that enqueued the event
func TestTraceContextPropagation_Process(t *testing.T) {
	recorder, tp := setupSpanRecorder(t)

	ctx, parent := tp.Tracer("test").Start(context.Background(), "api.analyze")
	parentCtx := parent.SpanContext()
	parent.End()

	payload := TrackEventPayload{
		Event:      analytics.NewEvent(ctx, analytics.EventAnalysisSuccess, nil),
		TraceID:    parentCtx.TraceID().String(),
		SpanID:     parentCtx.SpanID().String(),
		EnqueuedAt: time.Now().UnixNano(),
	}

	w := newTestWorker(&fakeSink{})
	if err := w.handleTrackEvent(context.Background(), newTrackTask(t, payload)); err != nil {
		t.Fatalf("handleTrackEvent() error = %v", err)
	}

	var process tracesdk.ReadOnlySpan
	for _, s := range recorder.Ended() {
		if s.Name() == "asynq.task.process" {
			process = s
		}
	}
	if process == nil {
		t.Fatal("asynq.task.process span not recorded")
	}

	if process.SpanContext().TraceID() != parentCtx.TraceID() {
		t.Errorf("trace id = %s, want %s", process.SpanContext().TraceID(), parentCtx.TraceID())
	}
	if process.Parent().SpanID() != parentCtx.SpanID() {
		t.Errorf("parent span id = %s, want %s", process.Parent().SpanID(), parentCtx.SpanID())
	}
	if !process.Parent().IsRemote() {
		t.Error("parent should be marked remote")
	}
	if process.SpanKind() != trace.SpanKindConsumer {
		t.Errorf("span kind = %v, want consumer", process.SpanKind())
	}

	found := false
	for _, attr := range process.Attributes() {
		if attr.Key == "event.name" && attr.Value.AsString() == analytics.EventAnalysisSuccess {
			found = true
		}
	}
	if !found {
		t.Error("event.name attribute not set")
	}
}

// TestTraceContextPropagation_NoContext tests that a payload without trace
// fields starts a fresh trace
func TestTraceContextPropagation_NoContext(t *testing.T) {
	recorder, _ := setupSpanRecorder(t)

	w := newTestWorker(&fakeSink{})
	payload := TrackEventPayload{Event: analytics.NewEvent(context.Background(), analytics.EventError, nil)}
	if err := w.handleTrackEvent(context.Background(), newTrackTask(t, payload)); err != nil {
		t.Fatalf("handleTrackEvent() error = %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Parent().IsValid() {
		t.Error("span without propagated context should be a root span")
	}
}

func TestRemoteSpanContext(t *testing.T) {
	tests := []struct {
		name    string
		traceID string
		spanID  string
		wantOK  bool
	}{
		{"valid", "4bf92f3577b34da6a3ce929d0e0e4736", "00f067aa0ba902b7", true},
		{"empty trace id", "", "00f067aa0ba902b7", false},
		{"empty span id", "4bf92f3577b34da6a3ce929d0e0e4736", "", false},
		{"malformed trace id", "not-hex", "00f067aa0ba902b7", false},
		{"malformed span id", "4bf92f3577b34da6a3ce929d0e0e4736", "zz", false},
		{"all-zero trace id", "00000000000000000000000000000000", "00f067aa0ba902b7", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, ok := remoteSpanContext(tt.traceID, tt.spanID)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (!sc.IsValid() || !sc.IsRemote() || !sc.IsSampled()) {
				t.Errorf("span context %+v should be valid, remote and sampled", sc)
			}
		})
	}
}
