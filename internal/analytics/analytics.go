// Package analytics carries fire-and-forget product events from the analysis
// flow to logging, metrics and the Mixpanel delivery queue.
package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event names emitted by the analysis flow
const (
	EventAnalysisFallback    = "Analysis Fallback"
	EventFaceAnalysisSuccess = "Face Analysis Success"
	EventImageUploadSuccess  = "Image Upload Success"
	EventAnalysisSuccess     = "Analysis Success"
	EventAnalysisComplete    = "Analysis Complete"
	EventError               = "Error"
)

// Properties is the property mapping attached to an event
type Properties map[string]interface{}

// Event is a single analytics record
type Event struct {
	Name       string     `json:"name"`
	Properties Properties `json:"properties,omitempty"`
	DistinctID string     `json:"distinct_id,omitempty"`
	InsertID   string     `json:"insert_id"`
	Timestamp  time.Time  `json:"timestamp"`
}

// NewEvent stamps an event with an insert ID, the current time and the
// distinct ID carried by ctx, if any.
func NewEvent(ctx context.Context, name string, props Properties) Event {
	return Event{
		Name:       name,
		Properties: props,
		DistinctID: DistinctIDFromContext(ctx),
		InsertID:   uuid.NewString(),
		Timestamp:  time.Now().UTC(),
	}
}

// Tracker accepts events. Implementations must not block the caller for long
// and never report failures back to it.
type Tracker interface {
	Track(ctx context.Context, event Event)
}

// TrackerFunc adapts a function to the Tracker interface
type TrackerFunc func(ctx context.Context, event Event)

// Track calls f
func (f TrackerFunc) Track(ctx context.Context, event Event) {
	f(ctx, event)
}

// Nop discards every event
var Nop Tracker = TrackerFunc(func(context.Context, Event) {})

// Track builds an event and hands it to t. A nil tracker is ignored.
func Track(ctx context.Context, t Tracker, name string, props Properties) {
	if t == nil {
		return
	}
	t.Track(ctx, NewEvent(ctx, name, props))
}

// TrackError records an Error event for err
func TrackError(ctx context.Context, t Tracker, err error, errContext string) {
	if err == nil {
		return
	}
	props := Properties{
		"message":   err.Error(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if errContext != "" {
		props["context"] = errContext
	}
	Track(ctx, t, EventError, props)
}

type distinctIDKey struct{}

// WithDistinctID attaches the analytics identity of the caller to ctx
func WithDistinctID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, distinctIDKey{}, id)
}

// DistinctIDFromContext returns the identity set by WithDistinctID
func DistinctIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(distinctIDKey{}).(string)
	return id
}
