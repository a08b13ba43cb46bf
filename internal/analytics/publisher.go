package analytics

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Publisher fans every event out to its subscribers concurrently. A panicking
// subscriber is logged and never reaches the caller.
type Publisher struct {
	mu       sync.RWMutex
	trackers []Tracker
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewPublisher creates a publisher with the given subscribers
func NewPublisher(logger *slog.Logger, trackers ...Tracker) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		trackers: trackers,
		logger:   logger,
	}
}

// Subscribe adds a tracker
func (p *Publisher) Subscribe(t Tracker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trackers = append(p.trackers, t)
}

// Track delivers event to every subscriber without waiting for them
func (p *Publisher) Track(ctx context.Context, event Event) {
	p.mu.RLock()
	trackers := make([]Tracker, len(p.trackers))
	copy(trackers, p.trackers)
	p.mu.RUnlock()

	// subscribers outlive the request that produced the event
	ctx = context.WithoutCancel(ctx)

	for _, t := range trackers {
		p.wg.Add(1)
		go func(t Tracker) {
			defer p.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("analytics tracker panicked",
						"event", event.Name,
						"panic", r,
					)
				}
			}()
			t.Track(ctx, event)
		}(t)
	}
}

// Flush blocks until every in-flight delivery has returned
func (p *Publisher) Flush() {
	p.wg.Wait()
}

// LogTracker writes events to a structured logger
type LogTracker struct {
	logger *slog.Logger
}

// NewLogTracker creates a tracker that logs at debug level, errors at warn
func NewLogTracker(logger *slog.Logger) *LogTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogTracker{logger: logger}
}

// Track logs event
func (l *LogTracker) Track(ctx context.Context, event Event) {
	attrs := []any{
		"event", event.Name,
		"insert_id", event.InsertID,
	}
	if event.DistinctID != "" {
		attrs = append(attrs, "distinct_id", event.DistinctID)
	}
	for k, v := range event.Properties {
		attrs = append(attrs, "prop_"+k, v)
	}

	if event.Name == EventError {
		l.logger.WarnContext(ctx, "analytics event", attrs...)
		return
	}
	l.logger.DebugContext(ctx, "analytics event", attrs...)
}

// MetricsTracker counts events by name
type MetricsTracker struct {
	counter *prometheus.CounterVec
}

// NewMetricsTracker creates a tracker backed by a counter with a single
// "event" label.
func NewMetricsTracker(counter *prometheus.CounterVec) *MetricsTracker {
	return &MetricsTracker{counter: counter}
}

// Track increments the counter for event.Name
func (m *MetricsTracker) Track(_ context.Context, event Event) {
	if m.counter == nil {
		return
	}
	m.counter.WithLabelValues(event.Name).Inc()
}
