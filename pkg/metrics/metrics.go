// Package metrics defines the Prometheus collectors exported by the service.
package metrics

import (
	"context"
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/trace"
)

// BusinessMetrics tracks analysis outcomes
type BusinessMetrics struct {
	AnalysesTotal    *prometheus.CounterVec
	AnalysisDuration *prometheus.HistogramVec
	FallbacksTotal   *prometheus.CounterVec
	ModelCalls       *prometheus.HistogramVec
	UploadsTotal     *prometheus.CounterVec
	EventsTotal      *prometheus.CounterVec
	DeliveriesTotal  *prometheus.CounterVec
	TotalScore       prometheus.Histogram
}

// NewBusinessMetrics registers the business collectors on reg. A nil reg
// uses the default registerer.
func NewBusinessMetrics(namespace string, reg prometheus.Registerer) *BusinessMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &BusinessMetrics{
		AnalysesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Face analyses by outcome (success, fallback, error)",
		}, []string{"status"}),
		AnalysisDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "End-to-end face analysis duration",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 15, 30, 60, 120},
		}, []string{"status"}),
		FallbacksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metrics_fallbacks_total",
			Help:      "Analyses answered with default metrics, by reason",
		}, []string{"reason"}),
		ModelCalls: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vision_model_call_seconds",
			Help:      "Vision model request latency",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"status"}),
		UploadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_uploads_total",
			Help:      "Image uploads by outcome",
		}, []string{"status"}),
		EventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_events_total",
			Help:      "Analytics events emitted, by event name",
		}, []string{"event"}),
		DeliveriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_deliveries_total",
			Help:      "Queued analytics events delivered to the collector, by outcome",
		}, []string{"status"}),
		TotalScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "total_score",
			Help:      "Distribution of total scores handed out",
			Buckets:   prometheus.LinearBuckets(10, 10, 9),
		}),
	}
}

// ObserveDurationWithExemplar records seconds on hist and links the sample to
// the active trace when there is one.
func (m *BusinessMetrics) ObserveDurationWithExemplar(ctx context.Context, hist *prometheus.HistogramVec, seconds float64, labels ...string) {
	observer := hist.WithLabelValues(labels...)

	spanCtx := trace.SpanContextFromContext(ctx)
	if eo, ok := observer.(prometheus.ExemplarObserver); ok && spanCtx.HasTraceID() {
		eo.ObserveWithExemplar(seconds, prometheus.Labels{"trace_id": spanCtx.TraceID().String()})
		return
	}
	observer.Observe(seconds)
}

// DatabaseMetrics exposes sql.DB pool statistics
type DatabaseMetrics struct {
	openConnections prometheus.Gauge
	inUse           prometheus.Gauge
	idle            prometheus.Gauge
	waitCount       prometheus.Gauge
}

// NewDatabaseMetrics registers the pool gauges on reg
func NewDatabaseMetrics(namespace string, reg prometheus.Registerer) *DatabaseMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	gauge := func(name, help string) prometheus.Gauge {
		return f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      name,
			Help:      help,
		})
	}

	return &DatabaseMetrics{
		openConnections: gauge("open_connections", "Established connections"),
		inUse:           gauge("in_use_connections", "Connections currently in use"),
		idle:            gauge("idle_connections", "Idle connections"),
		waitCount:       gauge("wait_count", "Total connections waited for"),
	}
}

// UpdateDBStats copies the current pool statistics into the gauges
func (m *DatabaseMetrics) UpdateDBStats(db *sql.DB) {
	if db == nil {
		return
	}
	stats := db.Stats()
	m.openConnections.Set(float64(stats.OpenConnections))
	m.inUse.Set(float64(stats.InUse))
	m.idle.Set(float64(stats.Idle))
	m.waitCount.Set(float64(stats.WaitCount))
}
