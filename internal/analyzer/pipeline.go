// Package analyzer turns a face photo into validated per-category metrics
// using an external vision model.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/zombar/visumax/internal/analytics"
	"github.com/zombar/visumax/internal/models"
	"github.com/zombar/visumax/pkg/metrics"
)

const tracerName = "github.com/zombar/visumax/internal/analyzer"

// VisionModel answers a prompt about an attached image
type VisionModel interface {
	Configured() bool
	GenerateWithImage(ctx context.Context, prompt string, image []byte) (string, error)
}

// Outcome is the result of one pipeline run. Err is nil on success; otherwise
// Metrics holds the defaults and Err says why.
type Outcome struct {
	Metrics models.Metrics
	Err     error
}

// Fallback reports whether Metrics are the defaults
func (o Outcome) Fallback() bool {
	return o.Err != nil
}

// Pipeline runs prompt selection, the model call, parsing and validation
type Pipeline struct {
	model   VisionModel
	tracker analytics.Tracker
	logger  *slog.Logger
	metrics *metrics.BusinessMetrics
}

// New creates a pipeline. model may be nil, in which case every run falls
// back to the default metrics.
func New(model VisionModel, tracker analytics.Tracker, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		model:   model,
		tracker: tracker,
		logger:  logger,
	}
}

// WithMetrics enables Prometheus instrumentation
func (p *Pipeline) WithMetrics(m *metrics.BusinessMetrics) *Pipeline {
	p.metrics = m
	return p
}

// AnalyzeFace always returns a fully populated Metrics value
func (p *Pipeline) AnalyzeFace(ctx context.Context, image []byte, gender models.Gender) models.Metrics {
	return p.Run(ctx, image, gender).Metrics
}

// Run analyzes image and reports what happened. Failures are logged, tracked
// and replaced by the default metrics; they are never returned as a bare error.
func (p *Pipeline) Run(ctx context.Context, image []byte, gender models.Gender) (out Outcome) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ai.analyze_face")
	defer span.End()
	span.SetAttributes(
		attribute.String("gender", string(gender)),
		attribute.Int("image.bytes", len(image)),
	)

	defer func() {
		if r := recover(); r != nil {
			out = p.fallback(ctx, gender, newError(KindUnexpected, "face analysis panicked", fmt.Errorf("%v", r)))
		}
		if out.Err != nil {
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, string(KindOf(out.Err)))
		}
		span.SetAttributes(attribute.Bool("analysis.fallback", out.Fallback()))
	}()

	if p.model == nil || !p.model.Configured() {
		return p.fallback(ctx, gender, newError(KindUnconfigured, "vision model is not configured", nil))
	}

	p.logger.InfoContext(ctx, "starting face analysis", "gender", gender, "image_bytes", len(image))

	start := time.Now()
	text, err := p.model.GenerateWithImage(ctx, Prompt(gender), image)
	p.observeModelCall(ctx, time.Since(start), err)
	if err != nil {
		return p.fallback(ctx, gender, newError(KindTransportFailure, "vision model request failed", err))
	}
	p.logger.DebugContext(ctx, "received model response", "chars", len(text))

	resp, err := ParseResponse(text)
	if err != nil {
		return p.fallback(ctx, gender, err)
	}

	m := ValidateMetrics(resp.Measurements)

	hasAnalysis, hasImprovement := true, true
	for _, name := range models.CategoryNames {
		c := m.Get(name)
		hasAnalysis = hasAnalysis && len(c.Analysis) > 0
		hasImprovement = hasImprovement && len(c.Improvement) > 0
	}
	analytics.Track(ctx, p.tracker, analytics.EventFaceAnalysisSuccess, analytics.Properties{
		"gender":         string(gender),
		"hasAnalysis":    hasAnalysis,
		"hasImprovement": hasImprovement,
	})

	return Outcome{Metrics: m}
}

func (p *Pipeline) fallback(ctx context.Context, gender models.Gender, err error) Outcome {
	kind := KindOf(err)

	if kind == KindUnconfigured {
		p.logger.WarnContext(ctx, "vision model is not configured, using default metrics", "gender", gender)
		analytics.Track(ctx, p.tracker, analytics.EventAnalysisFallback, analytics.Properties{
			"reason": "unconfigured",
		})
	} else {
		p.logger.ErrorContext(ctx, "face analysis failed, using default metrics",
			"error", err,
			"kind", kind,
			"gender", gender,
		)
		analytics.TrackError(ctx, p.tracker, err, "face_analysis")
	}

	if p.metrics != nil {
		p.metrics.FallbacksTotal.WithLabelValues(string(kind)).Inc()
	}

	return Outcome{Metrics: DefaultMetrics(), Err: err}
}

func (p *Pipeline) observeModelCall(ctx context.Context, d time.Duration, err error) {
	if p.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.metrics.ObserveDurationWithExemplar(ctx, p.metrics.ModelCalls, d.Seconds(), status)
}
