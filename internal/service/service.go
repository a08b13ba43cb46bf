// Package service runs a complete face analysis: upload, model call,
// scoring, persistence and progress reporting.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/zombar/visumax/internal/analytics"
	"github.com/zombar/visumax/internal/analyzer"
	"github.com/zombar/visumax/internal/models"
	"github.com/zombar/visumax/internal/progress"
	"github.com/zombar/visumax/internal/scoring"
	"github.com/zombar/visumax/internal/storage"
	"github.com/zombar/visumax/pkg/metrics"
)

const tracerName = "github.com/zombar/visumax/internal/service"

// Progress stage names
const (
	StageLoadingImage      = "loading_image"
	StageDetectingFace     = "detecting_face"
	StageDiagnosing        = "diagnosing"
	StageAnalyzingFeatures = "analyzing_features"
	StageCalculatingScores = "calculating_scores"
	StageComplete          = "complete"
)

// Timing controls how long each progress stage is animated
type Timing struct {
	LoadImage  time.Duration
	DetectFace time.Duration
	// MinAnalysis is the shortest the analysis stage is shown for. A faster
	// model response is padded with animation up to this length.
	MinAnalysis time.Duration
	Scoring     time.Duration
	Complete    time.Duration
}

// DefaultTiming returns the production stage durations
func DefaultTiming() Timing {
	return Timing{
		LoadImage:   800 * time.Millisecond,
		DetectFace:  800 * time.Millisecond,
		MinAnalysis: 1500 * time.Millisecond,
		Scoring:     800 * time.Millisecond,
		Complete:    500 * time.Millisecond,
	}
}

// ResultStore persists finished analyses
type ResultStore interface {
	SaveResult(ctx context.Context, result *models.AnalysisResult) error
}

// Analyzer produces metrics for an image
type Analyzer interface {
	Run(ctx context.Context, image []byte, gender models.Gender) analyzer.Outcome
}

// Service is the caller-facing face analysis entry point
type Service struct {
	analyzer Analyzer
	images   storage.ImageStore
	results  ResultStore
	tracker  analytics.Tracker
	logger   *slog.Logger
	metrics  *metrics.BusinessMetrics
	timing   Timing
	now      func() time.Time
}

// New creates a service around a. Image upload and persistence are skipped
// until WithImageStore and WithResultStore are set.
func New(a Analyzer, tracker analytics.Tracker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if tracker == nil {
		tracker = analytics.Nop
	}
	return &Service{
		analyzer: a,
		tracker:  tracker,
		logger:   logger,
		timing:   DefaultTiming(),
		now:      time.Now,
	}
}

// WithImageStore sets where analyzed photos are uploaded
func (s *Service) WithImageStore(store storage.ImageStore) *Service {
	s.images = store
	return s
}

// WithResultStore sets where results are persisted
func (s *Service) WithResultStore(store ResultStore) *Service {
	s.results = store
	return s
}

// WithMetrics enables Prometheus instrumentation
func (s *Service) WithMetrics(m *metrics.BusinessMetrics) *Service {
	s.metrics = m
	return s
}

// WithTiming overrides the progress stage durations
func (s *Service) WithTiming(t Timing) *Service {
	s.timing = t
	return s
}

// AnalyzeFace analyzes image and reports progress through onProgress, which
// may be nil. A failing model never fails the call: the result is then built
// from default metrics and marked as a fallback.
func (s *Service) AnalyzeFace(ctx context.Context, image []byte, gender models.Gender, onProgress progress.Func) (*models.AnalysisResult, error) {
	if len(image) == 0 {
		return nil, storage.ErrEmptyImage
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "service.analyze_face")
	defer span.End()
	span.SetAttributes(attribute.String("gender", string(gender)))

	start := s.now()
	result, err := s.analyze(ctx, image, gender, progress.New(onProgress))
	if err != nil {
		s.logger.ErrorContext(ctx, "face analysis failed", "error", err, "gender", gender)
		analytics.TrackError(ctx, s.tracker, err, "analyze_face")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.observe(ctx, "error", s.now().Sub(start))
		return nil, fmt.Errorf("face analysis failed: %w", err)
	}

	status := "success"
	if result.Fallback {
		status = "fallback"
	}
	s.observe(ctx, status, s.now().Sub(start))
	if s.metrics != nil {
		s.metrics.TotalScore.Observe(float64(result.Scores.Total))
	}
	span.SetAttributes(
		attribute.String("analysis.id", result.ID),
		attribute.Int("score.total", result.Scores.Total),
		attribute.Bool("analysis.fallback", result.Fallback),
	)

	return result, nil
}

func (s *Service) analyze(ctx context.Context, image []byte, gender models.Gender, reporter *progress.Reporter) (result *models.AnalysisResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	if err := reporter.Run(ctx, progress.Stage{Name: StageLoadingImage, Start: 0, End: 20, Duration: s.timing.LoadImage}); err != nil {
		return nil, err
	}

	imageURL := s.upload(ctx, image)

	if err := reporter.Run(ctx, progress.Stage{Name: StageDetectingFace, Start: 20, End: 40, Duration: s.timing.DetectFace}); err != nil {
		return nil, err
	}

	stage := analysisStage(gender)
	reporter.Emit(stage, 40)

	analysisStart := s.now()
	outcome := s.analyzer.Run(ctx, image, gender)
	elapsed := s.now().Sub(analysisStart)
	analytics.Track(ctx, s.tracker, analytics.EventAnalysisSuccess, analytics.Properties{
		"duration": elapsed.Milliseconds(),
		"gender":   string(gender),
	})

	if elapsed < s.timing.MinAnalysis {
		if err := reporter.Run(ctx, progress.Stage{Name: stage, Start: 40, End: 80, Duration: s.timing.MinAnalysis - elapsed}); err != nil {
			return nil, err
		}
	} else {
		reporter.Emit(stage, 80)
	}

	reporter.Emit(StageCalculatingScores, 80)
	detailed := scoring.CalculateScores(outcome.Metrics)
	scores := scoring.CalculateTotalScores(detailed)
	if err := reporter.Run(ctx, progress.Stage{Name: StageCalculatingScores, Start: 80, End: 95, Duration: s.timing.Scoring}); err != nil {
		return nil, err
	}

	result = &models.AnalysisResult{
		ID:             uuid.NewString(),
		Gender:         gender,
		Scores:         scores,
		DetailedScores: detailed,
		Percentile:     scoring.CalculatePercentile(scores.Total),
		ImageURL:       imageURL,
		Advice:         models.NewAdvice(outcome.Metrics),
		ScoringVersion: scoring.Version,
		Fallback:       outcome.Fallback(),
		CreatedAt:      s.now().UTC(),
	}

	// a result is only persisted once the caller is still there to receive it
	if err := reporter.Run(ctx, progress.Stage{Name: StageComplete, Start: 95, End: 100, Duration: s.timing.Complete}); err != nil {
		return nil, err
	}
	s.save(ctx, result)

	analytics.Track(ctx, s.tracker, analytics.EventAnalysisComplete, analytics.Properties{
		"totalScore": scores.Total,
		"gender":     string(gender),
	})

	return result, nil
}

// upload stores the photo and returns its URL, or nil when there is no store
// or the upload fails.
func (s *Service) upload(ctx context.Context, image []byte) *string {
	if s.images == nil {
		return nil
	}

	url, err := s.uploadImage(ctx, image)
	if err != nil {
		s.logger.ErrorContext(ctx, "image upload failed", "error", err)
		analytics.TrackError(ctx, s.tracker, err, "image_upload")
		s.countUpload("error")
		return nil
	}

	analytics.Track(ctx, s.tracker, analytics.EventImageUploadSuccess, nil)
	s.countUpload("success")
	return &url
}

func (s *Service) uploadImage(ctx context.Context, image []byte) (string, error) {
	contentType, err := storage.DetectContentType(image)
	if err != nil {
		return "", err
	}
	return s.images.Upload(ctx, image, contentType)
}

func (s *Service) save(ctx context.Context, result *models.AnalysisResult) {
	if s.results == nil {
		return
	}
	if err := s.results.SaveResult(ctx, result); err != nil {
		s.logger.ErrorContext(ctx, "failed to save analysis result", "error", err, "analysis_id", result.ID)
	}
}

func (s *Service) countUpload(status string) {
	if s.metrics != nil {
		s.metrics.UploadsTotal.WithLabelValues(status).Inc()
	}
}

func (s *Service) observe(ctx context.Context, status string, d time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.AnalysesTotal.WithLabelValues(status).Inc()
	s.metrics.ObserveDurationWithExemplar(ctx, s.metrics.AnalysisDuration, d.Seconds(), status)
}

func analysisStage(gender models.Gender) string {
	if gender == models.GenderFemale {
		return StageDiagnosing
	}
	return StageAnalyzingFeatures
}
