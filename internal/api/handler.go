package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/zombar/visumax/internal/analytics"
	"github.com/zombar/visumax/internal/database"
	"github.com/zombar/visumax/internal/models"
	"github.com/zombar/visumax/internal/progress"
	"github.com/zombar/visumax/internal/storage"
	"github.com/zombar/visumax/pkg/logging"
	"github.com/zombar/visumax/pkg/tracing"
)

const (
	defaultMaxBodyBytes = 10 << 20
	storeTimeout        = 30 * time.Second
)

// FaceAnalyzer runs a complete analysis
type FaceAnalyzer interface {
	AnalyzeFace(ctx context.Context, image []byte, gender models.Gender, onProgress progress.Func) (*models.AnalysisResult, error)
}

// ResultRepository reads and deletes stored results
type ResultRepository interface {
	GetResult(ctx context.Context, id string) (*models.AnalysisResult, error)
	ListResults(ctx context.Context, limit, offset int) ([]*models.AnalysisResult, error)
	CountResults(ctx context.Context) (int, error)
	DeleteResult(ctx context.Context, id string) error
}

// Options tunes the handler. The zero value is usable.
type Options struct {
	Logger         *slog.Logger
	MaxBodyBytes   int64
	RateLimit      float64 // analyses per second, 0 disables limiting
	RateBurst      int
	AllowedOrigins []string
	// Images serves stored photos under /images/ when set
	Images http.Handler
	// Gatherer backs /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer
	// HealthChecks are reported by /health; any failure turns it into a 503
	HealthChecks map[string]func(context.Context) error
}

// Handler handles HTTP requests
type Handler struct {
	analyzer FaceAnalyzer
	results  ResultRepository
	limiter  *rate.Limiter
	opts     Options
	logger   *slog.Logger
	mux      *http.ServeMux
}

// NewHandler creates a new API handler with CORS support and metrics
func NewHandler(analyzer FaceAnalyzer, results ResultRepository, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	h := &Handler{
		analyzer: analyzer,
		results:  results,
		opts:     opts,
		logger:   opts.Logger,
		mux:      http.NewServeMux(),
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	h.setupRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Accept", "X-Client-ID", "Traceparent"},
	})

	return c.Handler(h.mux)
}

// setupRoutes configures all API routes
func (h *Handler) setupRoutes() {
	h.mux.Handle("/metrics", promhttp.HandlerFor(h.opts.Gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	h.mux.HandleFunc("/api/analyze", h.handleAnalyze)
	h.mux.HandleFunc("/api/analyses", h.handleListAnalyses)
	h.mux.HandleFunc("/api/analyses/", h.handleAnalysisOperations)
	h.mux.HandleFunc("/health", h.handleHealth)
	if h.opts.Images != nil {
		h.mux.Handle("/images/", http.StripPrefix("/images", h.opts.Images))
	}
}

// handleHealth handles health check requests
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := map[string]string{}
	for name, check := range h.opts.HealthChecks {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := check(ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	body := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if len(checks) > 0 {
		body["checks"] = checks
	}
	respondJSON(w, body, status)
}

type analyzeRequest struct {
	Image  string `json:"image"`
	Gender string `json:"gender"`
}

// handleAnalyze runs a face analysis. Clients sending
// "Accept: text/event-stream" receive progress events before the result.
func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.limiter != nil && !h.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		respondError(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	gender := models.Gender(strings.ToLower(strings.TrimSpace(req.Gender)))
	if !gender.Valid() {
		respondError(w, "Gender must be \"male\" or \"female\"", http.StatusBadRequest)
		return
	}

	image, contentType, err := storage.DecodeImagePayload(req.Image)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := analytics.WithDistinctID(r.Context(), r.Header.Get("X-Client-ID"))

	tracing.SetSpanAttributes(ctx,
		attribute.String("gender", string(gender)),
		attribute.Int("image.bytes", len(image)),
		attribute.String("image.content_type", contentType),
	)
	logging.LogRequest(h.logger, r, "face analysis requested",
		slog.String("gender", string(gender)),
		slog.Int("image_bytes", len(image)),
		slog.String("content_type", contentType),
	)

	if wantsEventStream(r) {
		h.streamAnalysis(ctx, w, r, image, gender)
		return
	}

	result, err := h.analyzer.AnalyzeFace(ctx, image, gender, nil)
	if err != nil {
		logging.HTTPErrorLogger(h.logger, http.StatusInternalServerError, err, r)
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, result, http.StatusOK)
}

// handleListAnalyses handles listing all analyses with pagination
func (h *Handler) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 10
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = min(l, 100)
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	analyses, err := h.results.ListResults(ctx, limit, offset)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	total, err := h.results.CountResults(ctx)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}

	respondJSON(w, map[string]interface{}{
		"analyses": analyses,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	}, http.StatusOK)
}

// handleAnalysisOperations handles GET and DELETE for specific analyses
func (h *Handler) handleAnalysisOperations(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(r.URL.Path[len("/api/analyses/"):], "/")
	if id == "" || strings.Contains(id, "/") {
		respondError(w, "Analysis ID is required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getAnalysis(w, r, id)
	case http.MethodDelete:
		h.deleteAnalysis(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// getAnalysis retrieves a specific analysis
func (h *Handler) getAnalysis(w http.ResponseWriter, r *http.Request, id string) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	result, err := h.results.GetResult(ctx, id)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, result, http.StatusOK)
}

// deleteAnalysis deletes a specific analysis
func (h *Handler) deleteAnalysis(w http.ResponseWriter, r *http.Request, id string) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	if err := h.results.DeleteResult(ctx, id); err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		respondError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, "Request timeout", http.StatusRequestTimeout)
	default:
		logging.HTTPErrorLogger(h.logger, http.StatusInternalServerError, err, r)
		respondError(w, err.Error(), http.StatusInternalServerError)
	}
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
