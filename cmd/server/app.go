package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zombar/visumax/internal/analytics"
	"github.com/zombar/visumax/internal/analyzer"
	"github.com/zombar/visumax/internal/api"
	"github.com/zombar/visumax/internal/config"
	"github.com/zombar/visumax/internal/database"
	"github.com/zombar/visumax/internal/ollama"
	"github.com/zombar/visumax/internal/queue"
	"github.com/zombar/visumax/internal/service"
	"github.com/zombar/visumax/internal/storage"
	"github.com/zombar/visumax/pkg/logging"
	"github.com/zombar/visumax/pkg/metrics"
	"github.com/zombar/visumax/pkg/tracing"
)

const serviceName = "visumax"

// app holds everything main wires together
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *prometheus.Registry
	db        *database.DB
	dbMetrics *metrics.DatabaseMetrics
	publisher *analytics.Publisher
	queue     *queue.Client
	worker    *queue.Worker
	handler   http.Handler
}

// newApp opens storage and builds the HTTP handler. The caller owns Close.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	db, err := database.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.db = db.WithLogger(logger)
	if err := a.db.MigrateContext(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a.dbMetrics = metrics.NewDatabaseMetrics(serviceName, a.registry)
	businessMetrics := metrics.NewBusinessMetrics(serviceName, a.registry)

	a.publisher = analytics.NewPublisher(logger,
		analytics.NewLogTracker(logger),
		analytics.NewMetricsTracker(businessMetrics.EventsTotal),
	)
	if cfg.QueueEnabled() {
		queueCfg := queue.ClientConfig{
			RedisAddr:     cfg.RedisAddr,
			RedisPassword: cfg.RedisPassword,
			RedisDB:       cfg.RedisDB,
		}
		a.queue = queue.NewClient(queueCfg)
		a.publisher.Subscribe(queue.NewTracker(a.queue, logger))

		a.worker = queue.NewWorker(queue.WorkerConfig{
			RedisAddr:     cfg.RedisAddr,
			RedisPassword: cfg.RedisPassword,
			RedisDB:       cfg.RedisDB,
			Concurrency:   cfg.WorkerConcurrency,
		}, analytics.NewMixpanelClient(cfg.MixpanelURL, cfg.MixpanelToken), logger, businessMetrics)
		logger.Info("analytics delivery enabled", "redis_addr", cfg.RedisAddr)
	}

	pipeline := analyzer.New(a.visionModel(ctx), a.publisher, logger).WithMetrics(businessMetrics)

	images, imageHandler, err := a.imageStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	timing := service.DefaultTiming()
	if cfg.FastProgress {
		timing = service.Timing{}
	}
	svc := service.New(pipeline, a.publisher, logger).
		WithResultStore(a.db).
		WithMetrics(businessMetrics).
		WithTiming(timing)
	if images != nil {
		svc.WithImageStore(images)
	}

	apiHandler := api.NewHandler(svc, a.db, api.Options{
		Logger:         logger,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		AllowedOrigins: cfg.AllowedOrigins,
		Images:         imageHandler,
		Gatherer:       a.registry,
		HealthChecks: map[string]func(context.Context) error{
			"database": a.db.Ping,
		},
	})

	// HTTP logging -> tracing -> handlers
	a.handler = logging.HTTPLoggingMiddleware(logger)(
		tracing.HTTPMiddleware(serviceName)(apiHandler),
	)

	return a, nil
}

// visionModel returns nil when the model is disabled or cannot be set up;
// analyses then use the default metrics.
func (a *app) visionModel(ctx context.Context) analyzer.VisionModel {
	if !a.cfg.UseOllama {
		a.logger.Info("vision model disabled, analyses will use default metrics")
		return nil
	}

	client, err := ollama.New(a.cfg.OllamaURL, a.cfg.OllamaModel, a.cfg.OllamaAPIKey)
	if err != nil {
		a.logger.Warn("failed to initialize Ollama client, analyses will use default metrics",
			"error", err,
			"ollama_url", a.cfg.OllamaURL,
			"ollama_model", a.cfg.OllamaModel,
		)
		return nil
	}
	client.WithTimeout(a.cfg.OllamaTimeout).WithLogger(a.logger)

	if err := client.Ping(ctx); err != nil {
		a.logger.Warn("Ollama is not reachable yet", "error", err, "ollama_url", a.cfg.OllamaURL)
	} else {
		a.logger.Info("Ollama client initialized", "model", client.Model(), "url", a.cfg.OllamaURL)
	}
	return client
}

func (a *app) imageStore(ctx context.Context) (storage.ImageStore, http.Handler, error) {
	switch a.cfg.Storage {
	case config.StorageDisk:
		store, err := storage.NewDiskStore(a.cfg.ImageDir, a.cfg.ImageBaseURL)
		if err != nil {
			return nil, nil, err
		}
		a.logger.Info("storing images on disk", "dir", a.cfg.ImageDir)
		return store, store.Handler(), nil

	case config.StorageAzure:
		var (
			store *storage.AzureStore
			err   error
		)
		if a.cfg.AzureConnectionString != "" {
			store, err = storage.NewAzureStoreFromConnectionString(a.cfg.AzureConnectionString, a.cfg.AzureContainer)
		} else {
			store, err = storage.NewAzureStore(a.cfg.AzureAccount, a.cfg.AzureKey, a.cfg.AzureContainer)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize azure storage: %w", err)
		}
		if a.cfg.AzurePublicURL != "" {
			store.WithPublicBaseURL(a.cfg.AzurePublicURL)
		}
		if err := store.EnsureContainer(ctx); err != nil {
			a.logger.Warn("could not verify image container", "error", err, "container", a.cfg.AzureContainer)
		}
		a.logger.Info("storing images in azure blob storage", "container", a.cfg.AzureContainer)
		return store, nil, nil
	}

	a.logger.Info("image storage disabled")
	return nil, nil, nil
}

// runMaintenance refreshes pool gauges and purges expired results until ctx
// is done.
func (a *app) runMaintenance(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		a.maintain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *app) maintain(ctx context.Context) {
	a.dbMetrics.UpdateDBStats(a.db.Conn())

	if a.cfg.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -a.cfg.RetentionDays)
	n, err := a.db.PurgeBefore(ctx, cutoff)
	if err != nil {
		a.logger.Error("failed to purge old analyses", "error", err)
		return
	}
	if n > 0 {
		a.logger.Info("purged old analyses", "count", n, "cutoff", cutoff.Format(time.RFC3339))
	}
}

// Close flushes pending analytics and releases connections
func (a *app) Close() {
	if a.publisher != nil {
		a.publisher.Flush()
	}
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			a.logger.Error("failed to close queue client", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("failed to close database", "error", err)
		}
	}
}
