// Package config loads server settings from the environment, an optional
// .env file and command-line flags. Flags win over the environment.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends
const (
	StorageNone  = "none"
	StorageDisk  = "disk"
	StorageAzure = "azure"
)

// Config holds every server setting
type Config struct {
	Port     string
	DBPath   string
	LogLevel string

	UseOllama     bool
	OllamaURL     string
	OllamaModel   string
	OllamaAPIKey  string
	OllamaTimeout time.Duration

	Storage               string
	ImageDir              string
	ImageBaseURL          string
	AzureAccount          string
	AzureKey              string
	AzureConnectionString string
	AzureContainer        string
	AzurePublicURL        string

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	MixpanelToken     string
	MixpanelURL       string
	WorkerConcurrency int

	RateLimit      float64
	RateBurst      int
	MaxBodyBytes   int64
	AllowedOrigins []string
	RetentionDays  int
	FastProgress   bool
}

// Load reads .env (when present) and parses args, usually os.Args[1:]
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return parse(args)
}

func parse(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("visumax", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.Port, "port", getEnv("PORT", "8080"), "Server port (env: PORT)")
	fs.StringVar(&cfg.DBPath, "db", getEnv("DB_PATH", "visumax.db"), "Database file path (env: DB_PATH)")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level (env: LOG_LEVEL)")

	fs.BoolVar(&cfg.UseOllama, "use-ollama", getEnvBool("USE_OLLAMA", true), "Enable the vision model (env: USE_OLLAMA)")
	fs.StringVar(&cfg.OllamaURL, "ollama-url", getEnv("OLLAMA_URL", "http://localhost:11434"), "Ollama API URL (env: OLLAMA_URL)")
	fs.StringVar(&cfg.OllamaModel, "ollama-model", getEnv("OLLAMA_MODEL", "llava:13b"), "Vision model to use (env: OLLAMA_MODEL)")
	fs.StringVar(&cfg.OllamaAPIKey, "ollama-api-key", getEnv("OLLAMA_API_KEY", ""), "Bearer token for hosted endpoints (env: OLLAMA_API_KEY)")
	fs.DurationVar(&cfg.OllamaTimeout, "ollama-timeout", getEnvDuration("OLLAMA_TIMEOUT", 120*time.Second), "Per-request model timeout (env: OLLAMA_TIMEOUT)")

	fs.StringVar(&cfg.Storage, "storage", getEnv("STORAGE_BACKEND", StorageNone), "Image storage: none, disk or azure (env: STORAGE_BACKEND)")
	fs.StringVar(&cfg.ImageDir, "image-dir", getEnv("IMAGE_DIR", "images"), "Directory for disk storage (env: IMAGE_DIR)")
	fs.StringVar(&cfg.ImageBaseURL, "image-base-url", getEnv("IMAGE_BASE_URL", "/images"), "URL prefix for disk-stored images (env: IMAGE_BASE_URL)")
	fs.StringVar(&cfg.AzureAccount, "azure-account", getEnv("AZURE_STORAGE_ACCOUNT", ""), "Azure storage account (env: AZURE_STORAGE_ACCOUNT)")
	fs.StringVar(&cfg.AzureKey, "azure-key", getEnv("AZURE_STORAGE_KEY", ""), "Azure storage key (env: AZURE_STORAGE_KEY)")
	fs.StringVar(&cfg.AzureConnectionString, "azure-connection-string", getEnv("AZURE_STORAGE_CONNECTION_STRING", ""), "Azure connection string (env: AZURE_STORAGE_CONNECTION_STRING)")
	fs.StringVar(&cfg.AzureContainer, "azure-container", getEnv("AZURE_STORAGE_CONTAINER", "analysis-images"), "Azure blob container (env: AZURE_STORAGE_CONTAINER)")
	fs.StringVar(&cfg.AzurePublicURL, "azure-public-url", getEnv("AZURE_PUBLIC_URL", ""), "CDN base URL for uploaded images (env: AZURE_PUBLIC_URL)")

	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", ""), "Redis address for analytics delivery (env: REDIS_ADDR)")
	fs.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password (env: REDIS_PASSWORD)")
	fs.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database (env: REDIS_DB)")
	fs.StringVar(&cfg.MixpanelToken, "mixpanel-token", getEnv("MIXPANEL_TOKEN", ""), "Mixpanel project token (env: MIXPANEL_TOKEN)")
	fs.StringVar(&cfg.MixpanelURL, "mixpanel-url", getEnv("MIXPANEL_URL", ""), "Mixpanel API URL (env: MIXPANEL_URL)")
	fs.IntVar(&cfg.WorkerConcurrency, "worker-concurrency", getEnvInt("WORKER_CONCURRENCY", 2), "Analytics delivery workers (env: WORKER_CONCURRENCY)")

	fs.Float64Var(&cfg.RateLimit, "rate-limit", getEnvFloat("RATE_LIMIT", 2), "Analyses per second (env: RATE_LIMIT)")
	fs.IntVar(&cfg.RateBurst, "rate-burst", getEnvInt("RATE_BURST", 5), "Analysis burst size (env: RATE_BURST)")
	fs.Int64Var(&cfg.MaxBodyBytes, "max-body-bytes", int64(getEnvInt("MAX_BODY_BYTES", 10<<20)), "Largest accepted request body (env: MAX_BODY_BYTES)")
	origins := fs.String("allowed-origins", getEnv("ALLOWED_ORIGINS", "*"), "Comma separated CORS origins (env: ALLOWED_ORIGINS)")
	fs.IntVar(&cfg.RetentionDays, "retention-days", getEnvInt("RETENTION_DAYS", 0), "Delete results older than this, 0 keeps everything (env: RETENTION_DAYS)")
	fs.BoolVar(&cfg.FastProgress, "fast-progress", getEnvBool("FAST_PROGRESS", false), "Skip progress animation delays (env: FAST_PROGRESS)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.AllowedOrigins = splitList(*origins)
	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that cannot be fixed by a default
func (c *Config) Validate() error {
	var errs []error

	if p, err := strconv.Atoi(c.Port); err != nil || p <= 0 || p > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %q", c.Port))
	}
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if c.UseOllama {
		if u, err := url.Parse(c.OllamaURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid ollama url %q", c.OllamaURL))
		}
		if c.OllamaTimeout <= 0 {
			errs = append(errs, errors.New("ollama timeout must be positive"))
		}
	}

	switch c.Storage {
	case StorageNone:
	case StorageDisk:
		if c.ImageDir == "" {
			errs = append(errs, errors.New("disk storage needs an image directory"))
		}
	case StorageAzure:
		if c.AzureConnectionString == "" && (c.AzureAccount == "" || c.AzureKey == "") {
			errs = append(errs, errors.New("azure storage needs a connection string or account and key"))
		}
		if c.AzureContainer == "" {
			errs = append(errs, errors.New("azure storage needs a container"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage))
	}

	if c.RateLimit < 0 {
		errs = append(errs, errors.New("rate limit cannot be negative"))
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		errs = append(errs, errors.New("rate burst must be at least 1"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("max body bytes must be positive"))
	}
	if c.MixpanelToken != "" && c.RedisAddr == "" {
		errs = append(errs, errors.New("mixpanel delivery needs a redis address"))
	}
	if c.RetentionDays < 0 {
		errs = append(errs, errors.New("retention days cannot be negative"))
	}

	return errors.Join(errs...)
}

// QueueEnabled reports whether analytics events are delivered through Redis
func (c *Config) QueueEnabled() bool {
	return c.RedisAddr != "" && c.MixpanelToken != ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
