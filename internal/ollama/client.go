package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultURL     = "http://localhost:11434"
	DefaultModel   = "llava:13b"
	DefaultTimeout = 120 * time.Second
)

// Client wraps the Ollama API client for vision requests
type Client struct {
	client      *api.Client
	model       string
	timeout     time.Duration
	temperature float64
	logger      *slog.Logger
}

// New creates a new Ollama client. apiKey is optional and is sent as a
// bearer token for hosted endpoints.
func New(ollamaURL, model, apiKey string) (*Client, error) {
	if ollamaURL == "" {
		ollamaURL = DefaultURL
	}
	if model == "" {
		model = DefaultModel
	}

	baseURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid Ollama URL: %q needs a scheme and host", ollamaURL)
	}

	var transport http.RoundTripper = otelhttp.NewTransport(http.DefaultTransport)
	if apiKey != "" {
		transport = &bearerTransport{token: apiKey, base: transport}
	}

	return &Client{
		client:      api.NewClient(baseURL, &http.Client{Transport: transport}),
		model:       model,
		timeout:     DefaultTimeout,
		temperature: 0.2,
		logger:      slog.Default(),
	}, nil
}

// WithTimeout overrides the per-request timeout
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// WithLogger sets the logger used for request diagnostics
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// Model returns the model name requests are sent to
func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

// Configured reports whether the client can make requests. A nil client is
// not configured.
func (c *Client) Configured() bool {
	return c != nil && c.client != nil && c.model != ""
}

// GenerateWithImage sends prompt with image attached and returns the model's
// full text response.
func (c *Client) GenerateWithImage(ctx context.Context, prompt string, image []byte) (string, error) {
	var images []api.ImageData
	if len(image) > 0 {
		images = []api.ImageData{image}
	}
	return c.generate(ctx, &api.GenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Images: images,
		Stream: new(bool), // false
		Format: json.RawMessage(`"json"`),
		Options: map[string]interface{}{
			"temperature": c.temperature,
		},
	})
}

func (c *Client) generate(ctx context.Context, req *api.GenerateRequest) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("ollama client is not configured")
	}

	c.logger.DebugContext(ctx, "ollama request",
		"model", c.model,
		"timeout", c.timeout,
		"images", len(req.Images),
	)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	var response strings.Builder
	err := c.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		response.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}

	result := strings.TrimSpace(response.String())
	c.logger.DebugContext(ctx, "ollama response received",
		"model", c.model,
		"chars", len(result),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// Ping checks that the server is reachable
func (c *Client) Ping(ctx context.Context) error {
	if !c.Configured() {
		return fmt.Errorf("ollama client is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama heartbeat failed: %w", err)
	}
	return nil
}

type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(r)
}
