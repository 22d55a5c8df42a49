package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediaforge/api/internal/config"
	"github.com/mediaforge/api/internal/model"
)

// MediaGenerator defines the interface for media generation calls. Callers
// that need retries compose Generate with WithRetry so per-attempt gates
// (like the rate limiter) run on every attempt.
type MediaGenerator interface {
	Generate(ctx context.Context, apiKey string, params model.GenerationParams) (*GenerationResult, error)
	RetryConfig() RetryConfig
}

// GenerationResult is the binary payload returned by the upstream endpoint.
type GenerationResult struct {
	Data        []byte
	ContentType string
}

// PollinationsClient implements MediaGenerator against the Pollinations API.
type PollinationsClient struct {
	httpClient *http.Client
	baseURL    string
	retryCfg   RetryConfig
	logger     zerolog.Logger
}

// NewPollinationsClient creates a new Pollinations API client.
func NewPollinationsClient(cfg *config.PollinationsConfig, logger zerolog.Logger) *PollinationsClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120
	}
	return &PollinationsClient{
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		retryCfg: RetryConfig{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  time.Duration(cfg.BaseDelayMs) * time.Millisecond,
			MaxDelay:   time.Duration(cfg.MaxDelayMs) * time.Millisecond,
		},
		logger: logger.With().Str("component", "pollinations").Logger(),
	}
}

// RetryConfig returns the configured retry envelope, falling back to the
// generation endpoint defaults for unset fields.
func (c *PollinationsClient) RetryConfig() RetryConfig {
	cfg := c.retryCfg
	def := DefaultRetryConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	return cfg
}

// Generate performs a single generation call. A 2xx response that carries a
// textual error envelope is treated as a failure; the classifier inspects the
// body, not just the status code.
func (c *PollinationsClient) Generate(ctx context.Context, apiKey string, params model.GenerationParams) (*GenerationResult, error) {
	endpoint := fmt.Sprintf("%s/prompt/%s", c.baseURL, url.PathEscape(params.Prompt))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.URL.RawQuery = buildQuery(params).Encode()
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	c.logger.Debug().Str("url", req.URL.String()).Msg("generation request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport failures are transient from the caller's point of view.
		return nil, &GenerationError{
			Kind:      KindTransientUpstream,
			Message:   err.Error(),
			Retryable: true,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GenerationError{
			Kind:      KindTransientUpstream,
			Message:   fmt.Sprintf("failed to read response: %v", err),
			Retryable: true,
		}
	}

	contentType := resp.Header.Get("Content-Type")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn().Int("status", resp.StatusCode).Str("body", truncate(string(body), 256)).Msg("generation request failed")
		return nil, NewGenerationError(resp.StatusCode, string(body))
	}

	// The API sometimes reports errors in-band inside a 200 envelope.
	if isTextual(contentType) {
		if cls := Classify(resp.StatusCode, string(body)); cls.Kind == KindTransientUpstream {
			c.logger.Warn().Str("body", truncate(string(body), 256)).Msg("in-band upstream error")
			return nil, &GenerationError{
				Kind:      cls.Kind,
				Status:    resp.StatusCode,
				Message:   truncate(string(body), 512),
				Retryable: cls.Retryable,
			}
		}
		return nil, &GenerationError{
			Kind:    KindUnknown,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("expected binary media, got %s", contentType),
		}
	}

	return &GenerationResult{Data: body, ContentType: contentType}, nil
}

func buildQuery(p model.GenerationParams) url.Values {
	q := url.Values{}
	if p.NegativePrompt != "" {
		q.Set("negative_prompt", p.NegativePrompt)
	}
	if p.Model != "" {
		q.Set("model", p.Model)
	}
	if p.Width > 0 {
		q.Set("width", strconv.Itoa(p.Width))
	}
	if p.Height > 0 {
		q.Set("height", strconv.Itoa(p.Height))
	}
	if p.Seed != nil {
		q.Set("seed", strconv.FormatInt(*p.Seed, 10))
	}
	if p.Enhance {
		q.Set("enhance", "true")
	}
	if p.Private {
		q.Set("private", "true")
	}
	if p.Safe {
		q.Set("safe", "true")
	}
	if p.ReferenceImage != "" {
		q.Set("image", p.ReferenceImage)
	}
	if p.Duration > 0 {
		q.Set("duration", strconv.Itoa(p.Duration))
	}
	if p.Audio {
		q.Set("audio", "true")
	}
	if p.Quality != "" {
		q.Set("quality", p.Quality)
	}
	return q
}

func isTextual(contentType string) bool {
	return strings.HasPrefix(contentType, "text/") ||
		strings.HasPrefix(contentType, "application/json")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
