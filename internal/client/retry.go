package client

import (
	"context"
	"errors"
	"time"
)

// RetryConfig bounds the retry loop around one upstream call.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
}

// DefaultRetryConfig are the defaults used for the generation endpoint.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// Backoff returns the delay before retry number attempt (1-based):
// min(base * 2^(attempt-1), max).
func (c RetryConfig) Backoff(attempt int) time.Duration {
	delay := c.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

// WithRetry runs op with exponential backoff. A failure is retried only when
// it classifies as retryable and attempts remain. The backoff sleep is the
// only suspension point; it aborts early on context cancellation.
//
// attempts is the number of attempts actually used (at least 1 on every path) so the
// caller can persist it as the job's retry count.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, op func(context.Context) (T, error)) (result T, attempts int, err error) {
	maxAttempts := cfg.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		result, err = op(ctx)
		if err == nil {
			return result, attempts, nil
		}

		if !isRetryable(err) || attempt == maxAttempts {
			return result, attempts, err
		}

		select {
		case <-ctx.Done():
			return result, attempts, ctx.Err()
		case <-time.After(cfg.Backoff(attempt)):
		}
	}

	return result, attempts, err
}

// isRetryable defers to the classifier's verdict. Errors without a
// classification are treated as terminal.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Retryable
	}
	return false
}
