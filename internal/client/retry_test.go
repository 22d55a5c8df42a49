package client_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaforge/api/internal/client"
)

func fastRetryConfig(maxRetries int) client.RetryConfig {
	return client.RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   4 * time.Millisecond,
	}
}

func retryableErr() error {
	return &client.GenerationError{Kind: client.KindServerError, Status: 500, Message: "boom", Retryable: true}
}

func terminalErr() error {
	return &client.GenerationError{Kind: client.KindInvalidParams, Status: 400, Message: "bad", Retryable: false}
}

func TestWithRetryFirstAttemptSucceeds(t *testing.T) {
	result, attempts, err := client.WithRetry(context.Background(), fastRetryConfig(3), func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, attempts)
}

func TestWithRetryRecoversAfterTransientFailures(t *testing.T) {
	calls := 0
	result, attempts, err := client.WithRetry(context.Background(), fastRetryConfig(3), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", retryableErr()
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestWithRetryStopsOnTerminalError(t *testing.T) {
	calls := 0
	_, attempts, err := client.WithRetry(context.Background(), fastRetryConfig(3), func(ctx context.Context) (string, error) {
		calls++
		return "", terminalErr()
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)

	var genErr *client.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, client.KindInvalidParams, genErr.Kind)
}

func TestWithRetryExhaustsBudget(t *testing.T) {
	calls := 0
	_, attempts, err := client.WithRetry(context.Background(), fastRetryConfig(3), func(ctx context.Context) (string, error) {
		calls++
		return "", retryableErr()
	})
	require.Error(t, err)
	// 1 initial attempt + 3 retries
	assert.Equal(t, 4, attempts)
	assert.Equal(t, 4, calls)
}

func TestWithRetryUnclassifiedErrorIsTerminal(t *testing.T) {
	calls := 0
	_, attempts, err := client.WithRetry(context.Background(), fastRetryConfig(3), func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("something odd")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestWithRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := client.RetryConfig{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}

	done := make(chan error, 1)
	go func() {
		_, _, err := client.WithRetry(ctx, cfg, func(ctx context.Context) (string, error) {
			return "", retryableErr()
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop did not abort on cancellation")
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	cfg := client.RetryConfig{
		BaseDelay: 2 * time.Second,
		MaxDelay:  30 * time.Second,
	}
	assert.Equal(t, 2*time.Second, cfg.Backoff(1))
	assert.Equal(t, 4*time.Second, cfg.Backoff(2))
	assert.Equal(t, 8*time.Second, cfg.Backoff(3))
	assert.Equal(t, 16*time.Second, cfg.Backoff(4))
	assert.Equal(t, 30*time.Second, cfg.Backoff(5))
	assert.Equal(t, 30*time.Second, cfg.Backoff(10))
}
