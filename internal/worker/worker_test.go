package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mediaforge/api/internal/client"
	"github.com/mediaforge/api/internal/model"
	"github.com/mediaforge/api/internal/ratelimit"
	"github.com/mediaforge/api/internal/store"
)

// fakeGenerator scripts upstream responses per call, with millisecond backoff
// so retry paths run fast.
type fakeGenerator struct {
	calls int
	fn    func(call int, params model.GenerationParams) (*client.GenerationResult, error)
}

func (g *fakeGenerator) Generate(ctx context.Context, apiKey string, params model.GenerationParams) (*client.GenerationResult, error) {
	g.calls++
	return g.fn(g.calls, params)
}

func (g *fakeGenerator) RetryConfig() client.RetryConfig {
	return client.RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   4 * time.Millisecond,
	}
}

func okResult() (*client.GenerationResult, error) {
	return &client.GenerationResult{Data: []byte("png-bytes"), ContentType: "image/png"}, nil
}

func serverError() (*client.GenerationResult, error) {
	return nil, &client.GenerationError{Kind: client.KindServerError, Status: 500, Message: "boom", Retryable: true}
}

func invalidParams() (*client.GenerationResult, error) {
	return nil, &client.GenerationError{Kind: client.KindInvalidParams, Status: 400, Message: "bad prompt", Retryable: false}
}

type workerEnv struct {
	store   *store.GormStore
	limiter *ratelimit.Limiter
	storage *client.MockStorage
}

func setupWorkerEnv(t *testing.T) *workerEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	s := store.NewGormStore(db)
	require.NoError(t, s.Migrate(context.Background()))

	return &workerEnv{
		store:   s,
		limiter: ratelimit.New(s),
		storage: client.NewMockStorage(),
	}
}

func encodedParams(t *testing.T, p model.GenerationParams) []byte {
	t.Helper()
	data, err := model.EncodeParams(p)
	require.NoError(t, err)
	return data
}
