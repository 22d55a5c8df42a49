package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaforge/api/internal/client"
	"github.com/mediaforge/api/internal/model"
	"github.com/mediaforge/api/internal/worker"
)

func newGenerateWorker(env *workerEnv, gen client.MediaGenerator, fallbackKey string) *worker.GenerateWorker {
	creds := worker.NewCredentialResolver(env.store, nil, fallbackKey)
	budget := worker.RateBudget{Limit: 100, Window: time.Minute}
	return worker.NewGenerateWorker(env.store, gen, env.storage, creds, env.limiter, budget, zerolog.Nop())
}

func createRequest(t *testing.T, env *workerEnv, params model.GenerationParams) *model.GenerationRequest {
	t.Helper()
	req := &model.GenerationRequest{OwnerID: "owner-1", Params: encodedParams(t, params)}
	require.NoError(t, env.store.CreateRequest(context.Background(), req))
	return req
}

func TestGenerateWorkerSuccess(t *testing.T) {
	env := setupWorkerEnv(t)
	ctx := context.Background()
	gen := &fakeGenerator{fn: func(call int, params model.GenerationParams) (*client.GenerationResult, error) {
		return okResult()
	}}
	w := newGenerateWorker(env, gen, "svc-key")
	req := createRequest(t, env, model.GenerationParams{Prompt: "a cat"})

	require.NoError(t, w.Process(ctx, req.ID))

	got, err := env.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusCompleted, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	require.NotEmpty(t, got.ResultMediaID)

	media, err := env.store.GetMedia(ctx, got.ResultMediaID)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", media.OwnerID)
	assert.Equal(t, "image/png", media.ContentType)
	assert.Equal(t, int64(len("png-bytes")), media.SizeBytes)
}

func TestGenerateWorkerRecoversFromTransientFailures(t *testing.T) {
	env := setupWorkerEnv(t)
	ctx := context.Background()
	gen := &fakeGenerator{fn: func(call int, params model.GenerationParams) (*client.GenerationResult, error) {
		if call < 3 {
			return serverError()
		}
		return okResult()
	}}
	w := newGenerateWorker(env, gen, "svc-key")
	req := createRequest(t, env, model.GenerationParams{Prompt: "a cat"})

	require.NoError(t, w.Process(ctx, req.ID))

	got, err := env.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusCompleted, got.Status)
	assert.Equal(t, 2, got.RetryCount)
}

func TestGenerateWorkerTerminalFailure(t *testing.T) {
	env := setupWorkerEnv(t)
	ctx := context.Background()
	gen := &fakeGenerator{fn: func(call int, params model.GenerationParams) (*client.GenerationResult, error) {
		return invalidParams()
	}}
	w := newGenerateWorker(env, gen, "svc-key")
	req := createRequest(t, env, model.GenerationParams{Prompt: "a cat"})

	require.NoError(t, w.Process(ctx, req.ID))

	got, err := env.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "bad prompt")
	assert.Equal(t, 0, got.RetryCount)
	assert.Equal(t, 1, gen.calls, "terminal errors must not burn retries")
}

func TestGenerateWorkerExhaustsRetries(t *testing.T) {
	env := setupWorkerEnv(t)
	ctx := context.Background()
	gen := &fakeGenerator{fn: func(call int, params model.GenerationParams) (*client.GenerationResult, error) {
		return serverError()
	}}
	w := newGenerateWorker(env, gen, "svc-key")
	req := createRequest(t, env, model.GenerationParams{Prompt: "a cat"})

	require.NoError(t, w.Process(ctx, req.ID))

	got, err := env.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusFailed, got.Status)
	assert.Equal(t, 3, got.RetryCount)
	assert.Equal(t, 4, gen.calls)
}

func TestGenerateWorkerMissingCredentialFailsWithoutUpstreamCall(t *testing.T) {
	env := setupWorkerEnv(t)
	ctx := context.Background()
	gen := &fakeGenerator{fn: func(call int, params model.GenerationParams) (*client.GenerationResult, error) {
		return okResult()
	}}
	w := newGenerateWorker(env, gen, "")
	req := createRequest(t, env, model.GenerationParams{Prompt: "a cat"})

	require.NoError(t, w.Process(ctx, req.ID))

	got, err := env.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "credential")
	assert.Equal(t, 0, gen.calls)
}

func TestGenerateWorkerDuplicateTriggerIsNoOp(t *testing.T) {
	env := setupWorkerEnv(t)
	ctx := context.Background()
	gen := &fakeGenerator{fn: func(call int, params model.GenerationParams) (*client.GenerationResult, error) {
		return okResult()
	}}
	w := newGenerateWorker(env, gen, "svc-key")
	req := createRequest(t, env, model.GenerationParams{Prompt: "a cat"})

	// another worker already holds the claim
	_, err := env.store.ClaimRequest(ctx, req.ID)
	require.NoError(t, err)

	require.NoError(t, w.Process(ctx, req.ID))
	assert.Equal(t, 0, gen.calls)

	got, err := env.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusProcessing, got.Status)
}

func TestGenerateWorkerMissingRowIsDropped(t *testing.T) {
	env := setupWorkerEnv(t)
	gen := &fakeGenerator{fn: func(call int, params model.GenerationParams) (*client.GenerationResult, error) {
		return okResult()
	}}
	w := newGenerateWorker(env, gen, "svc-key")

	require.NoError(t, w.Process(context.Background(), "missing-id"))
	assert.Equal(t, 0, gen.calls)
}

func TestGenerateWorkerSeedDefaulted(t *testing.T) {
	env := setupWorkerEnv(t)
	ctx := context.Background()
	var seen *int64
	gen := &fakeGenerator{fn: func(call int, params model.GenerationParams) (*client.GenerationResult, error) {
		seen = params.Seed
		return okResult()
	}}
	w := newGenerateWorker(env, gen, "svc-key")
	req := createRequest(t, env, model.GenerationParams{Prompt: "a cat"})

	require.NoError(t, w.Process(ctx, req.ID))
	require.NotNil(t, seen, "worker must default a missing seed")
	assert.GreaterOrEqual(t, *seen, int64(0))
}
