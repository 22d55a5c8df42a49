package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/mediaforge/api/internal/client"
	"github.com/mediaforge/api/internal/model"
	"github.com/mediaforge/api/internal/ratelimit"
	"github.com/mediaforge/api/internal/service"
	"github.com/mediaforge/api/internal/store"
)

// RateBudget is the per-user budget workers consume when calling upstream.
type RateBudget struct {
	Limit  int
	Window time.Duration
}

// GenerateWorker processes single generation jobs end to end: claim the row,
// resolve credentials, call the upstream through the rate-limit gate with
// retries, upload the media and persist the result.
type GenerateWorker struct {
	store     store.Store
	generator client.MediaGenerator
	storage   client.StorageClient
	creds     *CredentialResolver
	limiter   *ratelimit.Limiter
	budget    RateBudget
	logger    zerolog.Logger
}

// NewGenerateWorker creates a new generate worker.
func NewGenerateWorker(s store.Store, gen client.MediaGenerator, storage client.StorageClient, creds *CredentialResolver, limiter *ratelimit.Limiter, budget RateBudget, logger zerolog.Logger) *GenerateWorker {
	return &GenerateWorker{
		store:     s,
		generator: gen,
		storage:   storage,
		creds:     creds,
		limiter:   limiter,
		budget:    budget,
		logger:    logger.With().Str("component", "generate_worker").Logger(),
	}
}

// ProcessTask handles one asynq generation task.
func (w *GenerateWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload service.TaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	return w.Process(ctx, payload.JobID)
}

// Process runs one generation request. The pending -> processing claim is the
// mutual-exclusion point: a duplicate trigger finds the row already claimed
// and becomes a no-op.
func (w *GenerateWorker) Process(ctx context.Context, requestID string) error {
	req, err := w.store.ClaimRequest(ctx, requestID)
	if errors.Is(err, store.ErrStaleStatus) {
		w.logger.Debug().Str("request_id", requestID).Msg("request already claimed, skipping")
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		w.logger.Warn().Str("request_id", requestID).Msg("request row missing, dropping task")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to claim request: %w", err)
	}

	w.logger.Info().Str("request_id", req.ID).Str("owner_id", req.OwnerID).Msg("starting generation")

	params, err := model.DecodeParams(req.Params)
	if err != nil {
		return w.fail(ctx, req.ID, fmt.Sprintf("invalid generation params: %v", err), 0)
	}

	apiKey, err := w.creds.Resolve(ctx, req.OwnerID)
	if err != nil {
		return w.fail(ctx, req.ID, err.Error(), 0)
	}

	params = params.Normalized()

	result, attempts, err := w.callUpstream(ctx, apiKey, req.OwnerID, params)
	retries := attempts - 1
	if err != nil {
		return w.fail(ctx, req.ID, err.Error(), retries)
	}

	mediaID, err := w.ingest(ctx, req.OwnerID, result)
	if err != nil {
		return w.fail(ctx, req.ID, err.Error(), retries)
	}

	if err := w.store.CompleteRequest(ctx, req.ID, mediaID, retries); err != nil {
		w.logger.Error().Err(err).Str("request_id", req.ID).Msg("failed to persist completion")
		return fmt.Errorf("failed to complete request: %w", err)
	}

	w.logger.Info().Str("request_id", req.ID).Str("media_id", mediaID).Int("retries", retries).Msg("generation completed")
	return nil
}

// callUpstream runs the rate-limit gate plus the upstream call under the
// retry loop, so a denied admission backs off exactly like a 429 from the
// endpoint itself.
func (w *GenerateWorker) callUpstream(ctx context.Context, apiKey, ownerID string, params model.GenerationParams) (*client.GenerationResult, int, error) {
	key := ratelimit.Key("generate", ownerID)
	return client.WithRetry(ctx, w.generator.RetryConfig(), func(ctx context.Context) (*client.GenerationResult, error) {
		decision, err := w.limiter.Admit(ctx, key, w.budget.Limit, w.budget.Window)
		if err != nil {
			return nil, &client.GenerationError{
				Kind:      client.KindPersistenceError,
				Message:   fmt.Sprintf("rate limit check failed: %v", err),
				Retryable: true,
			}
		}
		if !decision.Allowed {
			return nil, &client.GenerationError{
				Kind:      client.KindRateLimited,
				Message:   fmt.Sprintf("rate limit exceeded, retry after %s", decision.RetryAfter.Round(time.Millisecond)),
				Retryable: true,
			}
		}
		return w.generator.Generate(ctx, apiKey, params)
	})
}

// ingest uploads the generated media and persists its metadata record.
func (w *GenerateWorker) ingest(ctx context.Context, ownerID string, result *client.GenerationResult) (string, error) {
	key := client.BuildObjectKey("generations", ownerID, result.ContentType)
	uploaded, err := w.storage.Upload(ctx, key, result.Data, result.ContentType)
	if err != nil {
		return "", fmt.Errorf("media upload failed: %v", err)
	}

	media := &model.Media{
		OwnerID:     ownerID,
		Key:         uploaded.Key,
		URL:         uploaded.URL,
		ContentType: result.ContentType,
		SizeBytes:   uploaded.SizeBytes,
	}
	if err := w.store.CreateMedia(ctx, media); err != nil {
		return "", fmt.Errorf("failed to persist media record: %v", err)
	}
	return media.ID, nil
}

// fail records a terminal failure with its human-readable message. The
// message is what the owning user sees, so it is stored verbatim.
func (w *GenerateWorker) fail(ctx context.Context, requestID, errMsg string, retries int) error {
	w.logger.Warn().Str("request_id", requestID).Int("retries", retries).Str("error", errMsg).Msg("generation failed")
	if err := w.store.FailRequest(ctx, requestID, errMsg, retries); err != nil {
		w.logger.Error().Err(err).Str("request_id", requestID).Msg("failed to persist failure")
		return fmt.Errorf("failed to record failure: %w", err)
	}
	return nil
}
