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

// BatchWorker drives a batch job item by item, strictly in index order. An
// individual item failure is tolerated and counted; only structural errors
// fail the batch as a whole.
type BatchWorker struct {
	store     store.Store
	generator client.MediaGenerator
	storage   client.StorageClient
	creds     *CredentialResolver
	limiter   *ratelimit.Limiter
	budget    RateBudget
	logger    zerolog.Logger
}

// NewBatchWorker creates a new batch worker.
func NewBatchWorker(s store.Store, gen client.MediaGenerator, storage client.StorageClient, creds *CredentialResolver, limiter *ratelimit.Limiter, budget RateBudget, logger zerolog.Logger) *BatchWorker {
	return &BatchWorker{
		store:     s,
		generator: gen,
		storage:   storage,
		creds:     creds,
		limiter:   limiter,
		budget:    budget,
		logger:    logger.With().Str("component", "batch_worker").Logger(),
	}
}

// ProcessTask handles one asynq batch task.
func (w *BatchWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload service.TaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	return w.Process(ctx, payload.JobID)
}

// Process runs the batch loop from the stored cursor. Entry is allowed from
// pending (fresh start, claimed via a guarded transition) and from
// processing (resume re-enqueue); any other state is a no-op.
func (w *BatchWorker) Process(ctx context.Context, batchID string) error {
	batch, err := w.store.GetBatch(ctx, batchID)
	if errors.Is(err, store.ErrNotFound) {
		w.logger.Warn().Str("batch_id", batchID).Msg("batch row missing, dropping task")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load batch: %w", err)
	}

	switch batch.Status {
	case model.BatchStatusPending:
		batch, err = w.store.TransitionBatch(ctx, batchID, model.BatchStatusPending, model.BatchStatusProcessing)
		if errors.Is(err, store.ErrStaleStatus) {
			w.logger.Debug().Str("batch_id", batchID).Msg("batch already claimed, skipping")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to claim batch: %w", err)
		}
	case model.BatchStatusProcessing:
		// Resumed or re-delivered; continue from the stored cursor.
	default:
		w.logger.Debug().Str("batch_id", batchID).Str("status", string(batch.Status)).Msg("batch not runnable, skipping")
		return nil
	}

	template, err := model.DecodeParams(batch.Params)
	if err != nil {
		return w.failBatch(ctx, batchID, fmt.Sprintf("invalid generation params: %v", err))
	}

	apiKey, err := w.creds.Resolve(ctx, batch.OwnerID)
	if err != nil {
		// Structural failure: the batch cannot begin at all. This is
		// distinct from individual item failures, which are tolerated.
		return w.failBatch(ctx, batchID, err.Error())
	}

	w.logger.Info().Str("batch_id", batchID).Int("current_index", batch.CurrentIndex).Int("total", batch.TotalCount).Msg("batch loop starting")

	for {
		// Pause and cancel are observed here, at the item boundary. The
		// cursor never advances once the status has left processing.
		current, err := w.store.GetBatch(ctx, batchID)
		if err != nil {
			return fmt.Errorf("failed to re-read batch: %w", err)
		}
		if current.Status != model.BatchStatusProcessing {
			w.logger.Info().Str("batch_id", batchID).Str("status", string(current.Status)).Msg("batch loop stopping")
			return nil
		}
		if current.CurrentIndex >= current.TotalCount {
			if _, err := w.store.TransitionBatch(ctx, batchID, model.BatchStatusProcessing, model.BatchStatusCompleted); err != nil {
				if errors.Is(err, store.ErrStaleStatus) {
					return nil
				}
				return fmt.Errorf("failed to complete batch: %w", err)
			}
			w.logger.Info().Str("batch_id", batchID).Int("completed", current.CompletedCount).Int("failed", current.FailedCount).Msg("batch completed")
			return nil
		}

		mediaID, itemErr := w.processItem(ctx, batchID, batch.OwnerID, apiKey, template)
		if _, err := w.store.RecordBatchItem(ctx, batchID, mediaID, itemErr != nil); err != nil {
			if errors.Is(err, store.ErrStaleStatus) {
				// Cancelled while the item was in flight; counters stay
				// frozen at their last committed values.
				return nil
			}
			return fmt.Errorf("failed to record batch item: %w", err)
		}
		if itemErr != nil {
			w.logger.Warn().Str("batch_id", batchID).Int("index", current.CurrentIndex).Err(itemErr).Msg("batch item failed")
		}
	}
}

// processItem runs one item through the same pipeline as a single request:
// rate-limit gate, retry-aware upstream call, upload, metadata record.
func (w *BatchWorker) processItem(ctx context.Context, batchID, ownerID, apiKey string, template model.GenerationParams) (string, error) {
	params := template.ForItem()
	key := ratelimit.Key("generate", ownerID)

	attempt := 0
	result, _, err := client.WithRetry(ctx, w.generator.RetryConfig(), func(ctx context.Context) (*client.GenerationResult, error) {
		attempt++
		if attempt > 1 {
			// Expose the in-flight item's retry count to status polls while
			// the backoff is still running.
			if err := w.store.SetBatchItemRetryCount(ctx, batchID, attempt-1); err != nil {
				w.logger.Warn().Err(err).Str("batch_id", batchID).Msg("failed to record item retry count")
			}
		}
		decision, admitErr := w.limiter.Admit(ctx, key, w.budget.Limit, w.budget.Window)
		if admitErr != nil {
			return nil, &client.GenerationError{
				Kind:      client.KindPersistenceError,
				Message:   fmt.Sprintf("rate limit check failed: %v", admitErr),
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
	if err != nil {
		return "", err
	}

	objKey := client.BuildObjectKey("batches", ownerID, result.ContentType)
	uploaded, err := w.storage.Upload(ctx, objKey, result.Data, result.ContentType)
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

// failBatch records a job-level failure with its message.
func (w *BatchWorker) failBatch(ctx context.Context, batchID, errMsg string) error {
	w.logger.Warn().Str("batch_id", batchID).Str("error", errMsg).Msg("batch failed")
	if err := w.store.FailBatch(ctx, batchID, errMsg); err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			return nil
		}
		w.logger.Error().Err(err).Str("batch_id", batchID).Msg("failed to persist batch failure")
		return fmt.Errorf("failed to record batch failure: %w", err)
	}
	return nil
}
