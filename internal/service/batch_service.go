package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mediaforge/api/internal/model"
	"github.com/mediaforge/api/internal/store"
)

// ErrBatchTerminal is returned for control operations on a finished batch.
var ErrBatchTerminal = errors.New("batch already finished")

// BatchService handles batch job intake and pause/resume/cancel controls.
type BatchService struct {
	store    store.Store
	enqueuer TaskEnqueuer
}

// NewBatchService creates a new batch service.
func NewBatchService(s store.Store, enqueuer TaskEnqueuer) *BatchService {
	return &BatchService{store: s, enqueuer: enqueuer}
}

// Start persists a pending batch row and schedules the background task.
func (s *BatchService) Start(ctx context.Context, ownerID string, params model.GenerationParams, totalCount int) (*model.BatchStartResponse, error) {
	encoded, err := model.EncodeParams(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}

	batch := &model.BatchJob{
		OwnerID:        ownerID,
		Status:         model.BatchStatusPending,
		TotalCount:     totalCount,
		Params:         encoded,
		ResultMediaIDs: model.StringList{},
	}
	if err := s.store.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to save batch: %w", err)
	}

	if err := s.enqueueBatch(batch.ID); err != nil {
		return nil, err
	}

	return &model.BatchStartResponse{
		BatchID:    batch.ID,
		Status:     batch.Status,
		TotalCount: batch.TotalCount,
		CreatedAt:  batch.CreatedAt,
	}, nil
}

// GetStatus returns batch progress including the partial-failure counters.
func (s *BatchService) GetStatus(ctx context.Context, id string) (*model.BatchStatusResponse, error) {
	batch, err := s.store.GetBatch(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &model.BatchStatusResponse{
		BatchID:        batch.ID,
		Status:         batch.Status,
		TotalCount:     batch.TotalCount,
		CompletedCount: batch.CompletedCount,
		FailedCount:    batch.FailedCount,
		CurrentIndex:   batch.CurrentIndex,
		ResultMediaIDs: batch.ResultMediaIDs,
		ErrorMessage:   batch.ErrorMessage,
		CreatedAt:      batch.CreatedAt,
		UpdatedAt:      batch.UpdatedAt,
	}, nil
}

// Pause requests a pause. The worker observes it at the next item boundary;
// no item is interrupted mid-flight.
func (s *BatchService) Pause(ctx context.Context, id string) (*model.BatchControlResponse, error) {
	batch, err := s.transition(ctx, id, model.BatchStatusProcessing, model.BatchStatusPaused)
	if err != nil {
		return nil, err
	}
	return &model.BatchControlResponse{BatchID: batch.ID, Status: batch.Status}, nil
}

// Resume moves a paused batch back to processing and re-enqueues the task.
// The worker re-enters the loop at the stored cursor, so already-counted
// items are never re-processed.
func (s *BatchService) Resume(ctx context.Context, id string) (*model.BatchControlResponse, error) {
	batch, err := s.transition(ctx, id, model.BatchStatusPaused, model.BatchStatusProcessing)
	if err != nil {
		return nil, err
	}
	if err := s.enqueueBatch(batch.ID); err != nil {
		return nil, err
	}
	return &model.BatchControlResponse{BatchID: batch.ID, Status: batch.Status}, nil
}

// Cancel requests cancellation from any non-terminal state. A running batch
// observes it at the next item boundary; counters freeze at their last
// committed values.
func (s *BatchService) Cancel(ctx context.Context, id string) (*model.BatchControlResponse, error) {
	batch, err := s.store.GetBatch(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if batch.Status.IsTerminal() {
		return nil, ErrBatchTerminal
	}

	updated, err := s.store.TransitionBatch(ctx, id, batch.Status, model.BatchStatusCancelled)
	if err != nil {
		if errors.Is(err, store.ErrStaleStatus) || errors.Is(err, store.ErrInvalidTransition) {
			return nil, ErrBatchTerminal
		}
		return nil, err
	}
	return &model.BatchControlResponse{BatchID: updated.ID, Status: updated.Status}, nil
}

func (s *BatchService) transition(ctx context.Context, id string, from, to model.BatchStatus) (*model.BatchJob, error) {
	batch, err := s.store.TransitionBatch(ctx, id, from, to)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, store.ErrStaleStatus), errors.Is(err, store.ErrInvalidTransition):
			return nil, fmt.Errorf("batch is not %s", from)
		default:
			return nil, err
		}
	}
	return batch, nil
}

func (s *BatchService) enqueueBatch(id string) error {
	task, err := NewBatchTask(id)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	_, err = s.enqueuer.Enqueue(task,
		asynq.Queue("batch"),
		asynq.MaxRetry(3),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}
