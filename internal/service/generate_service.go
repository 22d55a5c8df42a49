package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mediaforge/api/internal/model"
	"github.com/mediaforge/api/internal/store"
)

const (
	TaskTypeGenerate = "generate:single"
	TaskTypeBatch    = "generate:batch"
)

// ErrNotFound is surfaced to handlers when a job row does not exist.
var ErrNotFound = errors.New("job not found")

// TaskEnqueuer is the slice of asynq.Client the services use. Tests swap in
// a fake so no Redis is needed.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskPayload is the envelope stored in every asynq task.
type TaskPayload struct {
	JobID string `json:"jobId"`
}

// NewGenerateTask builds the asynq task for one generation request.
func NewGenerateTask(requestID string) (*asynq.Task, error) {
	data, err := json.Marshal(TaskPayload{JobID: requestID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeGenerate, data), nil
}

// NewBatchTask builds the asynq task for one batch job.
func NewBatchTask(batchID string) (*asynq.Task, error) {
	data, err := json.Marshal(TaskPayload{JobID: batchID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeBatch, data), nil
}

// GenerateService handles single generation job intake and queries.
type GenerateService struct {
	store    store.Store
	enqueuer TaskEnqueuer
}

// NewGenerateService creates a new generate service.
func NewGenerateService(s store.Store, enqueuer TaskEnqueuer) *GenerateService {
	return &GenerateService{store: s, enqueuer: enqueuer}
}

// Start persists a pending request row and schedules the background task.
func (s *GenerateService) Start(ctx context.Context, ownerID string, params model.GenerationParams) (*model.GenerateStartResponse, error) {
	encoded, err := model.EncodeParams(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}

	req := &model.GenerationRequest{
		OwnerID: ownerID,
		Status:  model.RequestStatusPending,
		Params:  encoded,
	}
	if err := s.store.CreateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to save request: %w", err)
	}

	task, err := NewGenerateTask(req.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	_, err = s.enqueuer.Enqueue(task,
		asynq.Queue("generate"),
		asynq.MaxRetry(3),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.GenerateStartResponse{
		RequestID: req.ID,
		Status:    req.Status,
		CreatedAt: req.CreatedAt,
	}, nil
}

// GetStatus returns the current state of a generation request. For a
// completed request the stored media URL is resolved as well.
func (s *GenerateService) GetStatus(ctx context.Context, id string) (*model.GenerateStatusResponse, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	resp := &model.GenerateStatusResponse{
		RequestID:     req.ID,
		Status:        req.Status,
		ErrorMessage:  req.ErrorMessage,
		ResultMediaID: req.ResultMediaID,
		RetryCount:    req.RetryCount,
		CreatedAt:     req.CreatedAt,
		UpdatedAt:     req.UpdatedAt,
	}

	if req.ResultMediaID != "" {
		media, err := s.store.GetMedia(ctx, req.ResultMediaID)
		if err == nil {
			resp.ResultURL = media.URL
		}
	}

	return resp, nil
}
