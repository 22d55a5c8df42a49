package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mediaforge/api/internal/model"
)

// GormStore implements Store using GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates the necessary tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&model.GenerationRequest{},
		&model.BatchJob{},
		&model.Media{},
		&model.Credential{},
		&model.RateLimitWindow{},
	)
}

// CreateRequest inserts a new generation request row.
func (s *GormStore) CreateRequest(ctx context.Context, req *model.GenerationRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Status == "" {
		req.Status = model.RequestStatusPending
	}
	return s.db.WithContext(ctx).Create(req).Error
}

// GetRequest fetches a generation request by ID.
func (s *GormStore) GetRequest(ctx context.Context, id string) (*model.GenerationRequest, error) {
	var req model.GenerationRequest
	err := s.db.WithContext(ctx).First(&req, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

// ClaimRequest moves a request from pending to processing. The WHERE clause
// on the current status makes the claim atomic: a duplicate trigger sees
// zero rows affected and backs off with ErrStaleStatus.
func (s *GormStore) ClaimRequest(ctx context.Context, id string) (*model.GenerationRequest, error) {
	result := s.db.WithContext(ctx).
		Model(&model.GenerationRequest{}).
		Where("id = ? AND status = ?", id, model.RequestStatusPending).
		Update("status", model.RequestStatusProcessing)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := s.GetRequest(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrStaleStatus
	}
	return s.GetRequest(ctx, id)
}

// CompleteRequest moves a processing request to completed with its result.
func (s *GormStore) CompleteRequest(ctx context.Context, id, mediaID string, retryCount int) error {
	return s.finishRequest(ctx, id, map[string]any{
		"status":          model.RequestStatusCompleted,
		"result_media_id": mediaID,
		"retry_count":     retryCount,
	})
}

// FailRequest moves a processing request to failed with a human-readable
// error message.
func (s *GormStore) FailRequest(ctx context.Context, id, errMsg string, retryCount int) error {
	return s.finishRequest(ctx, id, map[string]any{
		"status":        model.RequestStatusFailed,
		"error_message": errMsg,
		"retry_count":   retryCount,
	})
}

func (s *GormStore) finishRequest(ctx context.Context, id string, updates map[string]any) error {
	result := s.db.WithContext(ctx).
		Model(&model.GenerationRequest{}).
		Where("id = ? AND status = ?", id, model.RequestStatusProcessing).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// CreateBatch inserts a new batch job row.
func (s *GormStore) CreateBatch(ctx context.Context, batch *model.BatchJob) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	if batch.Status == "" {
		batch.Status = model.BatchStatusPending
	}
	if batch.ResultMediaIDs == nil {
		batch.ResultMediaIDs = model.StringList{}
	}
	return s.db.WithContext(ctx).Create(batch).Error
}

// GetBatch fetches a batch job by ID.
func (s *GormStore) GetBatch(ctx context.Context, id string) (*model.BatchJob, error) {
	var batch model.BatchJob
	err := s.db.WithContext(ctx).First(&batch, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &batch, nil
}

// TransitionBatch performs a guarded from-to status change. The transition
// is validated against the state machine first, then applied with a
// status-guarded UPDATE so two concurrent controllers cannot both win.
func (s *GormStore) TransitionBatch(ctx context.Context, id string, from, to model.BatchStatus) (*model.BatchJob, error) {
	if !from.CanTransition(to) {
		return nil, ErrInvalidTransition
	}
	result := s.db.WithContext(ctx).
		Model(&model.BatchJob{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := s.GetBatch(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrStaleStatus
	}
	return s.GetBatch(ctx, id)
}

// RecordBatchItem commits one item outcome in a single transaction. It
// re-reads the row, requires it to still be processing, then advances the
// cursor and counters together so the invariant
// completedCount + failedCount == currentIndex holds after every step.
func (s *GormStore) RecordBatchItem(ctx context.Context, id, mediaID string, failed bool) (*model.BatchJob, error) {
	var batch model.BatchJob
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&batch, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		// A pause lands at the item boundary: an item already in flight
		// still gets counted. Terminal states freeze the counters.
		if batch.Status != model.BatchStatusProcessing && batch.Status != model.BatchStatusPaused {
			return ErrStaleStatus
		}
		if batch.CurrentIndex >= batch.TotalCount {
			return ErrInvalidTransition
		}
		batch.CurrentIndex++
		if failed {
			batch.FailedCount++
		} else {
			batch.CompletedCount++
			batch.ResultMediaIDs = append(batch.ResultMediaIDs, mediaID)
		}
		batch.CurrentItemRetryCount = 0
		return tx.Save(&batch).Error
	})
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// FailBatch marks a batch as failed at the job level.
func (s *GormStore) FailBatch(ctx context.Context, id, errMsg string) error {
	result := s.db.WithContext(ctx).
		Model(&model.BatchJob{}).
		Where("id = ? AND status = ?", id, model.BatchStatusProcessing).
		Updates(map[string]any{
			"status":        model.BatchStatusFailed,
			"error_message": errMsg,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// SetBatchItemRetryCount records the retry count of the in-flight item.
func (s *GormStore) SetBatchItemRetryCount(ctx context.Context, id string, count int) error {
	return s.db.WithContext(ctx).
		Model(&model.BatchJob{}).
		Where("id = ?", id).
		Update("current_item_retry_count", count).Error
}

// CreateMedia inserts a media metadata row.
func (s *GormStore) CreateMedia(ctx context.Context, media *model.Media) error {
	if media.ID == "" {
		media.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(media).Error
}

// GetMedia fetches a media metadata row by ID.
func (s *GormStore) GetMedia(ctx context.Context, id string) (*model.Media, error) {
	var media model.Media
	err := s.db.WithContext(ctx).First(&media, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &media, nil
}

// PutCredential inserts or replaces an owner's credential.
func (s *GormStore) PutCredential(ctx context.Context, cred *model.Credential) error {
	return s.db.WithContext(ctx).Save(cred).Error
}

// GetCredential fetches an owner's credential.
func (s *GormStore) GetCredential(ctx context.Context, ownerID string) (*model.Credential, error) {
	var cred model.Credential
	err := s.db.WithContext(ctx).First(&cred, "owner_id = ?", ownerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &cred, nil
}

// MutateRateWindow runs fn against the window row for key inside one
// transaction. The row is created lazily on first use; the transaction keeps
// the check-then-increment sequence atomic per key.
func (s *GormStore) MutateRateWindow(ctx context.Context, key string, fn func(w *model.RateLimitWindow, now time.Time) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		var window model.RateLimitWindow
		err := tx.First(&window, "key = ?", key).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			window = model.RateLimitWindow{Key: key, Count: 0, WindowStart: now}
		} else if err != nil {
			return err
		}
		if err := fn(&window, now); err != nil {
			return err
		}
		return tx.Save(&window).Error
	})
}
