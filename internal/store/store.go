// Package store provides the durable record store for jobs, media metadata,
// owner credentials and rate-limit windows. All status transitions go through
// status-guarded compare-and-set updates; the database transaction is the
// synchronization primitive, there are no in-process locks.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/mediaforge/api/internal/model"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("store: record not found")
	// ErrStaleStatus is returned when a guarded transition finds the row in
	// a different status than expected. Callers treat this as "someone else
	// got there first" and back off.
	ErrStaleStatus = errors.New("store: status changed concurrently")
	// ErrInvalidTransition is returned for transitions the state machine
	// forbids outright.
	ErrInvalidTransition = errors.New("store: invalid status transition")
)

// Store is the persistence contract consumed by services and workers.
type Store interface {
	// Generation requests.
	CreateRequest(ctx context.Context, req *model.GenerationRequest) error
	GetRequest(ctx context.Context, id string) (*model.GenerationRequest, error)
	// ClaimRequest atomically moves a request from pending to processing.
	// It is the mutual-exclusion point guarding against duplicate triggers.
	ClaimRequest(ctx context.Context, id string) (*model.GenerationRequest, error)
	CompleteRequest(ctx context.Context, id, mediaID string, retryCount int) error
	FailRequest(ctx context.Context, id, errMsg string, retryCount int) error

	// Batch jobs.
	CreateBatch(ctx context.Context, batch *model.BatchJob) error
	GetBatch(ctx context.Context, id string) (*model.BatchJob, error)
	// TransitionBatch performs a guarded from-to status change and returns
	// the updated row.
	TransitionBatch(ctx context.Context, id string, from, to model.BatchStatus) (*model.BatchJob, error)
	// RecordBatchItem commits the outcome of one item: advances the cursor,
	// bumps the matching counter and, on success, appends the media ID. The
	// row must still be processing.
	RecordBatchItem(ctx context.Context, id, mediaID string, failed bool) (*model.BatchJob, error)
	// FailBatch marks a batch as failed at the job level, distinct from
	// individual item failures.
	FailBatch(ctx context.Context, id, errMsg string) error
	SetBatchItemRetryCount(ctx context.Context, id string, count int) error

	// Media metadata.
	CreateMedia(ctx context.Context, media *model.Media) error
	GetMedia(ctx context.Context, id string) (*model.Media, error)

	// Owner credentials.
	PutCredential(ctx context.Context, cred *model.Credential) error
	GetCredential(ctx context.Context, ownerID string) (*model.Credential, error)

	// MutateRateWindow runs fn against the window row for key inside one
	// transaction, creating the row on first use. fn mutates the window in
	// place; the row is persisted when fn returns nil.
	MutateRateWindow(ctx context.Context, key string, fn func(w *model.RateLimitWindow, now time.Time) error) error
}
