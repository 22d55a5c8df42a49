package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RequestStatus is the lifecycle state of a single generation request.
type RequestStatus string

const (
	RequestStatusPending    RequestStatus = "pending"
	RequestStatusProcessing RequestStatus = "processing"
	RequestStatusCompleted  RequestStatus = "completed"
	RequestStatusFailed     RequestStatus = "failed"
)

// CanTransition reports whether a request may move from s to next.
// Requests only ever advance pending -> processing -> {completed|failed}.
func (s RequestStatus) CanTransition(next RequestStatus) bool {
	switch s {
	case RequestStatusPending:
		return next == RequestStatusProcessing
	case RequestStatusProcessing:
		return next == RequestStatusCompleted || next == RequestStatusFailed
	case RequestStatusCompleted, RequestStatusFailed:
		return false
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusFailed
}

// BatchStatus is the lifecycle state of a batch job.
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusPaused     BatchStatus = "paused"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusCancelled  BatchStatus = "cancelled"
	BatchStatusFailed     BatchStatus = "failed"
)

// CanTransition reports whether a batch may move from s to next.
// Processing and paused cycle freely; completed, cancelled and failed are
// terminal. Cancellation is allowed from any non-terminal state.
func (s BatchStatus) CanTransition(next BatchStatus) bool {
	switch s {
	case BatchStatusPending:
		return next == BatchStatusProcessing || next == BatchStatusCancelled
	case BatchStatusProcessing:
		switch next {
		case BatchStatusPaused, BatchStatusCompleted, BatchStatusCancelled, BatchStatusFailed:
			return true
		}
		return false
	case BatchStatusPaused:
		return next == BatchStatusProcessing || next == BatchStatusCancelled
	case BatchStatusCompleted, BatchStatusCancelled, BatchStatusFailed:
		return false
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible.
func (s BatchStatus) IsTerminal() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusCancelled, BatchStatusFailed:
		return true
	}
	return false
}

// StringList stores an ordered list of IDs as a JSON text column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported type %T for StringList", value)
	}
}

// GenerationRequest is a single generation job row.
type GenerationRequest struct {
	ID            string        `gorm:"primaryKey;size:36" json:"id"`
	OwnerID       string        `gorm:"size:255;index:idx_requests_owner_created,priority:1" json:"ownerId"`
	Status        RequestStatus `gorm:"size:20;default:'pending';index:idx_requests_status_created,priority:1" json:"status"`
	Params        []byte        `gorm:"type:bytes" json:"-"`
	ErrorMessage  string        `gorm:"type:text" json:"errorMessage,omitempty"`
	ResultMediaID string        `gorm:"size:36" json:"resultMediaId,omitempty"`
	RetryCount    int           `gorm:"default:0" json:"retryCount"`
	CreatedAt     time.Time     `gorm:"autoCreateTime;index:idx_requests_owner_created,priority:2;index:idx_requests_status_created,priority:2" json:"createdAt"`
	UpdatedAt     time.Time     `gorm:"autoUpdateTime" json:"updatedAt"`
}

// BatchJob is a multi-item generation job row. Items share a parameter
// template; the worker walks CurrentIndex forward one item at a time.
type BatchJob struct {
	ID                    string      `gorm:"primaryKey;size:36" json:"id"`
	OwnerID               string      `gorm:"size:255;index:idx_batches_owner_created,priority:1" json:"ownerId"`
	Status                BatchStatus `gorm:"size:20;default:'pending';index:idx_batches_status_created,priority:1" json:"status"`
	TotalCount            int         `gorm:"not null" json:"totalCount"`
	CompletedCount        int         `gorm:"default:0" json:"completedCount"`
	FailedCount           int         `gorm:"default:0" json:"failedCount"`
	CurrentIndex          int         `gorm:"default:0" json:"currentIndex"`
	Params                []byte      `gorm:"type:bytes" json:"-"`
	ResultMediaIDs        StringList  `gorm:"type:text" json:"resultMediaIds"`
	CurrentItemRetryCount int         `gorm:"default:0" json:"currentItemRetryCount"`
	ErrorMessage          string      `gorm:"type:text" json:"errorMessage,omitempty"`
	CreatedAt             time.Time   `gorm:"autoCreateTime;index:idx_batches_owner_created,priority:2;index:idx_batches_status_created,priority:2" json:"createdAt"`
	UpdatedAt             time.Time   `gorm:"autoUpdateTime" json:"updatedAt"`
}

// RateLimitWindow is one sliding-window counter row. Stale windows are
// harmless; they are reset in place on the next admit decision.
type RateLimitWindow struct {
	Key         string    `gorm:"primaryKey;size:255"`
	Count       int       `gorm:"default:0"`
	WindowStart time.Time `gorm:"not null"`
}

// Credential holds an owner's upstream API key, AES-GCM encrypted at rest.
type Credential struct {
	OwnerID    string    `gorm:"primaryKey;size:255"`
	Ciphertext []byte    `gorm:"type:bytes;not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}
