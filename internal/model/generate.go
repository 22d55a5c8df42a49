package model

import "time"

// GenerateStartRequest starts a single generation job.
type GenerateStartRequest struct {
	Params GenerationParams `json:"params" validate:"required"`
}

// GenerateStartResponse acknowledges an accepted generation job.
type GenerateStartResponse struct {
	RequestID string        `json:"requestId"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

// GenerateStatusResponse reports the state of a single generation job.
type GenerateStatusResponse struct {
	RequestID     string        `json:"requestId"`
	Status        RequestStatus `json:"status"`
	ErrorMessage  string        `json:"errorMessage,omitempty"`
	ResultMediaID string        `json:"resultMediaId,omitempty"`
	ResultURL     string        `json:"resultUrl,omitempty"`
	RetryCount    int           `json:"retryCount"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// BatchStartRequest starts a multi-item batch job.
type BatchStartRequest struct {
	Params     GenerationParams `json:"params" validate:"required"`
	TotalCount int              `json:"totalCount" validate:"required,min=1,max=100"`
}

// BatchStartResponse acknowledges an accepted batch job.
type BatchStartResponse struct {
	BatchID    string      `json:"batchId"`
	Status     BatchStatus `json:"status"`
	TotalCount int         `json:"totalCount"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// BatchStatusResponse reports batch progress. A batch with partial failures
// stays completed; the counts show the damage.
type BatchStatusResponse struct {
	BatchID        string      `json:"batchId"`
	Status         BatchStatus `json:"status"`
	TotalCount     int         `json:"totalCount"`
	CompletedCount int         `json:"completedCount"`
	FailedCount    int         `json:"failedCount"`
	CurrentIndex   int         `json:"currentIndex"`
	ResultMediaIDs []string    `json:"resultMediaIds"`
	ErrorMessage   string      `json:"errorMessage,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// BatchControlResponse acknowledges a pause/resume/cancel request.
type BatchControlResponse struct {
	BatchID string      `json:"batchId"`
	Status  BatchStatus `json:"status"`
}

// EnhanceRequest asks the LLM to rewrite a prompt.
type EnhanceRequest struct {
	Prompt string `json:"prompt" validate:"required,max=2000"`
}

// EnhanceResponse carries the rewritten prompt.
type EnhanceResponse struct {
	Prompt   string `json:"prompt"`
	Enhanced string `json:"enhanced"`
}
