package client

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind is the normalized failure category for an upstream response.
type ErrorKind string

const (
	KindRateLimited       ErrorKind = "rate_limited"
	KindServerError       ErrorKind = "server_error"
	KindTransientUpstream ErrorKind = "transient_upstream"
	KindInvalidParams     ErrorKind = "invalid_params"
	KindAuthError         ErrorKind = "auth_error"
	KindStorageError      ErrorKind = "storage_error"
	KindPersistenceError  ErrorKind = "persistence_error"
	KindUnknown           ErrorKind = "unknown"
)

// Classification is the verdict for one upstream response.
type Classification struct {
	Retryable bool
	Kind      ErrorKind
}

// transientPhrases are in-band error markers the upstream is known to emit,
// sometimes inside a 200 envelope.
var transientPhrases = []string{
	"no active servers available",
	"server is overloaded",
	"temporarily unavailable",
	"please try again later",
	"upstream timed out",
}

// Classify maps an HTTP status and response body to a retry verdict. It is a
// pure function; anything unmatched defaults to a terminal Unknown so
// unexpected failures are never masked behind silent retries.
func Classify(status int, body string) Classification {
	lower := strings.ToLower(body)
	for _, phrase := range transientPhrases {
		if strings.Contains(lower, phrase) {
			return Classification{Retryable: true, Kind: KindTransientUpstream}
		}
	}

	switch {
	case status == http.StatusTooManyRequests:
		return Classification{Retryable: true, Kind: KindRateLimited}
	case status >= 500:
		return Classification{Retryable: true, Kind: KindServerError}
	case status == http.StatusBadRequest:
		return Classification{Retryable: false, Kind: KindInvalidParams}
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return Classification{Retryable: false, Kind: KindAuthError}
	default:
		return Classification{Retryable: false, Kind: KindUnknown}
	}
}

// GenerationError is a classified upstream failure.
type GenerationError struct {
	Kind      ErrorKind
	Status    int
	Message   string
	Retryable bool
}

func (e *GenerationError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("generation failed (%s, status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("generation failed (%s): %s", e.Kind, e.Message)
}

// NewGenerationError builds a classified error from an upstream response.
func NewGenerationError(status int, body string) *GenerationError {
	c := Classify(status, body)
	msg := strings.TrimSpace(body)
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return &GenerationError{
		Kind:      c.Kind,
		Status:    status,
		Message:   msg,
		Retryable: c.Retryable,
	}
}
