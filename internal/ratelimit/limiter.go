// Package ratelimit implements a sliding-window rate limiter persisted in
// the record store and shared across endpoints and users.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/mediaforge/api/internal/model"
	"github.com/mediaforge/api/internal/store"
)

// AnonymousKey is the reserved identity for unauthenticated callers.
const AnonymousKey = "anonymous"

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Remaining  int
}

// Limiter gates calls with a per-key sliding window counter. The
// check-then-increment sequence runs inside one store transaction per key so
// two concurrent requests cannot both consume the last slot.
type Limiter struct {
	store store.Store
}

// New creates a limiter over the given store.
func New(s store.Store) *Limiter {
	return &Limiter{store: s}
}

// Key composes the window key for an endpoint and user. An empty userID maps
// to the reserved anonymous key.
func Key(endpoint, userID string) string {
	if userID == "" {
		userID = AnonymousKey
	}
	return fmt.Sprintf("%s:%s", endpoint, userID)
}

// Admit checks and consumes one slot for key. A window older than windowMs is
// expired and reset atomically with the admit decision; a denied call reports
// how long until the window rolls over.
func (l *Limiter) Admit(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	var decision Decision
	err := l.store.MutateRateWindow(ctx, key, func(w *model.RateLimitWindow, now time.Time) error {
		if now.Sub(w.WindowStart) >= window {
			w.Count = 0
			w.WindowStart = now
		}
		if w.Count < limit {
			w.Count++
			decision = Decision{Allowed: true, Remaining: limit - w.Count}
			return nil
		}
		decision = Decision{
			Allowed:    false,
			RetryAfter: w.WindowStart.Add(window).Sub(now),
		}
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	return decision, nil
}
