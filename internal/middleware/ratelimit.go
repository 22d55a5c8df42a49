package middleware

import (
	"fmt"
	"math"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mediaforge/api/internal/ratelimit"
	"github.com/mediaforge/api/pkg/response"
)

// Tier is one (limit, window) pair for an endpoint. Authenticated and
// anonymous callers get separate budgets.
type Tier struct {
	Limit  int
	Window time.Duration
}

// RateLimitMiddleware gates endpoints with the shared sliding-window limiter.
type RateLimitMiddleware struct {
	limiter *ratelimit.Limiter
}

// NewRateLimitMiddleware creates the rate limit middleware.
func NewRateLimitMiddleware(limiter *ratelimit.Limiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter}
}

// Limit returns a handler enforcing the endpoint's tiers. The window key is
// (endpoint, user); unauthenticated requests share the reserved anonymous
// key under the anon tier.
func (m *RateLimitMiddleware) Limit(endpoint string, authed, anon Tier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := GetUserID(c)
		tier := authed
		if userID == "" {
			tier = anon
		}

		key := ratelimit.Key(endpoint, userID)
		decision, err := m.limiter.Admit(c.Context(), key, tier.Limit, tier.Window)
		if err != nil {
			return response.ServiceError(c, "Rate limit check failed")
		}

		if !decision.Allowed {
			retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			return response.RateLimited(c)
		}

		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", tier.Limit))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.Remaining))
		return c.Next()
	}
}
