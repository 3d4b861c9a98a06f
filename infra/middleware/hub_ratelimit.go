package middleware

import (
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// =============================================================================
// Sync Rate Limiter
// =============================================================================
//
// A submitted batch triggers one ledger insert per operation, so unthrottled
// sync traffic translates directly into write load. Limits are counted per
// owner once authenticated, per IP before that.

// RateLimiter counts requests per key within a fixed window.
type RateLimiter struct {
	requests map[string]*requestWindow
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

type requestWindow struct {
	count     int
	expiresAt time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string]*requestWindow),
		limit:    limit,
		window:   window,
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		for range ticker.C {
			rl.cleanup()
		}
	}()

	return rl
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, w := range rl.requests {
		if now.After(w.expiresAt) {
			delete(rl.requests, key)
		}
	}
}

// Handler returns the rate limiting middleware. Registered after JWTAuth it
// keys on owner_id; otherwise it falls back to the client IP.
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		key := c.IP()
		if ownerID, ok := c.Locals("owner_id").(string); ok && ownerID != "" {
			key = ownerID
		}

		now := time.Now()

		rl.mu.Lock()
		w, exists := rl.requests[key]
		if !exists || now.After(w.expiresAt) {
			w = &requestWindow{count: 1, expiresAt: now.Add(rl.window)}
			rl.requests[key] = w
			rl.mu.Unlock()
			setRateLimitHeaders(c, rl.limit, rl.limit-1, w)
			return c.Next()
		}

		if w.count >= rl.limit {
			rl.mu.Unlock()
			setRateLimitHeaders(c, rl.limit, 0, w)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "rate limit exceeded",
				"code":        "RATE_LIMITED",
				"retry_after": int(time.Until(w.expiresAt).Seconds()),
			})
		}

		w.count++
		remaining := rl.limit - w.count
		rl.mu.Unlock()

		setRateLimitHeaders(c, rl.limit, remaining, w)
		return c.Next()
	}
}

func setRateLimitHeaders(c *fiber.Ctx, limit, remaining int, w *requestWindow) {
	c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
	c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
	if w != nil {
		c.Set("X-RateLimit-Reset", fmt.Sprintf("%d", w.expiresAt.Unix()))
	}
}
