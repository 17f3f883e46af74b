package middleware

import (
	"math"
	"strconv"

	"triage_server/pkg/ratelimit"
	"triage_server/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// UserRateLimit limits a route per authenticated user, falling back to the
// client IP. scope separates the counters of different routes.
func UserRateLimit(limiter *ratelimit.SlidingWindowLimiter, scope string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := scope + ":ip:" + c.IP()
		if uid, ok := c.Locals("user_id").(uuid.UUID); ok {
			key = scope + ":user:" + uid.String()
		}

		allowed, wait := limiter.Allow(c.UserContext(), key)
		c.Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		if !allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			return response.Error(c, fiber.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
		}
		return c.Next()
	}
}
