package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/mockmate-judge/internal/utils"
)

// RateLimit allows max requests per window for each authenticated user. Anonymous
// callers are keyed by IP. identifier namespaces the keys so limiters do not share budgets.
func RateLimit(identifier string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			if userID, ok := c.Locals("user_id").(uint); ok && userID != 0 {
				return fmt.Sprintf("%s:user:%d", identifier, userID)
			}
			return fmt.Sprintf("%s:ip:%s", identifier, c.IP())
		},
		LimitReached: func(c *fiber.Ctx) error {
			retryAfter := c.GetRespHeader(fiber.HeaderRetryAfter)
			return utils.SendErrorWithDetails(c, fiber.StatusTooManyRequests, "rate limit exceeded", fiber.Map{
				"limit":       max,
				"window":      window.String(),
				"retry_after": retryAfter,
			})
		},
	})
}
