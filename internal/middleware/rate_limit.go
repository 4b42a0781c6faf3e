package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimit creates a per-actor rate limiter keyed by the authenticated user
// or, for anonymous callers, the client IP. Applied to the expensive export
// and cleanup endpoints.
func RateLimit(identifier string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Second
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			actor := fmt.Sprintf("%v", c.Locals("user_id"))
			if actor == "" || actor == "0" || actor == "<nil>" {
				actor = c.IP()
			}
			return fmt.Sprintf("%s:%s", identifier, actor)
		},
	})
}
