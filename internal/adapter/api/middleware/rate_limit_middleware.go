package middleware

import (
	"fmt"
	"math"

	"github.com/labstack/echo/v4"

	"marketchat/internal/infrastructure/ratelimit"
	"marketchat/pkg/errors"
	"marketchat/pkg/logger"
	"marketchat/pkg/response"
)

// RateLimit throttles HTTP requests per authenticated account, falling back to
// the client IP for anonymous routes.
func RateLimit(limiter *ratelimit.RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key, ok := c.Get("uid").(string)
			if !ok || key == "" {
				key = "ip:" + c.RealIP()
			}

			allowed, wait := limiter.Allow(key, ratelimit.ActionHTTP)
			if !allowed {
				retryAfter := int(math.Ceil(wait.Seconds()))
				logger.Warn("RATE LIMIT: blocked %s %s for %s (retry in %ds)", c.Request().Method, c.Path(), key, retryAfter)
				c.Response().Header().Set("Retry-After", fmt.Sprint(retryAfter))
				return response.Error(c, errors.TooManyRequests("Rate limit exceeded"))
			}

			return next(c)
		}
	}
}
