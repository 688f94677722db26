package httpserver

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/ironledgerdev/myBusApp/internal/adapter/metrics"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

// Rate limit scopes, used as the metric label and in the 429 body.
const (
	rateScopeAPI      = "api"
	rateScopeFeedback = "feedback"
)

// newRateLimiter limits requests per client IP. Rejections carry a
// Retry-After hint of one token interval.
func newRateLimiter(scope string, ratePerSecond float64, burst int, m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	retryAfter := strconv.Itoa(int(math.Ceil(1 / ratePerSecond)))

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			if m != nil {
				m.RateLimited.WithLabelValues(scope).Inc()
			}
			c.Response().Header().Set("Retry-After", retryAfter)
			return c.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "rate limit exceeded",
				"scope": scope,
			})
		},
	})
}
