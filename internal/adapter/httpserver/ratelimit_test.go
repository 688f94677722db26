package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ironledgerdev/myBusApp/internal/adapter/metrics"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callLimited(t *testing.T, h echo.HandlerFunc, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	require.NoError(t, h(echo.New().NewContext(req, rec)))
	return rec
}

func limitedHandler(scope string, ratePerSecond float64, burst int, m *metrics.HTTPMetrics) echo.HandlerFunc {
	return newRateLimiter(scope, ratePerSecond, burst, m)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
}

func TestRateLimiter_AllowsBurst(t *testing.T) {
	h := limitedHandler(rateScopeAPI, 10, 3, nil)

	for range 3 {
		assert.Equal(t, http.StatusOK, callLimited(t, h, "10.0.0.1:1234").Code)
	}
}

func TestRateLimiter_RejectsWithScopeAndRetryAfter(t *testing.T) {
	m := metrics.NewHTTPMetrics(metrics.NewRegistry())
	h := limitedHandler(rateScopeFeedback, 0.2, 1, m)

	require.Equal(t, http.StatusOK, callLimited(t, h, "10.0.0.1:1234").Code)

	rec := callLimited(t, h, "10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate limit exceeded", body["error"])
	assert.Equal(t, rateScopeFeedback, body["scope"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited.WithLabelValues(rateScopeFeedback)))
}

func TestRateLimiter_BucketsPerClientIP(t *testing.T) {
	h := limitedHandler(rateScopeAPI, 0.01, 1, nil)

	assert.Equal(t, http.StatusOK, callLimited(t, h, "10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusOK, callLimited(t, h, "10.0.0.2:5678").Code, "a second client has its own bucket")
	assert.Equal(t, http.StatusTooManyRequests, callLimited(t, h, "10.0.0.1:1234").Code)
}
