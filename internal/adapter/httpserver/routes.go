package httpserver

import (
	"log/slog"

	"github.com/ironledgerdev/myBusApp/internal/adapter/metrics"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	apiRatePerSecond = 20
	apiRateBurst     = 40

	// One feedback submission per 30s per client, with a small burst.
	feedbackRatePerSecond = 1.0 / 30
	feedbackRateBurst     = 3
)

func (s *Server) registerRoutes() {
	s.echo.Use(correlationMiddleware)
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(s.deps.HTTPMetrics.Middleware())
	s.echo.Use(ErrorHandlingMiddleware())
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            63072000, // 2 years; only sent over HTTPS
		HSTSPreloadEnabled:    true,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}))

	s.registerHealthRoutes()
	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler(s.deps.Registry)))

	s.registerWebSocketRoutes()

	api := s.echo.Group("/api", newRateLimiter(rateScopeAPI, apiRatePerSecond, apiRateBurst, s.deps.HTTPMetrics))
	s.registerTrackingRoutes(api)
	s.echo.GET("/gtfs-rt/vehicle-positions", s.handleVehiclePositionsFeed)

	if s.deps.Fleet != nil {
		s.registerFleetRoutes(api)
	} else {
		slog.Info("DATABASE_URL not set, fleet API disabled")
	}
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		Skipper: func(c echo.Context) bool {
			// Probes and scrapes would drown out real traffic.
			switch c.Path() {
			case "/health/startup", "/health/live", "/health/ready", "/metrics":
				return true
			}
			return false
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
