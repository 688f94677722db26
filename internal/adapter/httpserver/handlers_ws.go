package httpserver

import (
	"net/http"
	"regexp"

	"github.com/ironledgerdev/myBusApp/internal/domain"
	apperrors "github.com/ironledgerdev/myBusApp/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

var groupNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,64}$`)

func (s *Server) registerWebSocketRoutes() {
	s.echo.GET("/ws/buses/", s.handleBusesWebSocket)
	s.echo.GET("/ws/groups/:group", s.handleGroupWebSocket)
}

func (s *Server) handleBusesWebSocket(c echo.Context) error {
	return s.serveWebSocket(c, domain.GroupID(s.config.HubDefaultGroup))
}

func (s *Server) handleGroupWebSocket(c echo.Context) error {
	group := c.Param("group")
	if !groupNamePattern.MatchString(group) {
		return apperrors.ValidationError("invalid group name").WithContext("group", group)
	}
	return s.serveWebSocket(c, domain.GroupID(group))
}

// serveWebSocket enforces the connection limits and hands the request to the
// WebSocket handler for the lifetime of the connection.
func (s *Server) serveWebSocket(c echo.Context, group domain.GroupID) error {
	ip := c.RealIP()
	ok, reason := s.deps.Limits.Acquire(ip)
	if !ok {
		s.deps.HubMetrics.ConnectionRejections.WithLabelValues(string(reason)).Inc()
		status := http.StatusTooManyRequests
		if reason == LimitReasonGlobal {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, map[string]string{"error": "connection limit exceeded", "reason": string(reason)})
	}
	defer s.deps.Limits.Release(ip)

	s.deps.WebSocket.Serve(c.Response(), c.Request(), group)
	return nil
}
