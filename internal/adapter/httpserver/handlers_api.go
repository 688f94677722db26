package httpserver

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/ironledgerdev/myBusApp/internal/adapter/gtfsrt"
	apperrors "github.com/ironledgerdev/myBusApp/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

type groupSummary struct {
	Group   string `json:"group"`
	Members int    `json:"members"`
}

func (s *Server) registerTrackingRoutes(api *echo.Group) {
	api.GET("/groups", s.handleListGroups)
	api.GET("/positions", s.handleListPositions)
	api.GET("/positions/:busId", s.handleGetPosition)
}

func (s *Server) handleListGroups(c echo.Context) error {
	counts := s.deps.Groups.Groups()

	groups := make([]groupSummary, 0, len(counts))
	for group, members := range counts {
		groups = append(groups, groupSummary{Group: group.String(), Members: members})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Group < groups[j].Group })

	if err := c.JSON(http.StatusOK, map[string]any{"groups": groups}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleListPositions(c echo.Context) error {
	positions, err := s.deps.Positions.List(c.Request().Context())
	if err != nil {
		return apperrors.ExternalError("failed to load positions", err)
	}

	if err := c.JSON(http.StatusOK, map[string]any{"positions": positions}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetPosition(c echo.Context) error {
	busID := c.Param("busId")

	pos, err := s.deps.Positions.Latest(c.Request().Context(), busID)
	if err != nil {
		structured := apperrors.AsStructuredError(err)
		if structured.Type == apperrors.TypeInternal {
			structured = apperrors.ExternalError("failed to load position", err)
		}
		return structured.WithContext("bus_id", busID)
	}

	if err := c.JSON(http.StatusOK, pos); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// handleVehiclePositionsFeed serves the latest positions as a GTFS-Realtime
// feed. ?format=json returns the protojson rendering for debugging.
func (s *Server) handleVehiclePositionsFeed(c echo.Context) error {
	positions, err := s.deps.Positions.List(c.Request().Context())
	if err != nil {
		return apperrors.ExternalError("failed to load positions", err)
	}

	feed := gtfsrt.BuildVehiclePositions(s.config.GTFSRTAgency, positions, s.deps.Clock.Now())
	data, contentType, err := gtfsrt.Encode(feed, c.QueryParam("format") == "json")
	if err != nil {
		return apperrors.InternalError("failed to encode feed", err)
	}

	if err := c.Blob(http.StatusOK, contentType, data); err != nil {
		return fmt.Errorf("failed to send feed: %w", err)
	}
	return nil
}
