package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ironledgerdev/myBusApp/internal/domain"
	apperrors "github.com/ironledgerdev/myBusApp/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

// feedbackRequest is the body of POST /api/feedback. A submission refers to
// a route by code, a trip by id, or both.
type feedbackRequest struct {
	RouteCode     string `json:"routeCode" validate:"required_without=TripID,max=32"`
	TripID        *int64 `json:"tripId" validate:"omitempty,gt=0"`
	Rating        int    `json:"rating" validate:"required,min=1,max=5"`
	Comment       string `json:"comment" validate:"max=1000"`
	PassengerName string `json:"passengerName" validate:"max=100"`
}

func (s *Server) registerFleetRoutes(api *echo.Group) {
	api.GET("/stops", s.handleListStops)
	api.GET("/buses", s.handleListBuses)
	api.GET("/routes", s.handleListRoutes)
	api.GET("/routes/:code", s.handleGetRoute)
	api.GET("/routes/:code/feedback", s.handleListRouteFeedback)
	api.GET("/drivers", s.handleListDrivers)
	api.POST("/feedback", s.handleCreateFeedback,
		newRateLimiter(rateScopeFeedback, feedbackRatePerSecond, feedbackRateBurst, s.deps.HTTPMetrics))
}

func (s *Server) handleListStops(c echo.Context) error {
	stops, err := s.deps.Fleet.ListStops(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to list stops", err)
	}
	return sendJSON(c, http.StatusOK, map[string]any{"stops": stops})
}

func (s *Server) handleListBuses(c echo.Context) error {
	buses, err := s.deps.Fleet.ListBuses(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to list buses", err)
	}
	return sendJSON(c, http.StatusOK, map[string]any{"buses": buses})
}

func (s *Server) handleListRoutes(c echo.Context) error {
	routes, err := s.deps.Fleet.ListRoutes(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to list routes", err)
	}
	return sendJSON(c, http.StatusOK, map[string]any{"routes": routes})
}

func (s *Server) handleGetRoute(c echo.Context) error {
	code := c.Param("code")
	route, err := s.deps.Fleet.GetRouteByCode(c.Request().Context(), code)
	if err != nil {
		return apperrors.AsStructuredError(err).WithContext("route_code", code)
	}
	return sendJSON(c, http.StatusOK, route)
}

func (s *Server) handleListRouteFeedback(c echo.Context) error {
	ctx := c.Request().Context()
	code := c.Param("code")

	route, err := s.deps.Fleet.GetRouteByCode(ctx, code)
	if err != nil {
		return apperrors.AsStructuredError(err).WithContext("route_code", code)
	}

	items, err := s.deps.Fleet.ListFeedbackForRoute(ctx, route.ID)
	if err != nil {
		return apperrors.InternalError("failed to list feedback", err).WithContext("route_code", code)
	}
	return sendJSON(c, http.StatusOK, map[string]any{"feedback": items})
}

func (s *Server) handleListDrivers(c echo.Context) error {
	drivers, err := s.deps.Fleet.ListDrivers(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to list drivers", err)
	}
	return sendJSON(c, http.StatusOK, map[string]any{"drivers": drivers})
}

func (s *Server) handleCreateFeedback(c echo.Context) error {
	ctx := c.Request().Context()

	var req feedbackRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("request body must be a JSON object")
	}
	if err := s.validate.Struct(req); err != nil {
		return validationFailure(err)
	}

	feedback := domain.Feedback{
		TripID:        req.TripID,
		Rating:        req.Rating,
		Comment:       strings.TrimSpace(req.Comment),
		PassengerName: strings.TrimSpace(req.PassengerName),
	}

	if req.RouteCode != "" {
		route, err := s.deps.Fleet.GetRouteByCode(ctx, req.RouteCode)
		if err != nil {
			return apperrors.AsStructuredError(err).WithContext("route_code", req.RouteCode)
		}
		feedback.RouteID = &route.ID
	}

	if req.TripID != nil {
		trip, err := s.deps.Fleet.GetTrip(ctx, *req.TripID)
		if err != nil {
			return apperrors.AsStructuredError(err).WithContext("trip_id", *req.TripID)
		}
		if feedback.RouteID == nil {
			feedback.RouteID = &trip.RouteID
		} else if *feedback.RouteID != trip.RouteID {
			return apperrors.ValidationError("trip does not belong to route").
				WithContext("route_code", req.RouteCode).
				WithContext("trip_id", *req.TripID)
		}
	}

	created, err := s.deps.Fleet.CreateFeedback(ctx, feedback)
	if err != nil {
		return apperrors.AsStructuredError(err)
	}
	return sendJSON(c, http.StatusCreated, created)
}

func validationFailure(err error) *apperrors.Error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.ValidationError("invalid request")
	}

	first := verrs[0]
	return apperrors.ValidationError(fmt.Sprintf("field %s failed %s validation", first.Field(), first.Tag())).
		WithContext("field", first.Field())
}

func sendJSON(c echo.Context, status int, body any) error {
	if err := c.JSON(status, body); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
