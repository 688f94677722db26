package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ironledgerdev/myBusApp/internal/adapter/metrics"
	"github.com/ironledgerdev/myBusApp/internal/domain"
	"github.com/ironledgerdev/myBusApp/internal/platform/config"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// groupDirectory is the part of the hub the HTTP surface reads.
type groupDirectory interface {
	Groups() map[domain.GroupID]int
	ConnectionCount() int
}

// websocketServer attaches an upgraded request to a group and blocks until
// the client leaves.
type websocketServer interface {
	Serve(w http.ResponseWriter, r *http.Request, group domain.GroupID)
}

type positionReader interface {
	Latest(ctx context.Context, busID string) (*domain.VehiclePosition, error)
	List(ctx context.Context) ([]domain.VehiclePosition, error)
}

// Deps are the collaborators the server routes to. Fleet may be nil, in
// which case the fleet API is not registered.
type Deps struct {
	Groups       groupDirectory
	WebSocket    websocketServer
	Positions    positionReader
	Fleet        domain.FleetRepository
	Limits       *ConnectionLimits
	Registry     *prometheus.Registry
	HTTPMetrics  *metrics.HTTPMetrics
	HubMetrics   *metrics.HubMetrics
	HealthChecks []HealthCheck
	Clock        clockwork.Clock
}

type Server struct {
	echo     *echo.Echo
	config   *config.Config
	deps     Deps
	validate *validator.Validate

	startTime time.Time
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:      e,
		config:    cfg,
		deps:      deps,
		validate:  newValidator(),
		startTime: deps.Clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP lets tests drive the full middleware stack.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
