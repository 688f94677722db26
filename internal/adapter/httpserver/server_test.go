package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ironledgerdev/myBusApp/internal/adapter/metrics"
	"github.com/ironledgerdev/myBusApp/internal/domain"
	"github.com/ironledgerdev/myBusApp/internal/platform/config"
	"github.com/jonboulle/clockwork"
)

// --- Fakes ---

type fakeGroups struct {
	groups map[domain.GroupID]int
}

func (f *fakeGroups) Groups() map[domain.GroupID]int { return f.groups }

func (f *fakeGroups) ConnectionCount() int {
	total := 0
	for _, n := range f.groups {
		total += n
	}
	return total
}

type fakeWebSocket struct {
	mu     sync.Mutex
	groups []domain.GroupID
}

func (f *fakeWebSocket) Serve(w http.ResponseWriter, _ *http.Request, group domain.GroupID) {
	f.mu.Lock()
	f.groups = append(f.groups, group)
	f.mu.Unlock()
	w.WriteHeader(http.StatusSwitchingProtocols)
}

func (f *fakeWebSocket) served() []domain.GroupID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.GroupID(nil), f.groups...)
}

type fakePositions struct {
	positions []domain.VehiclePosition
	err       error
}

func (f *fakePositions) Latest(_ context.Context, busID string) (*domain.VehiclePosition, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range f.positions {
		if p.BusID == busID {
			return &p, nil
		}
	}
	return nil, domain.ErrPositionNotFound
}

func (f *fakePositions) List(context.Context) ([]domain.VehiclePosition, error) {
	return f.positions, f.err
}

// --- Test server ---

type testServerOption func(*config.Config, *Deps)

func withHealthChecks(checks ...HealthCheck) testServerOption {
	return func(_ *config.Config, d *Deps) { d.HealthChecks = checks }
}

func withFleet(fleet domain.FleetRepository) testServerOption {
	return func(_ *config.Config, d *Deps) { d.Fleet = fleet }
}

func withPositions(p *fakePositions) testServerOption {
	return func(_ *config.Config, d *Deps) { d.Positions = p }
}

func withGroups(groups map[domain.GroupID]int) testServerOption {
	return func(_ *config.Config, d *Deps) { d.Groups = &fakeGroups{groups: groups} }
}

func withLimits(limits *ConnectionLimits) testServerOption {
	return func(_ *config.Config, d *Deps) { d.Limits = limits }
}

type testServer struct {
	*Server
	ws    *fakeWebSocket
	clock *clockwork.FakeClock
}

func newTestServer(t *testing.T, opts ...testServerOption) *testServer {
	t.Helper()

	cfg := &config.Config{
		AppEnv:          "test",
		Port:            "0",
		AppURL:          "http://localhost:8080",
		HubDefaultGroup: "buses",
		GTFSRTAgency:    "soweto",
	}

	clock := clockwork.NewFakeClock()
	reg := metrics.NewRegistry()
	ws := &fakeWebSocket{}
	deps := Deps{
		Groups:      &fakeGroups{groups: map[domain.GroupID]int{}},
		WebSocket:   ws,
		Positions:   &fakePositions{},
		Limits:      NewConnectionLimits(clock, 100, 10, 100, 100),
		Registry:    reg,
		HTTPMetrics: metrics.NewHTTPMetrics(reg),
		HubMetrics:  metrics.NewHubMetrics(reg),
		Clock:       clock,
	}
	for _, opt := range opts {
		opt(cfg, &deps)
	}

	return &testServer{Server: NewServer(cfg, deps), ws: ws, clock: clock}
}

func (s *testServer) do(method, target string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}
