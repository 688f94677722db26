package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ironledgerdev/myBusApp/internal/adapter/httpserver"
	"github.com/ironledgerdev/myBusApp/internal/adapter/metrics"
	"github.com/ironledgerdev/myBusApp/internal/adapter/postgres"
	"github.com/ironledgerdev/myBusApp/internal/adapter/redis"
	"github.com/ironledgerdev/myBusApp/internal/adapter/websocket"
	"github.com/ironledgerdev/myBusApp/internal/broadcast"
	"github.com/ironledgerdev/myBusApp/internal/domain"
	"github.com/ironledgerdev/myBusApp/internal/platform/config"
	"github.com/ironledgerdev/myBusApp/internal/platform/logging"
	"github.com/ironledgerdev/myBusApp/internal/platform/retry"
	"github.com/ironledgerdev/myBusApp/internal/platform/version"
	"github.com/ironledgerdev/myBusApp/internal/tracking"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
)

const (
	startupTimeout  = 60 * time.Second
	dialTimeout     = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func startupRetryPolicy(backend string) retry.Policy {
	p := retry.StartupPolicy
	p.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Backend not reachable yet, retrying", "backend", backend, "attempt", attempt, "backoff", backoff, "error", err)
	}
	return p
}

// setupDB connects and migrates when DATABASE_URL is set. It returns nil
// otherwise, which disables the fleet API.
func setupDB(ctx context.Context, cfg *config.Config, clock clockwork.Clock, reg prometheus.Registerer) *pgxpool.Pool {
	if cfg.DatabaseURL == "" {
		return nil
	}

	dbMetrics := metrics.NewDBMetrics(reg)
	pool, err := retry.Do(ctx, clock, startupRetryPolicy("postgres"), retry.RetryUnlessCancelled,
		func(ctx context.Context) (*pgxpool.Pool, error) {
			ctx, cancel := context.WithTimeout(ctx, dialTimeout)
			defer cancel()
			return postgres.Connect(ctx, cfg.DatabaseURL, dbMetrics)
		})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

// setupRedis returns nil when REDIS_URL is not set; positions are then kept
// in memory.
func setupRedis(ctx context.Context, cfg *config.Config, clock clockwork.Clock, reg prometheus.Registerer) *goredis.Client {
	if cfg.RedisURL == "" {
		return nil
	}

	redisMetrics := metrics.NewRedisMetrics(reg)
	client, err := retry.Do(ctx, clock, startupRetryPolicy("redis"), retry.RetryUnlessCancelled,
		func(ctx context.Context) (*goredis.Client, error) {
			ctx, cancel := context.WithTimeout(ctx, dialTimeout)
			defer cancel()
			return redis.NewClient(ctx, cfg.RedisURL, redisMetrics)
		})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *httpserver.Server, hub *broadcast.Hub, tracker *tracking.Tracker) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		// Upgraded connections are not tracked by the HTTP server; the hub
		// closes them with a shutdown close frame.
		hub.Stop()
		tracker.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", info.Version, "commit", info.Commit)

	reg := metrics.NewRegistry()
	hubMetrics := metrics.NewHubMetrics(reg)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), startupTimeout)
	defer cancelStartup()

	var healthChecks []httpserver.HealthCheck

	pool := setupDB(startupCtx, cfg, clock, reg)
	if pool != nil {
		defer pool.Close()
		healthChecks = append(healthChecks, httpserver.HealthCheck{Name: "postgres", Check: pool.Ping})
	}

	var store domain.PositionStore = tracking.NewMemoryStore(clock)
	redisClient := setupRedis(startupCtx, cfg, clock, reg)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		store = redis.NewPositionStore(redisClient, clock)
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	cancelStartup()

	tracker := tracking.NewTracker(store, clock, cfg.PositionTTL, metrics.NewPositionMetrics(reg), 0)

	hub := broadcast.NewHub(broadcast.Config{
		QueueSize:    cfg.HubQueueSize,
		EchoToSender: cfg.HubEchoToSender,
	}, clock, hubMetrics, tracker)

	wsHandler := websocket.NewHandler(hub, websocket.Config{
		MaxMessageBytes: cfg.WSMaxMessageBytes,
		PingInterval:    cfg.WSPingInterval,
		PongTimeout:     cfg.WSPongTimeout,
		IdleTimeout:     cfg.WSIdleTimeout,
		InboundRate:     cfg.InboundMessageRate,
		InboundBurst:    cfg.InboundMessageBurst,
	}, clock, hubMetrics, websocket.NewCheckOrigin(cfg.AppURL, cfg.IsDevelopment()))

	deps := httpserver.Deps{
		Groups:       hub,
		WebSocket:    wsHandler,
		Positions:    tracker,
		Limits:       httpserver.NewConnectionLimits(clock, int64(cfg.MaxWebSocketConnections), cfg.MaxConnectionsPerIP, cfg.ConnectionRate, cfg.ConnectionBurst),
		Registry:     reg,
		HTTPMetrics:  metrics.NewHTTPMetrics(reg),
		HubMetrics:   hubMetrics,
		HealthChecks: healthChecks,
		Clock:        clock,
	}
	// Leave Fleet nil rather than a typed-nil interface when there is no database.
	if pool != nil {
		deps.Fleet = postgres.NewFleetRepo(pool)
	}

	srv := httpserver.NewServer(cfg, deps)
	done := runGracefulShutdown(srv, hub, tracker)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
