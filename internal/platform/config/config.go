package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	AppURL    string `env:"APP_URL" default:"http://localhost:8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// Optional backends. Without a database the fleet API is disabled;
	// without Redis positions are kept in memory.
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	HubQueueSize    int    `env:"HUB_QUEUE_SIZE" default:"32"`
	HubEchoToSender bool   `env:"HUB_ECHO_TO_SENDER" default:"true"`
	HubDefaultGroup string `env:"HUB_DEFAULT_GROUP" default:"buses"`

	WSMaxMessageBytes int64         `env:"WS_MAX_MESSAGE_BYTES" default:"65536"`
	WSPingInterval    time.Duration `env:"WS_PING_INTERVAL" default:"30s"`
	WSPongTimeout     time.Duration `env:"WS_PONG_TIMEOUT" default:"60s"`
	WSIdleTimeout     time.Duration `env:"WS_IDLE_TIMEOUT" default:"5m"`

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"100"`
	ConnectionRate          float64 `env:"CONNECTION_RATE" default:"10"`
	ConnectionBurst         int     `env:"CONNECTION_BURST" default:"20"`
	InboundMessageRate      float64 `env:"INBOUND_MESSAGE_RATE" default:"20"`
	InboundMessageBurst     int     `env:"INBOUND_MESSAGE_BURST" default:"40"`

	PositionTTL  time.Duration `env:"POSITION_TTL" default:"10m"`
	GTFSRTAgency string        `env:"GTFS_RT_AGENCY" default:"soweto"`
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.AppEnv {
	case "development", "production", "test":
	default:
		return fmt.Errorf("APP_ENV must be one of development, production, test, got %q", cfg.AppEnv)
	}

	if u, err := url.Parse(cfg.AppURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("APP_URL must be an absolute URL, got %q", cfg.AppURL)
	}

	if cfg.HubQueueSize < 1 || cfg.HubQueueSize > 4096 {
		return fmt.Errorf("HUB_QUEUE_SIZE must be between 1 and 4096, got %d", cfg.HubQueueSize)
	}
	if strings.TrimSpace(cfg.HubDefaultGroup) == "" {
		return errors.New("HUB_DEFAULT_GROUP must not be empty")
	}

	if cfg.WSMaxMessageBytes < 512 {
		return fmt.Errorf("WS_MAX_MESSAGE_BYTES must be at least 512, got %d", cfg.WSMaxMessageBytes)
	}
	if cfg.WSPingInterval <= 0 {
		return errors.New("WS_PING_INTERVAL must be positive")
	}
	if cfg.WSPongTimeout <= cfg.WSPingInterval {
		return fmt.Errorf("WS_PONG_TIMEOUT (%s) must exceed WS_PING_INTERVAL (%s)", cfg.WSPongTimeout, cfg.WSPingInterval)
	}
	if cfg.WSIdleTimeout < 2*time.Minute {
		return fmt.Errorf("WS_IDLE_TIMEOUT must be at least 2m, got %s", cfg.WSIdleTimeout)
	}

	positive := map[string]float64{
		"MAX_WEBSOCKET_CONNECTIONS": float64(cfg.MaxWebSocketConnections),
		"MAX_CONNECTIONS_PER_IP":    float64(cfg.MaxConnectionsPerIP),
		"CONNECTION_RATE":           cfg.ConnectionRate,
		"CONNECTION_BURST":          float64(cfg.ConnectionBurst),
		"INBOUND_MESSAGE_RATE":      cfg.InboundMessageRate,
		"INBOUND_MESSAGE_BURST":     float64(cfg.InboundMessageBurst),
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if cfg.PositionTTL <= 0 {
		return errors.New("POSITION_TTL must be positive")
	}

	return nil
}
