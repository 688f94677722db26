package websocket

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ironledgerdev/myBusApp/internal/adapter/metrics"
	"github.com/ironledgerdev/myBusApp/internal/broadcast"
	"github.com/ironledgerdev/myBusApp/internal/domain"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	// Frames beyond hardLimitFactor times the configured maximum close the
	// connection instead of being answered with MESSAGE_TOO_LARGE.
	hardLimitFactor = 8

	idleReason      = "Idle timeout"
	idleWarningText = "Connection idle. Will disconnect if no activity within 1 minute."
)

type Config struct {
	MaxMessageBytes int64
	PingInterval    time.Duration
	PongTimeout     time.Duration
	IdleTimeout     time.Duration
	InboundRate     float64
	InboundBurst    int
}

func DefaultConfig() Config {
	return Config{
		MaxMessageBytes: 64 * 1024,
		PingInterval:    30 * time.Second,
		PongTimeout:     60 * time.Second,
		IdleTimeout:     5 * time.Minute,
		InboundRate:     20,
		InboundBurst:    40,
	}
}

// Handler upgrades HTTP requests and attaches the resulting connections to
// the hub.
type Handler struct {
	hub      *broadcast.Hub
	cfg      Config
	clock    clockwork.Clock
	metrics  *metrics.HubMetrics
	upgrader websocket.Upgrader
}

func NewHandler(hub *broadcast.Hub, cfg Config, clock clockwork.Clock, m *metrics.HubMetrics, checkOrigin func(*http.Request) bool) *Handler {
	return &Handler{
		hub:     hub,
		cfg:     cfg,
		clock:   clock,
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Serve upgrades the request and blocks until the client goes away.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, group domain.GroupID) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error response.
		slog.Debug("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	transport := NewTransport(ws, h.clock)
	conn, err := h.hub.Connect(transport)
	if err != nil {
		slog.Warn("Rejected WebSocket client", "group", group.String(), "error", err)
		_ = transport.Close("Server unavailable")
		return
	}
	defer h.hub.Disconnect(conn)

	// The ACK is queued before the join so it precedes every broadcast.
	if err := h.hub.Send(conn, domain.NewConnectionAck(conn.ID(), group, h.clock.Now())); err != nil {
		return
	}
	if err := h.hub.Join(conn, group); err != nil {
		slog.Debug("Join failed", "connection_id", conn.ID().String(), "group", group.String(), "error", err)
		return
	}

	ka := newKeepalive(h.clock, h.cfg.IdleTimeout)
	ws.SetReadLimit(h.cfg.MaxMessageBytes * hardLimitFactor)
	h.extendReadDeadline(ws)
	ws.SetPongHandler(func(string) error {
		h.extendReadDeadline(ws)
		ka.touch()
		return nil
	})

	go h.keepalive(conn, transport, ka)
	h.readPump(conn, ws, ka)
}

func (h *Handler) readPump(conn *broadcast.Connection, ws *websocket.Conn, ka *keepalive) {
	limiter := rate.NewLimiter(rate.Limit(h.cfg.InboundRate), h.cfg.InboundBurst)

	for {
		frameType, r, err := ws.NextReader()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				slog.Debug("WebSocket read error", "connection_id", conn.ID().String(), "error", err)
			}
			return
		}
		ka.touch()
		h.extendReadDeadline(ws)

		// Payloads are relayed as text frames, so only text is accepted.
		if frameType != websocket.TextMessage {
			if _, err := io.Copy(io.Discard, r); err != nil {
				return
			}
			h.metrics.DecodeErrors.Inc()
			h.hub.SendError(conn, domain.ErrorCodeDecode, "Only text frames are supported")
			continue
		}

		data, err := io.ReadAll(io.LimitReader(r, h.cfg.MaxMessageBytes+1))
		if err != nil {
			slog.Debug("WebSocket read error", "connection_id", conn.ID().String(), "error", err)
			return
		}
		if int64(len(data)) > h.cfg.MaxMessageBytes {
			if _, err := io.Copy(io.Discard, r); err != nil {
				slog.Debug("Oversized frame closed the connection", "connection_id", conn.ID().String(), "error", err)
				return
			}
			h.hub.SendError(conn, domain.ErrorCodeMessageTooLarge, "Message exceeds the maximum size")
			continue
		}

		if !limiter.AllowN(h.clock.Now(), 1) {
			h.metrics.InboundRateLimited.Inc()
			h.hub.SendError(conn, domain.ErrorCodeRateLimited, "Too many messages")
			continue
		}

		if _, err := h.hub.Receive(conn, data); err != nil {
			var decodeErr *domain.DecodeError
			if errors.As(err, &decodeErr) {
				continue
			}
			return
		}
	}
}

// keepalive pings the client and enforces the idle timeout until the
// connection is torn down.
func (h *Handler) keepalive(conn *broadcast.Connection, transport *Transport, ka *keepalive) {
	ticker := h.clock.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-conn.Done():
			return
		case <-ticker.Chan():
		}

		switch ka.check() {
		case idleExpired:
			h.metrics.IdleDisconnects.Inc()
			slog.Debug("Disconnecting idle client", "connection_id", conn.ID().String())
			h.hub.DisconnectWithReason(conn, idleReason)
			return
		case idleWarn:
			h.hub.SendError(conn, domain.ErrorCodeIdle, idleWarningText)
		}

		if err := transport.Ping(); err != nil {
			if !errors.Is(err, domain.ErrConnectionClosed) {
				h.metrics.PingFailures.Inc()
			}
			h.hub.Disconnect(conn)
			return
		}
	}
}

func (h *Handler) extendReadDeadline(ws *websocket.Conn) {
	_ = ws.SetReadDeadline(h.clock.Now().Add(h.cfg.PongTimeout))
}
