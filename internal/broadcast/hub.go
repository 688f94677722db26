package broadcast

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ironledgerdev/myBusApp/internal/adapter/metrics"
	"github.com/ironledgerdev/myBusApp/internal/domain"
	"github.com/ironledgerdev/myBusApp/internal/registry"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultQueueSize = 32
	stopTimeout      = 10 * time.Second
	shutdownReason   = "Server shutting down"
)

// Config controls delivery behaviour.
type Config struct {
	// QueueSize bounds each connection's outbox.
	QueueSize int
	// EchoToSender delivers a message back to the connection that published it.
	EchoToSender bool
}

func DefaultConfig() Config {
	return Config{QueueSize: DefaultQueueSize, EchoToSender: true}
}

// Observer sees every published message once, after it has been enqueued.
// A message received from a connection in several groups is observed once,
// with Group set to the first of them. Observe runs on the publisher's
// goroutine and must not block.
type Observer interface {
	Observe(msg domain.Message)
}

// PublishReport summarises one Publish call.
type PublishReport struct {
	Group    domain.GroupID
	Targets  int // members the message was addressed to
	Enqueued int
	Dropped  int // older messages discarded to make room
	Failed   int // members found closed during the scatter
	Skipped  int // the origin, when echo is disabled
}

// Hub relays messages from any member of a group to every member of it.
type Hub struct {
	cfg       Config
	clock     clockwork.Clock
	metrics   *metrics.HubMetrics
	registry  *registry.Registry[*Connection]
	observers []Observer

	// mu guards conns and stopped. Publish never takes it.
	mu      sync.Mutex
	conns   map[domain.ConnectionID]*Connection
	stopped bool
	wg      sync.WaitGroup
}

// NewHub creates a hub. Observers are notified of every published message.
func NewHub(cfg Config, clock clockwork.Clock, m *metrics.HubMetrics, observers ...Observer) *Hub {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = DefaultQueueSize
	}
	return &Hub{
		cfg:       cfg,
		clock:     clock,
		metrics:   m,
		registry:  registry.New[*Connection](),
		observers: observers,
		conns:     make(map[domain.ConnectionID]*Connection),
	}
}

// Connect accepts a transport and registers it in the given groups. The
// connection is a broadcast target in every group once Connect returns.
func (h *Hub) Connect(transport Transport, groups ...domain.GroupID) (*Connection, error) {
	conn := newConnection(transport, h.cfg.QueueSize, h.clock.Now())

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil, domain.ErrHubStopped
	}
	h.conns[conn.id] = conn
	h.wg.Add(1)
	h.mu.Unlock()

	go h.deliver(conn)
	h.metrics.ActiveConnections.Inc()

	for _, group := range groups {
		if _, err := h.registry.Join(group, conn); err != nil {
			h.teardown(conn, "")
			return nil, err
		}
	}
	h.metrics.ActiveGroups.Set(float64(len(h.registry.Groups())))

	slog.Debug("Client connected", "connection_id", conn.id.String(), "groups", groups)
	return conn, nil
}

// Join adds an existing connection to another group.
func (h *Hub) Join(conn *Connection, group domain.GroupID) error {
	if _, err := h.registry.Join(group, conn); err != nil {
		return err
	}
	h.metrics.ActiveGroups.Set(float64(len(h.registry.Groups())))
	return nil
}

// Leave removes a connection from one group. The connection stays open.
func (h *Hub) Leave(conn *Connection, group domain.GroupID) {
	h.registry.Leave(group, conn.id)
	h.metrics.ActiveGroups.Set(float64(len(h.registry.Groups())))
}

// Publish enqueues msg on every member of msg.Group. It never blocks on
// delivery and never fails; the report says what happened.
func (h *Hub) Publish(msg domain.Message) PublishReport {
	report := h.scatter(msg)
	h.published(msg)
	return report
}

func (h *Hub) scatter(msg domain.Message) PublishReport {
	report := PublishReport{Group: msg.Group}

	for _, conn := range h.registry.Snapshot(msg.Group) {
		if !h.cfg.EchoToSender && msg.Origin != uuid.Nil && conn.id == msg.Origin {
			report.Skipped++
			continue
		}
		report.Targets++

		dropped, err := conn.outbox.push(msg.Payload)
		if err != nil {
			report.Failed++
			h.teardown(conn, "")
			continue
		}
		report.Enqueued++
		if dropped {
			report.Dropped++
			slog.Debug("Outbox full, dropped oldest message", "connection_id", conn.id.String(), "group", msg.Group.String())
		}
	}

	h.metrics.DeliveriesEnqueued.Add(float64(report.Enqueued))
	h.metrics.OverflowDrops.Add(float64(report.Dropped))
	return report
}

func (h *Hub) published(msg domain.Message) {
	h.metrics.MessagesPublished.Inc()
	for _, o := range h.observers {
		o.Observe(msg)
	}
}

// Receive handles one inbound frame from conn. A payload that is not
// structured data is answered with an ERROR envelope to conn alone and
// returned as a *domain.DecodeError; anything else is published to every
// group conn belongs to.
func (h *Hub) Receive(conn *Connection, data []byte) ([]PublishReport, error) {
	if conn.Closed() {
		return nil, domain.ErrConnectionClosed
	}

	msg, err := domain.DecodeMessage("", conn.id, data)
	if err != nil {
		h.metrics.DecodeErrors.Inc()
		h.sendError(conn, domain.ErrorCodeDecode, "Message must be valid JSON")
		return nil, err
	}

	groups := h.registry.GroupsOf(conn.id)
	if len(groups) == 0 {
		return nil, nil
	}
	reports := make([]PublishReport, 0, len(groups))
	for _, group := range groups {
		msg.Group = group
		reports = append(reports, h.scatter(msg))
	}

	msg.Group = groups[0]
	h.published(msg)
	return reports, nil
}

// Send enqueues data for conn only.
func (h *Hub) Send(conn *Connection, data []byte) error {
	dropped, err := conn.outbox.push(data)
	if err != nil {
		return err
	}
	h.metrics.DeliveriesEnqueued.Inc()
	if dropped {
		h.metrics.OverflowDrops.Inc()
	}
	return nil
}

// SendError enqueues an ERROR envelope for conn only.
func (h *Hub) SendError(conn *Connection, code, message string) {
	h.sendError(conn, code, message)
}

func (h *Hub) sendError(conn *Connection, code, message string) {
	if err := h.Send(conn, domain.NewErrorEnvelope(code, message, h.clock.Now())); err != nil {
		slog.Debug("Failed to queue error envelope", "connection_id", conn.id.String(), "code", code, "error", err)
	}
}

// Disconnect tears conn down. It is safe to call more than once and from
// any goroutine.
func (h *Hub) Disconnect(conn *Connection) {
	h.teardown(conn, "")
}

// DisconnectWithReason tears conn down and sends reason in the close frame.
func (h *Hub) DisconnectWithReason(conn *Connection, reason string) {
	h.teardown(conn, reason)
}

// Snapshot returns the members of a group at call time.
func (h *Hub) Snapshot(group domain.GroupID) []*Connection {
	return h.registry.Snapshot(group)
}

// Groups returns the member count of every non-empty group.
func (h *Hub) Groups() map[domain.GroupID]int {
	return h.registry.Groups()
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Stop closes every connection with a shutdown close frame and waits for
// the delivery goroutines to exit. Connect fails with ErrHubStopped afterwards.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	conns := make([]*Connection, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		h.teardown(conn, shutdownReason)
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	timeout := h.clock.NewTimer(stopTimeout)
	defer timeout.Stop()

	select {
	case <-done:
		slog.Info("Hub stopped gracefully", "connections_closed", len(conns))
	case <-timeout.Chan():
		slog.Warn("Hub stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (h *Hub) teardown(conn *Connection, reason string) {
	if !conn.closed.CompareAndSwap(false, true) {
		return
	}

	// closed is set first so a racing Join is rejected by the registry.
	conn.stopOnce.Do(func() { close(conn.stop) })
	conn.outbox.close()
	h.registry.RemoveEverywhere(conn.id)

	h.mu.Lock()
	delete(h.conns, conn.id)
	h.mu.Unlock()

	if err := conn.transport.Close(reason); err != nil {
		h.metrics.TransportErrors.WithLabelValues("close").Inc()
		slog.Debug("Transport close failed", "connection_id", conn.id.String(), "error", err)
	}

	h.metrics.ActiveConnections.Dec()
	h.metrics.ActiveGroups.Set(float64(len(h.registry.Groups())))
	slog.Debug("Client disconnected", "connection_id", conn.id.String(), "connected_for", h.clock.Since(conn.connectedAt))
}

// deliver drains conn's outbox to its transport until the connection closes.
func (h *Hub) deliver(conn *Connection) {
	defer h.wg.Done()
	defer close(conn.done)

	for {
		select {
		case <-conn.stop:
			return
		case <-conn.outbox.notify:
		}

		for {
			data, ok := conn.outbox.pop()
			if !ok {
				break
			}

			start := h.clock.Now()
			if err := conn.transport.Write(data); err != nil {
				if !errors.Is(err, domain.ErrConnectionClosed) {
					h.metrics.TransportErrors.WithLabelValues("write").Inc()
				}
				slog.Debug("Write failed, dropping client", "connection_id", conn.id.String(), "error", err)
				h.teardown(conn, "")
				return
			}
			h.metrics.SendDuration.Observe(h.clock.Since(start).Seconds())
		}
	}
}
