package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ironledgerdev/myBusApp/internal/domain"
	"github.com/jonboulle/clockwork"
)

const writeDeadline = 5 * time.Second

// Transport carries hub deliveries over a gorilla connection. Write is only
// called from the hub's delivery goroutine; ping and Close use WriteControl,
// which gorilla allows concurrently with it.
type Transport struct {
	conn      *websocket.Conn
	clock     clockwork.Clock
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func NewTransport(conn *websocket.Conn, clock clockwork.Clock) *Transport {
	return &Transport{conn: conn, clock: clock}
}

func (t *Transport) Write(data []byte) error {
	if t.closed.Load() {
		return domain.ErrConnectionClosed
	}
	_ = t.conn.SetWriteDeadline(t.clock.Now().Add(writeDeadline))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Ping sends a ping control frame.
func (t *Transport) Ping() error {
	if t.closed.Load() {
		return domain.ErrConnectionClosed
	}
	return t.conn.WriteControl(websocket.PingMessage, nil, t.clock.Now().Add(writeDeadline))
}

// Close sends a close frame carrying reason, when there is one, and closes
// the socket. Later calls return the first call's result.
func (t *Transport) Close(reason string) error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		if reason != "" {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
			_ = t.conn.WriteControl(websocket.CloseMessage, msg, t.clock.Now().Add(writeDeadline))
		}
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
