package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ironledgerdev/myBusApp/internal/domain"
)

// Transport is the write side of one duplex channel. Write is only ever
// called from the connection's delivery goroutine; Close may be called
// concurrently with Write and must make a blocked Write return.
type Transport interface {
	Write(data []byte) error
	Close(reason string) error
}

// Connection is a live client registered with the hub.
type Connection struct {
	id          domain.ConnectionID
	transport   Transport
	outbox      *outbox
	connectedAt time.Time

	closed   atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func newConnection(transport Transport, queueSize int, now time.Time) *Connection {
	return &Connection{
		id:          domain.NewConnectionID(),
		transport:   transport,
		outbox:      newOutbox(queueSize),
		connectedAt: now,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (c *Connection) ID() domain.ConnectionID { return c.id }

// Closed reports whether the connection has been torn down.
func (c *Connection) Closed() bool { return c.closed.Load() }

// ConnectedAt is the time the hub accepted the connection.
func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }

// Done is closed once the delivery goroutine has exited.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Pending returns the number of messages waiting in the outbox.
func (c *Connection) Pending() int { return c.outbox.len() }
