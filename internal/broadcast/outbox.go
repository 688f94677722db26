package broadcast

import (
	"sync"

	"github.com/ironledgerdev/myBusApp/internal/domain"
)

// outbox is a bounded FIFO that discards its oldest entry on overflow.
// It is safe for many producers and one consumer.
type outbox struct {
	mu     sync.Mutex
	buf    [][]byte
	head   int
	size   int
	closed bool
	notify chan struct{}
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{
		buf:    make([][]byte, capacity),
		notify: make(chan struct{}, 1),
	}
}

// push appends data and reports whether an older entry was discarded.
func (o *outbox) push(data []byte) (bool, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false, domain.ErrConnectionClosed
	}

	dropped := false
	if o.size == len(o.buf) {
		o.buf[o.head] = nil
		o.head = (o.head + 1) % len(o.buf)
		o.size--
		dropped = true
	}
	o.buf[(o.head+o.size)%len(o.buf)] = data
	o.size++
	o.mu.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
	return dropped, nil
}

// pop removes the oldest entry. ok is false when the outbox is empty or closed.
func (o *outbox) pop() ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.size == 0 {
		return nil, false
	}

	data := o.buf[o.head]
	o.buf[o.head] = nil
	o.head = (o.head + 1) % len(o.buf)
	o.size--
	return data, true
}

// close discards pending entries and rejects further pushes.
func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	clear(o.buf)
	o.head, o.size = 0, 0
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.size
}
