package websocket

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const idleWarningLead = time.Minute

type idleState int

const (
	idleActive idleState = iota
	idleWarn
	idleExpired
)

// keepalive tracks client activity for the idle timeout. Inbound frames and
// pongs both count as activity.
type keepalive struct {
	clock       clockwork.Clock
	idleTimeout time.Duration
	warnAfter   time.Duration

	mu           sync.Mutex
	lastActivity time.Time
	warningSent  bool
}

func newKeepalive(clock clockwork.Clock, idleTimeout time.Duration) *keepalive {
	warnAfter := idleTimeout - idleWarningLead
	if warnAfter <= 0 {
		warnAfter = idleTimeout / 2
	}
	return &keepalive{
		clock:        clock,
		idleTimeout:  idleTimeout,
		warnAfter:    warnAfter,
		lastActivity: clock.Now(),
	}
}

func (k *keepalive) touch() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.lastActivity = k.clock.Now()
	k.warningSent = false
}

// check reports idleWarn at most once per idle period.
func (k *keepalive) check() idleState {
	k.mu.Lock()
	defer k.mu.Unlock()

	idle := k.clock.Since(k.lastActivity)
	if idle >= k.idleTimeout {
		return idleExpired
	}
	if !k.warningSent && idle >= k.warnAfter {
		k.warningSent = true
		return idleWarn
	}
	return idleActive
}
