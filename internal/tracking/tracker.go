package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ironledgerdev/myBusApp/internal/adapter/metrics"
	"github.com/ironledgerdev/myBusApp/internal/domain"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

const (
	defaultBufferSize = 256
	storeTimeout      = 2 * time.Second
	listKey           = "positions"
)

// Tracker records the latest position per bus from hub traffic.
type Tracker struct {
	store   domain.PositionStore
	clock   clockwork.Clock
	ttl     time.Duration
	metrics *metrics.PositionMetrics

	updates  chan domain.VehiclePosition
	reads    singleflight.Group
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewTracker starts a tracker writing to store. bufferSize bounds the number
// of updates waiting to be written; further updates are dropped.
func NewTracker(store domain.PositionStore, clock clockwork.Clock, ttl time.Duration, m *metrics.PositionMetrics, bufferSize int) *Tracker {
	if bufferSize < 1 {
		bufferSize = defaultBufferSize
	}
	t := &Tracker{
		store:   store,
		clock:   clock,
		ttl:     ttl,
		metrics: m,
		updates: make(chan domain.VehiclePosition, bufferSize),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go t.run()
	return t
}

// Observe implements broadcast.Observer. It never blocks the publisher.
func (t *Tracker) Observe(msg domain.Message) {
	pos, ok := ParseLocationUpdate(msg.Payload, t.clock.Now())
	if !ok {
		return
	}

	select {
	case <-t.stopCh:
		return
	default:
	}

	select {
	case t.updates <- pos:
	default:
		t.metrics.Dropped.Inc()
		slog.Debug("Position update dropped, tracker busy", "bus_id", pos.BusID)
	}
}

// Latest returns the last known position of a bus.
func (t *Tracker) Latest(ctx context.Context, busID string) (*domain.VehiclePosition, error) {
	pos, err := t.store.Get(ctx, busID)
	if err != nil {
		return nil, fmt.Errorf("get position %s: %w", busID, err)
	}
	return pos, nil
}

// List returns every live position. Concurrent callers share one store read.
func (t *Tracker) List(ctx context.Context) ([]domain.VehiclePosition, error) {
	v, err, _ := t.reads.Do(listKey, func() (any, error) {
		positions, err := t.store.List(ctx)
		if err != nil {
			t.metrics.StoreErrors.WithLabelValues("list").Inc()
			return nil, err
		}
		t.metrics.Tracked.Set(float64(len(positions)))
		return positions, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	return v.([]domain.VehiclePosition), nil
}

// Stop writes any buffered updates and stops the tracker.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
	<-t.done
}

func (t *Tracker) run() {
	defer close(t.done)

	for {
		select {
		case pos := <-t.updates:
			t.save(pos)
		case <-t.stopCh:
			for {
				select {
				case pos := <-t.updates:
					t.save(pos)
				default:
					return
				}
			}
		}
	}
}

func (t *Tracker) save(pos domain.VehiclePosition) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := t.store.Save(ctx, pos, t.ttl); err != nil {
		t.metrics.StoreErrors.WithLabelValues("save").Inc()
		slog.Warn("Failed to save position", "bus_id", pos.BusID, "error", err)
		return
	}
	t.metrics.Recorded.Inc()
}
