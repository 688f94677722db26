package tracking

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/ironledgerdev/myBusApp/internal/domain"
	"github.com/jonboulle/clockwork"
)

type memoryEntry struct {
	pos       domain.VehiclePosition
	expiresAt time.Time
}

// MemoryStore is the single-instance PositionStore. Expired entries are
// hidden on read and pruned on write.
type MemoryStore struct {
	mu      sync.RWMutex
	clock   clockwork.Clock
	entries map[string]memoryEntry
}

func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	return &MemoryStore{
		clock:   clock,
		entries: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Save(_ context.Context, pos domain.VehiclePosition, ttl time.Duration) error {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	// An out-of-order report never replaces a newer one.
	if existing, ok := s.entries[pos.BusID]; ok && now.Before(existing.expiresAt) && pos.ReportedAt.Before(existing.pos.ReportedAt) {
		return nil
	}
	s.entries[pos.BusID] = memoryEntry{pos: pos, expiresAt: now.Add(ttl)}

	for busID, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, busID)
		}
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, busID string) (*domain.VehiclePosition, error) {
	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[busID]
	if !ok || !now.Before(entry.expiresAt) {
		return nil, domain.ErrPositionNotFound
	}
	pos := entry.pos
	return &pos, nil
}

// List returns live positions ordered by bus id.
func (s *MemoryStore) List(_ context.Context) ([]domain.VehiclePosition, error) {
	now := s.clock.Now()

	s.mu.RLock()
	positions := make([]domain.VehiclePosition, 0, len(s.entries))
	for _, entry := range s.entries {
		if now.Before(entry.expiresAt) {
			positions = append(positions, entry.pos)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(positions, func(a, b domain.VehiclePosition) int { return cmp.Compare(a.BusID, b.BusID) })
	return positions, nil
}
