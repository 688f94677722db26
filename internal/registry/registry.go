package registry

import (
	"slices"
	"sync"

	"github.com/ironledgerdev/myBusApp/internal/domain"
)

// Member is a connection handle the registry can track.
type Member interface {
	ID() domain.ConnectionID
	Closed() bool
}

// Registry maps groups to their member connections.
type Registry[M Member] struct {
	groups      sync.Map // domain.GroupID -> *group[M]
	memberships sync.Map // domain.ConnectionID -> *membership
}

type group[M Member] struct {
	mu      sync.RWMutex
	members []M // replaced on every mutation, never modified in place
	index   map[domain.ConnectionID]struct{}
	deleted bool
}

// membership is the reverse index used by RemoveEverywhere.
// Lock order: membership.mu before group.mu.
type membership struct {
	mu      sync.Mutex
	groups  map[domain.GroupID]struct{}
	deleted bool
}

func New[M Member]() *Registry[M] {
	return &Registry[M]{}
}

// Join registers m in the group. The member is a broadcast target as soon as
// Join returns. Joining the same group twice fails with ErrAlreadyRegistered;
// joining with a closed member fails with ErrConnectionClosed.
func (r *Registry[M]) Join(groupID domain.GroupID, m M) (M, error) {
	id := m.ID()
	ms := r.lockMembership(id)
	defer ms.mu.Unlock()

	if m.Closed() {
		r.dropIfEmpty(id, ms)
		var zero M
		return zero, domain.ErrConnectionClosed
	}
	if _, exists := ms.groups[groupID]; exists {
		var zero M
		return zero, domain.ErrAlreadyRegistered
	}

	for {
		g := r.loadOrCreateGroup(groupID)
		g.mu.Lock()
		if g.deleted {
			g.mu.Unlock()
			continue
		}
		next := make([]M, len(g.members), len(g.members)+1)
		copy(next, g.members)
		g.members = append(next, m)
		g.index[id] = struct{}{}
		g.mu.Unlock()
		break
	}

	ms.groups[groupID] = struct{}{}
	return m, nil
}

// Leave removes the connection from one group. Absent memberships are a no-op.
func (r *Registry[M]) Leave(groupID domain.GroupID, id domain.ConnectionID) {
	value, ok := r.memberships.Load(id)
	if !ok {
		return
	}
	ms := value.(*membership)

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.deleted {
		return
	}
	if _, exists := ms.groups[groupID]; !exists {
		return
	}

	r.removeFromGroup(groupID, id)
	delete(ms.groups, groupID)
	r.dropIfEmpty(id, ms)
}

// RemoveEverywhere purges the connection from every group it belongs to.
// Calling it more than once is a no-op.
func (r *Registry[M]) RemoveEverywhere(id domain.ConnectionID) {
	value, ok := r.memberships.Load(id)
	if !ok {
		return
	}
	ms := value.(*membership)

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.deleted {
		return
	}

	for groupID := range ms.groups {
		r.removeFromGroup(groupID, id)
	}
	ms.groups = nil
	ms.deleted = true
	r.memberships.CompareAndDelete(id, ms)
}

// Snapshot returns the members of a group in join order at call time.
// The returned slice is shared and must not be modified.
func (r *Registry[M]) Snapshot(groupID domain.GroupID) []M {
	value, ok := r.groups.Load(groupID)
	if !ok {
		return nil
	}
	g := value.(*group[M])

	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.members[:len(g.members):len(g.members)]
}

// Count returns the number of members in a group.
func (r *Registry[M]) Count(groupID domain.GroupID) int {
	value, ok := r.groups.Load(groupID)
	if !ok {
		return 0
	}
	g := value.(*group[M])

	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}

// Groups returns the non-empty groups with their member counts.
func (r *Registry[M]) Groups() map[domain.GroupID]int {
	counts := make(map[domain.GroupID]int)
	r.groups.Range(func(key, value any) bool {
		g := value.(*group[M])
		g.mu.RLock()
		if !g.deleted && len(g.members) > 0 {
			counts[key.(domain.GroupID)] = len(g.members)
		}
		g.mu.RUnlock()
		return true
	})
	return counts
}

// GroupsOf returns the groups a connection currently belongs to, sorted by name.
func (r *Registry[M]) GroupsOf(id domain.ConnectionID) []domain.GroupID {
	value, ok := r.memberships.Load(id)
	if !ok {
		return nil
	}
	ms := value.(*membership)

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.deleted {
		return nil
	}
	groups := make([]domain.GroupID, 0, len(ms.groups))
	for groupID := range ms.groups {
		groups = append(groups, groupID)
	}
	slices.Sort(groups)
	return groups
}

// Len returns the number of connections with at least one membership.
func (r *Registry[M]) Len() int {
	n := 0
	r.memberships.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// lockMembership returns the live membership record for id, locked.
func (r *Registry[M]) lockMembership(id domain.ConnectionID) *membership {
	for {
		value, _ := r.memberships.LoadOrStore(id, &membership{groups: make(map[domain.GroupID]struct{})})
		ms := value.(*membership)
		ms.mu.Lock()
		if !ms.deleted {
			return ms
		}
		ms.mu.Unlock()
	}
}

// dropIfEmpty retires a membership record with no groups. Caller holds ms.mu.
func (r *Registry[M]) dropIfEmpty(id domain.ConnectionID, ms *membership) {
	if len(ms.groups) > 0 {
		return
	}
	ms.deleted = true
	r.memberships.CompareAndDelete(id, ms)
}

func (r *Registry[M]) loadOrCreateGroup(groupID domain.GroupID) *group[M] {
	if value, ok := r.groups.Load(groupID); ok {
		return value.(*group[M])
	}
	value, _ := r.groups.LoadOrStore(groupID, &group[M]{index: make(map[domain.ConnectionID]struct{})})
	return value.(*group[M])
}

func (r *Registry[M]) removeFromGroup(groupID domain.GroupID, id domain.ConnectionID) {
	value, ok := r.groups.Load(groupID)
	if !ok {
		return
	}
	g := value.(*group[M])

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.index[id]; !exists {
		return
	}

	next := make([]M, 0, len(g.members)-1)
	for _, m := range g.members {
		if m.ID() != id {
			next = append(next, m)
		}
	}
	g.members = next
	delete(g.index, id)

	if len(g.members) == 0 {
		g.deleted = true
		r.groups.CompareAndDelete(groupID, g)
	}
}
