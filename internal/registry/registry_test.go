package registry

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/ironledgerdev/myBusApp/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMember struct {
	id     domain.ConnectionID
	closed atomic.Bool
}

func newFakeMember() *fakeMember {
	return &fakeMember{id: uuid.New()}
}

func (m *fakeMember) ID() domain.ConnectionID { return m.id }
func (m *fakeMember) Closed() bool            { return m.closed.Load() }

func ids(members []*fakeMember) []domain.ConnectionID {
	out := make([]domain.ConnectionID, 0, len(members))
	for _, m := range members {
		out = append(out, m.id)
	}
	return out
}

func TestRegistry_JoinAndSnapshot(t *testing.T) {
	r := New[*fakeMember]()
	a, b := newFakeMember(), newFakeMember()

	_, err := r.Join(domain.DefaultGroup, a)
	require.NoError(t, err)
	_, err = r.Join(domain.DefaultGroup, b)
	require.NoError(t, err)

	assert.Equal(t, []domain.ConnectionID{a.id, b.id}, ids(r.Snapshot(domain.DefaultGroup)))
	assert.Equal(t, 2, r.Count(domain.DefaultGroup))
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_DuplicateJoinRejected(t *testing.T) {
	r := New[*fakeMember]()
	a := newFakeMember()

	_, err := r.Join(domain.DefaultGroup, a)
	require.NoError(t, err)

	_, err = r.Join(domain.DefaultGroup, a)
	assert.ErrorIs(t, err, domain.ErrAlreadyRegistered)
	assert.Len(t, r.Snapshot(domain.DefaultGroup), 1)
}

func TestRegistry_SameConnectionManyGroups(t *testing.T) {
	r := New[*fakeMember]()
	a := newFakeMember()

	_, err := r.Join("buses", a)
	require.NoError(t, err)
	_, err = r.Join("route:R1", a)
	require.NoError(t, err)

	assert.Equal(t, []domain.GroupID{"buses", "route:R1"}, r.GroupsOf(a.id))
	assert.Equal(t, map[domain.GroupID]int{"buses": 1, "route:R1": 1}, r.Groups())
}

func TestRegistry_JoinClosedMemberRejected(t *testing.T) {
	r := New[*fakeMember]()
	a := newFakeMember()
	a.closed.Store(true)

	_, err := r.Join(domain.DefaultGroup, a)
	assert.ErrorIs(t, err, domain.ErrConnectionClosed)
	assert.Empty(t, r.Snapshot(domain.DefaultGroup))
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_LeaveAbsentIsNoop(t *testing.T) {
	r := New[*fakeMember]()
	a := newFakeMember()

	assert.NotPanics(t, func() {
		r.Leave(domain.DefaultGroup, a.id)
		r.Leave("nowhere", uuid.New())
	})

	_, err := r.Join(domain.DefaultGroup, a)
	require.NoError(t, err)
	r.Leave("other", a.id)

	assert.Len(t, r.Snapshot(domain.DefaultGroup), 1)
}

func TestRegistry_LeaveThenRejoin(t *testing.T) {
	r := New[*fakeMember]()
	a := newFakeMember()

	_, err := r.Join(domain.DefaultGroup, a)
	require.NoError(t, err)
	r.Leave(domain.DefaultGroup, a.id)
	assert.Empty(t, r.Snapshot(domain.DefaultGroup))
	assert.Empty(t, r.Groups())

	_, err = r.Join(domain.DefaultGroup, a)
	require.NoError(t, err)
	assert.Len(t, r.Snapshot(domain.DefaultGroup), 1)
}

func TestRegistry_UnknownGroupIsEmpty(t *testing.T) {
	r := New[*fakeMember]()

	assert.Empty(t, r.Snapshot("ghost"))
	assert.Equal(t, 0, r.Count("ghost"))
	assert.Nil(t, r.GroupsOf(uuid.New()))
}

func TestRegistry_RemoveEverywhere(t *testing.T) {
	r := New[*fakeMember]()
	a, b := newFakeMember(), newFakeMember()

	for _, g := range []domain.GroupID{"buses", "route:R1", "route:R2"} {
		_, err := r.Join(g, a)
		require.NoError(t, err)
	}
	_, err := r.Join("buses", b)
	require.NoError(t, err)

	r.RemoveEverywhere(a.id)

	assert.Equal(t, []domain.ConnectionID{b.id}, ids(r.Snapshot("buses")))
	assert.Empty(t, r.Snapshot("route:R1"))
	assert.Empty(t, r.Snapshot("route:R2"))
	assert.Nil(t, r.GroupsOf(a.id))
	assert.Equal(t, map[domain.GroupID]int{"buses": 1}, r.Groups())

	assert.NotPanics(t, func() { r.RemoveEverywhere(a.id) })
	assert.NotPanics(t, func() { r.RemoveEverywhere(uuid.New()) })
}

func TestRegistry_SnapshotIsPointInTime(t *testing.T) {
	r := New[*fakeMember]()
	a, b, c := newFakeMember(), newFakeMember(), newFakeMember()

	_, _ = r.Join(domain.DefaultGroup, a)
	_, _ = r.Join(domain.DefaultGroup, b)

	snapshot := r.Snapshot(domain.DefaultGroup)

	_, _ = r.Join(domain.DefaultGroup, c)
	r.Leave(domain.DefaultGroup, a.id)

	assert.Equal(t, []domain.ConnectionID{a.id, b.id}, ids(snapshot))
	assert.Equal(t, []domain.ConnectionID{b.id, c.id}, ids(r.Snapshot(domain.DefaultGroup)))
}

func TestRegistry_NetMembershipAfterRandomSequence(t *testing.T) {
	r := New[*fakeMember]()
	rng := rand.New(rand.NewSource(42))

	pool := make([]*fakeMember, 20)
	for i := range pool {
		pool[i] = newFakeMember()
	}
	expected := make(map[domain.ConnectionID]bool)

	for range 2000 {
		m := pool[rng.Intn(len(pool))]
		switch rng.Intn(3) {
		case 0, 1:
			_, err := r.Join(domain.DefaultGroup, m)
			if expected[m.id] {
				require.ErrorIs(t, err, domain.ErrAlreadyRegistered)
			} else {
				require.NoError(t, err)
				expected[m.id] = true
			}
		case 2:
			r.Leave(domain.DefaultGroup, m.id)
			delete(expected, m.id)
		}
	}

	snapshot := ids(r.Snapshot(domain.DefaultGroup))
	seen := make(map[domain.ConnectionID]bool)
	for _, id := range snapshot {
		assert.False(t, seen[id], "duplicate member %s", id)
		seen[id] = true
	}
	assert.Equal(t, expected, seen)
}

func TestRegistry_ConcurrentJoinLeave(t *testing.T) {
	r := New[*fakeMember]()
	groups := []domain.GroupID{"buses", "route:R1", "route:R2", "route:R3"}

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := newFakeMember()
			g := groups[i%len(groups)]
			for range 100 {
				_, _ = r.Join(g, m)
				_ = r.Snapshot(g)
				r.Leave(g, m.id)
			}
			_, _ = r.Join("buses", m)
			if i%2 == 0 {
				r.RemoveEverywhere(m.id)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 25, r.Count("buses"))
	assert.Equal(t, 25, r.Len())
	for _, g := range groups[1:] {
		assert.Empty(t, r.Snapshot(g))
	}
}

func TestRegistry_JoinRacingRemoveEverywhere(t *testing.T) {
	for range 200 {
		r := New[*fakeMember]()
		m := newFakeMember()
		_, err := r.Join("buses", m)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = r.Join("route:R1", m)
		}()
		go func() {
			defer wg.Done()
			m.closed.Store(true)
			r.RemoveEverywhere(m.id)
		}()
		wg.Wait()

		assert.Empty(t, r.Snapshot("buses"))
		assert.Empty(t, r.Snapshot("route:R1"), "closed member must not survive teardown")
	}
}
