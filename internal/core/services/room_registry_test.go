package services

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"livecast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// assertMembership checks that every session is in exactly the room it
// reports, and nowhere else.
func assertMembership(t *testing.T, r *RoomRegistry, sessions ...*domain.Session) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range sessions {
		current, inRoom := s.CurrentRoom()
		found := 0
		for room, members := range r.rooms {
			if _, ok := members[s.ID]; ok {
				found++
				assert.True(t, inRoom, "session %s is in %s but reports no room", s.ID, room)
				assert.Equal(t, current, room, "session %s room mismatch", s.ID)
			}
		}
		if inRoom {
			assert.Equal(t, 1, found, "session %s should be in exactly one room", s.ID)
		} else {
			assert.Equal(t, 0, found, "session %s should be in no room", s.ID)
		}
	}
	for room, members := range r.rooms {
		assert.NotEmpty(t, members, "empty room %s should have been removed", room)
	}
}

func TestRoomRegistry_JoinAndCount(t *testing.T) {
	r := NewRoomRegistry(zap.NewNop().Sugar())
	a, _ := newTestSession("a")
	b, _ := newTestSession("b")

	assert.Equal(t, 0, r.MemberCount("s1"))

	out := r.Join("s1", a)
	assert.Equal(t, JoinOutcome{Count: 1, Changed: true}, out)
	out = r.Join("s1", b)
	assert.Equal(t, 2, out.Count)

	assert.Equal(t, 2, r.MemberCount("s1"))
	assertMembership(t, r, a, b)
}

func TestRoomRegistry_JoinIsIdempotent(t *testing.T) {
	r := NewRoomRegistry(zap.NewNop().Sugar())
	a, _ := newTestSession("a")

	r.Join("s1", a)
	out := r.Join("s1", a)

	assert.False(t, out.Changed)
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, 1, r.MemberCount("s1"))
	room, ok := a.CurrentRoom()
	assert.True(t, ok)
	assert.Equal(t, domain.RoomID("s1"), room)
	assertMembership(t, r, a)
}

func TestRoomRegistry_JoinLeaveRoundTrip(t *testing.T) {
	r := NewRoomRegistry(zap.NewNop().Sugar())
	a, _ := newTestSession("a")
	b, _ := newTestSession("b")
	r.Join("s1", b)
	before := r.MemberCount("s1")

	r.Join("s1", a)
	count, left := r.Leave("s1", a)

	assert.True(t, left)
	assert.Equal(t, before, count)
	assert.Equal(t, before, r.MemberCount("s1"))
	_, inRoom := a.CurrentRoom()
	assert.False(t, inRoom)
	assert.Equal(t, domain.SessionConnected, a.State())
	assertMembership(t, r, a, b)
}

func TestRoomRegistry_JoinImplicitlyLeavesPreviousRoom(t *testing.T) {
	r := NewRoomRegistry(zap.NewNop().Sugar())
	a, _ := newTestSession("a")
	b, _ := newTestSession("b")
	r.Join("s1", a)
	r.Join("s1", b)

	out := r.Join("s2", a)

	assert.Equal(t, JoinOutcome{Count: 1, Changed: true, Left: "s1", LeftCount: 1}, out)
	assert.False(t, r.Contains("s1", a.ID))
	assert.True(t, r.Contains("s2", a.ID))
	assertMembership(t, r, a, b)
}

func TestRoomRegistry_LeaveWrongRoomIsNoop(t *testing.T) {
	r := NewRoomRegistry(zap.NewNop().Sugar())
	a, _ := newTestSession("a")
	r.Join("s1", a)

	count, left := r.Leave("s2", a)

	assert.False(t, left)
	assert.Equal(t, 0, count)
	room, ok := a.CurrentRoom()
	assert.True(t, ok)
	assert.Equal(t, domain.RoomID("s1"), room)
	assertMembership(t, r, a)
}

func TestRoomRegistry_EmptyRoomIsRemoved(t *testing.T) {
	r := NewRoomRegistry(zap.NewNop().Sugar())
	a, _ := newTestSession("a")
	r.Join("s1", a)

	room, count, ok := r.Remove(a)

	assert.True(t, ok)
	assert.Equal(t, domain.RoomID("s1"), room)
	assert.Equal(t, 0, count)
	assert.Empty(t, r.Rooms())

	_, _, ok = r.Remove(a)
	assert.False(t, ok)
}

func TestRoomRegistry_ClosedSessionIsNotAdded(t *testing.T) {
	r := NewRoomRegistry(zap.NewNop().Sugar())
	a, _ := newTestSession("a")
	a.MarkClosed()

	out := r.Join("s1", a)

	assert.False(t, out.Changed)
	assert.Equal(t, 0, r.MemberCount("s1"))
}

func TestRoomRegistry_BroadcastSkipsExcludedAndFailed(t *testing.T) {
	r := NewRoomRegistry(zap.NewNop().Sugar())
	a, ta := newTestSession("a")
	b, tb := newTestSession("b")
	c, tc := newTestSession("c")
	d, td := newTestSession("d")
	tc.fail = true
	r.Join("s1", a)
	r.Join("s1", b)
	r.Join("s1", c)
	r.Join("s2", d)

	report := r.Broadcast("s1", []byte("hello"), a.ID)

	assert.Equal(t, domain.DeliveryReport{Delivered: 1, Failed: 1}, report)
	assert.Empty(t, ta.Frames())
	assert.Equal(t, []string{"hello"}, tb.Frames())
	assert.Empty(t, td.Frames())
}

func TestRoomRegistry_BroadcastToMissingRoom(t *testing.T) {
	r := NewRoomRegistry(zap.NewNop().Sugar())
	assert.Equal(t, domain.DeliveryReport{}, r.Broadcast("nowhere", []byte("x"), ""))
}

func TestRoomRegistry_RoomsSorted(t *testing.T) {
	r := NewRoomRegistry(zap.NewNop().Sugar())
	for i, room := range []domain.RoomID{"zeta", "alpha", "alpha", "mid"} {
		s, _ := newTestSession(fmt.Sprintf("s%d", i))
		r.Join(room, s)
	}

	assert.Equal(t, []domain.RoomSnapshot{
		{ID: "alpha", Members: 2},
		{ID: "mid", Members: 1},
		{ID: "zeta", Members: 1},
	}, r.Rooms())
}

func TestRoomRegistry_ConcurrentMovesKeepInvariant(t *testing.T) {
	r := NewRoomRegistry(zap.NewNop().Sugar())
	rooms := []domain.RoomID{"s1", "s2", "s3"}

	sessions := make([]*domain.Session, 20)
	for i := range sessions {
		sessions[i], _ = newTestSession(fmt.Sprintf("sess-%d", i))
	}

	var wg sync.WaitGroup
	for i, s := range sessions {
		wg.Add(1)
		go func(seed int64, s *domain.Session) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for j := 0; j < 200; j++ {
				room := rooms[rng.Intn(len(rooms))]
				switch rng.Intn(3) {
				case 0, 1:
					r.Join(room, s)
				default:
					r.Leave(room, s)
				}
				r.Broadcast(room, []byte("tick"), "")
			}
		}(int64(i), s)
	}
	wg.Wait()

	assertMembership(t, r, sessions...)

	total := 0
	for _, snap := range r.Rooms() {
		total += snap.Members
	}
	inRoom := 0
	for _, s := range sessions {
		if _, ok := s.CurrentRoom(); ok {
			inRoom++
		}
	}
	require.Equal(t, inRoom, total)
}
