package services

import (
	"sort"
	"sync"

	"livecast/internal/core/domain"
	"livecast/pkg/optimize"

	"go.uber.org/zap"
)

// JoinOutcome describes what one Join did, computed under a single lock.
type JoinOutcome struct {
	Count   int
	Changed bool

	Left      domain.RoomID
	LeftCount int
}

// RoomRegistry maps rooms to their member sessions. A session is a member
// of at most one room, and that room is always the session's CurrentRoom.
type RoomRegistry struct {
	mu    sync.Mutex
	rooms map[domain.RoomID]map[domain.SessionID]*domain.Session

	recipients *optimize.SlicePool[*domain.Session]
	logger     *zap.SugaredLogger
}

// NewRoomRegistry returns an empty registry.
func NewRoomRegistry(logger *zap.SugaredLogger) *RoomRegistry {
	return &RoomRegistry{
		rooms:      make(map[domain.RoomID]map[domain.SessionID]*domain.Session),
		recipients: optimize.NewSlicePool[*domain.Session](64),
		logger:     logger,
	}
}

// Join moves s into room, leaving its previous room first. Joining the
// room the session is already in changes nothing. Closed sessions are
// never added.
func (r *RoomRegistry) Join(room domain.RoomID, s *domain.Session) JoinOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.State() == domain.SessionDisconnected {
		return JoinOutcome{Count: len(r.rooms[room])}
	}

	var out JoinOutcome
	if prev, ok := s.CurrentRoom(); ok {
		if prev == room {
			return JoinOutcome{Count: len(r.rooms[room])}
		}
		out.Left = prev
		out.LeftCount = r.removeLocked(prev, s)
	}

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[domain.SessionID]*domain.Session)
		r.rooms[room] = members
	}
	members[s.ID] = s
	s.SetRoom(room)

	out.Count = len(members)
	out.Changed = true
	return out
}

// Leave removes s from room. It returns the remaining member count and
// whether s was a member. Leaving a room the session is not in is a no-op.
func (r *RoomRegistry) Leave(room domain.RoomID, s *domain.Session) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[room][s.ID]; !ok {
		return len(r.rooms[room]), false
	}
	return r.removeLocked(room, s), true
}

// Remove takes s out of whatever room it is in.
func (r *RoomRegistry) Remove(s *domain.Session) (domain.RoomID, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := s.CurrentRoom()
	if !ok {
		return "", 0, false
	}
	return room, r.removeLocked(room, s), true
}

func (r *RoomRegistry) removeLocked(room domain.RoomID, s *domain.Session) int {
	members := r.rooms[room]
	delete(members, s.ID)
	s.ClearRoom(room)

	if len(members) == 0 {
		delete(r.rooms, room)
		return 0
	}
	return len(members)
}

// MemberCount returns the number of sessions in room, 0 if it is unknown.
func (r *RoomRegistry) MemberCount(room domain.RoomID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[room])
}

// Contains reports whether the session is a member of room.
func (r *RoomRegistry) Contains(room domain.RoomID, id domain.SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rooms[room][id]
	return ok
}

// snapshot copies the members of room into a pooled slice. The caller
// returns it with r.recipients.Put.
func (r *RoomRegistry) snapshot(room domain.RoomID, exclude domain.SessionID) *[]*domain.Session {
	out := r.recipients.Get()

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.rooms[room] {
		if id == exclude {
			continue
		}
		*out = append(*out, s)
	}
	return out
}

// Broadcast sends payload to every member of room except exclude. The
// member list is copied under the lock and delivery happens outside it.
// A failed send is counted and skipped.
func (r *RoomRegistry) Broadcast(room domain.RoomID, payload []byte, exclude domain.SessionID) domain.DeliveryReport {
	var report domain.DeliveryReport
	recipients := r.snapshot(room, exclude)
	defer r.recipients.Put(recipients)

	for _, s := range *recipients {
		if err := s.Send(payload); err != nil {
			report.Failed++
			r.logger.Debugw("delivery failed",
				"room", room,
				"session_id", s.ID,
				"error", err,
			)
			continue
		}
		report.Delivered++
	}
	return report
}

// Rooms lists non-empty rooms ordered by id. Likes are left zero.
func (r *RoomRegistry) Rooms() []domain.RoomSnapshot {
	r.mu.Lock()
	out := make([]domain.RoomSnapshot, 0, len(r.rooms))
	for id, members := range r.rooms {
		out = append(out, domain.RoomSnapshot{ID: id, Members: len(members)})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
