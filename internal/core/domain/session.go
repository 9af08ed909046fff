package domain

import (
	"sync"
	"time"
)

type SessionID string

type SessionState int

const (
	SessionConnected SessionState = iota
	SessionInRoom
	SessionDisconnected
)

func (s SessionState) String() string {
	switch s {
	case SessionConnected:
		return "connected"
	case SessionInRoom:
		return "in_room"
	case SessionDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Transport delivers encoded frames to one client. Send must not block on
// the network.
type Transport interface {
	Send(payload []byte) error
	Close() error
}

// Session is one connected client. Room membership is changed only by the
// room registry, which holds its own lock while calling the setters here.
type Session struct {
	ID          SessionID
	ConnectedAt time.Time

	transport Transport

	mu       sync.RWMutex
	identity Identity
	room     RoomID
	closed   bool
}

func NewSession(id SessionID, identity Identity, transport Transport, connectedAt time.Time) *Session {
	return &Session{
		ID:          id,
		ConnectedAt: connectedAt,
		transport:   transport,
		identity:    identity,
	}
}

func (s *Session) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

func (s *Session) SetIdentity(identity Identity) {
	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()
}

// CurrentRoom returns the joined room, if any.
func (s *Session) CurrentRoom() (RoomID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room, s.room != ""
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.closed:
		return SessionDisconnected
	case s.room != "":
		return SessionInRoom
	default:
		return SessionConnected
	}
}

func (s *Session) SetRoom(room RoomID) {
	s.mu.Lock()
	s.room = room
	s.mu.Unlock()
}

// ClearRoom unsets the current room only when it equals room.
func (s *Session) ClearRoom(room RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room != room {
		return false
	}
	s.room = ""
	return true
}

// MarkClosed moves the session to its terminal state and returns false if
// it was already closed.
func (s *Session) MarkClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}

func (s *Session) Send(payload []byte) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrSessionClosed
	}
	return s.transport.Send(payload)
}

func (s *Session) Close() error {
	return s.transport.Close()
}
