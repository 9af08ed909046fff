package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"livecast/internal/core/domain"

	"github.com/stretchr/testify/mock"
)

var errTransportClosed = errors.New("transport closed")

type fakeTransport struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	fail   bool
}

func (t *fakeTransport) Send(payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.fail {
		return errTransportClosed
	}
	t.frames = append(t.frames, payload)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Frames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.frames))
	for i, f := range t.frames {
		out[i] = string(f)
	}
	return out
}

func (t *fakeTransport) Reset() {
	t.mu.Lock()
	t.frames = nil
	t.mu.Unlock()
}

func (t *fakeTransport) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// textEncoder renders frames as short strings so assertions stay readable.
type textEncoder struct{}

func (textEncoder) OnlineCount(room domain.RoomID, count int64) ([]byte, error) {
	return []byte(fmt.Sprintf("online_count %s %d", room, count)), nil
}

func (textEncoder) ChatMessage(msg *domain.ChatMessage) ([]byte, error) {
	return []byte(fmt.Sprintf("chat_message %s %s: %s", msg.RoomID, msg.Username, msg.Content)), nil
}

func (textEncoder) LikeCount(room domain.RoomID, count int64) ([]byte, error) {
	return []byte(fmt.Sprintf("like %s %d", room, count)), nil
}

type mapCounterStore struct {
	mu     sync.Mutex
	values map[domain.CounterKey]int64
}

func newMapCounterStore() *mapCounterStore {
	return &mapCounterStore{values: make(map[domain.CounterKey]int64)}
}

func (s *mapCounterStore) Increment(_ context.Context, key domain.CounterKey) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key]++
	return s.values[key], nil
}

func (s *mapCounterStore) Decrement(_ context.Context, key domain.CounterKey) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values[key] > 0 {
		s.values[key]--
	}
	return s.values[key], nil
}

func (s *mapCounterStore) Get(_ context.Context, key domain.CounterKey) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key], nil
}

type mockCounterStore struct {
	mock.Mock
}

func (m *mockCounterStore) Increment(ctx context.Context, key domain.CounterKey) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockCounterStore) Decrement(ctx context.Context, key domain.CounterKey) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockCounterStore) Get(ctx context.Context, key domain.CounterKey) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

type mockPresence struct {
	mock.Mock
}

func (m *mockPresence) Join(ctx context.Context, room domain.RoomID, id domain.SessionID) (int64, error) {
	args := m.Called(ctx, room, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockPresence) Leave(ctx context.Context, room domain.RoomID, id domain.SessionID) (int64, error) {
	args := m.Called(ctx, room, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockPresence) Count(ctx context.Context, room domain.RoomID) (int64, error) {
	args := m.Called(ctx, room)
	return args.Get(0).(int64), args.Error(1)
}

type recordingFanout struct {
	mu     sync.Mutex
	events []domain.RoomEvent
}

func (f *recordingFanout) Publish(_ context.Context, event domain.RoomEvent) error {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
	return nil
}

func (f *recordingFanout) Subscribe(ctx context.Context, _ func(domain.RoomEvent)) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *recordingFanout) Close() error { return nil }

func (f *recordingFanout) Types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Type
	}
	return out
}

func newTestSession(id string) (*domain.Session, *fakeTransport) {
	t := &fakeTransport{}
	return domain.NewSession(domain.SessionID(id), domain.Identity{UserID: domain.UserID(id), Username: id}, t, time.Now()), t
}
