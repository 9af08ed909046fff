package distributed

import (
	"context"
	"sync"
	"testing"
	"time"

	"livecast/internal/core/domain"
	"livecast/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventSink struct {
	mu     sync.Mutex
	events []domain.RoomEvent
}

func (s *eventSink) handle(e domain.RoomEvent) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *eventSink) snapshot() []domain.RoomEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.RoomEvent(nil), s.events...)
}

func newClient(t *testing.T, mr *miniredis.Miniredis) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func startBus(t *testing.T, bus *EventBus, sink *eventSink) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bus.Subscribe(ctx, sink.handle)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-bus.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not confirmed")
	}
}

func TestEventBus_RelaysToOtherInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	a := NewEventBus(newClient(t, mr), "instance-a", "test:rooms", logger.Nop())
	b := NewEventBus(newClient(t, mr), "instance-b", "test:rooms", logger.Nop())

	sinkA, sinkB := &eventSink{}, &eventSink{}
	startBus(t, a, sinkA)
	startBus(t, b, sinkB)

	event := domain.RoomEvent{
		Room:    "s1",
		Type:    "chat_message",
		Exclude: "session-1",
		Payload: []byte(`{"type":"chat_message"}`),
	}
	require.NoError(t, a.Publish(context.Background(), event))

	assert.Eventually(t, func() bool { return len(sinkB.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)

	got := sinkB.snapshot()[0]
	assert.Equal(t, "instance-a", got.Origin)
	assert.Equal(t, domain.RoomID("s1"), got.Room)
	assert.Equal(t, domain.SessionID("session-1"), got.Exclude)
	assert.JSONEq(t, `{"type":"chat_message"}`, string(got.Payload))

	// The publisher never hears its own event.
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sinkA.snapshot())
}

func TestEventBus_SubscribeTwice(t *testing.T) {
	mr := miniredis.RunT(t)
	bus := NewEventBus(newClient(t, mr), "instance-a", "test:rooms", logger.Nop())
	startBus(t, bus, &eventSink{})

	err := bus.Subscribe(context.Background(), func(domain.RoomEvent) {})
	assert.ErrorIs(t, err, ErrAlreadySubscribed)
}

func TestEventBus_IgnoresMalformedPayloads(t *testing.T) {
	mr := miniredis.RunT(t)
	client := newClient(t, mr)
	bus := NewEventBus(client, "instance-a", "test:rooms", logger.Nop())
	sink := &eventSink{}
	startBus(t, bus, sink)

	require.NoError(t, client.Publish(context.Background(), "test:rooms", "not json").Err())
	other := NewEventBus(client, "instance-b", "test:rooms", logger.Nop())
	require.NoError(t, other.Publish(context.Background(), domain.RoomEvent{Room: "s1", Type: "like"}))

	assert.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "like", sink.snapshot()[0].Type)
}
