package ports

import (
	"context"

	"livecast/internal/core/domain"
)

// CounterStore holds counters shared by every broadcaster instance.
// Increment and Decrement are atomic in the store itself; Decrement never
// takes a counter below zero. Get returns 0 for a counter never written.
type CounterStore interface {
	Increment(ctx context.Context, key domain.CounterKey) (int64, error)
	Decrement(ctx context.Context, key domain.CounterKey) (int64, error)
	Get(ctx context.Context, key domain.CounterKey) (int64, error)
}

// PresenceTracker counts room members across all instances.
type PresenceTracker interface {
	Join(ctx context.Context, room domain.RoomID, session domain.SessionID) (int64, error)
	Leave(ctx context.Context, room domain.RoomID, session domain.SessionID) (int64, error)
	Count(ctx context.Context, room domain.RoomID) (int64, error)
}

// RoomFanout relays room events between instances. Subscribe blocks until
// ctx is done; events published by this instance are not handed back.
type RoomFanout interface {
	Publish(ctx context.Context, event domain.RoomEvent) error
	Subscribe(ctx context.Context, handler func(domain.RoomEvent)) error
	Close() error
}

// HealthChecker reports whether a backing dependency is usable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
