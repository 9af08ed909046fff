package memory

import (
	"context"
	"sync"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"
)

// CounterStore keeps counters in process. It is only shared by sessions of
// a single instance.
type CounterStore struct {
	mu     sync.Mutex
	values map[domain.CounterKey]int64
}

var _ ports.CounterStore = (*CounterStore)(nil)

// NewCounterStore returns an empty store.
func NewCounterStore() *CounterStore {
	return &CounterStore{
		values: make(map[domain.CounterKey]int64),
	}
}

// Increment adds one to key and returns the new value.
func (s *CounterStore) Increment(ctx context.Context, key domain.CounterKey) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key]++
	return s.values[key], nil
}

// Decrement subtracts one from key without going below zero.
func (s *CounterStore) Decrement(ctx context.Context, key domain.CounterKey) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.values[key] <= 0 {
		s.values[key] = 0
		return 0, nil
	}
	s.values[key]--
	return s.values[key], nil
}

// Get returns the value of key, 0 if it was never written.
func (s *CounterStore) Get(ctx context.Context, key domain.CounterKey) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key], nil
}

// Snapshot copies every non-zero counter.
func (s *CounterStore) Snapshot() map[domain.CounterKey]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[domain.CounterKey]int64, len(s.values))
	for k, v := range s.values {
		if v > 0 {
			out[k] = v
		}
	}
	return out
}

// Restore overwrites the given counters. Negative values are stored as 0.
func (s *CounterStore) Restore(values map[domain.CounterKey]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range values {
		s.values[k] = max(v, 0)
	}
}

// Ping always succeeds.
func (s *CounterStore) Ping(context.Context) error {
	return nil
}
