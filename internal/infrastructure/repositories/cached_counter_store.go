package repositories

import (
	"context"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"
	"livecast/pkg/cache"
)

// CachedCounterStore serves Get from a short-lived cache. Writes go
// straight to the store and refresh the cached value with the result, so
// only changes made by other instances can be stale, for at most ttl.
type CachedCounterStore struct {
	store ports.CounterStore
	cache *cache.Cache[domain.CounterKey, int64]
}

var _ ports.CounterStore = (*CachedCounterStore)(nil)

func NewCachedCounterStore(store ports.CounterStore, ttl time.Duration) *CachedCounterStore {
	return &CachedCounterStore{
		store: store,
		cache: cache.New[domain.CounterKey, int64](ttl),
	}
}

func (s *CachedCounterStore) Increment(ctx context.Context, key domain.CounterKey) (int64, error) {
	v, err := s.store.Increment(ctx, key)
	s.remember(key, v, err)
	return v, err
}

func (s *CachedCounterStore) Decrement(ctx context.Context, key domain.CounterKey) (int64, error) {
	v, err := s.store.Decrement(ctx, key)
	s.remember(key, v, err)
	return v, err
}

func (s *CachedCounterStore) Get(ctx context.Context, key domain.CounterKey) (int64, error) {
	return s.cache.GetOrLoad(ctx, key, func(ctx context.Context) (int64, error) {
		return s.store.Get(ctx, key)
	})
}

func (s *CachedCounterStore) remember(key domain.CounterKey, v int64, err error) {
	if err != nil {
		s.cache.Delete(key)
		return
	}
	s.cache.Set(key, v)
}

func (s *CachedCounterStore) Close() {
	s.cache.Stop()
}
