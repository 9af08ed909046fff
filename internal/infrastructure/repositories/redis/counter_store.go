package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"
	"livecast/pkg/tracing"

	"github.com/redis/go-redis/v9"
)

// decrementScript lowers a counter without letting it go negative.
var decrementScript = redis.NewScript(`
local v = tonumber(redis.call("GET", KEYS[1]) or "0")
if v <= 0 then
	redis.call("SET", KEYS[1], 0)
	return 0
end
return redis.call("DECR", KEYS[1])
`)

// CounterStore keeps counters in Redis so every instance sees the same
// values. Each call is bounded by timeout.
type CounterStore struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

var _ ports.CounterStore = (*CounterStore)(nil)

// NewCounterStore stores counters under prefix. Every call is bounded by
// timeout.
func NewCounterStore(client redis.UniversalClient, prefix string, timeout time.Duration) *CounterStore {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &CounterStore{
		client:  client,
		prefix:  prefix,
		timeout: timeout,
	}
}

func (s *CounterStore) redisKey(key domain.CounterKey) string {
	return s.prefix + key.String()
}

// Increment runs INCR on the counter key.
func (s *CounterStore) Increment(ctx context.Context, key domain.CounterKey) (int64, error) {
	ctx, span := tracing.TraceCounterOp(ctx, "increment", key.String())
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	v, err := s.client.Incr(ctx, s.redisKey(key)).Result()
	if err != nil {
		tracing.RecordError(ctx, err)
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	return v, nil
}

// Decrement runs the clamping Lua script so the value never drops below 0.
func (s *CounterStore) Decrement(ctx context.Context, key domain.CounterKey) (int64, error) {
	ctx, span := tracing.TraceCounterOp(ctx, "decrement", key.String())
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	v, err := decrementScript.Run(ctx, s.client, []string{s.redisKey(key)}).Int64()
	if err != nil {
		tracing.RecordError(ctx, err)
		return 0, fmt.Errorf("decrement %s: %w", key, err)
	}
	return v, nil
}

// Get returns 0 for a counter that does not exist yet.
func (s *CounterStore) Get(ctx context.Context, key domain.CounterKey) (int64, error) {
	ctx, span := tracing.TraceCounterOp(ctx, "get", key.String())
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	v, err := s.client.Get(ctx, s.redisKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

// Ping checks the Redis connection.
func (s *CounterStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}
