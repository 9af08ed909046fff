package reliability

import (
	"context"
	"errors"
	"net"
	"syscall"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"
	"livecast/pkg/circuitbreaker"
	"livecast/pkg/retry"

	"go.uber.org/zap"
)

// CounterStoreWrapper retries counter operations and stops calling the
// store while it keeps failing. Increment and Decrement are not
// idempotent, so they are only retried when the store was never reached.
type CounterStoreWrapper struct {
	store       ports.CounterStore
	policy      retry.Policy
	writePolicy retry.Policy
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

var _ ports.CounterStore = (*CounterStoreWrapper)(nil)

func NewCounterStoreWrapper(
	store ports.CounterStore,
	policy retry.Policy,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *CounterStoreWrapper {
	// An open circuit fails fast; retrying it only adds latency.
	policy.Permanent = append(policy.Permanent, circuitbreaker.ErrOpen, context.Canceled)

	writePolicy := policy
	writePolicy.Retryable = notDelivered

	w := &CounterStoreWrapper{
		store:       store,
		policy:      policy,
		writePolicy: writePolicy,
		breaker:     circuitbreaker.New(cbConfig),
		logger:      logger,
	}
	w.breaker.OnStateChange(func(name string, from, to circuitbreaker.State) {
		logger.Warnw("circuit breaker state changed",
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
		)
	})
	return w
}

// notDelivered reports errors raised before a command could reach the
// store. A timeout or a dropped connection after the write was sent may
// still have applied it.
func notDelivered(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func (w *CounterStoreWrapper) call(ctx context.Context, policy retry.Policy, op func(context.Context) (int64, error)) (int64, error) {
	return retry.DoValue(ctx, policy, func(ctx context.Context) (int64, error) {
		var v int64
		err := w.breaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			v, err = op(ctx)
			return err
		})
		return v, err
	})
}

func (w *CounterStoreWrapper) Increment(ctx context.Context, key domain.CounterKey) (int64, error) {
	return w.call(ctx, w.writePolicy, func(ctx context.Context) (int64, error) {
		return w.store.Increment(ctx, key)
	})
}

func (w *CounterStoreWrapper) Decrement(ctx context.Context, key domain.CounterKey) (int64, error) {
	return w.call(ctx, w.writePolicy, func(ctx context.Context) (int64, error) {
		return w.store.Decrement(ctx, key)
	})
}

func (w *CounterStoreWrapper) Get(ctx context.Context, key domain.CounterKey) (int64, error) {
	return w.call(ctx, w.policy, func(ctx context.Context) (int64, error) {
		return w.store.Get(ctx, key)
	})
}

func (w *CounterStoreWrapper) BreakerState() circuitbreaker.State {
	return w.breaker.State()
}
