package reliability

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"
	"time"

	"livecast/internal/core/domain"
	"livecast/pkg/circuitbreaker"
	"livecast/pkg/logger"
	"livecast/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend down")

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

func testPolicy(attempts int) retry.Policy {
	return retry.Policy{
		Attempts:     attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1,
	}
}

func testBreaker(failures int) circuitbreaker.Config {
	cfg := circuitbreaker.DefaultConfig("counters")
	cfg.FailureThreshold = failures
	cfg.OpenTimeout = time.Minute
	return cfg
}

var errDial = &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}

func TestCounterStoreWrapper_RetriesTransientFailure(t *testing.T) {
	store := &mockCounterStore{}
	key := domain.LikesKey("s1")
	store.On("Get", mock.Anything, key).Return(int64(0), errBackend).Once()
	store.On("Get", mock.Anything, key).Return(int64(1), nil).Once()

	w := NewCounterStoreWrapper(store, testPolicy(1), testBreaker(5), logger.Nop())

	v, err := w.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	store.AssertExpectations(t)
}

func TestCounterStoreWrapper_GivesUpAfterPolicy(t *testing.T) {
	store := &mockCounterStore{}
	key := domain.LikesKey("s1")
	store.On("Decrement", mock.Anything, key).Return(int64(0), errDial).Times(2)

	w := NewCounterStoreWrapper(store, testPolicy(1), testBreaker(5), logger.Nop())

	_, err := w.Decrement(context.Background(), key)
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
	store.AssertNumberOfCalls(t, "Decrement", 2)
}

func TestCounterStoreWrapper_RetriesWriteThatNeverConnected(t *testing.T) {
	store := &mockCounterStore{}
	key := domain.LikesKey("s1")
	store.On("Increment", mock.Anything, key).Return(int64(0), errDial).Once()
	store.On("Increment", mock.Anything, key).Return(int64(1), nil).Once()

	w := NewCounterStoreWrapper(store, testPolicy(1), testBreaker(5), logger.Nop())

	v, err := w.Increment(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	store.AssertExpectations(t)
}

// appliedThenTimeout applies every increment but reports a timeout for
// the first one, like a reply lost after the server ran the command.
type appliedThenTimeout struct {
	mockCounterStore
	value int64
	calls int
}

func (s *appliedThenTimeout) Increment(ctx context.Context, key domain.CounterKey) (int64, error) {
	s.calls++
	s.value++
	if s.calls == 1 {
		return 0, context.DeadlineExceeded
	}
	return s.value, nil
}

func TestCounterStoreWrapper_DoesNotRetryAmbiguousWrite(t *testing.T) {
	store := &appliedThenTimeout{}
	key := domain.LikesKey("s1")

	w := NewCounterStoreWrapper(store, testPolicy(3), testBreaker(5), logger.Nop())

	_, err := w.Increment(context.Background(), key)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, int64(1), store.value, "increment applied exactly once")
}

func TestCounterStoreWrapper_DoesNotRetryFailedDecrement(t *testing.T) {
	store := &mockCounterStore{}
	key := domain.LikesKey("s1")
	store.On("Decrement", mock.Anything, key).Return(int64(0), errBackend).Once()

	w := NewCounterStoreWrapper(store, testPolicy(2), testBreaker(5), logger.Nop())

	_, err := w.Decrement(context.Background(), key)
	assert.ErrorIs(t, err, errBackend)
	store.AssertNumberOfCalls(t, "Decrement", 1)
}

func TestCounterStoreWrapper_OpenCircuitFailsFast(t *testing.T) {
	store := &mockCounterStore{}
	key := domain.LikesKey("s1")
	store.On("Get", mock.Anything, key).Return(int64(0), errBackend)

	w := NewCounterStoreWrapper(store, testPolicy(0), testBreaker(2), logger.Nop())
	ctx := context.Background()

	_, _ = w.Get(ctx, key)
	_, _ = w.Get(ctx, key)
	assert.Equal(t, circuitbreaker.StateOpen, w.BreakerState())

	_, err := w.Get(ctx, key)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	store.AssertNumberOfCalls(t, "Get", 2)
}
