package distributed

import (
	"context"
	"testing"
	"time"

	"livecast/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTracker(t *testing.T, mr *miniredis.Miniredis, id string) *PresenceTracker {
	t.Helper()
	return NewPresenceTracker(newClient(t, mr), id, time.Second, 3*time.Second, logger.Nop())
}

func TestPresenceTracker_CountsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	a := newTracker(t, mr, "a")
	b := newTracker(t, mr, "b")

	n, err := a.Join(ctx, "s1", "session-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = b.Join(ctx, "s1", "session-2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Same session id on another instance is a different member.
	n, err = b.Join(ctx, "s1", "session-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = a.Join(ctx, "s1", "session-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "rejoin is idempotent")

	n, err = a.Leave(ctx, "s1", "session-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = b.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = a.Count(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestPresenceTracker_ReapsExpiredInstance(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	a := newTracker(t, mr, "a")
	b := newTracker(t, mr, "b")

	require.NoError(t, a.Beat(ctx))
	require.NoError(t, b.Beat(ctx))
	_, err := a.Join(ctx, "s1", "session-1")
	require.NoError(t, err)
	_, err = a.Join(ctx, "s2", "session-2")
	require.NoError(t, err)
	_, err = b.Join(ctx, "s1", "session-3")
	require.NoError(t, err)

	removed, err := b.Reap(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed, "both instances alive")

	// a stops beating; b keeps going.
	mr.FastForward(4 * time.Second)
	require.NoError(t, b.Beat(ctx))

	removed, err = b.Reap(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	n, _ := b.Count(ctx, "s1")
	assert.Equal(t, int64(1), n)
	n, _ = b.Count(ctx, "s2")
	assert.Equal(t, int64(0), n)

	members, err := mr.SMembers(instancesKey())
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, members)
}

func TestPresenceTracker_BeatRestoresReapedMembers(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	a := newTracker(t, mr, "a")
	b := newTracker(t, mr, "b")

	require.NoError(t, a.Beat(ctx))
	_, err := a.Join(ctx, "s1", "session-1")
	require.NoError(t, err)
	_, err = a.Join(ctx, "s1", "session-2")
	require.NoError(t, err)
	_, err = a.Leave(ctx, "s1", "session-2")
	require.NoError(t, err)

	// a misses its heartbeats long enough for b to reap it.
	mr.FastForward(4 * time.Second)
	require.NoError(t, b.Beat(ctx))
	removed, err := b.Reap(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	n, err := b.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	require.NoError(t, a.Beat(ctx))

	n, err = b.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "session-1 is back, session-2 stays gone")

	// The restored member is owned by a again, so a later withdraw clears it.
	require.NoError(t, a.Withdraw(ctx))
	n, err = b.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestPresenceTracker_ReapSkippedWhileLockHeld(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	a := newTracker(t, mr, "a")

	held, err := a.locks.NewLock(reaperLockKey, time.Minute).TryLock(ctx)
	require.NoError(t, err)
	require.True(t, held)

	_, err = a.Join(ctx, "s1", "session-1")
	require.NoError(t, err)
	_, err = mr.SetAdd(instancesKey(), "a")
	require.NoError(t, err)

	removed, err := a.Reap(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestPresenceTracker_Withdraw(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	a := newTracker(t, mr, "a")
	b := newTracker(t, mr, "b")

	_, _ = a.Join(ctx, "s1", "session-1")
	_, _ = b.Join(ctx, "s1", "session-2")

	require.NoError(t, a.Withdraw(ctx))

	n, err := b.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPresenceTracker_RunWithdrawsOnStop(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newTracker(t, mr, "a")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Run(ctx)
	}()

	assert.Eventually(t, func() bool { return mr.Exists(instanceKey("a")) }, time.Second, 10*time.Millisecond)
	_, err := a.Join(context.Background(), "s1", "session-1")
	require.NoError(t, err)

	cancel()
	<-done

	n, err := a.Count(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.False(t, mr.Exists(instanceKey("a")))
}
