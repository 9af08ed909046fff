package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	storage, err := NewFileStorage(dir)
	require.NoError(t, err)
	return NewService(storage), dir
}

// steppedClock advances one second per call so snapshot names differ.
func steppedClock(start time.Time) func() time.Time {
	next := start
	return func() time.Time {
		now := next
		next = next.Add(time.Second)
		return now
	}
}

func TestService_CreateAndLoad(t *testing.T) {
	ctx := context.Background()
	service, dir := newTestService(t)
	service.now = steppedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	name, err := service.Create(ctx, &Snapshot{
		InstanceID: "i-1",
		Counters:   map[string]int64{"likes:r1": 3},
	})
	require.NoError(t, err)
	assert.Equal(t, "snapshot-20260301-120000.000.json", name)

	_, err = os.Stat(filepath.Join(dir, name))
	require.NoError(t, err)

	snap, err := service.Load(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, snap.Version)
	assert.Equal(t, "i-1", snap.InstanceID)
	assert.Equal(t, int64(3), snap.Counters["likes:r1"])
	assert.True(t, snap.Timestamp.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func TestService_LatestAndPrune(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	service.now = steppedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	_, _, err := service.Latest(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshots)

	for i := int64(1); i <= 4; i++ {
		_, err := service.Create(ctx, &Snapshot{Counters: map[string]int64{"likes:r1": i}})
		require.NoError(t, err)
	}

	snap, name, err := service.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "snapshot-20260301-120003.000.json", name)
	assert.Equal(t, int64(4), snap.Counters["likes:r1"])

	removed, err := service.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	names, err := service.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"snapshot-20260301-120002.000.json",
		"snapshot-20260301-120003.000.json",
	}, names)
}

func TestService_LoadRejectsUnknownVersion(t *testing.T) {
	ctx := context.Background()
	service, dir := newTestService(t)

	name := "snapshot-20260301-120000.000.json"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(`{"version":99,"counters":{}}`), 0o600))

	_, err := service.Load(ctx, name)
	assert.Error(t, err)
}

func TestService_ListIgnoresOtherFiles(t *testing.T) {
	ctx := context.Background()
	service, dir := newTestService(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "snapshot-partial"), []byte("x"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "snapshot-dir.json"), 0o755))

	names, err := service.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestFileStorage_RejectsPathTraversal(t *testing.T) {
	ctx := context.Background()
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", "../escape.json", "a/b.json", ".hidden"} {
		_, err := storage.Load(ctx, name)
		assert.Error(t, err, name)
		assert.Error(t, storage.Delete(ctx, name), name)
	}
}

func TestFileStorage_NoTempFilesLeft(t *testing.T) {
	ctx := context.Background()
	service, dir := newTestService(t)

	_, err := service.Create(ctx, &Snapshot{})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Name(), ".tmp-")
}
