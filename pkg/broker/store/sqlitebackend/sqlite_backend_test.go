package sqlitebackend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jabolina/broker/pkg/broker"
)

func openTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestSQLiteBackendPutGet(t *testing.T) {
	b := openTestBackend(t)
	key := broker.NewString("k")
	require.NoError(t, b.Put(key, broker.NewCount(11), nil))

	v, err := b.Get(key)
	require.NoError(t, err)
	count, ok := v.AsCount()
	require.True(t, ok)
	assert.EqualValues(t, 11, count)
}

func TestSQLiteBackendGetMissingKey(t *testing.T) {
	b := openTestBackend(t)
	_, err := b.Get(broker.NewString("missing"))
	assert.ErrorIs(t, err, broker.ErrNoSuchKey)
}

func TestSQLiteBackendAddRemoveRoundTrip(t *testing.T) {
	b := openTestBackend(t)
	key := broker.NewString("counter")
	require.NoError(t, b.Add(key, broker.NewCount(10), nil))
	require.NoError(t, b.Remove(key, broker.NewCount(3), nil))

	v, err := b.Get(key)
	require.NoError(t, err)
	count, _ := v.AsCount()
	assert.EqualValues(t, 7, count)
}

func TestSQLiteBackendSnapshotAndRestore(t *testing.T) {
	src := openTestBackend(t)
	require.NoError(t, src.Put(broker.NewString("a"), broker.NewCount(1), nil))
	require.NoError(t, src.Put(broker.NewString("b"), broker.NewCount(2), nil))

	snap, err := src.Snapshot()
	require.NoError(t, err)
	assert.EqualValues(t, 2, snap.Len())

	dst := openTestBackend(t)
	require.NoError(t, dst.Restore(snap))
	size, err := dst.Size()
	require.NoError(t, err)
	assert.EqualValues(t, 2, size)
}

func TestSQLiteBackendClear(t *testing.T) {
	b := openTestBackend(t)
	require.NoError(t, b.Put(broker.NewString("a"), broker.NewCount(1), nil))
	require.NoError(t, b.Clear())
	size, err := b.Size()
	require.NoError(t, err)
	assert.EqualValues(t, 0, size)
}

func TestSQLiteBackendPersistsAcrossCursorReopen(t *testing.T) {
	path := t.TempDir() + "/store.db"
	b, err := Open(path)
	require.NoError(t, err)
	key := broker.NewString("durable")
	require.NoError(t, b.Put(key, broker.NewCount(42), nil))
	require.NoError(t, b.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	v, err := reopened.Get(key)
	require.NoError(t, err)
	count, _ := v.AsCount()
	assert.EqualValues(t, 42, count)
}
