package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jabolina/broker/pkg/broker"
)

func TestMemoryBackendPutGet(t *testing.T) {
	b := NewMemoryBackend(nil)
	key := broker.NewString("k")
	require.NoError(t, b.Put(key, broker.NewCount(1), nil))

	v, err := b.Get(key)
	require.NoError(t, err)
	count, ok := v.AsCount()
	require.True(t, ok)
	assert.EqualValues(t, 1, count)
}

func TestMemoryBackendGetMissingKey(t *testing.T) {
	b := NewMemoryBackend(nil)
	_, err := b.Get(broker.NewString("missing"))
	assert.ErrorIs(t, err, broker.ErrNoSuchKey)
}

func TestMemoryBackendAddOnAbsentKeyUsesIdentity(t *testing.T) {
	b := NewMemoryBackend(nil)
	key := broker.NewString("counter")
	require.NoError(t, b.Add(key, broker.NewCount(5), nil))

	v, err := b.Get(key)
	require.NoError(t, err)
	count, _ := v.AsCount()
	assert.EqualValues(t, 5, count)
}

func TestMemoryBackendAddRemoveRoundTrip(t *testing.T) {
	b := NewMemoryBackend(nil)
	key := broker.NewString("counter")
	require.NoError(t, b.Add(key, broker.NewCount(10), nil))
	require.NoError(t, b.Remove(key, broker.NewCount(4), nil))

	v, err := b.Get(key)
	require.NoError(t, err)
	count, _ := v.AsCount()
	assert.EqualValues(t, 6, count)
}

func TestMemoryBackendAddTypeClash(t *testing.T) {
	b := NewMemoryBackend(nil)
	key := broker.NewString("k")
	require.NoError(t, b.Put(key, broker.NewCount(1), nil))
	err := b.Add(key, broker.NewString("oops"), nil)
	assert.ErrorIs(t, err, broker.ErrTypeClash)
}

func TestMemoryBackendExpiryIsLazy(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clockTime := now
	b := NewMemoryBackend(func() time.Time { return clockTime })

	key := broker.NewString("k")
	expiry := now.Add(time.Second)
	require.NoError(t, b.Put(key, broker.NewCount(1), &expiry))

	ok, err := b.Exists(key)
	require.NoError(t, err)
	assert.True(t, ok)

	clockTime = now.Add(2 * time.Second)
	ok, err = b.Exists(key)
	require.NoError(t, err)
	assert.False(t, ok, "entry must be swept lazily once its expiry has passed")
}

func TestMemoryBackendSnapshotAndRestore(t *testing.T) {
	src := NewMemoryBackend(nil)
	require.NoError(t, src.Put(broker.NewString("a"), broker.NewCount(1), nil))
	require.NoError(t, src.Put(broker.NewString("b"), broker.NewCount(2), nil))

	snap, err := src.Snapshot()
	require.NoError(t, err)
	assert.EqualValues(t, 2, snap.Len())

	dst := NewMemoryBackend(nil)
	require.NoError(t, dst.Restore(snap))
	size, err := dst.Size()
	require.NoError(t, err)
	assert.EqualValues(t, 2, size)
}

func TestMemoryBackendClear(t *testing.T) {
	b := NewMemoryBackend(nil)
	require.NoError(t, b.Put(broker.NewString("a"), broker.NewCount(1), nil))
	require.NoError(t, b.Clear())
	size, err := b.Size()
	require.NoError(t, err)
	assert.EqualValues(t, 0, size)
}
