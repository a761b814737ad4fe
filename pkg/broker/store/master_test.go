package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jabolina/broker/pkg/broker"
)

func TestMasterSubmitAppliesAndBroadcasts(t *testing.T) {
	backend := NewMemoryBackend(nil)

	var mu sync.Mutex
	var broadcasted []broker.Command
	broadcast := func(cmd broker.Command) {
		mu.Lock()
		defer mu.Unlock()
		broadcasted = append(broadcasted, cmd)
	}

	m := NewMaster("s1", backend, nil, broadcast, nil)
	defer m.Shutdown()

	key := broker.NewString("k")
	cmd := broker.NewPut(key, broker.NewCount(7), nil)
	committed, err := m.Submit(cmd)
	require.NoError(t, err)
	assert.Equal(t, broker.CommandPut, committed.Kind)

	v, err := backend.Get(key)
	require.NoError(t, err)
	count, _ := v.AsCount()
	assert.EqualValues(t, 7, count)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, broadcasted, 1)
	assert.Equal(t, broker.CommandPut, broadcasted[0].Kind)
}

func TestMasterSnapshotRequestDoesNotBroadcast(t *testing.T) {
	backend := NewMemoryBackend(nil)
	require.NoError(t, backend.Put(broker.NewString("k"), broker.NewCount(1), nil))

	var broadcastCount int
	var mu sync.Mutex
	broadcast := func(cmd broker.Command) {
		mu.Lock()
		broadcastCount++
		mu.Unlock()
	}

	m := NewMaster("s1", backend, nil, broadcast, nil)
	defer m.Shutdown()

	reply, err := m.Submit(broker.NewSnapshotRequest())
	require.NoError(t, err)
	assert.Equal(t, broker.CommandSnapshotSync, reply.Kind)
	assert.EqualValues(t, 1, reply.State.Len())

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, broadcastCount)
}

func TestMasterSubmitAfterShutdownFails(t *testing.T) {
	backend := NewMemoryBackend(nil)
	m := NewMaster("s1", backend, nil, nil, nil)
	m.Shutdown()

	_, err := m.Submit(broker.NewPut(broker.NewString("k"), broker.NewCount(1), nil))
	assert.ErrorIs(t, err, broker.ErrShuttingDown)
}

func TestMasterSerializesConcurrentSubmits(t *testing.T) {
	backend := NewMemoryBackend(nil)
	m := NewMaster("s1", backend, nil, nil, nil)
	defer m.Shutdown()

	key := broker.NewString("counter")
	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := m.Submit(broker.NewAdd(key, broker.NewCount(1), nil))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v, err := backend.Get(key)
	require.NoError(t, err)
	count, _ := v.AsCount()
	assert.EqualValues(t, n, count)
}
