package store

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jabolina/broker/pkg/broker"
)

func waitForState(t *testing.T, c *Clone, want CloneState, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if c.State() == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("clone never reached state %s, stuck at %s", want, c.State())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestCloneBootstrapInstallsSnapshot(t *testing.T) {
	seedState := broker.NewStoreState()
	seedState.Set(broker.NewString("k"), broker.StoreEntry{Value: broker.NewCount(9)})

	backend := NewMemoryBackend(nil)
	c := NewClone(CloneConfig{
		Name:    "s1",
		Backend: backend,
		RequestSnapshot: func() (broker.Command, error) {
			return broker.NewSnapshotSync(seedState, 1), nil
		},
		MutationBufferInterval: 10 * time.Millisecond,
		StaleInterval:          time.Hour,
		ResyncInterval:         time.Hour,
	})
	defer c.Shutdown()

	waitForState(t, c, CloneSynced, time.Second)

	v, err := backend.Get(broker.NewString("k"))
	require.NoError(t, err)
	count, _ := v.AsCount()
	assert.EqualValues(t, 9, count)
}

func TestCloneAppliesCommandsOnceSynced(t *testing.T) {
	backend := NewMemoryBackend(nil)
	c := NewClone(CloneConfig{
		Name:    "s1",
		Backend: backend,
		RequestSnapshot: func() (broker.Command, error) {
			return broker.NewSnapshotSync(broker.NewStoreState(), 1), nil
		},
		MutationBufferInterval: 10 * time.Millisecond,
		StaleInterval:          time.Hour,
		ResyncInterval:         time.Hour,
	})
	defer c.Shutdown()

	waitForState(t, c, CloneSynced, time.Second)

	key := broker.NewString("k")
	c.Apply(broker.NewPut(key, broker.NewCount(3), nil))

	require.Eventually(t, func() bool {
		v, err := backend.Get(key)
		if err != nil {
			return false
		}
		count, _ := v.AsCount()
		return count == 3
	}, time.Second, 5*time.Millisecond)
}

func TestCloneGoesStaleThenResyncs(t *testing.T) {
	backend := NewMemoryBackend(nil)
	var snapshotCalls int32
	var findCalls int32

	c := NewClone(CloneConfig{
		Name:    "s1",
		Backend: backend,
		RequestSnapshot: func() (broker.Command, error) {
			atomic.AddInt32(&snapshotCalls, 1)
			return broker.NewSnapshotSync(broker.NewStoreState(), 1), nil
		},
		FindMaster: func() error {
			atomic.AddInt32(&findCalls, 1)
			return nil
		},
		MutationBufferInterval: 5 * time.Millisecond,
		StaleInterval:          20 * time.Millisecond,
		ResyncInterval:         20 * time.Millisecond,
	})
	defer c.Shutdown()

	waitForState(t, c, CloneSynced, time.Second)
	waitForState(t, c, CloneStale, time.Second)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&findCalls) > 0
	}, time.Second, 5*time.Millisecond)

	waitForState(t, c, CloneSynced, time.Second)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&snapshotCalls), int32(2))
}

func TestCloneBootstrapFailureBecomesDisconnected(t *testing.T) {
	backend := NewMemoryBackend(nil)
	c := NewClone(CloneConfig{
		Name:    "s1",
		Backend: backend,
		RequestSnapshot: func() (broker.Command, error) {
			return broker.Command{}, broker.ErrNoSuchMaster
		},
		MutationBufferInterval: 5 * time.Millisecond,
		StaleInterval:          time.Hour,
		ResyncInterval:         time.Hour,
	})
	defer c.Shutdown()

	waitForState(t, c, CloneDisconnected, time.Second)
}
