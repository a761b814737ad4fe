package core

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestWaitGroupInvokerStopWaitsForSpawned(t *testing.T) {
	inv := NewWaitGroupInvoker()
	var done atomic.Bool
	inv.Spawn(func() {
		time.Sleep(20 * time.Millisecond)
		done.Store(true)
	})
	inv.Stop()
	assert.True(t, done.Load())

	// Stop already waited for every spawned goroutine to return, so none
	// should still be live.
	goleak.VerifyNone(t)
}

func TestDefaultInvokerSpawnRuns(t *testing.T) {
	inv := NewInvoker()
	ch := make(chan struct{})
	inv.Spawn(func() { close(ch) })
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("spawned function never ran")
	}
	inv.Stop()
}
