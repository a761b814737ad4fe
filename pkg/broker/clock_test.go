package broker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingRecipient records every delivered payload in arrival order.
type recordingRecipient struct {
	mu       sync.Mutex
	payloads []interface{}
}

func (r *recordingRecipient) Deliver(payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, payload)
}

func (r *recordingRecipient) received() []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]interface{}, len(r.payloads))
	copy(out, r.payloads)
	return out
}

func TestClockAdvanceTimeDispatchesDueEntriesInDeliverAtOrder(t *testing.T) {
	c := NewClock(false, time.Second, nil)
	rcpt := &recordingRecipient{}

	epoch := c.Now()
	c.SendLater(rcpt, 3*time.Second, "third")
	c.SendLater(rcpt, 1*time.Second, "first")
	c.SendLater(rcpt, 2*time.Second, "second")
	assert.EqualValues(t, 3, c.PendingCount())

	c.AdvanceTime(epoch.Add(2 * time.Second))

	assert.Equal(t, []interface{}{"first", "second"}, rcpt.received())
	assert.EqualValues(t, 1, c.PendingCount())

	c.AdvanceTime(epoch.Add(3 * time.Second))
	assert.Equal(t, []interface{}{"first", "second", "third"}, rcpt.received())
	assert.EqualValues(t, 0, c.PendingCount())
}

// syncGatedRecipient blocks Sync until release is closed, letting a test
// observe that AdvanceTime's barrier genuinely waits for every touched
// recipient rather than returning as soon as dispatch finishes.
type syncGatedRecipient struct {
	recordingRecipient
	release chan struct{}
	synced  chan struct{}
}

func newSyncGatedRecipient() *syncGatedRecipient {
	return &syncGatedRecipient{release: make(chan struct{}), synced: make(chan struct{}, 1)}
}

func (r *syncGatedRecipient) Sync(timeout time.Duration) bool {
	select {
	case <-r.release:
		r.synced <- struct{}{}
		return true
	case <-time.After(timeout):
		return false
	}
}

func TestClockAdvanceTimeBarrierWaitsForSync(t *testing.T) {
	c := NewClock(false, time.Second, nil)
	rcpt := newSyncGatedRecipient()

	epoch := c.Now()
	c.SendLater(rcpt, time.Second, "payload")

	done := make(chan struct{})
	go func() {
		c.AdvanceTime(epoch.Add(time.Second))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("AdvanceTime returned before the gated recipient synced")
	case <-time.After(50 * time.Millisecond):
	}

	close(rcpt.release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AdvanceTime never returned after the recipient synced")
	}

	select {
	case <-rcpt.synced:
	default:
		t.Fatal("Sync was never called")
	}
}

// reentrantRecipient calls SendLater back into the clock from inside
// Deliver, the way a real actor rescheduling its own next tick would.
// Regression test: AdvanceTime must not hold the clock's mutex across
// dispatch, or this deadlocks.
type reentrantRecipient struct {
	clock       *Clock
	rescheduled chan struct{}
}

func (r *reentrantRecipient) Deliver(payload interface{}) {
	r.clock.SendLater(&recordingRecipient{}, time.Second, "rescheduled")
	close(r.rescheduled)
}

func TestClockAdvanceTimeDeliverMayReentrantlyScheduleMore(t *testing.T) {
	c := NewClock(false, time.Second, nil)
	rcpt := &reentrantRecipient{clock: c, rescheduled: make(chan struct{})}

	epoch := c.Now()
	c.SendLater(rcpt, time.Second, "tick")

	done := make(chan struct{})
	go func() {
		c.AdvanceTime(epoch.Add(time.Second))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AdvanceTime deadlocked on a reentrant SendLater call from Deliver")
	}

	select {
	case <-rcpt.rescheduled:
	default:
		t.Fatal("reentrant SendLater was never reached")
	}
	assert.EqualValues(t, 1, c.PendingCount())
}

func TestClockAdvanceTimeNoOpWhenNotAfterCurrent(t *testing.T) {
	c := NewClock(false, time.Second, nil)
	rcpt := &recordingRecipient{}
	epoch := c.Now()

	c.SendLater(rcpt, time.Second, "payload")
	c.AdvanceTime(epoch)
	assert.Empty(t, rcpt.received())
	assert.EqualValues(t, 1, c.PendingCount())
}

func TestClockRealTimeAdvanceTimeIsNoOp(t *testing.T) {
	c := NewClock(true, time.Second, nil)
	before := c.Now()
	c.AdvanceTime(before.Add(time.Hour))
	require.True(t, c.Now().After(before) || c.Now().Equal(before))
	assert.True(t, c.RealTime())
}
