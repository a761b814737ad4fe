package broker

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jabolina/broker/pkg/broker/definition"
)

// Recipient is anything a Clock can deliver a deferred message to.
type Recipient interface {
	// Deliver hands the scheduled payload to the recipient. Implementations
	// must not block the clock's dispatch goroutine for long.
	Deliver(payload interface{})
}

// SyncCapable recipients can be asked to prove they have observed
// everything delivered to them so far, backing advance_time's
// synchronization barrier (§4.3). A Recipient that does not implement this
// is treated as synced immediately.
type SyncCapable interface {
	Recipient

	// Sync blocks until the recipient acknowledges a sync_point probe or
	// timeout elapses, returning false in the latter case.
	Sync(timeout time.Duration) bool
}

// Clock is the broker's logical/wall clock plus deferred-message
// scheduler, grounded on endpoint::clock (src/endpoint.cc). real_time
// selects wall-clock now(); otherwise now() returns the last value
// advance_time was called with.
type Clock struct {
	realTime bool
	log      definition.Logger

	mu            sync.Mutex
	virtualTime   time.Time
	pending       deferredQueue
	pendingCount  int64 // read lock-free to short-circuit the no-pending-work path
	seq           uint64
	frontendTimeout time.Duration
}

// NewClock constructs a Clock. useRealTime selects wall-clock mode;
// otherwise the clock starts at the Unix epoch and only moves when
// AdvanceTime is called.
func NewClock(useRealTime bool, frontendTimeout time.Duration, log definition.Logger) *Clock {
	if log == nil {
		log = definition.NewDefaultLogger()
	}
	c := &Clock{
		realTime:        useRealTime,
		virtualTime:     time.Unix(0, 0).UTC(),
		log:             log,
		frontendTimeout: frontendTimeout,
	}
	heap.Init(&c.pending)
	return c
}

// Now returns the current timestamp: wall clock if real-time, else the
// last value AdvanceTime set.
func (c *Clock) Now() time.Time {
	if c.realTime {
		return time.Now().UTC()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.virtualTime
}

// RealTime reports whether the clock is operating in wall-clock mode.
func (c *Clock) RealTime() bool { return c.realTime }

// SendLater schedules message for delivery to recipient after the given
// delay. In real-time mode this uses time.AfterFunc; in virtual mode the
// entry is queued until AdvanceTime reaches its deliver_at.
func (c *Clock) SendLater(recipient Recipient, after time.Duration, message interface{}) {
	if c.realTime {
		time.AfterFunc(after, func() {
			recipient.Deliver(message)
		})
		return
	}

	c.mu.Lock()
	deliverAt := c.virtualTime.Add(after)
	seq := c.seq
	c.seq++
	heap.Push(&c.pending, &deferredEntry{
		deliverAt: deliverAt,
		seq:       seq,
		recipient: recipient,
		payload:   message,
	})
	c.mu.Unlock()
	atomic.AddInt64(&c.pendingCount, 1)
}

// PendingCount returns the number of not-yet-delivered virtual-time
// entries, readable without the lock so callers (and AdvanceTime itself)
// can short-circuit the common case of no pending work.
func (c *Clock) PendingCount() int64 {
	return atomic.LoadInt64(&c.pendingCount)
}

// AdvanceTime is a no-op in real-time mode, and a no-op if t is not after
// the current virtual time. Otherwise it sets the virtual time to t,
// dispatches every entry due at or before t in ascending (deliver_at, seq)
// order, then runs the synchronization barrier: every distinct recipient
// that received a message is asked to Sync and awaited (bounded by the
// clock's frontend timeout), so callers driving a packet-capture replay can
// rely on downstream actors having observed a message's effects before
// AdvanceTime returns.
func (c *Clock) AdvanceTime(t time.Time) {
	if c.realTime {
		return
	}

	c.mu.Lock()
	if !t.After(c.virtualTime) {
		c.mu.Unlock()
		return
	}
	c.virtualTime = t

	if atomic.LoadInt64(&c.pendingCount) == 0 {
		c.mu.Unlock()
		return
	}

	var due []*deferredEntry
	for c.pending.Len() > 0 && !c.pending[0].deliverAt.After(t) {
		due = append(due, heap.Pop(&c.pending).(*deferredEntry))
	}
	atomic.AddInt64(&c.pendingCount, -int64(len(due)))
	// Release the lock before dispatch: a Recipient.Deliver that calls back
	// into SendLater must not deadlock on this same mutex (§4.3), and
	// dispatch must not hold it while waiting on external sends either.
	c.mu.Unlock()

	var touched []Recipient
	seen := make(map[Recipient]struct{})
	for _, entry := range due {
		entry.recipient.Deliver(entry.payload)
		if _, ok := seen[entry.recipient]; !ok {
			seen[entry.recipient] = struct{}{}
			touched = append(touched, entry.recipient)
		}
	}

	for _, r := range touched {
		sc, ok := r.(SyncCapable)
		if !ok {
			continue
		}
		if !sc.Sync(c.frontendTimeout) {
			c.log.Debugf("advance_time: sync_point timed out after %s", c.frontendTimeout)
		}
	}
}
