package broker

import (
	"container/heap"
	"time"
)

// deferredEntry is one pending send_later delivery. seq breaks ties
// between entries with equal DeliverAt in FIFO order, per the
// DeferredMessage invariant in §3.
type deferredEntry struct {
	deliverAt time.Time
	seq       uint64
	recipient Recipient
	payload   interface{}
}

// deferredQueue is a container/heap min-heap ordered by (deliverAt, seq),
// giving advance_time an O(log n) "pop everything due" loop instead of the
// C++ implementation's ordered std::multimap, while preserving the same
// FIFO-at-equal-timestamp guarantee.
type deferredQueue []*deferredEntry

func (q deferredQueue) Len() int { return len(q) }

func (q deferredQueue) Less(i, j int) bool {
	if q[i].deliverAt.Equal(q[j].deliverAt) {
		return q[i].seq < q[j].seq
	}
	return q[i].deliverAt.Before(q[j].deliverAt)
}

func (q deferredQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *deferredQueue) Push(x interface{}) {
	*q = append(*q, x.(*deferredEntry))
}

func (q *deferredQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

var _ heap.Interface = (*deferredQueue)(nil)
