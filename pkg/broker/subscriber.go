package broker

import "github.com/jabolina/broker/pkg/broker/core"

// Subscriber is a local worker receiving DataMessages matching a Filter,
// delivered in a bounded channel so a slow consumer cannot stall the core
// Router's own goroutine (core.Subscriber.Deliver must not block). Grounded
// on go-mcast's consumer-channel pattern in test/testing.go's CreateCluster
// harness, generalized from a fixed test fixture to a public type.
type Subscriber struct {
	id     string
	filter Filter
	ch     chan Message
	router *core.Router
}

var _ core.Subscriber = (*Subscriber)(nil)

// MakeSubscriber registers a new Subscriber on filter, backed by a channel
// of the given capacity.
func (e *Endpoint) MakeSubscriber(filter Filter, bufferSize int) *Subscriber {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	s := &Subscriber{
		id:     e.nextChildID("sub"),
		filter: filter,
		ch:     make(chan Message, bufferSize),
		router: e.router,
	}
	e.router.Subscribe(s.id, filter, s)
	return s
}

// Deliver implements core.Subscriber; called from the Router's own
// goroutine, so it must never block — a full channel silently drops the
// message rather than stalling routing for every other peer/subscriber.
func (s *Subscriber) Deliver(msg Message) {
	select {
	case s.ch <- msg:
	default:
	}
}

// Messages returns the channel of matched messages.
func (s *Subscriber) Messages() <-chan Message { return s.ch }

// Unsubscribe removes this subscriber from the router.
func (s *Subscriber) Unsubscribe() {
	s.router.Unsubscribe(s.id)
}
