package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jabolina/broker/pkg/broker"
)

// pipeLink is an in-memory PeerLink connecting two Routers in a test,
// mirroring go-mcast's test/testing.go fakes for transport.Transport.
type pipeLink struct {
	outbound chan broker.Message
	filters  chan broker.Filter
	incoming chan broker.Message
	peerFilters chan broker.Filter
	closed   chan struct{}
}

func newPipe() (*pipeLink, *pipeLink) {
	ab := make(chan broker.Message, 16)
	ba := make(chan broker.Message, 16)
	fab := make(chan broker.Filter, 16)
	fba := make(chan broker.Filter, 16)
	a := &pipeLink{outbound: ab, incoming: ba, filters: fba, peerFilters: fab, closed: make(chan struct{})}
	b := &pipeLink{outbound: ba, incoming: ab, filters: fab, peerFilters: fba, closed: make(chan struct{})}
	return a, b
}

func (p *pipeLink) Send(msg broker.Message) error {
	select {
	case p.outbound <- msg:
		return nil
	case <-p.closed:
		return broker.ErrPeerUnavailable
	}
}

func (p *pipeLink) SendFilter(f broker.Filter) error {
	select {
	case p.peerFilters <- f:
		return nil
	case <-p.closed:
		return broker.ErrPeerUnavailable
	}
}

func (p *pipeLink) Incoming() <-chan broker.Message { return p.incoming }
func (p *pipeLink) Filters() <-chan broker.Filter    { return p.filters }

func (p *pipeLink) Close() error {
	select {
	case <-p.closed:
	default:
		close(p.closed)
	}
	return nil
}

type recordingSubscriber struct {
	ch chan broker.Message
}

func newRecordingSubscriber() *recordingSubscriber {
	return &recordingSubscriber{ch: make(chan broker.Message, 16)}
}

func (s *recordingSubscriber) Deliver(msg broker.Message) { s.ch <- msg }

func newTestRouter(self broker.NodeID, dial Dialer) *Router {
	return NewRouter(RouterConfig{
		Self:    self,
		Cache:   NewNetworkCache(nil),
		Dial:    dial,
		Invoker: NewWaitGroupInvoker(),
	})
}

func TestRouterPublishDeliversToMatchingLocalSubscriber(t *testing.T) {
	r := newTestRouter("a", nil)
	defer r.Shutdown()

	sub := newRecordingSubscriber()
	r.Subscribe("sub-1", broker.Filter{"/events"}, sub)

	r.Publish(broker.NewDataMessage("/events/conn", broker.NewCount(1)))

	select {
	case msg := <-sub.ch:
		assert.Equal(t, broker.Topic("/events/conn"), msg.Topic())
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the message")
	}
}

func TestRouterPublishSkipsNonMatchingSubscriber(t *testing.T) {
	r := newTestRouter("a", nil)
	defer r.Shutdown()

	sub := newRecordingSubscriber()
	r.Subscribe("sub-1", broker.Filter{"/other"}, sub)
	r.Publish(broker.NewDataMessage("/events/conn", broker.NewCount(1)))

	select {
	case <-sub.ch:
		t.Fatal("subscriber should not have matched")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRouterPeerAndForwardMessage(t *testing.T) {
	linkToB, linkToA := newPipe()
	dialAtoB := func(ctx context.Context, handle broker.NodeID, info broker.NetworkInfo) (PeerLink, error) {
		return linkToB, nil
	}

	a := newTestRouter("a", dialAtoB)
	defer a.Shutdown()
	b := newTestRouter("b", nil)
	defer b.Shutdown()

	// Wire b's side of the pipe in directly, as though b had accepted a's
	// inbound dial.
	b.do(func() {
		b.peers["a"] = &peerEntry{
			info: broker.PeerInfo{EndpointID: "a", Status: broker.PeerPeered},
			link: linkToA,
		}
	})
	b.invoker.Spawn(func() { b.pumpLink(b.peers["a"]) })

	sub := newRecordingSubscriber()
	b.Subscribe("sub-1", broker.Filter{"/events"}, sub)

	info, err := a.Peer(context.Background(), broker.NetworkInfo{Address: "x", Port: 1})
	require.NoError(t, err)
	assert.Equal(t, broker.PeerPeered, info.Status)

	require.Eventually(t, func() bool {
		var got bool
		a.do(func() {
			for _, p := range a.peers {
				if p.remoteFilter.Matches("/events/conn") {
					got = true
				}
			}
		})
		return got
	}, time.Second, 5*time.Millisecond)

	a.Publish(broker.NewDataMessage("/events/conn", broker.NewCount(7)))

	select {
	case msg := <-sub.ch:
		assert.Equal(t, broker.Topic("/events/conn"), msg.Topic())
	case <-time.After(time.Second):
		t.Fatal("b never received the forwarded message")
	}
}

func TestRouterPeerDialFailureWithoutRetryBecomesDisconnected(t *testing.T) {
	dial := func(ctx context.Context, handle broker.NodeID, info broker.NetworkInfo) (PeerLink, error) {
		return nil, broker.ErrPeerUnavailable
	}
	r := newTestRouter("a", dial)
	defer r.Shutdown()

	info, err := r.Peer(context.Background(), broker.NetworkInfo{Address: "x", Port: 1})
	require.Error(t, err)
	assert.Equal(t, broker.PeerDisconnected, info.Status)
}

func TestRouterUnpeerRemovesEntry(t *testing.T) {
	linkToB, _ := newPipe()
	dial := func(ctx context.Context, handle broker.NodeID, info broker.NetworkInfo) (PeerLink, error) {
		return linkToB, nil
	}
	r := newTestRouter("a", dial)
	defer r.Shutdown()

	target := broker.NetworkInfo{Address: "x", Port: 1}
	_, err := r.Peer(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, r.Peers(), 1)

	r.Unpeer(target)
	assert.Len(t, r.Peers(), 0)
}

func TestRouterPeerUsesCacheResolverHandle(t *testing.T) {
	linkToB, _ := newPipe()
	target := broker.NetworkInfo{Address: "x", Port: 1}

	var dialedHandle broker.NodeID
	dial := func(ctx context.Context, handle broker.NodeID, info broker.NetworkInfo) (PeerLink, error) {
		dialedHandle = handle
		return linkToB, nil
	}

	resolver := func(ctx context.Context, info broker.NetworkInfo) (broker.NodeID, error) {
		if info.Equal(target) {
			return "resolved-b", nil
		}
		return "", broker.ErrPeerUnavailable
	}

	r := NewRouter(RouterConfig{
		Self:    "a",
		Cache:   NewNetworkCache(resolver),
		Dial:    dial,
		Invoker: NewWaitGroupInvoker(),
	})
	defer r.Shutdown()

	info, err := r.Peer(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, broker.NodeID("resolved-b"), info.EndpointID)
	assert.Equal(t, broker.NodeID("resolved-b"), dialedHandle)

	cached, ok := r.cache.FindByHandle("resolved-b")
	require.True(t, ok)
	assert.Equal(t, target, cached)
}
