package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jabolina/broker/pkg/broker"
	"github.com/jabolina/broker/pkg/broker/definition"
)

// PeerLink is the outbound side of a peering connection: a full-duplex
// stream of routed Messages plus the out-of-band filter-exchange the
// hello handshake needs. The production implementation lives in the
// transport package (TLS/plaintext net.Conn); tests substitute an
// in-memory link.
type PeerLink interface {
	Send(msg broker.Message) error
	SendFilter(f broker.Filter) error
	Incoming() <-chan broker.Message
	Filters() <-chan broker.Filter
	Close() error
}

// Dialer opens a PeerLink to the peer reachable at handle/info. The
// production dialer resolves handle through a NetworkCache and connects
// via the Transport strategy.
type Dialer func(ctx context.Context, handle broker.NodeID, info broker.NetworkInfo) (PeerLink, error)

// Subscriber is a local worker interested in a Filter; Deliver is called
// from the router's own goroutine, so subscribers must not block.
type Subscriber interface {
	Deliver(msg broker.Message)
}

type peerEntry struct {
	info         broker.PeerInfo
	link         PeerLink
	remoteFilter broker.Filter
	cancelRetry  context.CancelFunc
}

type localSub struct {
	id     string
	filter broker.Filter
	sub    Subscriber
}

// routerRequest is the mailbox envelope for every synchronous Router
// call (peer/unpeer/publish/subscribe/peers/...), mirroring go-mcast's
// Unity/Peer single-actor-with-mailbox shape (pkg/mcast/protocol.go).
type routerRequest struct {
	fn    func()
	reply chan struct{}
}

// Router is the core peer-table + subscription + forwarding actor of
// §4.6. One goroutine owns all of peers, local subscriptions, and the
// NetworkCache; every external call is marshalled through mailbox so no
// field needs its own lock.
type Router struct {
	self broker.NodeID
	log  definition.Logger

	cache   *NetworkCache
	dial    Dialer
	invoker Invoker

	mailbox chan routerRequest
	done    chan struct{}

	peers           map[broker.NodeID]*peerEntry
	localSubs       map[string]*localSub
	localFilter     broker.Filter
	forwardedTopics map[broker.Topic]struct{}
	onStatus        func(broker.StatusEvent)

	seq uint64
}

// RouterConfig bundles a Router's collaborators.
type RouterConfig struct {
	Self     broker.NodeID
	Log      definition.Logger
	Cache    *NetworkCache
	Dial     Dialer
	Invoker  Invoker
	OnStatus func(broker.StatusEvent)
}

// NewRouter constructs and starts a Router with an empty peer table and
// empty local filter, per §4.7's endpoint-construction step 5.
func NewRouter(cfg RouterConfig) *Router {
	log := cfg.Log
	if log == nil {
		log = definition.NewDefaultLogger()
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewNetworkCache(nil)
	}
	invoker := cfg.Invoker
	if invoker == nil {
		invoker = NewInvoker()
	}
	r := &Router{
		self:            cfg.Self,
		log:             log.WithField("component", "router"),
		cache:           cache,
		dial:            cfg.Dial,
		invoker:         invoker,
		mailbox:         make(chan routerRequest, 128),
		done:            make(chan struct{}),
		peers:           make(map[broker.NodeID]*peerEntry),
		localSubs:       make(map[string]*localSub),
		forwardedTopics: make(map[broker.Topic]struct{}),
		onStatus:        cfg.OnStatus,
	}
	invoker.Spawn(r.poll)
	return r
}

// Shutdown stops the router's actor loop and closes every peer link.
func (r *Router) Shutdown() {
	close(r.done)
}

// do marshals fn onto the router's own goroutine and blocks until it
// completes, the Go analogue of a CAF scoped_actor request with an
// infinite timeout (§5's suspension-point note on synchronous endpoint
// calls).
func (r *Router) do(fn func()) {
	reply := make(chan struct{})
	select {
	case r.mailbox <- routerRequest{fn: fn, reply: reply}:
	case <-r.done:
		return
	}
	select {
	case <-reply:
	case <-r.done:
	}
}

func (r *Router) poll() {
	defer r.log.Debug("router actor stopped")
	for {
		select {
		case <-r.done:
			for _, p := range r.peers {
				if p.link != nil {
					p.link.Close()
				}
			}
			return
		case req := <-r.mailbox:
			req.fn()
			close(req.reply)
		case comp := <-r.cache.Completions():
			r.cache.Complete(comp)
		}
	}
}

// Peer implements §4.6's peer(info): resolves info to a handle, dials,
// exchanges filters, and transitions initialized -> connecting -> peered.
// On dial failure it schedules a retry (info.Retry > 0) or
// transitions to disconnected and reports the failure. The dial itself
// runs off the router's own goroutine (on an invoker-spawned worker) so a
// slow or retrying connection attempt never stalls routing/publish calls
// for unrelated peers. Resolving info to a handle goes through the
// router's NetworkCache first (§4.2/§4.6): a configured Resolver (e.g. a
// discovery-group ReltResolver) may already know the handle, in which case
// it is reused instead of a fresh placeholder being minted.
func (r *Router) Peer(ctx context.Context, info broker.NetworkInfo) (broker.PeerInfo, error) {
	if entry, ok := r.existingPeer(info); ok {
		return entry.info, nil
	}

	handle := r.resolveHandle(ctx, info)

	var entry *peerEntry
	var already bool
	r.do(func() {
		for _, p := range r.peers {
			if p.info.Network.Equal(info) {
				entry, already = p, true
				return
			}
		}
		entry = &peerEntry{info: broker.PeerInfo{EndpointID: handle, Network: info, Status: broker.PeerConnecting}}
		r.peers[handle] = entry
	})
	if already {
		return entry.info, nil
	}

	resultCh := make(chan error, 1)
	r.beginDial(ctx, entry, resultCh)
	err := <-resultCh
	return entry.info, err
}

// PeerNosync starts peering without waiting for the outcome, per §4.7's
// peer_nosync. Resolution (like the dial itself) runs off the router's own
// goroutine so a slow or unresolved discovery lookup never blocks the
// caller or the router's mailbox.
func (r *Router) PeerNosync(info broker.NetworkInfo) {
	if _, ok := r.existingPeer(info); ok {
		return
	}
	r.invoker.Spawn(func() {
		ctx := context.Background()
		handle := r.resolveHandle(ctx, info)
		var entry *peerEntry
		var already bool
		r.do(func() {
			for _, p := range r.peers {
				if p.info.Network.Equal(info) {
					already = true
					return
				}
			}
			entry = &peerEntry{info: broker.PeerInfo{EndpointID: handle, Network: info, Status: broker.PeerConnecting}}
			r.peers[handle] = entry
		})
		if already {
			return
		}
		r.beginDial(ctx, entry, nil)
	})
}

func (r *Router) existingPeer(info broker.NetworkInfo) (*peerEntry, bool) {
	var entry *peerEntry
	var ok bool
	r.do(func() {
		for _, p := range r.peers {
			if p.info.Network.Equal(info) {
				entry, ok = p, true
				return
			}
		}
	})
	return entry, ok
}

// resolveHandle asks the router's NetworkCache to resolve info to a
// handle: Fetch itself must only be called from the router's own
// goroutine (do), since the cache's maps are single-writer, but the
// result is awaited here off that goroutine so a slow or absent Resolver
// never stalls routing. When nothing resolves info (no Resolver
// configured, or the Resolver simply doesn't know this address yet) a
// fresh placeholder handle is minted instead, matching the behavior
// before any Resolver existed.
func (r *Router) resolveHandle(ctx context.Context, info broker.NetworkInfo) broker.NodeID {
	var fetchCh <-chan FetchReply
	r.do(func() { fetchCh = r.cache.Fetch(ctx, info) })

	select {
	case reply := <-fetchCh:
		if reply.Err == nil && reply.Handle != "" {
			return reply.Handle
		}
	case <-ctx.Done():
	}

	var handle broker.NodeID
	r.do(func() { handle = broker.NodeID(fmt.Sprintf("pending-%d", r.nextSeq())) })
	return handle
}

// beginDial performs the (potentially slow, potentially blocking) dial on
// an invoker-spawned goroutine, then hops back onto the router's actor
// goroutine via do to record the outcome. resultCh may be nil for
// fire-and-forget callers (PeerNosync, retries).
func (r *Router) beginDial(ctx context.Context, entry *peerEntry, resultCh chan error) {
	r.invoker.Spawn(func() {
		if r.dial == nil {
			r.do(func() {
				entry.info.Status = broker.PeerDisconnected
				r.emit(broker.StatusPeerUnreachable, entry.info.EndpointID, entry.info.Network, broker.ErrPeerUnavailable.Error())
			})
			if resultCh != nil {
				resultCh <- broker.ErrPeerUnavailable
			}
			return
		}
		link, err := r.dial(ctx, entry.info.EndpointID, entry.info.Network)
		if err != nil {
			r.do(func() { r.handleDialFailure(entry, err) })
			if resultCh != nil {
				resultCh <- err
			}
			return
		}
		r.do(func() { r.finishConnect(entry, link) })
		if resultCh != nil {
			resultCh <- nil
		}
	})
}

func (r *Router) finishConnect(entry *peerEntry, link PeerLink) {
	entry.link = link
	entry.info.Status = broker.PeerPeered
	if existing, ok := r.cache.FindByHandle(entry.info.EndpointID); ok && !existing.Equal(entry.info.Network) {
		r.log.Warnf("peer %s reconnected with a different address (%s -> %s)", entry.info.EndpointID, existing, entry.info.Network)
	}
	r.cache.Add(entry.info.EndpointID, entry.info.Network)
	if err := link.SendFilter(r.localFilter); err != nil {
		r.log.Warnf("sending hello filter to %s failed: %v", entry.info.EndpointID, err)
	}
	r.invoker.Spawn(func() { r.pumpLink(entry) })
	r.emit(broker.StatusPeerAdded, entry.info.EndpointID, entry.info.Network, "")
}

func (r *Router) handleDialFailure(entry *peerEntry, err error) {
	if entry.info.Network.Retry > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		entry.cancelRetry = cancel
		r.invoker.Spawn(func() {
			select {
			case <-ctx.Done():
			case <-time.After(entry.info.Network.Retry):
				r.beginDial(ctx, entry, nil)
			}
		})
		return
	}
	entry.info.Status = broker.PeerDisconnected
	r.emit(broker.StatusPeerUnreachable, entry.info.EndpointID, entry.info.Network, err.Error())
}

// AttachIncoming registers an already-established link accepted by a
// listener (the Endpoint's transport.Listen loop) as a peered entry of
// unknown NetworkInfo; the hello filter arriving over the link is the only
// way the router learns anything further about it. Unlike Peer/PeerNosync
// there is no dial to perform, so this runs entirely inside do().
func (r *Router) AttachIncoming(link PeerLink) broker.NodeID {
	var handle broker.NodeID
	r.do(func() {
		handle = broker.NodeID(fmt.Sprintf("incoming-%d", r.nextSeq()))
		entry := &peerEntry{info: broker.PeerInfo{EndpointID: handle, Status: broker.PeerPeered}, link: link}
		r.peers[handle] = entry
		if err := link.SendFilter(r.localFilter); err != nil {
			r.log.Warnf("sending hello filter to incoming peer %s failed: %v", handle, err)
		}
		r.invoker.Spawn(func() { r.pumpLink(entry) })
		r.emit(broker.StatusPeerAdded, handle, entry.info.Network, "")
	})
	return handle
}

// Unpeer implements §4.6's unpeer(info): removes the peer and cancels any
// pending retry.
func (r *Router) Unpeer(info broker.NetworkInfo) {
	r.do(func() {
		for handle, p := range r.peers {
			if p.info.Network.Equal(info) {
				if p.cancelRetry != nil {
					p.cancelRetry()
				}
				if p.link != nil {
					p.link.Close()
				}
				delete(r.peers, handle)
				r.cache.Remove(handle)
				r.emit(broker.StatusPeerRemoved, handle, info, "")
				return
			}
		}
	})
}

// Peers returns a snapshot of every known peer's PeerInfo.
func (r *Router) Peers() []broker.PeerInfo {
	var out []broker.PeerInfo
	r.do(func() {
		for _, p := range r.peers {
			out = append(out, p.info)
		}
	})
	return out
}

// Subscribe registers a local subscriber under id with filter f,
// recomputing and propagating the router's union local filter if it
// changed (§4.6's subscription propagation rule).
func (r *Router) Subscribe(id string, f broker.Filter, sub Subscriber) {
	r.do(func() {
		r.localSubs[id] = &localSub{id: id, filter: f, sub: sub}
		r.recomputeLocalFilter()
	})
}

// Unsubscribe removes a local subscriber.
func (r *Router) Unsubscribe(id string) {
	r.do(func() {
		delete(r.localSubs, id)
		r.recomputeLocalFilter()
	})
}

// Forward adds topics to the forwarded-topics set: topics the endpoint
// forwards on behalf of others even without local subscribers.
func (r *Router) Forward(topics ...broker.Topic) {
	r.do(func() {
		for _, t := range topics {
			r.forwardedTopics[t] = struct{}{}
		}
		r.recomputeLocalFilter()
	})
}

func (r *Router) recomputeLocalFilter() {
	var union broker.Filter
	for _, s := range r.localSubs {
		union = union.Union(s.filter)
	}
	for t := range r.forwardedTopics {
		union = union.Union(broker.Filter{t})
	}
	if union.Equal(r.localFilter) {
		return
	}
	r.localFilter = union
	for _, p := range r.peers {
		if p.link == nil {
			continue
		}
		if err := p.link.SendFilter(r.localFilter); err != nil {
			r.log.Warnf("propagating filter to %s failed: %v", p.info.EndpointID, err)
		}
	}
}

// Publish implements §4.6's routing rule for a locally published message:
// deliver to every local subscriber whose filter matches, and forward to
// every peer whose filter matches, excluding any peer already in the
// message's visited set.
func (r *Router) Publish(msg broker.Message) {
	r.do(func() { r.route(msg) })
}

func (r *Router) route(msg broker.Message) {
	topic := msg.Topic()
	for _, s := range r.localSubs {
		if s.filter.Matches(topic) {
			s.sub.Deliver(msg)
		}
	}
	forwarded := msg.WithVisited(r.self)
	for handle, p := range r.peers {
		if p.link == nil || p.info.Status != broker.PeerPeered {
			continue
		}
		if msg.Visited(handle) {
			continue
		}
		if !p.remoteFilter.Matches(topic) {
			continue
		}
		if err := p.link.Send(forwarded); err != nil {
			r.log.Warnf("forwarding to peer %s failed: %v", handle, err)
		}
	}
}

// pumpLink drains a peer link's incoming messages and filter updates
// into the router's own goroutine via do, so routing decisions always
// happen single-threaded.
func (r *Router) pumpLink(entry *peerEntry) {
	for {
		select {
		case <-r.done:
			return
		case msg, ok := <-entry.link.Incoming():
			if !ok {
				r.do(func() {
					entry.info.Status = broker.PeerDisconnected
					r.emit(broker.StatusPeerLost, entry.info.EndpointID, entry.info.Network, "")
				})
				return
			}
			if msg.Visited(r.self) {
				continue
			}
			r.do(func() { r.route(msg) })
		case f, ok := <-entry.link.Filters():
			if !ok {
				continue
			}
			r.do(func() { entry.remoteFilter = f })
		}
	}
}

func (r *Router) emit(kind broker.StatusKind, handle broker.NodeID, info broker.NetworkInfo, message string) {
	if r.onStatus == nil {
		return
	}
	r.onStatus(broker.StatusEvent{Kind: kind, Endpoint: handle, Network: info, Message: message})
}

func (r *Router) nextSeq() uint64 {
	r.seq++
	return r.seq
}
