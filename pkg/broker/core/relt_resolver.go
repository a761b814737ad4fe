package core

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jabolina/relt/pkg/relt"

	"github.com/jabolina/broker/pkg/broker"
	"github.com/jabolina/broker/pkg/broker/definition"
)

// announcement is broadcast periodically on a relt group so not-yet-peered
// endpoints can learn each other's NetworkInfo without prior
// configuration, per SPEC_FULL.md §4.2's discovery enrichment.
type announcement struct {
	Handle  broker.NodeID
	Network broker.NetworkInfo
}

// ReltResolver is an optional core.Resolver backed by
// github.com/jabolina/relt's reliable group broadcast — go-mcast's actual
// transport dependency (pkg/mcast/core/transport.go), repurposed here from
// "reliably deliver every protocol message" to "best-effort announce and
// learn peer addresses". Resolve itself still falls back to fallback for
// any NetworkInfo not yet learned via the group, so ReltResolver is
// additive over a direct-dial resolver rather than a replacement for one.
type ReltResolver struct {
	self     broker.NodeID
	r        *relt.Relt
	log      definition.Logger
	fallback Resolver
	onStatus func(broker.StatusEvent)

	mu      sync.Mutex
	learned map[string]announcement
	cancel  context.CancelFunc
}

// NewReltResolver joins the relt group at groupAddress under name self,
// starting a background goroutine that both announces self's own
// NetworkInfo on announceInterval and listens for other endpoints'
// announcements.
func NewReltResolver(self broker.NodeID, selfInfo broker.NetworkInfo, groupAddress string, announceInterval time.Duration, fallback Resolver, onStatus func(broker.StatusEvent), log definition.Logger) (*ReltResolver, error) {
	if log == nil {
		log = definition.NewDefaultLogger()
	}
	conf := relt.DefaultReltConfiguration()
	conf.Name = string(self)
	conf.Exchange = relt.GroupAddress(groupAddress)
	r, err := relt.NewRelt(*conf)
	if err != nil {
		return nil, err
	}

	rr := &ReltResolver{
		self:     self,
		r:        r,
		log:      log.WithField("component", "relt-resolver"),
		fallback: fallback,
		onStatus: onStatus,
		learned:  make(map[string]announcement),
	}

	ctx, cancel := context.WithCancel(context.Background())
	rr.cancel = cancel
	go rr.announceLoop(ctx, groupAddress, selfInfo, announceInterval)
	go rr.listenLoop(ctx)
	return rr, nil
}

func (rr *ReltResolver) announceLoop(ctx context.Context, groupAddress string, selfInfo broker.NetworkInfo, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	payload, err := json.Marshal(announcement{Handle: rr.self, Network: selfInfo})
	if err != nil {
		rr.log.Errorf("marshalling self announcement: %v", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg := relt.Send{Address: relt.GroupAddress(groupAddress), Data: payload}
			if err := rr.r.Broadcast(ctx, msg); err != nil {
				rr.log.Warnf("broadcasting discovery announcement: %v", err)
			}
		}
	}
}

func (rr *ReltResolver) listenLoop(ctx context.Context) {
	listener, err := rr.r.Consume()
	if err != nil {
		rr.log.Errorf("consuming relt discovery group: %v", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case recv, ok := <-listener:
			if !ok {
				return
			}
			if recv.Error != nil || recv.Data == nil {
				continue
			}
			var a announcement
			if err := json.Unmarshal(recv.Data, &a); err != nil {
				rr.log.Warnf("decoding discovery announcement: %v", err)
				continue
			}
			if a.Handle == rr.self {
				continue
			}
			key := keyOf(a.Network).String()
			rr.mu.Lock()
			_, known := rr.learned[key]
			rr.learned[key] = a
			rr.mu.Unlock()
			if !known && rr.onStatus != nil {
				rr.onStatus(broker.StatusEvent{Kind: broker.StatusEndpointDiscovered, Endpoint: a.Handle, Network: a.Network})
			}
		}
	}
}

// Resolve implements Resolver: returns a learned handle immediately if the
// group has already announced info, otherwise defers to fallback (a direct
// dial-based resolver).
func (rr *ReltResolver) Resolve(ctx context.Context, info broker.NetworkInfo) (broker.NodeID, error) {
	rr.mu.Lock()
	a, ok := rr.learned[keyOf(info).String()]
	rr.mu.Unlock()
	if ok {
		return a.Handle, nil
	}
	if rr.fallback != nil {
		return rr.fallback(ctx, info)
	}
	return "", broker.ErrPeerUnavailable
}

// AsResolverFunc adapts Resolve to the plain Resolver function type
// NetworkCache expects.
func (rr *ReltResolver) AsResolverFunc() Resolver {
	return rr.Resolve
}

// Close stops the announce/listen loops and leaves the discovery group.
func (rr *ReltResolver) Close() error {
	rr.cancel()
	return rr.r.Close()
}
