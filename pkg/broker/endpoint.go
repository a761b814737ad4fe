package broker

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jabolina/broker/pkg/broker/core"
	"github.com/jabolina/broker/pkg/broker/definition"
	"github.com/jabolina/broker/pkg/broker/record"
	"github.com/jabolina/broker/pkg/broker/store"
	"github.com/jabolina/broker/pkg/broker/transport"
)

// Endpoint is the facade composing Core, Clock, child workers, and
// optional recording, per §4.7. Construction follows the five steps
// spec.md names: (1) recording directory bring-up, (2) clock
// construction, (3) NetworkCache/Router construction, (4) child-worker
// tracking via system, (5) empty peer/subscription state — all already
// true of a freshly built Router.
type Endpoint struct {
	self NodeID
	opts Options
	log  definition.Logger
	fs   definition.FileSystem

	clock     *Clock
	router    *core.Router
	sys       *system
	transport *transport.Transport

	recordWriter *record.Writer
	discovery    *core.ReltResolver

	mu         sync.Mutex
	statusSubs []*StatusSubscriber
	masters    map[string]*store.Master
	clones     map[string]*cloneHandle
	childSeq   uint64
}

type cloneHandle struct {
	clone   *store.Clone
	replyCh chan Command
}

// Dial resolves and opens a PeerLink to a peer. Installed by whatever
// constructs the Endpoint (typically a transport.Transport's Dial method).
type Dial = core.Dialer

// EndpointConfig bundles construction-time collaborators. Transport, when
// supplied, both services outbound Dial calls and enables Listen for
// inbound connections; Dial can instead be set directly (e.g. to an
// in-memory fake) for tests that never call Listen.
type EndpointConfig struct {
	Self       NodeID
	Options    Options
	Log        definition.Logger
	FileSystem definition.FileSystem
	Transport  *transport.Transport
	Dial       Dial
	Invoker    core.Invoker

	// SelfNetwork, DiscoveryGroup, and DiscoveryAnnounceInterval enable
	// relt-based peer discovery (§4.2/§4.6): when DiscoveryGroup is
	// non-empty, the Endpoint joins it and learns peers' NodeIDs from their
	// announcements instead of Peer/PeerNosync always minting a fresh
	// placeholder handle. SelfNetwork is this endpoint's own advertised
	// address; DiscoveryAnnounceInterval defaults to 5s if zero.
	SelfNetwork               NetworkInfo
	DiscoveryGroup            string
	DiscoveryAnnounceInterval time.Duration
}

// New constructs an Endpoint: sets up the recording directory (if
// configured), builds the Clock and Router, and returns ready to Peer/
// Publish/Subscribe/AttachMaster/AttachClone.
func New(cfg EndpointConfig) (*Endpoint, error) {
	if cfg.Options == (Options{}) {
		cfg.Options = DefaultOptions()
	}
	log := cfg.Log
	if log == nil {
		log = definition.NewDefaultLogger()
	}
	fs := cfg.FileSystem
	if fs == nil {
		fs = definition.OSFileSystem{}
	}

	e := &Endpoint{
		self:    cfg.Self,
		opts:    cfg.Options,
		log:     log.WithField("endpoint", string(cfg.Self)),
		fs:      fs,
		sys:     newSystem(),
		masters: make(map[string]*store.Master),
		clones:  make(map[string]*cloneHandle),
	}

	if err := e.setupRecordingDirectory(); err != nil {
		// Recording-directory failures are warnings, not fatal, per §7.
		e.log.Warnf("recording directory setup failed: %v", err)
	}

	e.clock = NewClock(cfg.Options.UseRealTime, cfg.Options.FrontendTimeout, log)
	e.transport = cfg.Transport

	dial := cfg.Dial
	if dial == nil && cfg.Transport != nil {
		dial = cfg.Transport.Dial
	}

	var resolver core.Resolver
	if cfg.DiscoveryGroup != "" {
		rr, err := core.NewReltResolver(cfg.Self, cfg.SelfNetwork, cfg.DiscoveryGroup, cfg.DiscoveryAnnounceInterval, nil, e.dispatchStatus, log)
		if err != nil {
			return nil, fmt.Errorf("joining discovery group %s: %w", cfg.DiscoveryGroup, err)
		}
		e.discovery = rr
		resolver = rr.AsResolverFunc()
	}

	e.router = core.NewRouter(core.RouterConfig{
		Self:     cfg.Self,
		Log:      log,
		Cache:    core.NewNetworkCache(resolver),
		Dial:     dial,
		Invoker:  cfg.Invoker,
		OnStatus: e.dispatchStatus,
	})
	// Options.Forward alone names no topics; callers opting into forwarding
	// still name them explicitly through Forward(topics...) below.

	return e, nil
}

func (e *Endpoint) setupRecordingDirectory() error {
	dir := e.opts.RecordingDirectory
	if dir == "" {
		return nil
	}
	if e.fs.Exists(dir) {
		if err := e.fs.RemoveAll(dir); err != nil {
			return fmt.Errorf("removing existing recording directory: %w", err)
		}
	}
	if err := e.fs.Mkdirs(dir); err != nil {
		return fmt.Errorf("creating recording directory: %w", err)
	}

	var lines []string
	for k, v := range e.opts.Dump() {
		lines = append(lines, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(lines)
	dump := ""
	for _, l := range lines {
		dump += l + "\n"
	}
	if err := e.fs.WriteFile(filepath.Join(dir, "broker.conf"), []byte(dump), 0o600); err != nil {
		return fmt.Errorf("writing configuration dump: %w", err)
	}

	w, err := record.NewWriter(e.fs, e.log, filepath.Join(dir, "recording.bin"))
	if err != nil {
		return fmt.Errorf("opening recording file: %w", err)
	}
	e.recordWriter = w
	return nil
}

// Clock exposes the endpoint's Clock.
func (e *Endpoint) Clock() *Clock { return e.clock }

// Self returns this endpoint's NodeID.
func (e *Endpoint) Self() NodeID { return e.self }

func (e *Endpoint) nextChildID(prefix string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.childSeq++
	return fmt.Sprintf("%s-%d", prefix, e.childSeq)
}

// Listen accepts inbound peering connections on address until the
// Endpoint is shut down. Each accepted link is registered with the
// router via AttachIncoming, the inbound counterpart of Peer/PeerNosync's
// outbound Dial. Requires a Transport to have been supplied at
// construction.
func (e *Endpoint) Listen(ctx context.Context, address string) error {
	if e.transport == nil {
		return fmt.Errorf("broker: Listen requires an EndpointConfig.Transport")
	}
	links, err := e.transport.Listen(ctx, address)
	if err != nil {
		return err
	}
	e.sys.spawn(ctx, func(child context.Context) {
		for {
			select {
			case <-child.Done():
				return
			case link, ok := <-links:
				if !ok {
					return
				}
				e.router.AttachIncoming(link)
			}
		}
	})
	return nil
}

// Peer synchronously peers with info, per §4.6/§4.7.
func (e *Endpoint) Peer(ctx context.Context, info NetworkInfo) (PeerInfo, error) {
	return e.router.Peer(ctx, info)
}

// PeerNosync starts peering without waiting for the outcome.
func (e *Endpoint) PeerNosync(info NetworkInfo) {
	e.router.PeerNosync(info)
}

// Unpeer removes a peering relationship.
func (e *Endpoint) Unpeer(info NetworkInfo) {
	e.router.Unpeer(info)
}

// Peers returns every known peer's PeerInfo.
func (e *Endpoint) Peers() []PeerInfo {
	return e.router.Peers()
}

// Forward marks topics as forwarded on behalf of other endpoints, per
// broker.forward.
func (e *Endpoint) Forward(topics ...Topic) {
	e.router.Forward(topics...)
}

// Publish sends d on topic: routed to local subscribers and forwarded to
// matching peers, and appended to the recording file if one is open.
func (e *Endpoint) Publish(topic Topic, d Data) error {
	if e.recordWriter != nil {
		if err := e.recordWriter.WriteData(topic, d); err != nil {
			e.log.Warnf("recording publish of %s failed: %v", topic, err)
		}
	}
	e.router.Publish(NewDataMessage(topic, d))
	return nil
}

func (e *Endpoint) dispatchStatus(ev StatusEvent) {
	e.mu.Lock()
	subs := make([]*StatusSubscriber, len(e.statusSubs))
	copy(subs, e.statusSubs)
	e.mu.Unlock()
	for _, s := range subs {
		s.deliver(ev)
	}
}

func (e *Endpoint) addStatusSubscriber(s *StatusSubscriber) {
	e.mu.Lock()
	e.statusSubs = append(e.statusSubs, s)
	e.mu.Unlock()
}

// storeDataTopic and storeCtlTopic are the reserved internal topics each
// attached store communicates on: data carries the master's committed
// command broadcast stream (and snapshot_sync installs during bootstrap's
// async buffer path is handled locally inside Clone, not over this topic);
// ctl carries the clone's snapshot_request / the master's snapshot_sync
// reply, per §4.5's master/clone wire contract.
func storeDataTopic(name string) Topic { return NewTopic("$store", name, "data") }
func storeCtlTopic(name string) Topic  { return NewTopic("$store", name, "ctl") }

// masterCommandSubscriber forwards command messages arriving on a store's
// ctl topic (snapshot_request from remote clones) into Master.Submit,
// publishing the resulting snapshot_sync back on the same ctl topic.
type masterCommandSubscriber struct {
	endpoint *Endpoint
	name     string
	master   *store.Master
}

func (s *masterCommandSubscriber) Deliver(msg Message) {
	cmd, ok := msg.Command()
	if !ok || cmd.Kind != CommandSnapshotRequest {
		return
	}
	go func() {
		reply, err := s.master.Submit(cmd)
		if err != nil {
			s.endpoint.log.Errorf("store %s: snapshot_request failed: %v", s.name, err)
			return
		}
		s.endpoint.router.Publish(NewCommandMessage(storeCtlTopic(s.name), reply))
	}()
}

// AttachMaster constructs a Master over backend, broadcasting every
// committed mutation on the store's data topic and answering
// snapshot_request on its ctl topic, per §4.5.
func (e *Endpoint) AttachMaster(name string, backend store.Backend) *store.Master {
	m := store.NewMaster(name, backend, e.clock.Now, func(cmd Command) {
		e.router.Publish(NewCommandMessage(storeDataTopic(name), cmd))
	}, e.log)

	ctlID := e.nextChildID("master-ctl")
	forwarder := &masterCommandSubscriber{endpoint: e, name: name, master: m}
	e.router.Subscribe(ctlID, Filter{storeCtlTopic(name)}, forwarder)

	e.mu.Lock()
	e.masters[name] = m
	e.mu.Unlock()
	return m
}

// AttachClone constructs a Clone over backend, subscribing to the named
// store's data topic for ongoing replication and driving bootstrap's
// snapshot_request/snapshot_sync round trip over its ctl topic, per §4.5.
func (e *Endpoint) AttachClone(name string, backend store.Backend) *store.Clone {
	ch := &cloneHandle{replyCh: make(chan Command, 1)}

	ctlFwd := &cloneCtlForwarder{handle: ch}
	ctlID := e.nextChildID("clone-ctl")
	e.router.Subscribe(ctlID, Filter{storeCtlTopic(name)}, ctlFwd)

	cl := store.NewClone(store.CloneConfig{
		Name:    name,
		Backend: backend,
		Now:     e.clock.Now,
		Log:     e.log,
		RequestSnapshot: func() (Command, error) {
			e.router.Publish(NewCommandMessage(storeCtlTopic(name), NewSnapshotRequest()))
			timeout := e.opts.FrontendTimeout
			if timeout <= 0 {
				timeout = DefaultFrontendTimeout
			}
			select {
			case cmd := <-ch.replyCh:
				return cmd, nil
			case <-time.After(timeout):
				return Command{}, ErrPeerTimeout
			}
		},
		OnStatus: e.dispatchStatus,
	})
	ch.clone = cl

	dataID := e.nextChildID("clone-data")
	dataFwd := &cloneDataForwarder{clone: cl}
	e.router.Subscribe(dataID, Filter{storeDataTopic(name)}, dataFwd)

	e.mu.Lock()
	e.clones[name] = ch
	e.mu.Unlock()
	return cl
}

// cloneDataForwarder forwards every command on a store's data topic into
// the Clone's ongoing-replication channel.
type cloneDataForwarder struct {
	clone *store.Clone
}

func (f *cloneDataForwarder) Deliver(msg Message) {
	if cmd, ok := msg.Command(); ok {
		f.clone.Apply(cmd)
	}
}

// cloneCtlForwarder routes a snapshot_sync reply into the waiting
// RequestSnapshot call instead of the Clone's ongoing-command channel,
// since bootstrap needs this specific reply correlated with its own
// pending request rather than merged into the live command stream.
type cloneCtlForwarder struct {
	handle *cloneHandle
}

func (f *cloneCtlForwarder) Deliver(msg Message) {
	cmd, ok := msg.Command()
	if !ok || cmd.Kind != CommandSnapshotSync {
		return
	}
	select {
	case f.handle.replyCh <- cmd:
	default:
	}
}

// Shutdown stops the Router, every attached Master/Clone, every spawned
// child worker, and closes the recording file (if open). AwaitStoresOnShutdown
// controls nothing further today since Master/Clone have no notion of
// draining in-flight work beyond their mailbox, matching their existing
// Shutdown semantics.
func (e *Endpoint) Shutdown() {
	e.mu.Lock()
	masters := make([]*store.Master, 0, len(e.masters))
	for _, m := range e.masters {
		masters = append(masters, m)
	}
	clones := make([]*cloneHandle, 0, len(e.clones))
	for _, c := range e.clones {
		clones = append(clones, c)
	}
	e.mu.Unlock()

	for _, m := range masters {
		m.Shutdown()
	}
	for _, c := range clones {
		c.clone.Shutdown()
	}

	e.router.Shutdown()
	e.sys.shutdown()

	if e.discovery != nil {
		if err := e.discovery.Close(); err != nil {
			e.log.Warnf("closing discovery resolver: %v", err)
		}
	}

	if e.recordWriter != nil {
		if err := e.recordWriter.Close(); err != nil {
			e.log.Warnf("closing recording file: %v", err)
		}
	}
}
