package store

import (
	"sync"
	"time"

	"github.com/jabolina/broker/pkg/broker"
	"github.com/jabolina/broker/pkg/broker/definition"
)

// CloneState is a clone's position in the §4.5 lifecycle.
type CloneState uint8

const (
	CloneBootstrap CloneState = iota
	CloneSynced
	CloneStale
	CloneDisconnected
)

func (s CloneState) String() string {
	switch s {
	case CloneBootstrap:
		return "bootstrap"
	case CloneSynced:
		return "synced"
	case CloneStale:
		return "stale"
	case CloneDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Restorable backends can be reset wholesale to a snapshot, used when a
// clone installs a snapshot_sync. MemoryBackend and sqlitebackend.Backend
// both implement it.
type Restorable interface {
	Restore(state broker.StoreState) error
}

type snapshotResult struct {
	cmd broker.Command
	err error
}

// Clone maintains a local Backend kept in sync with a Master's command
// stream, per §4.5. It is an actor: a single goroutine owning the backend,
// grounded on go-mcast's Peer.poll loop the same way Master is.
type Clone struct {
	name string

	backend Backend
	now     func() time.Time
	log     definition.Logger

	requestSnapshot func() (broker.Command, error)
	findMaster      func() error
	onStatus        func(broker.StatusEvent)

	mutationBufferInterval time.Duration
	staleInterval          time.Duration
	resyncInterval         time.Duration

	incoming chan broker.Command
	done     chan struct{}

	mu          sync.Mutex
	state       CloneState
	lastContact time.Time
	lastResync  time.Time
}

// CloneConfig bundles a Clone's collaborators: the callbacks it uses to
// talk to its master and report status, and the interval defaults from
// §4.5 (zero values fall back to the package defaults).
type CloneConfig struct {
	Name                   string
	Backend                Backend
	Now                    func() time.Time
	Log                    definition.Logger
	RequestSnapshot        func() (broker.Command, error)
	FindMaster             func() error
	OnStatus               func(broker.StatusEvent)
	MutationBufferInterval time.Duration
	StaleInterval          time.Duration
	ResyncInterval         time.Duration
}

// NewClone constructs and starts a Clone.
func NewClone(cfg CloneConfig) *Clone {
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	log := cfg.Log
	if log == nil {
		log = definition.NewDefaultLogger()
	}
	mb, stale, resync := cfg.MutationBufferInterval, cfg.StaleInterval, cfg.ResyncInterval
	if mb == 0 {
		mb = broker.DefaultMutationBufferInterval
	}
	if stale == 0 {
		stale = broker.DefaultStaleInterval
	}
	if resync == 0 {
		resync = broker.DefaultResyncInterval
	}

	c := &Clone{
		name:                   cfg.Name,
		backend:                cfg.Backend,
		now:                    now,
		log:                    log.WithField("store", cfg.Name).WithField("role", "clone"),
		requestSnapshot:        cfg.RequestSnapshot,
		findMaster:             cfg.FindMaster,
		onStatus:               cfg.OnStatus,
		mutationBufferInterval: mb,
		staleInterval:          stale,
		resyncInterval:         resync,
		incoming:               make(chan broker.Command, 256),
		done:                   make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Clone) Name() string { return c.name }

// Backend exposes the underlying Backend for local (possibly stale) reads.
func (c *Clone) Backend() Backend { return c.backend }

// State reports the clone's current lifecycle state.
func (c *Clone) State() CloneState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Apply enqueues a command received on the clone's topic for in-order
// processing. Ordering is guaranteed by the caller (the transport is a
// single stream from master to clone, per §4.5).
func (c *Clone) Apply(cmd broker.Command) {
	select {
	case c.incoming <- cmd:
	case <-c.done:
	}
}

// Shutdown stops the clone's actor loop.
func (c *Clone) Shutdown() {
	close(c.done)
}

func (c *Clone) setState(s CloneState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Clone) emit(kind broker.StatusKind, message string) {
	if c.onStatus == nil {
		return
	}
	c.onStatus(broker.StatusEvent{Kind: kind, Topic: broker.Topic(c.name), Message: message})
}

func (c *Clone) run() {
	defer c.log.Debug("clone actor stopped")
	c.bootstrap()

	ticker := time.NewTicker(c.staleInterval / 4)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case cmd := <-c.incoming:
			c.onCommand(cmd)
		case <-ticker.C:
			c.checkHealth()
		}
	}
}

// bootstrap sends a snapshot_request and buffers concurrently arriving
// commands until the snapshot reply arrives, then installs the snapshot
// and replays the buffer, per §4.5's Bootstrap step. mutationBufferInterval
// neither ends the wait nor limits the buffer.
func (c *Clone) bootstrap() {
	c.setState(CloneBootstrap)
	if c.requestSnapshot == nil {
		c.setState(CloneSynced)
		c.lastContact = c.now()
		return
	}

	result := make(chan snapshotResult, 1)
	go func() {
		cmd, err := c.requestSnapshot()
		result <- snapshotResult{cmd: cmd, err: err}
	}()

	var buffered []broker.Command
	deadline := time.After(c.mutationBufferInterval)
	for {
		select {
		case <-c.done:
			return
		case cmd := <-c.incoming:
			buffered = append(buffered, cmd)
		case <-deadline:
			// Keep waiting for the snapshot reply even after the buffer
			// window elapses; the deadline firing has no effect.
		case res := <-result:
			if res.err != nil {
				c.log.Warnf("snapshot request for store %s failed: %v", c.name, res.err)
				c.emit(broker.StatusMasterUnavailable, res.err.Error())
				c.setState(CloneDisconnected)
				c.lastResync = c.now()
				return
			}
			state := res.cmd.State
			if restorable, ok := c.backend.(Restorable); ok {
				if err := restorable.Restore(state); err != nil {
					c.log.Errorf("restoring snapshot for store %s failed: %v", c.name, err)
				}
			} else {
				c.backend.Clear()
				state.Range(func(key broker.Data, e broker.StoreEntry) bool {
					c.backend.Put(key, e.Value, e.Expiry)
					return true
				})
			}
			for _, bc := range buffered {
				_ = Apply(c.backend, bc, c.now())
			}
			c.setState(CloneSynced)
			c.lastContact = c.now()
			return
		}
	}
}

func (c *Clone) onCommand(cmd broker.Command) {
	if cmd.Kind == broker.CommandSnapshotSync {
		if restorable, ok := c.backend.(Restorable); ok {
			if err := restorable.Restore(cmd.State); err != nil {
				c.log.Errorf("restoring snapshot_sync for store %s failed: %v", c.name, err)
			}
		}
		c.lastContact = c.now()
		if c.State() != CloneSynced {
			c.setState(CloneSynced)
		}
		return
	}
	if err := Apply(c.backend, cmd, c.now()); err != nil {
		c.log.Errorf("clone %s failed applying %s: %v", c.name, cmd.Kind, err)
		return
	}
	c.lastContact = c.now()
	if c.State() == CloneStale {
		c.setState(CloneSynced)
	}
}

// checkHealth marks the clone Stale once staleInterval has elapsed since
// the last master communication, and attempts a resync every
// resyncInterval while disconnected, per §4.5's Stale/Resync steps.
func (c *Clone) checkHealth() {
	now := c.now()
	state := c.State()

	if state == CloneSynced && now.Sub(c.lastContact) > c.staleInterval {
		c.setState(CloneStale)
		c.emit(broker.StatusCloneConnectionLost, "no master communication within stale interval")
	}

	if state == CloneStale || state == CloneDisconnected {
		if now.Sub(c.lastResync) < c.resyncInterval {
			return
		}
		c.lastResync = now
		if c.findMaster == nil {
			return
		}
		if err := c.findMaster(); err != nil {
			c.log.Debugf("resync attempt for store %s failed: %v", c.name, err)
			return
		}
		c.bootstrap()
	}
}
