package store

import (
	"time"

	"github.com/jabolina/broker/pkg/broker"
	"github.com/jabolina/broker/pkg/broker/definition"
)

// Broadcaster sends a committed command to every attached clone on the
// store's reserved clone topic. The core router supplies the production
// implementation; tests can substitute a recording fake.
type Broadcaster func(cmd broker.Command)

type masterRequest struct {
	cmd   broker.Command
	reply chan masterReply
}

type masterReply struct {
	cmd broker.Command
	err error
}

// Master owns a Backend and processes incoming commands sequentially,
// broadcasting each successfully-applied mutation to attached clones and
// answering snapshot_request with a snapshot_sync, per §4.5. It is an
// actor: a goroutine with a private mailbox, grounded on go-mcast's
// Peer.poll/Peer.process loop (pkg/mcast/core/peer.go).
type Master struct {
	name      string
	backend   Backend
	now       func() time.Time
	log       definition.Logger
	broadcast Broadcaster

	mailbox chan masterRequest
	done    chan struct{}
	seq     uint64
}

// NewMaster constructs and starts a Master for the given store name.
func NewMaster(name string, backend Backend, now func() time.Time, broadcast Broadcaster, log definition.Logger) *Master {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if log == nil {
		log = definition.NewDefaultLogger()
	}
	m := &Master{
		name:      name,
		backend:   backend,
		now:       now,
		log:       log.WithField("store", name).WithField("role", "master"),
		broadcast: broadcast,
		mailbox:   make(chan masterRequest, 64),
		done:      make(chan struct{}),
	}
	go m.run()
	return m
}

// Name returns the store's name.
func (m *Master) Name() string { return m.name }

// Submit applies cmd to the master's backend, broadcasts it, and returns the
// committed command unchanged (for a snapshot_request, the snapshot_sync
// reply instead). Commands from concurrent callers
// are serialized in arrival order at the master's mailbox (§4.5
// Consistency).
func (m *Master) Submit(cmd broker.Command) (broker.Command, error) {
	reply := make(chan masterReply, 1)
	select {
	case m.mailbox <- masterRequest{cmd: cmd, reply: reply}:
	case <-m.done:
		return broker.Command{}, broker.ErrShuttingDown
	}
	r := <-reply
	return r.cmd, r.err
}

// Backend exposes the underlying Backend for direct (non-replicated) reads
// from the application that owns this master.
func (m *Master) Backend() Backend { return m.backend }

// Shutdown stops the master's actor loop.
func (m *Master) Shutdown() {
	close(m.done)
}

func (m *Master) run() {
	defer m.log.Debug("master actor stopped")
	for {
		select {
		case <-m.done:
			return
		case req := <-m.mailbox:
			m.process(req)
		}
	}
}

func (m *Master) process(req masterRequest) {
	cmd := req.cmd

	if cmd.Kind == broker.CommandSnapshotRequest {
		state, err := m.backend.Snapshot()
		if err != nil {
			req.reply <- masterReply{err: err}
			return
		}
		// seq reports the number of mutations applied so far; a
		// snapshot_request is a read, so it is answered with the current
		// count rather than bumping it.
		reply := broker.NewSnapshotSync(state, m.seq)
		req.reply <- masterReply{cmd: reply}
		return
	}

	if err := Apply(m.backend, cmd, m.now()); err != nil {
		m.log.Errorf("applying %s for store %s failed: %v", cmd.Kind, m.name, err)
		req.reply <- masterReply{err: err}
		return
	}
	m.seq++
	if m.broadcast != nil {
		m.broadcast(cmd)
	}
	req.reply <- masterReply{cmd: cmd}
}
