package broker

import "time"

// CommandKind tags the variant of a store Command.
type CommandKind uint8

const (
	CommandPut CommandKind = iota
	CommandAdd
	CommandRemove
	CommandErase
	CommandExpire
	CommandClear
	CommandSnapshotRequest
	CommandSnapshotSync
)

func (k CommandKind) String() string {
	switch k {
	case CommandPut:
		return "put"
	case CommandAdd:
		return "add"
	case CommandRemove:
		return "remove"
	case CommandErase:
		return "erase"
	case CommandExpire:
		return "expire"
	case CommandClear:
		return "clear"
	case CommandSnapshotRequest:
		return "snapshot_request"
	case CommandSnapshotSync:
		return "snapshot_sync"
	default:
		return "unknown"
	}
}

// Command is the tagged sum of store mutations carried on a store's
// reserved internal topic, per §3's Message/Command data model.
type Command struct {
	Kind   CommandKind
	Key    Data
	Value  Data
	Expiry *time.Time

	// State and SequenceNumber are only meaningful for CommandSnapshotSync:
	// the clone's entire state plus the master's command sequence number
	// at the instant the snapshot was taken.
	State          StoreState
	SequenceNumber uint64
}

// NewPut builds a put(key, value, expiry?) command.
func NewPut(key, value Data, expiry *time.Time) Command {
	return Command{Kind: CommandPut, Key: key, Value: value, Expiry: expiry}
}

// NewAdd builds an add(key, value, expiry?) command.
func NewAdd(key, value Data, expiry *time.Time) Command {
	return Command{Kind: CommandAdd, Key: key, Value: value, Expiry: expiry}
}

// NewRemove builds a remove(key, value, expiry?) command.
func NewRemove(key, value Data, expiry *time.Time) Command {
	return Command{Kind: CommandRemove, Key: key, Value: value, Expiry: expiry}
}

// NewErase builds an erase(key) command.
func NewErase(key Data) Command {
	return Command{Kind: CommandErase, Key: key}
}

// NewExpire builds an expire(key) command.
func NewExpire(key Data) Command {
	return Command{Kind: CommandExpire, Key: key}
}

// NewClear builds a clear command.
func NewClear() Command {
	return Command{Kind: CommandClear}
}

// NewSnapshotRequest builds a snapshot_request command, issued by a clone
// during bootstrap.
func NewSnapshotRequest() Command {
	return Command{Kind: CommandSnapshotRequest}
}

// NewSnapshotSync builds a snapshot_sync(state) command, the master's
// reply to a snapshot_request.
func NewSnapshotSync(state StoreState, seq uint64) Command {
	return Command{Kind: CommandSnapshotSync, State: state, SequenceNumber: seq}
}

// IsMutating reports whether applying this command to a Backend changes
// its state (as opposed to snapshot_request/snapshot_sync bookkeeping).
func (c Command) IsMutating() bool {
	switch c.Kind {
	case CommandPut, CommandAdd, CommandRemove, CommandErase, CommandExpire, CommandClear:
		return true
	default:
		return false
	}
}

// StoreEntry is one (value, optional expiry) record of a StoreState.
type StoreEntry struct {
	Value  Data
	Expiry *time.Time
}

// StoreState is a mapping from Data key to (value, optional expiry),
// keyed internally by the key's canonical encoding so arbitrary Data keys
// can be used, per §3.
type StoreState struct {
	entries map[string]storeStateEntry
}

type storeStateEntry struct {
	key   Data
	entry StoreEntry
}

// NewStoreState builds an empty StoreState.
func NewStoreState() StoreState {
	return StoreState{entries: make(map[string]storeStateEntry)}
}

// Set inserts or overwrites the record for key.
func (s *StoreState) Set(key Data, entry StoreEntry) {
	if s.entries == nil {
		s.entries = make(map[string]storeStateEntry)
	}
	s.entries[key.canonicalKey()] = storeStateEntry{key: key, entry: entry}
}

// Delete removes the record for key, if any.
func (s *StoreState) Delete(key Data) {
	delete(s.entries, key.canonicalKey())
}

// Get returns the record for key, if present.
func (s StoreState) Get(key Data) (StoreEntry, bool) {
	e, ok := s.entries[key.canonicalKey()]
	return e.entry, ok
}

// Len reports the number of entries.
func (s StoreState) Len() int { return len(s.entries) }

// Range iterates all (key, entry) pairs in an unspecified order, stopping
// early if fn returns false.
func (s StoreState) Range(fn func(key Data, entry StoreEntry) bool) {
	for _, e := range s.entries {
		if !fn(e.key, e.entry) {
			return
		}
	}
}

// Equal reports whether two snapshots hold the same (key, value, expiry)
// triples, ignoring iteration order. Expiry is compared by wall-clock
// equality (both nil, or both set to the same instant).
func (s StoreState) Equal(other StoreState) bool {
	if len(s.entries) != len(other.entries) {
		return false
	}
	for k, e := range s.entries {
		oe, ok := other.entries[k]
		if !ok || !e.entry.Value.Equal(oe.entry.Value) {
			return false
		}
		if (e.entry.Expiry == nil) != (oe.entry.Expiry == nil) {
			return false
		}
		if e.entry.Expiry != nil && !e.entry.Expiry.Equal(*oe.entry.Expiry) {
			return false
		}
	}
	return true
}
