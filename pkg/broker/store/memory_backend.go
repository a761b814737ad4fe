package store

import (
	"sync"
	"time"

	"github.com/jabolina/broker/pkg/broker"
)

// MemoryBackend is the default in-memory Backend, grounded on go-mcast's
// types.InMemoryStateMachine/types.Storage pair (pkg/mcast/types/storage.go,
// state_machine.go): a thin map guarded by a mutex, generalized from opaque
// byte payloads to typed broker.Data values with per-entry expiry (I1/I2/I3
// of §3's StoreState invariants).
type MemoryBackend struct {
	mu  sync.Mutex
	now func() time.Time
	m   map[string]entry
}

type entry struct {
	key    broker.Data
	value  broker.Data
	expiry *time.Time
}

// NewMemoryBackend builds an empty MemoryBackend. now is consulted for
// expiry comparisons; pass a broker.Clock's Now method to keep the backend
// consistent with virtual time.
func NewMemoryBackend(now func() time.Time) *MemoryBackend {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryBackend{now: now, m: make(map[string]entry)}
}

func (b *MemoryBackend) expiredLocked(e entry) bool {
	return e.expiry != nil && !e.expiry.After(b.now())
}

// sweepLocked lazily removes key if it is present and expired, per
// invariant I1 ("no entry has expiry <= current clock time, enforced
// lazily"). Must be called with b.mu held.
func (b *MemoryBackend) sweepLocked(canonicalKey string) {
	if e, ok := b.m[canonicalKey]; ok && b.expiredLocked(e) {
		delete(b.m, canonicalKey)
	}
}

func (b *MemoryBackend) Put(key, value broker.Data, expiry *time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[canonical(key)] = entry{key: key, value: value, expiry: expiry}
	return nil
}

func (b *MemoryBackend) Add(key, delta broker.Data, expiry *time.Time) error {
	return b.combine(key, delta, expiry, false)
}

func (b *MemoryBackend) Remove(key, delta broker.Data, expiry *time.Time) error {
	return b.combine(key, delta, expiry, true)
}

func (b *MemoryBackend) combine(key, delta broker.Data, expiry *time.Time, inverse bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ck := canonical(key)
	b.sweepLocked(ck)

	current, ok := b.m[ck]
	var base broker.Data
	if ok {
		base = current.value
	} else {
		base = broker.Identity(delta.Kind())
	}

	result, err := broker.Combine(base, delta, inverse)
	if err != nil {
		return err
	}
	b.m[ck] = entry{key: key, value: result, expiry: expiry}
	return nil
}

func (b *MemoryBackend) Erase(key broker.Data) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.m, canonical(key))
	return nil
}

func (b *MemoryBackend) Expire(key broker.Data) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ck := canonical(key)
	e, ok := b.m[ck]
	if !ok || !b.expiredLocked(e) {
		return false, nil
	}
	delete(b.m, ck)
	return true, nil
}

func (b *MemoryBackend) Get(key broker.Data) (broker.Data, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ck := canonical(key)
	b.sweepLocked(ck)
	e, ok := b.m[ck]
	if !ok {
		return broker.Data{}, broker.ErrNoSuchKey
	}
	return e.value, nil
}

func (b *MemoryBackend) Exists(key broker.Data) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ck := canonical(key)
	b.sweepLocked(ck)
	_, ok := b.m[ck]
	return ok, nil
}

func (b *MemoryBackend) Size() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n uint64
	for ck, e := range b.m {
		if b.expiredLocked(e) {
			delete(b.m, ck)
			continue
		}
		n++
	}
	return n, nil
}

func (b *MemoryBackend) Snapshot() (broker.StoreState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	state := broker.NewStoreState()
	for ck, e := range b.m {
		if b.expiredLocked(e) {
			delete(b.m, ck)
			continue
		}
		state.Set(e.key, broker.StoreEntry{Value: e.value, Expiry: e.expiry})
	}
	return state, nil
}

func (b *MemoryBackend) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m = make(map[string]entry)
	return nil
}

// Restore replaces the backend's entire contents with state, used when a
// clone applies a snapshot_sync.
func (b *MemoryBackend) Restore(state broker.StoreState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m = make(map[string]entry, state.Len())
	state.Range(func(key broker.Data, se broker.StoreEntry) bool {
		b.m[canonical(key)] = entry{key: key, value: se.Value, expiry: se.Expiry}
		return true
	})
	return nil
}

func canonical(d broker.Data) string {
	return d.Key()
}

var _ Backend = (*MemoryBackend)(nil)
var _ Restorable = (*MemoryBackend)(nil)
