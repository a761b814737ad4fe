// Package store implements the replicated key-value engine: the Backend
// storage contract (§4.1), and the Master/Clone actors built on top of it
// (§4.5).
package store

import (
	"time"

	"github.com/jabolina/broker/pkg/broker"
)

// Backend is the storage contract every master (and, transitively, every
// clone) is built on, per §4.1. Two implementations ship with this
// package: MemoryBackend (this package) and sqlitebackend.Backend
// (durable).
type Backend interface {
	// Put unconditionally sets key to (value, expiry). Fails only on
	// backend I/O error.
	Put(key, value broker.Data, expiry *time.Time) error

	// Add applies §4.1's arithmetic/collection addition. Returns
	// broker.ErrTypeClash if the operand types are incompatible; the key's
	// current value is left unchanged in that case.
	Add(key, delta broker.Data, expiry *time.Time) error

	// Remove is Add's inverse where meaningful. Returns broker.ErrTypeClash
	// otherwise.
	Remove(key, delta broker.Data, expiry *time.Time) error

	// Erase deletes key. Erasing an absent key is not an error.
	Erase(key broker.Data) error

	// Expire erases key and returns true if it exists and its expiry is
	// at or before now; otherwise returns false without modifying state.
	Expire(key broker.Data) (bool, error)

	// Get returns the value stored at key, or broker.ErrNoSuchKey.
	Get(key broker.Data) (broker.Data, error)

	// Exists reports whether key is currently present (and not expired).
	Exists(key broker.Data) (bool, error)

	// Size returns the current live entry count.
	Size() (uint64, error)

	// Snapshot returns every non-expired (key, value, expiry) as of the
	// call instant.
	Snapshot() (broker.StoreState, error)

	// Clear removes every entry.
	Clear() error
}

// Apply executes cmd against backend by dispatching to the matching Backend
// method; Master and Clone both use it. now is not consulted: the
// arithmetic and expiry checks live in the Backend implementations.
func Apply(backend Backend, cmd broker.Command, now time.Time) error {
	switch cmd.Kind {
	case broker.CommandPut:
		return backend.Put(cmd.Key, cmd.Value, cmd.Expiry)
	case broker.CommandAdd:
		return backend.Add(cmd.Key, cmd.Value, cmd.Expiry)
	case broker.CommandRemove:
		return backend.Remove(cmd.Key, cmd.Value, cmd.Expiry)
	case broker.CommandErase:
		return backend.Erase(cmd.Key)
	case broker.CommandExpire:
		_, err := backend.Expire(cmd.Key)
		return err
	case broker.CommandClear:
		return backend.Clear()
	default:
		// snapshot_request / snapshot_sync are not backend mutations; the
		// Master/Clone actors handle them directly.
		return nil
	}
}
