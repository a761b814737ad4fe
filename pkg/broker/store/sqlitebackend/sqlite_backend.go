// Package sqlitebackend implements store.Backend durably on top of SQLite,
// grounded on §4.1's "Durable backend" requirement and go-mcast's
// Storage-interface shape (pkg/mcast/types/storage.go), generalized from an
// in-memory map to a single-table database/sql store.
package sqlitebackend

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jabolina/broker/pkg/broker"
	"github.com/jabolina/broker/pkg/broker/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS store_entries (
	key_blob BLOB PRIMARY KEY,
	value_blob BLOB NOT NULL,
	expiry_nanos_epoch INTEGER NULL
);`

// Backend is a store.Backend backed by a single SQLite table, per §6's
// "Persisted store layout". Every mutating call commits its own
// transaction before returning, giving at-least single-operation
// durability against a process crash.
type Backend struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite-backed Backend at path.
// Use ":memory:" for a private in-process database, useful in tests that
// still want to exercise the SQL code paths.
func Open(path string) (*Backend, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitebackend: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitebackend: create schema: %w", err)
	}
	return &Backend{db: db}, nil
}

// Close releases the underlying database handle.
func (b *Backend) Close() error {
	return b.db.Close()
}

func expiryToNanos(expiry *time.Time) sql.NullInt64 {
	if expiry == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: expiry.UnixNano(), Valid: true}
}

func nanosToExpiry(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}

func (b *Backend) Put(key, value broker.Data, expiry *time.Time) error {
	valueBytes, err := broker.EncodeDataBytes(value)
	if err != nil {
		return fmt.Errorf("sqlitebackend: encode value: %w", err)
	}
	_, err = b.db.Exec(
		`INSERT INTO store_entries (key_blob, value_blob, expiry_nanos_epoch) VALUES (?, ?, ?)
		 ON CONFLICT(key_blob) DO UPDATE SET value_blob=excluded.value_blob, expiry_nanos_epoch=excluded.expiry_nanos_epoch`,
		[]byte(key.Key()), valueBytes, expiryToNanos(expiry),
	)
	if err != nil {
		return fmt.Errorf("sqlitebackend: put: %w", err)
	}
	return nil
}

func (b *Backend) Add(key, delta broker.Data, expiry *time.Time) error {
	return b.combine(key, delta, expiry, false)
}

func (b *Backend) Remove(key, delta broker.Data, expiry *time.Time) error {
	return b.combine(key, delta, expiry, true)
}

func (b *Backend) combine(key, delta broker.Data, expiry *time.Time, inverse bool) error {
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlitebackend: begin: %w", err)
	}
	defer tx.Rollback()

	keyBytes := []byte(key.Key())
	row := tx.QueryRow(`SELECT value_blob FROM store_entries WHERE key_blob = ?`, keyBytes)
	var currentBytes []byte
	var base broker.Data
	switch scanErr := row.Scan(&currentBytes); scanErr {
	case nil:
		base, err = broker.DecodeDataBytes(currentBytes)
		if err != nil {
			return fmt.Errorf("sqlitebackend: decode current value: %w", err)
		}
	case sql.ErrNoRows:
		base = broker.Identity(delta.Kind())
	default:
		return fmt.Errorf("sqlitebackend: lookup: %w", scanErr)
	}

	result, err := broker.Combine(base, delta, inverse)
	if err != nil {
		return err
	}
	resultBytes, err := broker.EncodeDataBytes(result)
	if err != nil {
		return fmt.Errorf("sqlitebackend: encode result: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO store_entries (key_blob, value_blob, expiry_nanos_epoch) VALUES (?, ?, ?)
		 ON CONFLICT(key_blob) DO UPDATE SET value_blob=excluded.value_blob, expiry_nanos_epoch=excluded.expiry_nanos_epoch`,
		keyBytes, resultBytes, expiryToNanos(expiry),
	); err != nil {
		return fmt.Errorf("sqlitebackend: combine write: %w", err)
	}
	return tx.Commit()
}

func (b *Backend) Erase(key broker.Data) error {
	_, err := b.db.Exec(`DELETE FROM store_entries WHERE key_blob = ?`, []byte(key.Key()))
	if err != nil {
		return fmt.Errorf("sqlitebackend: erase: %w", err)
	}
	return nil
}

func (b *Backend) Expire(key broker.Data) (bool, error) {
	tx, err := b.db.Begin()
	if err != nil {
		return false, fmt.Errorf("sqlitebackend: begin: %w", err)
	}
	defer tx.Rollback()

	keyBytes := []byte(key.Key())
	var expiryNanos sql.NullInt64
	err = tx.QueryRow(`SELECT expiry_nanos_epoch FROM store_entries WHERE key_blob = ?`, keyBytes).Scan(&expiryNanos)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlitebackend: lookup: %w", err)
	}
	expiry := nanosToExpiry(expiryNanos)
	if expiry == nil || expiry.After(time.Now().UTC()) {
		return false, nil
	}
	if _, err := tx.Exec(`DELETE FROM store_entries WHERE key_blob = ?`, keyBytes); err != nil {
		return false, fmt.Errorf("sqlitebackend: expire delete: %w", err)
	}
	return true, tx.Commit()
}

func (b *Backend) Get(key broker.Data) (broker.Data, error) {
	row := b.db.QueryRow(`SELECT value_blob, expiry_nanos_epoch FROM store_entries WHERE key_blob = ?`, []byte(key.Key()))
	var valueBytes []byte
	var expiryNanos sql.NullInt64
	if err := row.Scan(&valueBytes, &expiryNanos); err != nil {
		if err == sql.ErrNoRows {
			return broker.Data{}, broker.ErrNoSuchKey
		}
		return broker.Data{}, fmt.Errorf("sqlitebackend: get: %w", err)
	}
	if expiry := nanosToExpiry(expiryNanos); expiry != nil && !expiry.After(time.Now().UTC()) {
		_, _ = b.db.Exec(`DELETE FROM store_entries WHERE key_blob = ?`, []byte(key.Key()))
		return broker.Data{}, broker.ErrNoSuchKey
	}
	return broker.DecodeDataBytes(valueBytes)
}

func (b *Backend) Exists(key broker.Data) (bool, error) {
	_, err := b.Get(key)
	if err == broker.ErrNoSuchKey {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *Backend) Size() (uint64, error) {
	if err := b.sweepExpired(); err != nil {
		return 0, err
	}
	var n uint64
	if err := b.db.QueryRow(`SELECT COUNT(*) FROM store_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlitebackend: size: %w", err)
	}
	return n, nil
}

func (b *Backend) sweepExpired() error {
	_, err := b.db.Exec(`DELETE FROM store_entries WHERE expiry_nanos_epoch IS NOT NULL AND expiry_nanos_epoch <= ?`, time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("sqlitebackend: sweep: %w", err)
	}
	return nil
}

func (b *Backend) Snapshot() (broker.StoreState, error) {
	if err := b.sweepExpired(); err != nil {
		return broker.StoreState{}, err
	}
	rows, err := b.db.Query(`SELECT key_blob, value_blob, expiry_nanos_epoch FROM store_entries`)
	if err != nil {
		return broker.StoreState{}, fmt.Errorf("sqlitebackend: snapshot: %w", err)
	}
	defer rows.Close()

	state := broker.NewStoreState()
	for rows.Next() {
		var keyBytes, valueBytes []byte
		var expiryNanos sql.NullInt64
		if err := rows.Scan(&keyBytes, &valueBytes, &expiryNanos); err != nil {
			return broker.StoreState{}, fmt.Errorf("sqlitebackend: scan: %w", err)
		}
		key, err := broker.DecodeDataBytes(keyBytes)
		if err != nil {
			return broker.StoreState{}, fmt.Errorf("sqlitebackend: decode key: %w", err)
		}
		value, err := broker.DecodeDataBytes(valueBytes)
		if err != nil {
			return broker.StoreState{}, fmt.Errorf("sqlitebackend: decode value: %w", err)
		}
		state.Set(key, broker.StoreEntry{Value: value, Expiry: nanosToExpiry(expiryNanos)})
	}
	return state, rows.Err()
}

func (b *Backend) Clear() error {
	_, err := b.db.Exec(`DELETE FROM store_entries`)
	if err != nil {
		return fmt.Errorf("sqlitebackend: clear: %w", err)
	}
	return nil
}

// Restore replaces the table's entire contents with state, in one
// transaction, used when a clone applies a snapshot_sync.
func (b *Backend) Restore(state broker.StoreState) error {
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlitebackend: begin restore: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM store_entries`); err != nil {
		return fmt.Errorf("sqlitebackend: restore clear: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO store_entries (key_blob, value_blob, expiry_nanos_epoch) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlitebackend: prepare restore: %w", err)
	}
	defer stmt.Close()

	var rangeErr error
	state.Range(func(key broker.Data, entry broker.StoreEntry) bool {
		keyBytes, err := broker.EncodeDataBytes(key)
		if err != nil {
			rangeErr = err
			return false
		}
		valueBytes, err := broker.EncodeDataBytes(entry.Value)
		if err != nil {
			rangeErr = err
			return false
		}
		if _, err := stmt.Exec([]byte(keyBytes), valueBytes, expiryToNanos(entry.Expiry)); err != nil {
			rangeErr = fmt.Errorf("sqlitebackend: restore insert: %w", err)
			return false
		}
		return true
	})
	if rangeErr != nil {
		return rangeErr
	}
	return tx.Commit()
}

var _ store.Backend = (*Backend)(nil)
var _ store.Restorable = (*Backend)(nil)
