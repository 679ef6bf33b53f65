// Package pairing provides a shared, TTL-capable store for in-flight
// device pairing codes, grounded on the teacher's BadgerDB-backed WAL
// (internal/wal/consumer_wal.go). Spec section 9 prefers "a shared cache
// with TTL" over per-process memory so pairing state survives a worker
// restart and works the same way behind a replica set.
package pairing

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/sentryfleet/sentryfleet/internal/logging"
)

// Store is a TTL-capable key/value store for pairing codes and the
// device id each one resolves to.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a BadgerDB store at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open pairing store: %w", err)
	}

	logging.Info().Str("path", path).Msg("pairing store opened")
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Put stores deviceID under code with the given time-to-live. A second
// Put for the same code before expiry overwrites it, matching the
// "regenerate on expiry" rule in spec section 4.4.
func (s *Store) Put(code, deviceID string, ttl time.Duration) error {
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(code), []byte(deviceID)).WithTTL(ttl)
		return txn.SetEntry(e)
	})
}

// Get resolves a pairing code to its device id. ok is false if the code
// was never set or has expired.
func (s *Store) Get(code string) (deviceID string, ok bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, getErr := txn.Get([]byte(code))
		if getErr == badger.ErrKeyNotFound {
			return nil
		}
		if getErr != nil {
			return getErr
		}
		ok = true
		return item.Value(func(val []byte) error {
			deviceID = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false, fmt.Errorf("get pairing code: %w", err)
	}
	return deviceID, ok, nil
}

// Delete removes a pairing code once it has been verified, preventing
// reuse.
func (s *Store) Delete(code string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(code))
	})
}

// RunGC runs BadgerDB's value-log garbage collection, reclaiming space
// from expired pairing code entries. Intended to be called periodically
// from the supervisor tree, mirroring the teacher's WAL compaction loop.
func (s *Store) RunGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	if err == badger.ErrNoRewrite {
		return nil
	}
	return err
}
