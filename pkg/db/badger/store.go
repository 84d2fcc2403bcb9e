// Package badger implements db.KVStore on BadgerDB. Badger rejects empty
// keys, so the empty key cannot be stored through this backend.
package badger

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/eigerco/kvtree/pkg/db"
	"github.com/eigerco/kvtree/pkg/log"
)

type KVStore struct {
	db       *badger.DB
	path     string
	inMemory bool
	closed   bool
	mu       sync.RWMutex
}

// NewKVStore opens a Badger store in in-memory mode.
func NewKVStore() (*KVStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	return open(opts, "", true)
}

// Open opens (or creates) a Badger store at path.
func Open(path string, options ...Option) (*KVStore, error) {
	cfg := config{
		valueLogFileSize: defaultValueLogFileSize,
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(&cfg); err != nil {
			return nil, err
		}
	}

	opts := badger.DefaultOptions(path).
		WithValueLogFileSize(cfg.valueLogFileSize).
		WithSyncWrites(cfg.syncWrites)
	return open(opts, path, false)
}

func open(opts badger.Options, path string, inMemory bool) (*KVStore, error) {
	opts = opts.WithLogger(zerologAdapter{l: log.Storage.With().Str("backend", "badger").Logger()})

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %q: %w", path, err)
	}
	log.Storage.Debug().Str("backend", "badger").Str("path", path).Msg("store opened")
	return &KVStore{db: bdb, path: path, inMemory: inMemory}, nil
}

func (s *KVStore) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, db.ErrClosed
	}

	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, db.ErrNotFound
	}
	return val, err
}

func (s *KVStore) Put(key, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return db.ErrClosed
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(db.Copy(key), db.Copy(value))
	})
}

func (s *KVStore) Delete(key []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return db.ErrClosed
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(db.Copy(key))
	})
}

func (s *KVStore) DeleteRange(start, end []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return db.ErrClosed
	}
	if db.EmptyRange(start, end) {
		return nil
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return deleteRange(txn, start, end)
	})
}

// deleteRange deletes every key of [start, end) visible to txn, including
// writes still pending in it.
func deleteRange(txn *badger.Txn, start, end []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)

	var keys [][]byte
	for it.Seek(start); it.Valid(); it.Next() {
		key := it.Item().KeyCopy(nil)
		if end != nil && bytes.Compare(key, end) >= 0 {
			break
		}
		keys = append(keys, key)
	}
	it.Close()

	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (s *KVStore) NewIterator(start, end []byte) (db.Iterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, db.ErrClosed
	}

	return &Iterator{
		txn: s.db.NewTransaction(false),
		lo:  db.Copy(start),
		hi:  db.Copy(end),
	}, nil
}

// Compact flattens the LSM tree and reclaims value log space. It does
// nothing for in-memory stores.
func (s *KVStore) Compact() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return db.ErrClosed
	}
	if s.inMemory {
		return nil
	}

	log.Storage.Debug().Str("backend", "badger").Str("path", s.path).Msg("compacting")
	if err := s.db.Flatten(2); err != nil {
		return fmt.Errorf("flatten: %w", err)
	}
	for {
		err := s.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("value log gc: %w", err)
		}
	}
}

// Preload reads every record once.
func (s *KVStore) Preload() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return db.ErrClosed
	}

	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(func([]byte) error { return nil }); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *KVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	log.Storage.Debug().Str("backend", "badger").Str("path", s.path).Msg("store closed")
	return s.db.Close()
}
