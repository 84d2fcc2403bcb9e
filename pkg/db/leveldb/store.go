// Package leveldb implements db.KVStore on goleveldb. LevelDB has no native
// range tombstones, so range deletions are expanded into point deletions
// while the store write lock is held.
package leveldb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/eigerco/kvtree/pkg/db"
	"github.com/eigerco/kvtree/pkg/log"
)

// KVStore implements db.KVStore using LevelDB.
type KVStore struct {
	db      *leveldb.DB
	path    string
	wo      *opt.WriteOptions
	closed  bool
	mu      sync.RWMutex
	writeMu sync.Mutex
}

// NewKVStore opens a LevelDB store backed by memory storage.
func NewKVStore() (*KVStore, error) {
	ldb, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb in memory: %w", err)
	}
	return &KVStore{db: ldb, wo: &opt.WriteOptions{}}, nil
}

// Open opens (or creates) a LevelDB database at path. Writes are synced.
func Open(path string) (*KVStore, error) {
	ldb, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %q: %w", path, err)
	}
	log.Storage.Debug().Str("backend", "leveldb").Str("path", path).Msg("store opened")
	return &KVStore{db: ldb, path: path, wo: &opt.WriteOptions{Sync: true}}, nil
}

func (l *KVStore) Get(key []byte) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, db.ErrClosed
	}

	val, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, db.ErrNotFound
	}
	return val, err
}

func (l *KVStore) Put(key, value []byte) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return db.ErrClosed
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.db.Put(key, value, l.wo)
}

func (l *KVStore) Delete(key []byte) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return db.ErrClosed
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.db.Delete(key, l.wo)
}

func (l *KVStore) DeleteRange(start, end []byte) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return db.ErrClosed
	}
	if db.EmptyRange(start, end) {
		return nil
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	wb := new(leveldb.Batch)
	if err := l.expandRange(wb, start, end); err != nil {
		return err
	}
	if wb.Len() == 0 {
		return nil
	}
	return l.db.Write(wb, l.wo)
}

// expandRange appends a delete for every stored key in [start, end).
// Callers hold writeMu.
func (l *KVStore) expandRange(wb *leveldb.Batch, start, end []byte) error {
	it := l.db.NewIterator(&util.Range{Start: start, Limit: end}, nil)
	for it.Next() {
		wb.Delete(db.Copy(it.Key()))
	}
	it.Release()
	return it.Error()
}

func (l *KVStore) NewIterator(start, end []byte) (db.Iterator, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, db.ErrClosed
	}

	return &Iterator{it: l.db.NewIterator(&util.Range{Start: start, Limit: end}, nil)}, nil
}

// Compact compacts the whole key space.
func (l *KVStore) Compact() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return db.ErrClosed
	}
	log.Storage.Debug().Str("backend", "leveldb").Str("path", l.path).Msg("compacting")
	return l.db.CompactRange(util.Range{})
}

// Preload reads every record once so table blocks land in the cache.
func (l *KVStore) Preload() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return db.ErrClosed
	}

	it := l.db.NewIterator(nil, nil)
	for it.Next() {
		_ = it.Value()
	}
	it.Release()
	return it.Error()
}

func (l *KVStore) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	log.Storage.Debug().Str("backend", "leveldb").Str("path", l.path).Msg("store closed")
	return l.db.Close()
}

// Iterator adapts a goleveldb iterator to db.Iterator.
type Iterator struct {
	it iterator.Iterator
}

func (i *Iterator) First() bool { return i.it.First() }

func (i *Iterator) Last() bool { return i.it.Last() }

func (i *Iterator) SeekGE(key []byte) bool { return i.it.Seek(key) }

func (i *Iterator) SeekLT(key []byte) bool {
	if i.it.Seek(key) {
		return i.it.Prev()
	}
	return i.it.Last()
}

// Next and Prev re-position an iterator that is not on a key, matching the
// pebble backend.
func (i *Iterator) Next() bool {
	if !i.it.Valid() {
		return i.it.First()
	}
	return i.it.Next()
}

func (i *Iterator) Prev() bool {
	if !i.it.Valid() {
		return i.it.Last()
	}
	return i.it.Prev()
}

func (i *Iterator) Key() []byte { return db.Copy(i.it.Key()) }

func (i *Iterator) Value() ([]byte, error) {
	if !i.it.Valid() {
		return nil, db.ErrIteratorInvalid
	}
	return db.Copy(i.it.Value()), nil
}

func (i *Iterator) Valid() bool { return i.it.Valid() }

func (i *Iterator) Close() error {
	i.it.Release()
	return i.it.Error()
}
