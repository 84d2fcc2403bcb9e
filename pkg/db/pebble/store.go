package pebble

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/eigerco/kvtree/pkg/db"
	"github.com/eigerco/kvtree/pkg/log"
)

// KVStore implements db.KVStore on top of pebble.
type KVStore struct {
	db     *pebble.DB
	write  *pebble.WriteOptions
	path   string
	closed bool
	mu     sync.RWMutex
}

// NewKVStore opens a pebble store kept entirely in memory.
func NewKVStore(options ...Option) (*KVStore, error) {
	cfg, err := newConfig(options)
	if err != nil {
		return nil, err
	}
	opts := cfg.pebbleOptions()
	opts.FS = vfs.NewMem()
	return open("", opts, cfg)
}

// Open opens (or creates) a pebble store at path.
func Open(path string, options ...Option) (*KVStore, error) {
	cfg, err := newConfig(options)
	if err != nil {
		return nil, err
	}
	return open(path, cfg.pebbleOptions(), cfg)
}

func open(path string, opts *pebble.Options, cfg config) (*KVStore, error) {
	defer opts.Cache.Unref()

	pdb, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble %q: %w", path, err)
	}
	log.Storage.Debug().Str("backend", "pebble").Str("path", path).Msg("store opened")
	return &KVStore{db: pdb, write: cfg.writeOptions(), path: path}, nil
}

func (p *KVStore) Get(key []byte) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrClosed
	}

	value, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

func (p *KVStore) Put(key, value []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	return p.db.Set(key, value, p.write)
}

func (p *KVStore) Delete(key []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	return p.db.Delete(key, p.write)
}

func (p *KVStore) DeleteRange(start, end []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	end, ok, err := p.rangeEnd(end, nil)
	if err != nil || !ok {
		return err
	}
	if db.EmptyRange(start, end) {
		return nil
	}
	return p.db.DeleteRange(start, end, p.write)
}

// rangeEnd turns an unbounded range end into a concrete one: the successor of
// the greatest key currently stored, or of floor when that is greater. ok is
// false when there is nothing to delete.
func (p *KVStore) rangeEnd(end, floor []byte) ([]byte, bool, error) {
	if end != nil {
		return end, true, nil
	}
	last, found, err := p.lastKey()
	if err != nil {
		return nil, false, err
	}
	if floor != nil && (!found || bytes.Compare(floor, last) > 0) {
		last, found = floor, true
	}
	if !found {
		return nil, false, nil
	}
	return db.KeySuccessor(last), true, nil
}

func (p *KVStore) lastKey() ([]byte, bool, error) {
	iter, err := p.db.NewIter(nil)
	if err != nil {
		return nil, false, fmt.Errorf(ErrInIteratorCreation, err)
	}
	var last []byte
	found := iter.Last()
	if found {
		last = db.Copy(iter.Key())
	}
	if err := iter.Close(); err != nil {
		return nil, false, err
	}
	return last, found, nil
}

// Compact flushes the memtable and compacts the whole key space.
func (p *KVStore) Compact() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	if err := p.db.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	iter, err := p.db.NewIter(nil)
	if err != nil {
		return fmt.Errorf(ErrInIteratorCreation, err)
	}
	var first, last []byte
	if iter.First() {
		first = db.Copy(iter.Key())
		iter.Last()
		last = db.Copy(iter.Key())
	}
	if err := iter.Close(); err != nil {
		return err
	}
	if first == nil {
		return nil
	}
	log.Storage.Debug().Str("backend", "pebble").Str("path", p.path).Msg("compacting")
	return p.db.Compact(first, db.KeySuccessor(last), true)
}

// Preload reads every record once so it lands in the block cache.
func (p *KVStore) Preload() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	iter, err := p.db.NewIter(nil)
	if err != nil {
		return fmt.Errorf(ErrInIteratorCreation, err)
	}
	for valid := iter.First(); valid; valid = iter.Next() {
		if _, err := iter.ValueAndErr(); err != nil {
			iter.Close() //nolint:errcheck // value error takes precedence
			return fmt.Errorf(ErrIteratorValue, err)
		}
	}
	return iter.Close()
}

func (p *KVStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	log.Storage.Debug().Str("backend", "pebble").Str("path", p.path).Msg("store closed")
	return p.db.Close()
}
