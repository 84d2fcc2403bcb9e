package pebble

import (
	"bytes"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/eigerco/kvtree/pkg/db"
)

type Batch struct {
	store *KVStore
	batch *pebble.Batch
	// greatest key written so far, used to bound unbounded range deletions
	maxKey []byte
	done   atomic.Bool
	closed atomic.Bool
}

func (p *KVStore) NewBatch() db.Batch {
	return &Batch{
		store: p,
		batch: p.db.NewBatch(),
	}
}

func (b *Batch) Put(key, value []byte) error {
	if b.done.Load() {
		return ErrBatchDone
	}
	b.track(key)
	return b.batch.Set(key, value, nil)
}

func (b *Batch) Delete(key []byte) error {
	if b.done.Load() {
		return ErrBatchDone
	}
	return b.batch.Delete(key, nil)
}

func (b *Batch) DeleteRange(start, end []byte) error {
	if b.done.Load() {
		return ErrBatchDone
	}

	b.store.mu.RLock()
	defer b.store.mu.RUnlock()
	if b.store.closed {
		return ErrClosed
	}

	end, ok, err := b.store.rangeEnd(end, b.maxKey)
	if err != nil || !ok {
		return err
	}
	if db.EmptyRange(start, end) {
		return nil
	}
	return b.batch.DeleteRange(start, end, nil)
}

func (b *Batch) track(key []byte) {
	if b.maxKey == nil || bytes.Compare(key, b.maxKey) > 0 {
		b.maxKey = db.Copy(key)
	}
}

func (b *Batch) Commit() error {
	if b.done.Load() {
		return ErrBatchDone
	}

	b.store.mu.RLock()
	defer b.store.mu.RUnlock()
	if b.store.closed {
		return ErrClosed
	}

	if err := b.batch.Commit(b.store.write); err != nil {
		return err
	}
	b.done.Store(true)
	return nil
}

func (b *Batch) Close() error {
	b.done.Store(true)
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.batch.Close()
}
