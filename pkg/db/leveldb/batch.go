package leveldb

import (
	"bytes"
	"sync/atomic"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/eigerco/kvtree/pkg/db"
)

type opKind uint8

const (
	opPut opKind = iota
	opDelete
	opDeleteRange
)

type batchOp struct {
	kind       opKind
	key, value []byte
	end        []byte
}

// Batch records operations and turns them into a single leveldb.Batch at
// commit time, once range deletions can be resolved against stored keys.
type Batch struct {
	store *KVStore
	ops   []batchOp
	done  atomic.Bool
}

func (l *KVStore) NewBatch() db.Batch {
	return &Batch{store: l}
}

func (b *Batch) Put(key, value []byte) error {
	if b.done.Load() {
		return db.ErrBatchDone
	}
	b.ops = append(b.ops, batchOp{kind: opPut, key: db.Copy(key), value: db.Copy(value)})
	return nil
}

func (b *Batch) Delete(key []byte) error {
	if b.done.Load() {
		return db.ErrBatchDone
	}
	b.ops = append(b.ops, batchOp{kind: opDelete, key: db.Copy(key)})
	return nil
}

func (b *Batch) DeleteRange(start, end []byte) error {
	if b.done.Load() {
		return db.ErrBatchDone
	}
	if db.EmptyRange(start, end) {
		return nil
	}
	b.ops = append(b.ops, batchOp{kind: opDeleteRange, key: db.Copy(start), end: db.Copy(end)})
	return nil
}

func (b *Batch) Commit() error {
	if b.done.Load() {
		return db.ErrBatchDone
	}

	l := b.store
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return db.ErrClosed
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	wb := new(leveldb.Batch)
	// keys put earlier in this batch, so a later range deletion covers them
	var pending [][]byte
	for _, op := range b.ops {
		switch op.kind {
		case opPut:
			wb.Put(op.key, op.value)
			pending = append(pending, op.key)
		case opDelete:
			wb.Delete(op.key)
		case opDeleteRange:
			if err := l.expandRange(wb, op.key, op.end); err != nil {
				return err
			}
			for _, k := range pending {
				if bytes.Compare(k, op.key) >= 0 && (op.end == nil || bytes.Compare(k, op.end) < 0) {
					wb.Delete(k)
				}
			}
		}
	}

	if wb.Len() > 0 {
		if err := l.db.Write(wb, l.wo); err != nil {
			return err
		}
	}
	b.done.Store(true)
	b.ops = nil
	return nil
}

func (b *Batch) Close() error {
	b.done.Store(true)
	b.ops = nil
	return nil
}
