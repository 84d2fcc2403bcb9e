package badger

import (
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

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

// Batch replays its operations inside a single read-write transaction on
// commit.
type Batch struct {
	store *KVStore
	ops   []batchOp
	done  atomic.Bool
}

func (s *KVStore) NewBatch() db.Batch {
	return &Batch{store: s}
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

	s := b.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return db.ErrClosed
	}

	if len(b.ops) > 0 {
		err := s.db.Update(func(txn *badger.Txn) error {
			for _, op := range b.ops {
				var err error
				switch op.kind {
				case opPut:
					err = txn.Set(op.key, op.value)
				case opDelete:
					err = txn.Delete(op.key)
				case opDeleteRange:
					err = deleteRange(txn, op.key, op.end)
				}
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
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
