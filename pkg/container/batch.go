package container

import (
	"fmt"
	"sync/atomic"

	"github.com/eigerco/kvtree/pkg/db"
)

type opKind uint8

const (
	opPut opKind = iota
	opDelete
	opDeleteRange
)

type batchOp struct {
	kind  opKind
	key   []byte
	value []byte
	end   []byte
}

// Batch is an ordered log of writes that take effect together on Commit.
// Keys are rewritten through the view the batch was created from when they
// are recorded. A Batch is meant for a single goroutine.
type Batch struct {
	root *root
	view *View
	ops  []batchOp
	done atomic.Bool
}

func (b *Batch) Put(key, value []byte) error {
	if b.done.Load() {
		return db.ErrBatchDone
	}
	b.ops = append(b.ops, batchOp{kind: opPut, key: b.view.key(key), value: db.Copy(value)})
	return nil
}

func (b *Batch) Delete(key []byte) error {
	if b.done.Load() {
		return db.ErrBatchDone
	}
	b.ops = append(b.ops, batchOp{kind: opDelete, key: b.view.key(key)})
	return nil
}

// DeleteRange records the removal of [begin, end) as seen by the batch's
// view. An empty end means the end of the view.
func (b *Batch) DeleteRange(begin, end []byte) error {
	if b.done.Load() {
		return db.ErrBatchDone
	}
	lo, hi := b.view.span(begin, end)
	if db.EmptyRange(lo, hi) {
		return nil
	}
	b.ops = append(b.ops, batchOp{kind: opDeleteRange, key: lo, end: hi})
	return nil
}

// Len returns the number of recorded operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Commit applies the recorded operations in order as one atomic write.
// Committing an empty batch succeeds without touching the store. A batch
// can be committed once; later calls return db.ErrBatchDone. When the
// backend rejects the write the batch stays uncommitted.
func (b *Batch) Commit() error {
	if b.done.Load() {
		return db.ErrBatchDone
	}
	if len(b.ops) == 0 {
		b.done.Store(true)
		return nil
	}

	wb := b.root.store.NewBatch()
	defer wb.Close() //nolint:errcheck // close after commit only releases resources

	for i, op := range b.ops {
		var err error
		switch op.kind {
		case opPut:
			err = wb.Put(op.key, op.value)
		case opDelete:
			err = wb.Delete(op.key)
		case opDeleteRange:
			err = wb.DeleteRange(op.key, op.end)
		}
		if err != nil {
			return fmt.Errorf("replay op %d: %w", i, err)
		}
	}

	if err := wb.Commit(); err != nil {
		return err
	}
	b.done.Store(true)
	return nil
}

// Discard drops the batch. Later writes and commits return db.ErrBatchDone.
func (b *Batch) Discard() {
	b.done.Store(true)
	b.ops = nil
}
