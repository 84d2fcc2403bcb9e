package badger

import (
	"bytes"

	"github.com/dgraph-io/badger/v4"

	"github.com/eigerco/kvtree/pkg/db"
)

type direction uint8

const (
	forward direction = iota
	reverse
)

// Iterator implements db.Iterator over a read-only transaction. Badger
// iterators only move in one direction, so a forward and a reverse iterator
// are opened on demand and the current position is handed between them by
// seeking.
type Iterator struct {
	txn    *badger.Txn
	fwd    *badger.Iterator
	rev    *badger.Iterator
	lo, hi []byte
	item   *badger.Item
	key    []byte
	dir    direction
}

func (it *Iterator) forward() *badger.Iterator {
	if it.fwd == nil {
		it.fwd = it.txn.NewIterator(badger.DefaultIteratorOptions)
	}
	return it.fwd
}

func (it *Iterator) reverse() *badger.Iterator {
	if it.rev == nil {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it.rev = it.txn.NewIterator(opts)
	}
	return it.rev
}

func (it *Iterator) inBounds(key []byte) bool {
	if bytes.Compare(key, it.lo) < 0 {
		return false
	}
	return it.hi == nil || bytes.Compare(key, it.hi) < 0
}

// settle records the position of src, or invalidates the iterator when src
// has left the bounds.
func (it *Iterator) settle(src *badger.Iterator, dir direction) bool {
	it.dir = dir
	if !src.Valid() {
		it.item, it.key = nil, nil
		return false
	}
	item := src.Item()
	key := item.KeyCopy(nil)
	if !it.inBounds(key) {
		it.item, it.key = nil, nil
		return false
	}
	it.item, it.key = item, key
	return true
}

func (it *Iterator) First() bool { return it.SeekGE(it.lo) }

func (it *Iterator) Last() bool {
	if it.hi == nil {
		src := it.reverse()
		src.Rewind()
		return it.settle(src, reverse)
	}
	return it.SeekLT(it.hi)
}

func (it *Iterator) SeekGE(key []byte) bool {
	if bytes.Compare(key, it.lo) < 0 {
		key = it.lo
	}
	src := it.forward()
	src.Seek(key)
	return it.settle(src, forward)
}

func (it *Iterator) SeekLT(key []byte) bool {
	if it.hi != nil && bytes.Compare(key, it.hi) > 0 {
		key = it.hi
	}
	if len(key) == 0 {
		// nothing sorts below the empty key, and badger treats an empty
		// seek key as a rewind
		it.dir, it.item, it.key = reverse, nil, nil
		return false
	}
	src := it.reverse()
	// A reverse seek lands on the largest key <= key.
	src.Seek(key)
	if src.Valid() && bytes.Equal(src.Item().Key(), key) {
		src.Next()
	}
	return it.settle(src, reverse)
}

func (it *Iterator) Next() bool {
	if it.key == nil {
		return it.First()
	}
	if it.dir == forward {
		it.fwd.Next()
		return it.settle(it.fwd, forward)
	}
	return it.SeekGE(db.KeySuccessor(it.key))
}

func (it *Iterator) Prev() bool {
	if it.key == nil {
		return it.Last()
	}
	if it.dir == reverse {
		it.rev.Next()
		return it.settle(it.rev, reverse)
	}
	return it.SeekLT(it.key)
}

func (it *Iterator) Key() []byte { return db.Copy(it.key) }

func (it *Iterator) Value() ([]byte, error) {
	if it.item == nil {
		return nil, db.ErrIteratorInvalid
	}
	return it.item.ValueCopy(nil)
}

func (it *Iterator) Valid() bool { return it.item != nil }

func (it *Iterator) Close() error {
	if it.fwd != nil {
		it.fwd.Close()
	}
	if it.rev != nil {
		it.rev.Close()
	}
	it.txn.Discard()
	it.item, it.key = nil, nil
	return nil
}
