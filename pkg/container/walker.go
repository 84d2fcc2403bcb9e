package container

import (
	"bytes"

	"github.com/eigerco/kvtree/pkg/db"
)

// Walker is a caller-driven cursor. Every Seek is a fresh lower-bound search
// from the given key, so a walk may jump backwards as well as forwards.
// Keys are relative to the container that opened the walker.
//
// A Walker holds a backend iterator until Close, which must always be
// called. Seek and Next report false both at the end of the range and when
// the backend fails; Err tells the two apart, and Close returns the failure
// as well.
type Walker struct {
	view    *View
	iter    db.Iterator
	lo      []byte
	// started is set by the first Seek or Next.
	started bool
	closed  bool
}

// Seek moves to the smallest key >= key inside the walk's range and reports
// whether there is one. Keys below the range seek to its start.
func (w *Walker) Seek(key []byte) bool {
	if w.closed {
		return false
	}
	target := w.view.key(key)
	if bytes.Compare(target, w.lo) < 0 {
		target = w.lo
	}
	w.started = true
	return w.iter.SeekGE(target)
}

// Next moves to the following key. A fresh walker moves to the first key of
// its range; a walker past the end stays there.
func (w *Walker) Next() bool {
	if w.closed {
		return false
	}
	if !w.started {
		w.started = true
		return w.iter.First()
	}
	if !w.iter.Valid() {
		return false
	}
	return w.iter.Next()
}

// Valid reports whether the walker is on a key.
func (w *Walker) Valid() bool {
	return !w.closed && w.iter.Valid()
}

// Key returns the current key, or nil when the walker is not on a key.
func (w *Walker) Key() []byte {
	if !w.Valid() {
		return nil
	}
	return w.view.strip(w.iter.Key())
}

func (w *Walker) Value() ([]byte, error) {
	if w.closed {
		return nil, db.ErrIteratorInvalid
	}
	return w.iter.Value()
}

// Err returns the backend error that stopped the walk, if the backend
// reports one before Close.
func (w *Walker) Err() error {
	if e, ok := w.iter.(interface{ Err() error }); ok {
		return e.Err()
	}
	return nil
}

// Close releases the backend iterator. It is safe to call more than once.
func (w *Walker) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.view.root.walkers.Add(-1)
	return w.iter.Close()
}
