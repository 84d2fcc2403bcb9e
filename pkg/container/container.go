// Package container derives prefix views, a hierarchical tree projection,
// ordered write batches and seek cursors from any db.KVStore.
//
// Every type here forwards to the backing store; none of them owns storage
// resources except the root returned by New, whose Close closes the store.
// Close the root only after every View, Tree and Walker derived from it is
// done; the root refuses to close while walkers are still open.
package container

import (
	"errors"
	"sync/atomic"

	"github.com/eigerco/kvtree/pkg/db"
)

var (
	// ErrStop may be returned from an iteration callback to end the
	// iteration early. The iterating method then returns nil.
	ErrStop = errors.New("container: stop iteration")

	ErrForeignBatch = errors.New("container: batch belongs to another container")
	ErrWalkersOpen  = errors.New("container: walkers still open")
)

// DefaultPathSentinel separates path components in tree keys.
var DefaultPathSentinel = []byte{0xfe}

// Container is an ordered, byte-keyed store. Views, trees and the root all
// implement it, so they can be nested freely.
type Container interface {
	// Get returns db.ErrNotFound when key has no value.
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	// DeleteRange removes every key in [begin, end). An empty end means
	// the end of the container.
	DeleteRange(begin, end []byte) error

	NewBatch() *Batch
	Commit(b *Batch) error

	// Items, Keys and Values visit the records whose key starts with prefix
	// in ascending key order.
	Items(prefix []byte, fn func(key, value []byte) error) error
	Keys(prefix []byte, fn func(key []byte) error) error
	Values(prefix []byte, fn func(value []byte) error) error
	// Range visits the records in [begin, end). An empty end means the end
	// of the container.
	Range(begin, end []byte, fn func(key, value []byte) error) error

	// NextKey and the other neighbor lookups return the record strictly
	// after (or before) key, or db.ErrNotFound.
	NextKey(key []byte) ([]byte, error)
	NextValue(key []byte) ([]byte, error)
	NextKeyValue(key []byte) ([]byte, []byte, error)
	PrevKey(key []byte) ([]byte, error)
	PrevValue(key []byte) ([]byte, error)
	PrevKeyValue(key []byte) ([]byte, []byte, error)

	// View returns a container holding the records under prefix, with
	// prefix stripped from their keys.
	View(prefix []byte) Container
	Tree() *Tree
	Walk(prefix []byte) (*Walker, error)

	// Finalize copies the records into index, when given, and compacts the
	// backing store.
	Finalize(index Container) error
	Preload() error
	Close() error
}

type options struct {
	sentinel []byte
}

type Option func(*options)

// WithPathSentinel sets the separator used by Tree. Empty sentinels are
// ignored.
func WithPathSentinel(sentinel []byte) Option {
	return func(o *options) {
		if len(sentinel) > 0 {
			o.sentinel = db.Copy(sentinel)
		}
	}
}

// root is the state shared by a root container and everything derived
// from it.
type root struct {
	store    db.KVStore
	sentinel []byte
	walkers  atomic.Int64
	closed   atomic.Bool
}

// New returns the root container over store. The root owns store.
func New(store db.KVStore, opts ...Option) *View {
	o := options{sentinel: DefaultPathSentinel}
	for _, opt := range opts {
		opt(&o)
	}
	return &View{
		root:   &root{store: store, sentinel: o.sentinel},
		isRoot: true,
	}
}

// GetDefault returns the value of key, or def when the key is absent.
func GetDefault(c Container, key, def []byte) ([]byte, error) {
	v, err := c.Get(key)
	if errors.Is(err, db.ErrNotFound) {
		return def, nil
	}
	return v, err
}
