package blob

import (
	"fmt"

	"github.com/eigerco/kvtree/pkg/db"
)

// DefaultThreshold is the value size at which Wrap moves a value into the
// blob store.
const DefaultThreshold = 64 << 10

// Stored values carry a one byte tag.
const (
	tagInline byte = iota
	tagBlob
)

type wrapConfig struct {
	threshold int
}

type WrapOption func(*wrapConfig)

// WithThreshold sets the smallest value size that is stored out of band.
func WithThreshold(n int) WrapOption {
	return func(c *wrapConfig) {
		if n > 0 {
			c.threshold = n
		}
	}
}

// KVStore is a db.KVStore whose large values live in a blob Store. Values
// read through it are always the original bytes; blob handles never leak to
// callers. Iterators resolve a blob only when Value is called, so key-only
// scans never touch the blob store.
//
// Blobs are written when the value is put, including puts recorded in a
// batch that is later discarded. Deleting a key removes the reference only.
type KVStore struct {
	kv        db.KVStore
	blobs     Store
	threshold int
}

// Wrap returns a KVStore storing records in kv and large values in blobs.
// The wrapped store owns kv: closing it closes kv.
func Wrap(kv db.KVStore, blobs Store, opts ...WrapOption) *KVStore {
	cfg := wrapConfig{threshold: DefaultThreshold}
	for _, o := range opts {
		o(&cfg)
	}
	return &KVStore{kv: kv, blobs: blobs, threshold: cfg.threshold}
}

func (s *KVStore) encode(value []byte) ([]byte, error) {
	if len(value) < s.threshold {
		enc := make([]byte, 1+len(value))
		enc[0] = tagInline
		copy(enc[1:], value)
		return enc, nil
	}
	h, err := s.blobs.Put(value)
	if err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}
	enc := make([]byte, 1+HandleSize)
	enc[0] = tagBlob
	copy(enc[1:], h[:])
	return enc, nil
}

func (s *KVStore) decode(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, ErrCorruptValue
	}
	switch raw[0] {
	case tagInline:
		return raw[1:], nil
	case tagBlob:
		if len(raw) != 1+HandleSize {
			return nil, fmt.Errorf("%w: handle of %d bytes", ErrCorruptValue, len(raw)-1)
		}
		var h Handle
		copy(h[:], raw[1:])
		return s.blobs.Get(h)
	default:
		return nil, fmt.Errorf("%w: unknown tag %#x", ErrCorruptValue, raw[0])
	}
}

func (s *KVStore) Get(key []byte) ([]byte, error) {
	raw, err := s.kv.Get(key)
	if err != nil {
		return nil, err
	}
	return s.decode(raw)
}

func (s *KVStore) Put(key, value []byte) error {
	enc, err := s.encode(value)
	if err != nil {
		return err
	}
	return s.kv.Put(key, enc)
}

func (s *KVStore) Delete(key []byte) error {
	return s.kv.Delete(key)
}

func (s *KVStore) DeleteRange(start, end []byte) error {
	return s.kv.DeleteRange(start, end)
}

func (s *KVStore) NewBatch() db.Batch {
	return &batch{store: s, b: s.kv.NewBatch()}
}

func (s *KVStore) NewIterator(start, end []byte) (db.Iterator, error) {
	it, err := s.kv.NewIterator(start, end)
	if err != nil {
		return nil, err
	}
	return &iterator{Iterator: it, store: s}, nil
}

func (s *KVStore) Compact() error { return s.kv.Compact() }

func (s *KVStore) Preload() error { return s.kv.Preload() }

func (s *KVStore) Close() error { return s.kv.Close() }

type batch struct {
	store *KVStore
	b     db.Batch
}

func (b *batch) Put(key, value []byte) error {
	enc, err := b.store.encode(value)
	if err != nil {
		return err
	}
	return b.b.Put(key, enc)
}

func (b *batch) Delete(key []byte) error { return b.b.Delete(key) }

func (b *batch) DeleteRange(start, end []byte) error { return b.b.DeleteRange(start, end) }

func (b *batch) Commit() error { return b.b.Commit() }

func (b *batch) Close() error { return b.b.Close() }

// iterator resolves values lazily; positioning calls go straight to the
// underlying iterator.
type iterator struct {
	db.Iterator
	store *KVStore
}

func (it *iterator) Value() ([]byte, error) {
	raw, err := it.Iterator.Value()
	if err != nil {
		return nil, err
	}
	return it.store.decode(raw)
}
