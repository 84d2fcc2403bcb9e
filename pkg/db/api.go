package db

// KVStore represents an ordered key-value storage interface providing basic
// operations for data manipulation and iteration. Keys are ordered by
// unsigned lexicographic byte comparison.
type KVStore interface {
	Writer
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	// DeleteRange removes every key k with start <= k < end. A nil end
	// leaves the range unbounded above.
	DeleteRange(start, end []byte) error
	NewBatch() Batch
	// NewIterator returns an iterator over [start, end). Nil bounds are open.
	NewIterator(start, end []byte) (Iterator, error)
	// Compact asks the backend to optimize its storage. It has no effect on
	// the visible data.
	Compact() error
	// Preload warms backend caches. It has no effect on the visible data.
	Preload() error
	Close() error
}

type Writer interface {
	Put(key []byte, value []byte) error
}

// Batch represents an atomic batch of operations.
// All operations in a batch are performed atomically and in the order they
// were recorded.
type Batch interface {
	Writer
	Delete(key []byte) error
	DeleteRange(start, end []byte) error
	Commit() error
	Close() error
}

// Iterator provides bidirectional access over a range of key-value pairs.
// Iterators must be closed after use.
type Iterator interface {
	First() bool
	Last() bool
	// SeekGE moves to the smallest key >= key.
	SeekGE(key []byte) bool
	// SeekLT moves to the largest key < key.
	SeekLT(key []byte) bool
	// Next moves forward; an un-positioned iterator moves to the first key.
	Next() bool
	// Prev moves backward; an un-positioned iterator moves to the last key.
	Prev() bool
	Key() []byte
	Value() ([]byte, error)
	Valid() bool
	// Close releases the iterator and reports any error hit while iterating.
	Close() error
}
