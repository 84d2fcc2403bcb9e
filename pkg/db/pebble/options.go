package pebble

import (
	"fmt"

	"github.com/cockroachdb/pebble"
)

const (
	defaultCacheSize        = 64 << 20
	defaultMemTableSize     = 32 << 20
	defaultMaxMemTableTotal = 128 << 20
)

type config struct {
	cacheSize    int64
	memTableSize uint64
	sync         bool
}

// Option customizes how pebble is opened.
type Option func(*config) error

// WithCacheSize sets the block cache size in bytes.
func WithCacheSize(size int64) Option {
	return func(cfg *config) error {
		if size <= 0 {
			return fmt.Errorf("%w: cache size must be > 0, got %d", ErrInvalidOption, size)
		}
		cfg.cacheSize = size
		return nil
	}
}

// WithMemTableSize sets the size of a single memtable in bytes.
func WithMemTableSize(size uint64) Option {
	return func(cfg *config) error {
		if size == 0 {
			return fmt.Errorf("%w: memtable size must be > 0", ErrInvalidOption)
		}
		cfg.memTableSize = size
		return nil
	}
}

// WithSync controls whether every write is synced to disk before returning.
// Sync is on by default.
func WithSync(sync bool) Option {
	return func(cfg *config) error {
		cfg.sync = sync
		return nil
	}
}

func newConfig(options []Option) (config, error) {
	cfg := config{
		cacheSize:    defaultCacheSize,
		memTableSize: defaultMemTableSize,
		sync:         true,
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(&cfg); err != nil {
			return config{}, err
		}
	}
	return cfg, nil
}

func (c config) pebbleOptions() *pebble.Options {
	maxTotal := uint64(defaultMaxMemTableTotal)
	if c.memTableSize*4 > maxTotal {
		maxTotal = c.memTableSize * 4
	}
	return &pebble.Options{
		Cache:                       pebble.NewCache(c.cacheSize),
		MemTableSize:                c.memTableSize,
		MemTableStopWritesThreshold: int(maxTotal / c.memTableSize),
	}
}

func (c config) writeOptions() *pebble.WriteOptions {
	if c.sync {
		return pebble.Sync
	}
	return pebble.NoSync
}
