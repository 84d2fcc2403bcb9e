package badger

import (
	"fmt"
)

const defaultValueLogFileSize = 128 * 1024 * 1024 // 128MB

type config struct {
	valueLogFileSize int64
	syncWrites       bool
}

// Option customizes how Badger is opened.
type Option func(*config) error

// WithValueLogFileSize sets max bytes per value log (vlog) file.
func WithValueLogFileSize(sizeBytes int64) Option {
	return func(cfg *config) error {
		if sizeBytes <= 0 {
			return fmt.Errorf("badger value log file size must be > 0, got %d", sizeBytes)
		}
		cfg.valueLogFileSize = sizeBytes
		return nil
	}
}

// WithSyncWrites makes every commit wait for the value log to be synced.
func WithSyncWrites(sync bool) Option {
	return func(cfg *config) error {
		cfg.syncWrites = sync
		return nil
	}
}
