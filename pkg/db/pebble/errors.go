package pebble

import (
	"errors"

	"github.com/eigerco/kvtree/pkg/db"
)

// Shared error values re-exported so callers of this package need not import
// pkg/db just to compare errors.
var (
	ErrClosed          = db.ErrClosed
	ErrNotFound        = db.ErrNotFound
	ErrBatchDone       = db.ErrBatchDone
	ErrIteratorInvalid = db.ErrIteratorInvalid

	ErrInvalidOption = errors.New("pebble: invalid option")
)

const (
	ErrInIteratorCreation = "failed to create iterator: %w"
	ErrIteratorValue      = "failed to read iterator value: %w"
)
