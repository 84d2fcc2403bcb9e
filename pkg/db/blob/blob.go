// Package blob stores large values out of band. Blobs are immutable and
// addressed by the blake2b-256 digest of their content; a Handle is that
// digest. Wrap turns any db.KVStore into one that keeps large values in a
// blob Store and resolves them only when a value is actually read.
package blob

import (
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

var (
	ErrBlobNotFound  = errors.New("blob: not found")
	ErrCorruptBlob   = errors.New("blob: content does not match handle")
	ErrCorruptValue  = errors.New("blob: malformed stored value")
	ErrInvalidHandle = errors.New("blob: invalid handle")
)

// HandleSize is the length of a Handle in bytes.
const HandleSize = blake2b.Size256

// Handle references a blob by the hash of its content.
type Handle [HandleSize]byte

// Sum returns the handle of data.
func Sum(data []byte) Handle {
	return blake2b.Sum256(data)
}

func (h Handle) String() string {
	return hex.EncodeToString(h[:])
}

// ParseHandle decodes the hex form produced by Handle.String.
func ParseHandle(s string) (Handle, error) {
	var h Handle
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("%w: %v", ErrInvalidHandle, err)
	}
	if len(b) != HandleSize {
		return h, fmt.Errorf("%w: length %d", ErrInvalidHandle, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Store is a content-addressed store for large values.
type Store interface {
	// Put stores data and returns its handle. Storing the same content
	// twice is a no-op.
	Put(data []byte) (Handle, error)
	// Get returns the content for h, or ErrBlobNotFound.
	Get(h Handle) ([]byte, error)
	// Has reports whether h is stored.
	Has(h Handle) (bool, error)
}

// verify checks that data hashes to h.
func verify(h Handle, data []byte) error {
	if Sum(data) != h {
		return fmt.Errorf("%w: %s", ErrCorruptBlob, h)
	}
	return nil
}
