package blob

import (
	"errors"
	"fmt"

	"github.com/eigerco/kvtree/pkg/db"
)

// KVBlobStore keeps blobs in a db.KVStore, keyed by handle.
type KVBlobStore struct {
	store db.KVStore
}

func NewKVBlobStore(store db.KVStore) *KVBlobStore {
	return &KVBlobStore{store: store}
}

func (s *KVBlobStore) Put(data []byte) (Handle, error) {
	h := Sum(data)
	ok, err := s.Has(h)
	if err != nil || ok {
		return h, err
	}
	return h, s.store.Put(h[:], data)
}

func (s *KVBlobStore) Get(h Handle) ([]byte, error) {
	data, err := s.store.Get(h[:])
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, h)
	}
	if err != nil {
		return nil, err
	}
	if err := verify(h, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *KVBlobStore) Has(h Handle) (bool, error) {
	_, err := s.store.Get(h[:])
	if errors.Is(err, db.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
