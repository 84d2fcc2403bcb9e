package blob

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/eigerco/kvtree/pkg/log"
)

// DiskStore implements Store on the local file system.
type DiskStore struct {
	baseDir string
}

func NewDiskStore(baseDir string) (*DiskStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &DiskStore{baseDir: baseDir}, nil
}

// path shards blobs over two directory levels (ab/cd/abcdef...) to keep
// directories small.
func (s *DiskStore) path(h Handle) string {
	name := h.String()
	return filepath.Join(s.baseDir, name[:2], name[2:4], name)
}

func (s *DiskStore) Put(data []byte) (Handle, error) {
	h := Sum(data)
	path := s.path(h)

	if _, err := os.Stat(path); err == nil {
		return h, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return h, fmt.Errorf("create blob shard: %w", err)
	}

	// write then rename so readers never see a partial blob
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return h, fmt.Errorf("create blob: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()           //nolint:errcheck // write error takes precedence
		os.Remove(tmp.Name()) //nolint:errcheck // best effort
		return h, fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck // best effort
		return h, fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return h, fmt.Errorf("publish blob: %w", err)
	}
	log.Storage.Trace().Str("blob", h.String()).Int("size", len(data)).Msg("blob stored")
	return h, nil
}

func (s *DiskStore) Get(h Handle) ([]byte, error) {
	data, err := os.ReadFile(s.path(h))
	if errors.Is(err, os.ErrNotExist) {
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

func (s *DiskStore) Has(h Handle) (bool, error) {
	_, err := os.Stat(s.path(h))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
