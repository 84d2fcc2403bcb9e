package leveldb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/kvtree/pkg/db"
	"github.com/eigerco/kvtree/pkg/db/dbtest"
)

func TestKVStore(t *testing.T) {
	dbtest.RunStoreTests(t, func(t *testing.T) db.KVStore {
		store, err := NewKVStore()
		require.NoError(t, err)
		return store
	})
}

func TestKVStoreOnDisk(t *testing.T) {
	dbtest.RunStoreTests(t, func(t *testing.T) db.KVStore {
		store, err := Open(t.TempDir())
		require.NoError(t, err)
		return store
	})
}

func TestDeleteRangeSkipsPendingOutsideRange(t *testing.T) {
	store, err := NewKVStore()
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck // test cleanup

	batch := store.NewBatch()
	require.NoError(t, batch.Put([]byte("a"), []byte("1")))
	require.NoError(t, batch.Put([]byte("m"), []byte("2")))
	require.NoError(t, batch.DeleteRange([]byte("b"), []byte("n")))
	require.NoError(t, batch.Commit())

	assert.Equal(t, [][2]string{{"a", "1"}}, dbtest.Dump(t, store))
}
