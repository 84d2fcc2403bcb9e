package badger

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
		store, err := Open(t.TempDir(), WithValueLogFileSize(1<<20))
		require.NoError(t, err)
		return store
	})
}

func TestInvalidValueLogFileSize(t *testing.T) {
	_, err := Open(t.TempDir(), WithValueLogFileSize(0))
	assert.Error(t, err)
}

func TestIteratorDirectionSwitchWithinBounds(t *testing.T) {
	store, err := NewKVStore()
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck // test cleanup

	dbtest.Fill(t, store, map[string]string{"a": "1", "b": "2", "c": "3", "d": "4"})

	iter, err := store.NewIterator([]byte("b"), []byte("d"))
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck // read-only iterator

	require.True(t, iter.Last())
	assert.Equal(t, []byte("c"), iter.Key())
	require.True(t, iter.Prev())
	assert.Equal(t, []byte("b"), iter.Key())
	assert.False(t, iter.Prev())

	require.True(t, iter.Next())
	assert.Equal(t, []byte("b"), iter.Key())
	require.True(t, iter.Next())
	assert.Equal(t, []byte("c"), iter.Key())
	assert.False(t, iter.Next())
}
