// Package dbtest holds the conformance tests every db.KVStore backend must
// pass. Backend packages call RunStoreTests from their own tests.
package dbtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/kvtree/pkg/db"
)

// Factory returns a fresh, empty store. The suite closes it when a test ends.
type Factory func(t *testing.T) db.KVStore

// RunStoreTests runs the conformance suite against stores made by newStore.
func RunStoreTests(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store db.KVStore)
	}{
		{name: "basic_put_get", fn: testBasicPutGet},
		{name: "delete_operations", fn: testDelete},
		{name: "delete_range", fn: testDeleteRange},
		{name: "delete_range_unbounded", fn: testDeleteRangeUnbounded},
		{name: "ordered_iteration", fn: testOrderedIteration},
		{name: "bounded_iteration", fn: testBoundedIteration},
		{name: "seek", fn: testSeek},
		{name: "reverse_iteration", fn: testReverseIteration},
		{name: "iterator_validity", fn: testIteratorValidity},
		{name: "batch_operations", fn: testBatchOperations},
		{name: "batch_order", fn: testBatchOrder},
		{name: "batch_delete_range", fn: testBatchDeleteRange},
		{name: "batch_commit_closure", fn: testBatchCommitAndClose},
		{name: "batch_discard", fn: testBatchDiscard},
		{name: "compact_preload", fn: testCompactPreload},
		{name: "store_closure", fn: testStoreClosure},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newStore(t)
			defer store.Close() //nolint:errcheck // closed twice by store_closure

			tc.fn(t, store)
		})
	}
}

// Fill writes the given records with individual puts.
func Fill(t *testing.T, store db.KVStore, records map[string]string) {
	t.Helper()
	for k, v := range records {
		require.NoError(t, store.Put([]byte(k), []byte(v)))
	}
}

// Dump collects every record of the store in iteration order.
func Dump(t *testing.T, store db.KVStore) [][2]string {
	t.Helper()
	iter, err := store.NewIterator(nil, nil)
	require.NoError(t, err)

	var out [][2]string
	for iter.Next() {
		v, err := iter.Value()
		require.NoError(t, err)
		out = append(out, [2]string{string(iter.Key()), string(v)})
	}
	require.NoError(t, iter.Close())
	return out
}

func sampleRecords() map[string]string {
	return map[string]string{
		"e.y":    "012",
		"meta.x": "123",
		"meta.z": "x",
		"zzz":    "oOo",
	}
}

func testBasicPutGet(t *testing.T, store db.KVStore) {
	key := []byte("test-key")
	value := []byte("test-value")

	require.NoError(t, store.Put(key, value))

	retrieved, err := store.Get(key)
	require.NoError(t, err)
	assert.Equal(t, value, retrieved)

	// Overwrite
	require.NoError(t, store.Put(key, []byte("v2")))
	retrieved, err = store.Get(key)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), retrieved)

	// Returned slices must not alias the store
	retrieved[0] = 'X'
	again, err := store.Get(key)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), again)

	_, err = store.Get([]byte("non-existent"))
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func testDelete(t *testing.T, store db.KVStore) {
	key := []byte("delete-test")

	require.NoError(t, store.Put(key, []byte("to-be-deleted")))
	require.NoError(t, store.Delete(key))

	_, err := store.Get(key)
	assert.ErrorIs(t, err, db.ErrNotFound)

	// Delete non-existent key should not error
	assert.NoError(t, store.Delete([]byte("non-existent")))
}

func testDeleteRange(t *testing.T, store db.KVStore) {
	Fill(t, store, sampleRecords())

	require.NoError(t, store.DeleteRange([]byte("meta."), []byte("meta.z")))

	assert.Equal(t, [][2]string{
		{"e.y", "012"},
		{"meta.z", "x"},
		{"zzz", "oOo"},
	}, Dump(t, store))

	// Inverted and empty ranges are no-ops
	require.NoError(t, store.DeleteRange([]byte("z"), []byte("a")))
	require.NoError(t, store.DeleteRange([]byte("zzz"), []byte("zzz")))
	assert.Len(t, Dump(t, store), 3)
}

func testDeleteRangeUnbounded(t *testing.T, store db.KVStore) {
	Fill(t, store, sampleRecords())
	require.NoError(t, store.Put([]byte{0xff, 0xff}, []byte("top")))

	require.NoError(t, store.DeleteRange([]byte("meta.z"), nil))

	assert.Equal(t, [][2]string{
		{"e.y", "012"},
		{"meta.x", "123"},
	}, Dump(t, store))

	// Empty store
	require.NoError(t, store.DeleteRange(nil, nil))
	assert.Empty(t, Dump(t, store))
	require.NoError(t, store.DeleteRange(nil, nil))
}

func testOrderedIteration(t *testing.T, store db.KVStore) {
	keys := [][]byte{
		{0xff}, []byte("b"), {0x00}, []byte("a"), []byte("ab"), {0x80, 0x01}, []byte("a\x00"),
	}
	for _, k := range keys {
		require.NoError(t, store.Put(k, k))
	}

	var got []string
	for _, kv := range Dump(t, store) {
		got = append(got, kv[0])
	}
	assert.Equal(t, []string{"\x00", "a", "a\x00", "ab", "b", "\x80\x01", "\xff"}, got)
}

func testBoundedIteration(t *testing.T, store db.KVStore) {
	Fill(t, store, map[string]string{
		"a": "value-a",
		"b": "value-b",
		"c": "value-c",
		"d": "value-d",
		"e": "value-e",
	})

	iter, err := store.NewIterator([]byte("b"), []byte("e"))
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck // read-only iterator

	var got []string
	for iter.Next() {
		value, err := iter.Value()
		require.NoError(t, err)
		assert.Equal(t, "value-"+string(iter.Key()), string(value))
		got = append(got, string(iter.Key()))
	}
	assert.Equal(t, []string{"b", "c", "d"}, got)

	// Bounds hold for positioning calls as well
	assert.True(t, iter.Last())
	assert.Equal(t, []byte("d"), iter.Key())
	assert.True(t, iter.First())
	assert.Equal(t, []byte("b"), iter.Key())
	assert.False(t, iter.SeekGE([]byte("e")))
	assert.False(t, iter.SeekLT([]byte("b")))
}

func testSeek(t *testing.T, store db.KVStore) {
	Fill(t, store, sampleRecords())

	iter, err := store.NewIterator(nil, nil)
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck // read-only iterator

	require.True(t, iter.SeekGE([]byte("meta")))
	assert.Equal(t, []byte("meta.x"), iter.Key())

	// Seeking backwards re-positions
	require.True(t, iter.SeekGE([]byte("e.y")))
	assert.Equal(t, []byte("e.y"), iter.Key())

	require.True(t, iter.SeekLT([]byte("meta.z")))
	assert.Equal(t, []byte("meta.x"), iter.Key())

	require.True(t, iter.SeekLT([]byte("meta.x\x00")))
	assert.Equal(t, []byte("meta.x"), iter.Key())

	assert.False(t, iter.SeekGE([]byte("zzzz")))
	assert.False(t, iter.SeekLT([]byte("e.y")))

	require.True(t, iter.SeekGE([]byte("zzz")))
	v, err := iter.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("oOo"), v)
}

func testReverseIteration(t *testing.T, store db.KVStore) {
	Fill(t, store, sampleRecords())

	iter, err := store.NewIterator(nil, nil)
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck // read-only iterator

	var got []string
	for iter.Prev() {
		got = append(got, string(iter.Key()))
	}
	assert.Equal(t, []string{"zzz", "meta.z", "meta.x", "e.y"}, got)

	// Direction changes
	require.True(t, iter.SeekGE([]byte("meta.x")))
	require.True(t, iter.Next())
	assert.Equal(t, []byte("meta.z"), iter.Key())
	require.True(t, iter.Prev())
	assert.Equal(t, []byte("meta.x"), iter.Key())
	require.True(t, iter.Prev())
	assert.Equal(t, []byte("e.y"), iter.Key())
	assert.False(t, iter.Prev())
}

func testIteratorValidity(t *testing.T, store db.KVStore) {
	Fill(t, store, map[string]string{
		"key1": "value1",
		"key2": "value2",
	})

	iter, err := store.NewIterator(nil, nil)
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck // read-only iterator

	// Initial state - iterator is not positioned
	assert.False(t, iter.Valid())
	_, err = iter.Value()
	assert.ErrorIs(t, err, db.ErrIteratorInvalid)

	assert.True(t, iter.Next())
	assert.True(t, iter.Valid())
	assert.Equal(t, []byte("key1"), iter.Key())

	assert.True(t, iter.Next())
	assert.Equal(t, []byte("key2"), iter.Key())

	// No more elements
	assert.False(t, iter.Next())
	assert.False(t, iter.Valid())

	_, err = iter.Value()
	assert.ErrorIs(t, err, db.ErrIteratorInvalid)
}

func testBatchOperations(t *testing.T, store db.KVStore) {
	batch := store.NewBatch()
	defer batch.Close() //nolint:errcheck // closed after commit

	keys := [][]byte{[]byte("key1"), []byte("key2"), []byte("key3")}
	values := [][]byte{[]byte("value1"), []byte("value2"), []byte("value3")}

	for i := range keys {
		require.NoError(t, batch.Put(keys[i], values[i]))
	}
	require.NoError(t, batch.Delete(keys[1]))

	// Nothing visible before commit
	_, err := store.Get(keys[0])
	assert.ErrorIs(t, err, db.ErrNotFound)

	require.NoError(t, batch.Commit())

	val1, err := store.Get(keys[0])
	require.NoError(t, err)
	assert.Equal(t, values[0], val1)

	_, err = store.Get(keys[1])
	assert.ErrorIs(t, err, db.ErrNotFound)

	val3, err := store.Get(keys[2])
	require.NoError(t, err)
	assert.Equal(t, values[2], val3)
}

func testBatchOrder(t *testing.T, store db.KVStore) {
	require.NoError(t, store.Put([]byte("b"), []byte("old")))

	batch := store.NewBatch()
	defer batch.Close() //nolint:errcheck // closed after commit

	require.NoError(t, batch.Delete([]byte("a")))
	require.NoError(t, batch.Put([]byte("a"), []byte("1")))
	require.NoError(t, batch.Put([]byte("b"), []byte("2")))
	require.NoError(t, batch.Delete([]byte("b")))
	require.NoError(t, batch.Put([]byte("c"), []byte("3")))
	require.NoError(t, batch.Put([]byte("c"), []byte("4")))
	require.NoError(t, batch.Commit())

	assert.Equal(t, [][2]string{{"a", "1"}, {"c", "4"}}, Dump(t, store))
}

func testBatchDeleteRange(t *testing.T, store db.KVStore) {
	Fill(t, store, sampleRecords())

	batch := store.NewBatch()
	defer batch.Close() //nolint:errcheck // closed after commit

	require.NoError(t, batch.Put([]byte("meta.a"), []byte("pending")))
	require.NoError(t, batch.Put([]byte("zzzz"), []byte("pending")))
	require.NoError(t, batch.DeleteRange([]byte("meta."), []byte("meta.z")))
	require.NoError(t, batch.Put([]byte("meta.y"), []byte("readded")))
	require.NoError(t, batch.DeleteRange([]byte("zz"), nil))
	require.NoError(t, batch.Commit())

	assert.Equal(t, [][2]string{
		{"e.y", "012"},
		{"meta.y", "readded"},
		{"meta.z", "x"},
	}, Dump(t, store))
}

func testBatchCommitAndClose(t *testing.T, store db.KVStore) {
	batch := store.NewBatch()

	require.NoError(t, batch.Put([]byte("key"), []byte("value")))
	require.NoError(t, batch.Commit())

	// Operations after commit should fail
	assert.ErrorIs(t, batch.Put([]byte("key2"), []byte("value2")), db.ErrBatchDone)
	assert.ErrorIs(t, batch.Delete([]byte("key2")), db.ErrBatchDone)
	assert.ErrorIs(t, batch.DeleteRange([]byte("a"), []byte("b")), db.ErrBatchDone)

	// Second commit should fail
	assert.ErrorIs(t, batch.Commit(), db.ErrBatchDone)

	assert.NoError(t, batch.Close())
	assert.NoError(t, batch.Close())

	// Empty batch commits cleanly
	empty := store.NewBatch()
	assert.NoError(t, empty.Commit())
	assert.NoError(t, empty.Close())
}

func testBatchDiscard(t *testing.T, store db.KVStore) {
	batch := store.NewBatch()
	require.NoError(t, batch.Put([]byte("key"), []byte("value")))
	require.NoError(t, batch.Close())

	assert.ErrorIs(t, batch.Commit(), db.ErrBatchDone)
	_, err := store.Get([]byte("key"))
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func testCompactPreload(t *testing.T, store db.KVStore) {
	Fill(t, store, sampleRecords())
	require.NoError(t, store.Delete([]byte("zzz")))

	before := Dump(t, store)
	require.NoError(t, store.Compact())
	require.NoError(t, store.Preload())
	assert.Equal(t, before, Dump(t, store))
}

func testStoreClosure(t *testing.T, store db.KVStore) {
	require.NoError(t, store.Close())

	_, err := store.Get([]byte("key"))
	assert.ErrorIs(t, err, db.ErrClosed)

	assert.ErrorIs(t, store.Put([]byte("key"), []byte("value")), db.ErrClosed)
	assert.ErrorIs(t, store.Delete([]byte("key")), db.ErrClosed)
	assert.ErrorIs(t, store.DeleteRange([]byte("a"), []byte("b")), db.ErrClosed)

	_, err = store.NewIterator(nil, nil)
	assert.ErrorIs(t, err, db.ErrClosed)

	// Double close should not error
	assert.NoError(t, store.Close())
}
