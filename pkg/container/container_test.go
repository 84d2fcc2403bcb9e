package container

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/kvtree/pkg/db"
	"github.com/eigerco/kvtree/pkg/db/badger"
	"github.com/eigerco/kvtree/pkg/db/dbtest"
	"github.com/eigerco/kvtree/pkg/db/leveldb"
	"github.com/eigerco/kvtree/pkg/db/mocks"
	"github.com/eigerco/kvtree/pkg/db/pebble"
)

var backends = []struct {
	name string
	open func() (db.KVStore, error)
}{
	{name: "pebble", open: func() (db.KVStore, error) { return pebble.NewKVStore() }},
	{name: "leveldb", open: func() (db.KVStore, error) { return leveldb.NewKVStore() }},
	{name: "badger", open: func() (db.KVStore, error) { return badger.NewKVStore() }},
}

// forEachBackend runs fn against a fresh root container, filled with the
// sample records, on every backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, root *View)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			store, err := b.open()
			require.NoError(t, err)

			root := New(store, WithPathSentinel([]byte(".")))
			t.Cleanup(func() { root.Close() }) //nolint:errcheck // closed by some tests

			dbtest.Fill(t, store, sampleRecords())
			fn(t, root)
		})
	}
}

func sampleRecords() map[string]string {
	return map[string]string{
		"e.y":    "012",
		"meta.x": "123",
		"meta.z": "x",
		"zzz":    "oOo",
	}
}

// items collects every record of c in iteration order.
func items(t *testing.T, c Container) [][2]string {
	t.Helper()
	var out [][2]string
	require.NoError(t, c.Items(nil, func(k, v []byte) error {
		out = append(out, [2]string{string(k), string(v)})
		return nil
	}))
	return out
}

func keys(t *testing.T, c Container, prefix string) []string {
	t.Helper()
	var out []string
	require.NoError(t, c.Keys([]byte(prefix), func(k []byte) error {
		out = append(out, string(k))
		return nil
	}))
	return out
}

func TestView(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T, root *View)
	}{
		{name: "items", fn: testViewItems},
		{name: "put_get", fn: testViewPutGet},
		{name: "keys_match_backing", fn: testViewKeys},
		{name: "nesting", fn: testViewNesting},
		{name: "delete_range", fn: testViewDeleteRange},
		{name: "range", fn: testViewRange},
		{name: "neighbors", fn: testViewNeighbors},
		{name: "stop", fn: testViewStop},
		{name: "get_default", fn: testGetDefault},
		{name: "finalize", fn: testFinalize},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			forEachBackend(t, tc.fn)
		})
	}
}

func testViewItems(t *testing.T, root *View) {
	meta := root.View([]byte("meta."))

	assert.Equal(t, [][2]string{{"x", "123"}, {"z", "x"}}, items(t, meta))

	var values []string
	require.NoError(t, meta.Values(nil, func(v []byte) error {
		values = append(values, string(v))
		return nil
	}))
	assert.Equal(t, []string{"123", "x"}, values)

	assert.Empty(t, items(t, root.View([]byte("nothing."))))
}

func testViewPutGet(t *testing.T, root *View) {
	v := root.View([]byte("p/"))
	require.NoError(t, v.Put([]byte("k"), []byte("v")))

	got, err := root.Get([]byte("p/k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	got, err = v.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, v.Delete([]byte("k")))
	_, err = root.Get([]byte("p/k"))
	assert.ErrorIs(t, err, db.ErrNotFound)

	// Keys outside the view are not reachable through it
	_, err = v.Get([]byte("../zzz"))
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func testViewKeys(t *testing.T, root *View) {
	require.NoError(t, root.Put([]byte("meta"), []byte("not in view")))
	require.NoError(t, root.Put([]byte("meta/"), []byte("not in view")))

	var want []string
	for _, k := range keys(t, root, "") {
		if len(k) >= 5 && k[:5] == "meta." {
			want = append(want, k[5:])
		}
	}
	assert.Equal(t, want, keys(t, root.View([]byte("meta.")), ""))
	assert.Equal(t, []string{"meta", "meta.x", "meta.z", "meta/"}, keys(t, root, "meta"))
}

func testViewNesting(t *testing.T, root *View) {
	nested := root.View([]byte("me")).View([]byte("ta."))
	flat := root.View([]byte("meta."))

	assert.Equal(t, items(t, flat), items(t, nested))
	assert.Equal(t, []byte("meta."), nested.(*View).Prefix())

	require.NoError(t, nested.Put([]byte("w"), []byte("1")))
	got, err := flat.Get([]byte("w"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	k, err := nested.NextKey([]byte("w"))
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), k)

	require.NoError(t, flat.DeleteRange([]byte("w"), []byte("y")))
	assert.Equal(t, items(t, flat), items(t, nested))
	assert.Equal(t, [][2]string{{"z", "x"}}, items(t, nested))
}

func testViewDeleteRange(t *testing.T, root *View) {
	require.NoError(t, root.Put([]byte("meta/"), []byte("sibling")))
	meta := root.View([]byte("meta."))

	// End past the last key of the view stays inside the view
	require.NoError(t, meta.DeleteRange([]byte("y"), []byte{0xff, 0xff}))
	assert.Equal(t, [][2]string{{"x", "123"}}, items(t, meta))

	// Empty end runs to the end of the view only
	require.NoError(t, meta.DeleteRange(nil, nil))
	assert.Empty(t, items(t, meta))

	assert.Equal(t, [][2]string{
		{"e.y", "012"},
		{"meta/", "sibling"},
		{"zzz", "oOo"},
	}, items(t, root))

	// Inverted ranges are no-ops
	require.NoError(t, root.DeleteRange([]byte("z"), []byte("a")))
	assert.Len(t, items(t, root), 3)
}

func testViewRange(t *testing.T, root *View) {
	var got []string
	require.NoError(t, root.Range([]byte("e"), []byte("meta.z"), func(k, _ []byte) error {
		got = append(got, string(k))
		return nil
	}))
	assert.Equal(t, []string{"e.y", "meta.x"}, got)

	got = nil
	require.NoError(t, root.View([]byte("meta.")).Range([]byte("y"), nil, func(k, _ []byte) error {
		got = append(got, string(k))
		return nil
	}))
	assert.Equal(t, []string{"z"}, got)
}

func testViewNeighbors(t *testing.T, root *View) {
	meta := root.View([]byte("meta."))

	k, err := meta.NextKey([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, []byte("z"), k)

	// Backing neighbors outside the view are never returned
	_, err = meta.NextKey([]byte("z"))
	assert.ErrorIs(t, err, db.ErrNotFound)
	_, err = meta.PrevKey([]byte("x"))
	assert.ErrorIs(t, err, db.ErrNotFound)

	// Strict on both sides
	k, err = root.NextKey([]byte("e.y"))
	require.NoError(t, err)
	assert.Equal(t, []byte("meta.x"), k)
	k, err = root.PrevKey([]byte("meta.x"))
	require.NoError(t, err)
	assert.Equal(t, []byte("e.y"), k)

	for _, start := range []string{"e.y", "meta.x", "meta.z"} {
		next, err := root.NextKey([]byte(start))
		require.NoError(t, err)
		back, err := root.PrevKey(next)
		require.NoError(t, err)
		assert.Equal(t, start, string(back))
	}

	k, err = root.NextKey(nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("e.y"), k)

	k, v, err := meta.NextKeyValue([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), k)
	assert.Equal(t, []byte("123"), v)

	v, err = meta.NextValue([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), v)

	v, err = meta.PrevValue([]byte("zz"))
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), v)

	k, v, err = root.PrevKeyValue([]byte{0xff})
	require.NoError(t, err)
	assert.Equal(t, []byte("zzz"), k)
	assert.Equal(t, []byte("oOo"), v)

	_, _, err = root.NextKeyValue([]byte("zzz"))
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func testViewStop(t *testing.T, root *View) {
	var got []string
	err := root.Keys(nil, func(k []byte) error {
		got = append(got, string(k))
		if len(got) == 2 {
			return ErrStop
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"e.y", "meta.x"}, got)

	boom := errors.New("boom")
	err = root.Items(nil, func(_, _ []byte) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func testGetDefault(t *testing.T, root *View) {
	v, err := GetDefault(root, []byte("missing"), []byte("def"))
	require.NoError(t, err)
	assert.Equal(t, []byte("def"), v)

	v, err = GetDefault(root.View([]byte("meta.")), []byte("x"), []byte("def"))
	require.NoError(t, err)
	assert.Equal(t, []byte("123"), v)
}

func testFinalize(t *testing.T, root *View) {
	index := root.View([]byte("idx/"))
	require.NoError(t, root.View([]byte("meta.")).Finalize(index))

	assert.Equal(t, [][2]string{{"x", "123"}, {"z", "x"}}, items(t, index))

	require.NoError(t, root.Finalize(nil))
	require.NoError(t, root.Preload())
	assert.Len(t, items(t, root), 6)
}

func TestRootClose(t *testing.T) {
	store, err := pebble.NewKVStore()
	require.NoError(t, err)
	root := New(store)

	// Derived views own nothing
	require.NoError(t, root.View([]byte("a")).Close())
	require.NoError(t, root.Put([]byte("a"), []byte("1")))

	w, err := root.View([]byte("a")).Walk(nil)
	require.NoError(t, err)

	err = root.Close()
	assert.ErrorIs(t, err, ErrWalkersOpen)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	require.NoError(t, root.Close())
	require.NoError(t, root.Close())

	_, err = store.Get([]byte("a"))
	assert.ErrorIs(t, err, db.ErrClosed)
}

func TestBackendFailure(t *testing.T) {
	boom := errors.New("disk on fire")

	t.Run("get", func(t *testing.T) {
		store := mocks.NewMockKVStore()
		store.On("Get", []byte("p/k")).Return(nil, boom)

		_, err := New(store).View([]byte("p/")).Get([]byte("k"))
		assert.ErrorIs(t, err, boom)

		_, err = GetDefault(New(store).View([]byte("p/")), []byte("k"), nil)
		assert.ErrorIs(t, err, boom)
		store.AssertExpectations(t)
	})

	t.Run("iterator", func(t *testing.T) {
		store := mocks.NewMockKVStore()
		store.On("NewIterator", mock.Anything, mock.Anything).Return(nil, boom)

		root := New(store)
		assert.ErrorIs(t, root.Items(nil, func(_, _ []byte) error { return nil }), boom)
		_, err := root.NextKey([]byte("a"))
		assert.ErrorIs(t, err, boom)
		_, err = root.Walk(nil)
		assert.ErrorIs(t, err, boom)
		assert.Zero(t, root.root.walkers.Load())
	})

	t.Run("value", func(t *testing.T) {
		iter := mocks.NewMockIterator()
		iter.On("First").Return(true)
		iter.On("Key").Return([]byte("p/k"))
		iter.On("Value").Return(nil, boom)
		iter.On("Close").Return(nil)

		store := mocks.NewMockKVStore()
		store.On("NewIterator", []byte("p/"), []byte("p0")).Return(iter, nil)

		err := New(store).View([]byte("p/")).Items(nil, func(_, _ []byte) error { return nil })
		assert.ErrorIs(t, err, boom)
		iter.AssertCalled(t, "Close")
	})

	t.Run("iterator_close", func(t *testing.T) {
		iter := mocks.NewMockIterator()
		iter.On("First").Return(false)
		iter.On("Close").Return(boom)

		store := mocks.NewMockKVStore()
		store.On("NewIterator", mock.Anything, mock.Anything).Return(iter, nil)

		err := New(store).Keys(nil, func([]byte) error { return nil })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("commit", func(t *testing.T) {
		wb := mocks.NewMockBatch()
		wb.On("Put", []byte("p/a"), []byte("1")).Return(nil)
		wb.On("Commit").Return(boom)
		wb.On("Close").Return(nil)

		store := mocks.NewMockKVStore()
		store.On("NewBatch").Return(wb)

		v := New(store).View([]byte("p/"))
		b := v.NewBatch()
		require.NoError(t, b.Put([]byte("a"), []byte("1")))

		assert.ErrorIs(t, v.Commit(b), boom)
		// A failed commit leaves the batch usable
		assert.NoError(t, b.Put([]byte("a"), []byte("1")))
		wb.AssertCalled(t, "Close")
	})

	t.Run("finalize", func(t *testing.T) {
		store := mocks.NewMockKVStore()
		store.On("Compact").Return(boom)

		assert.ErrorIs(t, New(store).Finalize(nil), boom)
	})
}
