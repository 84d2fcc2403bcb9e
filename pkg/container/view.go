package container

import (
	"errors"
	"fmt"

	"github.com/eigerco/kvtree/pkg/db"
	"github.com/eigerco/kvtree/pkg/log"
)

// View confines a store to the keys starting with a fixed prefix. Keys are
// passed in and handed out with the prefix stripped. The root container is
// a View with an empty prefix.
type View struct {
	root   *root
	prefix []byte
	// upper is the exclusive end of the view's key range, nil when the
	// range is unbounded above.
	upper  []byte
	isRoot bool
}

// key maps a view key to its backing key.
func (v *View) key(k []byte) []byte {
	return db.Concat(v.prefix, k)
}

// strip maps a backing key to its view key.
func (v *View) strip(k []byte) []byte {
	return k[len(v.prefix):]
}

// span maps the view range [begin, end) to the backing range. An empty end
// runs to the end of the view.
func (v *View) span(begin, end []byte) ([]byte, []byte) {
	lo := v.key(begin)
	if len(end) == 0 {
		return lo, v.upper
	}
	return lo, v.key(end)
}

// prefixSpan maps "keys starting with prefix" to the backing range.
func (v *View) prefixSpan(prefix []byte) ([]byte, []byte) {
	lo := v.key(prefix)
	return db.ClipRange(lo, db.PrefixUpperBound(lo), v.prefix, v.upper)
}

func (v *View) Prefix() []byte {
	return db.Copy(v.prefix)
}

func (v *View) Get(key []byte) ([]byte, error) {
	return v.root.store.Get(v.key(key))
}

func (v *View) Put(key, value []byte) error {
	return v.root.store.Put(v.key(key), value)
}

func (v *View) Delete(key []byte) error {
	return v.root.store.Delete(v.key(key))
}

func (v *View) DeleteRange(begin, end []byte) error {
	lo, hi := v.span(begin, end)
	if db.EmptyRange(lo, hi) {
		return nil
	}
	return v.root.store.DeleteRange(lo, hi)
}

func (v *View) NewBatch() *Batch {
	return &Batch{root: v.root, view: v}
}

func (v *View) Commit(b *Batch) error {
	if b.root != v.root {
		return ErrForeignBatch
	}
	return b.Commit()
}

// scan calls fn for every record of the backing range [lo, hi) and always
// releases the iterator.
func (v *View) scan(lo, hi []byte, fn func(it db.Iterator) error) error {
	if db.EmptyRange(lo, hi) {
		return nil
	}
	it, err := v.root.store.NewIterator(lo, hi)
	if err != nil {
		return err
	}
	for valid := it.First(); valid; valid = it.Next() {
		if err := fn(it); err != nil {
			cerr := it.Close()
			if errors.Is(err, ErrStop) {
				return cerr
			}
			return err
		}
	}
	return it.Close()
}

func (v *View) items(lo, hi []byte, fn func(key, value []byte) error) error {
	return v.scan(lo, hi, func(it db.Iterator) error {
		value, err := it.Value()
		if err != nil {
			return err
		}
		return fn(v.strip(it.Key()), value)
	})
}

func (v *View) Items(prefix []byte, fn func(key, value []byte) error) error {
	lo, hi := v.prefixSpan(prefix)
	return v.items(lo, hi, fn)
}

func (v *View) Keys(prefix []byte, fn func(key []byte) error) error {
	lo, hi := v.prefixSpan(prefix)
	return v.scan(lo, hi, func(it db.Iterator) error {
		return fn(v.strip(it.Key()))
	})
}

func (v *View) Values(prefix []byte, fn func(value []byte) error) error {
	lo, hi := v.prefixSpan(prefix)
	return v.scan(lo, hi, func(it db.Iterator) error {
		value, err := it.Value()
		if err != nil {
			return err
		}
		return fn(value)
	})
}

func (v *View) Range(begin, end []byte, fn func(key, value []byte) error) error {
	lo, hi := v.span(begin, end)
	return v.items(lo, hi, fn)
}

// neighbor finds the record strictly after (forward) or strictly before key.
// The search runs on an iterator bounded to the view, so records outside the
// view are never considered.
func (v *View) neighbor(key []byte, forward, withValue bool) ([]byte, []byte, error) {
	it, err := v.root.store.NewIterator(v.prefix, v.upper)
	if err != nil {
		return nil, nil, err
	}

	var found bool
	if forward {
		found = it.SeekGE(db.KeySuccessor(v.key(key)))
	} else {
		found = it.SeekLT(v.key(key))
	}
	if !found {
		if err := it.Close(); err != nil {
			return nil, nil, err
		}
		return nil, nil, db.ErrNotFound
	}

	k := v.strip(it.Key())
	var value []byte
	if withValue {
		value, err = it.Value()
		if err != nil {
			it.Close() //nolint:errcheck // value error takes precedence
			return nil, nil, err
		}
	}
	if err := it.Close(); err != nil {
		return nil, nil, err
	}
	return k, value, nil
}

func (v *View) NextKey(key []byte) ([]byte, error) {
	k, _, err := v.neighbor(key, true, false)
	return k, err
}

func (v *View) NextValue(key []byte) ([]byte, error) {
	_, value, err := v.neighbor(key, true, true)
	return value, err
}

func (v *View) NextKeyValue(key []byte) ([]byte, []byte, error) {
	return v.neighbor(key, true, true)
}

func (v *View) PrevKey(key []byte) ([]byte, error) {
	k, _, err := v.neighbor(key, false, false)
	return k, err
}

func (v *View) PrevValue(key []byte) ([]byte, error) {
	_, value, err := v.neighbor(key, false, true)
	return value, err
}

func (v *View) PrevKeyValue(key []byte) ([]byte, []byte, error) {
	return v.neighbor(key, false, true)
}

// View nests a view. The result refers to the backing store directly.
func (v *View) View(prefix []byte) Container {
	p := v.key(prefix)
	return &View{
		root:   v.root,
		prefix: p,
		upper:  db.PrefixUpperBound(p),
	}
}

func (v *View) Tree() *Tree {
	return &Tree{Container: v, sentinel: v.root.sentinel}
}

// Walk opens a walker over the keys starting with prefix. The caller must
// Close it.
func (v *View) Walk(prefix []byte) (*Walker, error) {
	lo, hi := v.prefixSpan(prefix)
	it, err := v.root.store.NewIterator(lo, hi)
	if err != nil {
		return nil, err
	}
	v.root.walkers.Add(1)
	return &Walker{view: v, iter: it, lo: lo}, nil
}

func (v *View) Finalize(index Container) error {
	if index != nil {
		b := index.NewBatch()
		err := v.Items(nil, func(key, value []byte) error {
			return b.Put(key, value)
		})
		if err != nil {
			b.Discard()
			return fmt.Errorf("collect records: %w", err)
		}
		if err := index.Commit(b); err != nil {
			return fmt.Errorf("commit index: %w", err)
		}
		log.Storage.Debug().Int("records", b.Len()).Msg("index updated")
	}
	return v.root.store.Compact()
}

func (v *View) Preload() error {
	return v.root.store.Preload()
}

// Close closes the backing store when called on the root. On a derived view
// it does nothing; views own no resources.
func (v *View) Close() error {
	if !v.isRoot {
		return nil
	}
	if n := v.root.walkers.Load(); n > 0 {
		return fmt.Errorf("%w: %d", ErrWalkersOpen, n)
	}
	if !v.root.closed.CompareAndSwap(false, true) {
		return nil
	}
	return v.root.store.Close()
}
