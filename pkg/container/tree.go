package container

import (
	"bytes"
	"errors"

	"github.com/eigerco/kvtree/pkg/db"
)

// Tree reads a container as nested nodes. A key is split on the path
// sentinel into components, so the record at "a"+s+"b"+s+"c" is the leaf
// "c" of node "b" under node "a". Every node is itself a Container scoped to
// its path, and writes through a node land on the flat joined key.
//
// Components are not escaped. A component that contains the sentinel splits
// there: Sub("a"+s+"b") is the same node as Sub("a").Sub("b").
//
// Nodes are built lazily; Sub and Path never touch storage.
type Tree struct {
	Container
	sentinel []byte
}

func (t *Tree) Sentinel() []byte {
	return db.Copy(t.sentinel)
}

// Sub returns the child node named component.
func (t *Tree) Sub(component []byte) *Tree {
	return &Tree{
		Container: t.View(db.Concat(component, t.sentinel)),
		sentinel:  t.sentinel,
	}
}

// Path descends through every component in turn. An empty path is the node
// itself.
func (t *Tree) Path(path ...[]byte) *Tree {
	node := t
	for _, c := range path {
		node = node.Sub(c)
	}
	return node
}

// Key joins path into the flat key it occupies relative to this node.
func (t *Tree) Key(path ...[]byte) []byte {
	return bytes.Join(path, t.sentinel)
}

// Lookup reads the leaf at path. Missing leaves return db.ErrNotFound.
func (t *Tree) Lookup(path ...[]byte) ([]byte, error) {
	return t.Get(t.Key(path...))
}

// Store writes value at path. The record is the same one a flat Put of
// Key(path...) writes.
func (t *Tree) Store(value []byte, path ...[]byte) error {
	return t.Put(t.Key(path...), value)
}

// Remove deletes the leaf at path and leaves any node of the same name
// untouched.
func (t *Tree) Remove(path ...[]byte) error {
	return t.Delete(t.Key(path...))
}

// Prune deletes everything below the child node named component. A leaf
// with the same name is kept.
func (t *Tree) Prune(component []byte) error {
	return t.Sub(component).DeleteRange(nil, nil)
}

// Children calls fn once for every immediate child of the node, in byte
// order of the child names. leaf reports whether a record exists at the
// child's own key; a child can be a leaf and a node at the same time.
// Returning ErrStop from fn ends the listing without error.
func (t *Tree) Children(fn func(child []byte, leaf bool) error) error {
	w, err := t.Walk(nil)
	if err != nil {
		return err
	}

	var (
		last    []byte
		emitted bool
	)
	pending := func(child []byte) bool {
		return !emitted || bytes.Compare(child, last) > 0
	}
	emit := func(child []byte, leaf bool) error {
		last, emitted = db.Copy(child), true
		return fn(db.Copy(child), leaf)
	}
	stop := func(err error) error {
		cerr := w.Close()
		if errors.Is(err, ErrStop) {
			return cerr
		}
		return err
	}

	for ok := w.Next(); ok; {
		key := w.Key()

		child, below := key, false
		if i := bytes.Index(key, t.sentinel); i >= 0 {
			child, below = key[:i], true
		}

		moved := false
		if pending(child) {
			var nodes [][]byte
			nodes, moved = t.nodesAhead(w, child, pending)
			for _, n := range nodes {
				if err := emit(n, false); err != nil {
					return stop(err)
				}
			}
			// A leaf sorts before its own subtree, so a child first met
			// through a deeper key has no record of its own.
			if err := emit(child, !below); err != nil {
				return stop(err)
			}
		}

		switch {
		case below:
			skip := db.PrefixUpperBound(db.Concat(child, t.sentinel))
			if skip == nil {
				return w.Close()
			}
			ok = w.Seek(skip)
		case moved:
			ok = w.Seek(db.KeySuccessor(key))
		default:
			ok = w.Next()
		}
	}
	return w.Close()
}

// nodesAhead returns the proper prefixes of child that name nodes sorting
// before child while their records sort after it, such as "a" for the child
// "a-" when the sentinel is ".". Only prefixes accepted by pending are
// looked up. moved reports whether the walker was repositioned.
func (t *Tree) nodesAhead(w *Walker, child []byte, pending func([]byte) bool) (nodes [][]byte, moved bool) {
	for n := 0; n < len(child); n++ {
		p := child[:n]
		if bytes.Compare(child[n:], t.sentinel) >= 0 || !pending(p) {
			continue
		}
		sub := db.Concat(p, t.sentinel)
		moved = true
		if w.Seek(sub) && bytes.HasPrefix(w.Key(), sub) {
			nodes = append(nodes, db.Copy(p))
		}
	}
	return nodes, moved
}
