package db

import "bytes"

// PrefixUpperBound returns the smallest key that is greater than every key
// starting with prefix. It returns nil when no such key exists, which is the
// case for an empty prefix or one made only of 0xff bytes.
func PrefixUpperBound(prefix []byte) []byte {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] != 0xff {
			end := make([]byte, i+1)
			copy(end, prefix)
			end[i]++
			return end
		}
	}
	return nil
}

// KeySuccessor returns the smallest key strictly greater than key.
func KeySuccessor(key []byte) []byte {
	next := make([]byte, len(key)+1)
	copy(next, key)
	return next
}

// Concat joins the parts into a freshly allocated key.
func Concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	key := make([]byte, 0, n)
	for _, p := range parts {
		key = append(key, p...)
	}
	return key
}

// HasPrefix reports whether key starts with prefix.
func HasPrefix(key, prefix []byte) bool {
	return bytes.HasPrefix(key, prefix)
}

// ClipRange intersects the half-open ranges [lo, hi) and [boundLo, boundHi).
// A nil upper end is unbounded. The returned range may be empty, which
// callers detect with EmptyRange.
func ClipRange(lo, hi, boundLo, boundHi []byte) ([]byte, []byte) {
	if bytes.Compare(lo, boundLo) < 0 {
		lo = boundLo
	}
	if hi == nil || (boundHi != nil && bytes.Compare(hi, boundHi) > 0) {
		hi = boundHi
	}
	return lo, hi
}

// EmptyRange reports whether [lo, hi) holds no keys.
func EmptyRange(lo, hi []byte) bool {
	return hi != nil && bytes.Compare(lo, hi) >= 0
}

// Copy returns a copy of b that does not alias it.
func Copy(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
