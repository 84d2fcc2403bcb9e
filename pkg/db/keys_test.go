package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefixUpperBound(t *testing.T) {
	tests := []struct {
		name   string
		prefix []byte
		want   []byte
	}{
		{name: "empty", prefix: nil, want: nil},
		{name: "simple", prefix: []byte("meta."), want: []byte("meta/")},
		{name: "carry", prefix: []byte{'a', 0xff}, want: []byte{'b'}},
		{name: "double_carry", prefix: []byte{0x01, 0xff, 0xff}, want: []byte{0x02}},
		{name: "all_ff", prefix: []byte{0xff, 0xff}, want: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PrefixUpperBound(tc.prefix))
		})
	}
}

func TestPrefixUpperBoundDoesNotAlias(t *testing.T) {
	prefix := []byte("ab")
	end := PrefixUpperBound(prefix)
	end[0] = 'z'
	assert.Equal(t, []byte("ab"), prefix)
}

func TestKeySuccessor(t *testing.T) {
	assert.Equal(t, []byte{0x00}, KeySuccessor(nil))
	assert.Equal(t, []byte{'k', 0x00}, KeySuccessor([]byte("k")))
}

func TestClipRange(t *testing.T) {
	lo, hi := ClipRange([]byte("a"), nil, []byte("m"), []byte("n"))
	assert.Equal(t, []byte("m"), lo)
	assert.Equal(t, []byte("n"), hi)

	lo, hi = ClipRange([]byte("mm"), []byte("mz"), []byte("m"), []byte("n"))
	assert.Equal(t, []byte("mm"), lo)
	assert.Equal(t, []byte("mz"), hi)

	lo, hi = ClipRange([]byte("x"), nil, nil, nil)
	assert.Equal(t, []byte("x"), lo)
	assert.Nil(t, hi)

	assert.True(t, EmptyRange([]byte("b"), []byte("a")))
	assert.True(t, EmptyRange([]byte("a"), []byte("a")))
	assert.False(t, EmptyRange([]byte("a"), nil))
}

func TestConcat(t *testing.T) {
	a := []byte("meta.")
	key := Concat(a, []byte("x"))
	assert.Equal(t, []byte("meta.x"), key)
	key[0] = 'M'
	assert.Equal(t, []byte("meta."), a)
	assert.Empty(t, Concat())
}
