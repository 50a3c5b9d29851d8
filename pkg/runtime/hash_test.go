package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPreservesInsertionOrder(t *testing.T) {
	_, e := testEnv(t)

	h := NewHash(e).Object()
	keys := []string{"c", "a", "b"}
	for i, k := range keys {
		h.HashPut(e, NewString(e, k), Int(int64(i)))
	}

	var seen []string
	h.HashEach(func(k, v Value) {
		seen = append(seen, string(k.Object().StringContents()))
	})
	require.Equal(t, keys, seen)

	// Updating keeps the original position.
	h.HashPut(e, NewString(e, "a"), Int(99))
	seen = seen[:0]
	h.HashEach(func(k, v Value) {
		seen = append(seen, string(k.Object().StringContents()))
	})
	require.Equal(t, keys, seen)
	require.Equal(t, int64(99), h.HashGet(e, NewString(e, "a")).Int64())
}

func TestHashKeysUseEql(t *testing.T) {
	_, e := testEnv(t)

	h := NewHash(e).Object()
	h.HashPut(e, NewString(e, "k"), Int(1))

	// A different string object with equal content finds the entry.
	require.Equal(t, int64(1), h.HashGet(e, NewString(e, "k")).Int64())
	require.True(t, h.HashHasKey(e, NewString(e, "k")))

	// Integer and Float keys stay distinct (eql? is type-strict).
	h.HashPut(e, Int(2), NewString(e, "int"))
	h.HashPut(e, Float(2.0), NewString(e, "float"))
	require.Equal(t, "int", string(h.HashGet(e, Int(2)).Object().StringContents()))
	require.Equal(t, "float", string(h.HashGet(e, Float(2.0)).Object().StringContents()))
}

func TestHashDelete(t *testing.T) {
	gl, e := testEnv(t)

	h := NewHash(e).Object()
	h.HashPut(e, gl.Symbol("a"), Int(1))
	h.HashPut(e, gl.Symbol("b"), Int(2))
	h.HashPut(e, gl.Symbol("c"), Int(3))

	removed := h.HashDelete(e, gl.Symbol("b"))
	require.Equal(t, int64(2), removed.Int64())
	require.Equal(t, 2, h.HashLen())
	require.False(t, h.HashHasKey(e, gl.Symbol("b")))
	require.Equal(t, int64(3), h.HashGet(e, gl.Symbol("c")).Int64(), "index rebuilt after compaction")

	assert.True(t, h.HashDelete(e, gl.Symbol("missing")).IsNil())
}

func TestFrozenHashRejectsMutation(t *testing.T) {
	gl, e := testEnv(t)

	h := NewHash(e).Object()
	h.HashPut(e, gl.Symbol("k"), Int(1))
	h.Freeze()

	expectRaise(t, e, "FrozenError", func(e *Env) Value {
		return h.HashPut(e, gl.Symbol("x"), Int(2))
	})
	expectRaise(t, e, "FrozenError", func(e *Env) Value {
		return h.HashDelete(e, gl.Symbol("k"))
	})
	require.Equal(t, 1, h.HashLen())
}
