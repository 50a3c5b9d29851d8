package runtime

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoxingRoundTrip(t *testing.T) {
	_, e := testEnv(t)

	for _, i := range []int64{0, 1, -1, 42, fixnumMax, fixnumMin} {
		boxed := Int(i).Box(e)
		require.Equal(t, i, ObjectValue(boxed).Unbox().Int64())
	}
}

func TestOverflowPromotesExactlyAtTheBoundary(t *testing.T) {
	_, e := testEnv(t)

	// Within range: stays immediate.
	sum := IntegerAdd(e, Int(fixnumMax-1), Int(1))
	require.True(t, sum.IsInt())
	require.Equal(t, fixnumMax, sum.Int64())

	// One past: promotes.
	over := IntegerAdd(e, Int(fixnumMax), Int(1))
	require.False(t, over.IsInt())
	require.NotNil(t, over.Object().integer().big)

	// And demotes when the result fits again.
	back := IntegerSub(e, over, Int(1))
	require.True(t, back.IsInt())
	require.Equal(t, fixnumMax, back.Int64())
}

func TestMulOverflow(t *testing.T) {
	_, e := testEnv(t)

	big1 := IntegerMul(e, Int(1<<40), Int(1<<40))
	require.False(t, big1.IsInt())

	expected := new(big.Int).Lsh(big.NewInt(1), 80)
	require.Zero(t, expected.Cmp(bigOf(big1)))
}

func TestNegativeFixnumBoundary(t *testing.T) {
	_, e := testEnv(t)

	under := IntegerSub(e, Int(fixnumMin), Int(1))
	require.False(t, under.IsInt())
	back := IntegerAdd(e, under, Int(1))
	require.True(t, back.IsInt())
	require.Equal(t, fixnumMin, back.Int64())
}

func TestFlooredDivision(t *testing.T) {
	_, e := testEnv(t)

	tests := []struct {
		a, b, q, r int64
	}{
		{7, 2, 3, 1},
		{-7, 2, -4, 1},
		{7, -2, -4, -1},
		{-7, -2, 3, -1},
	}
	for _, tt := range tests {
		q := IntegerDiv(e, Int(tt.a), Int(tt.b))
		r := IntegerMod(e, Int(tt.a), Int(tt.b))
		assert.Equal(t, tt.q, q.Int64(), "%d / %d", tt.a, tt.b)
		assert.Equal(t, tt.r, r.Int64(), "%d %% %d", tt.a, tt.b)
	}
}

func TestDivmodByZero(t *testing.T) {
	_, e := testEnv(t)

	expectRaise(t, e, "ZeroDivisionError", func(e *Env) Value {
		return IntegerDivmod(e, Int(7), Int(0))
	})
	expectRaise(t, e, "ZeroDivisionError", func(e *Env) Value {
		return e.SendName(Int(7), "/", Int(0))
	})
}

func TestFloatDivmodDomain(t *testing.T) {
	_, e := testEnv(t)

	expectRaise(t, e, "ZeroDivisionError", func(e *Env) Value {
		return e.SendName(Float(7), "divmod", Float(0))
	})
	nan := e.SendName(Float(0), "/", Float(0))
	exc := expectRaise(t, e, "FloatDomainError", func(e *Env) Value {
		return e.SendName(Float(7), "divmod", nan)
	})
	assert.Equal(t, "NaN", excMessage(exc))

	inf := e.SendName(Float(1), "/", Float(0))
	exc = expectRaise(t, e, "FloatDomainError", func(e *Env) Value {
		return e.SendName(Float(7), "divmod", inf)
	})
	assert.Equal(t, "Infinity", excMessage(exc))
}

func TestChr(t *testing.T) {
	_, e := testEnv(t)

	require.Equal(t, "A", string(IntegerChr(e, Int(65)).Object().StringContents()))
	expectRaise(t, e, "RangeError", func(e *Env) Value {
		return IntegerChr(e, Int(300))
	})
}

func TestComplement(t *testing.T) {
	_, e := testEnv(t)

	require.Equal(t, int64(-6), IntegerComplement(e, Int(5)).Int64())
	require.Equal(t, int64(4), IntegerComplement(e, Int(-5)).Int64())
}

func TestEqlImpliesEqualHash(t *testing.T) {
	_, e := testEnv(t)

	// Immediate and boxed forms of the same integer.
	boxed := ObjectValue(Int(42).Box(e))
	require.True(t, Eql(e, Int(42), boxed))
	require.Equal(t, ValueHash(e, Int(42)), ValueHash(e, boxed))

	// Bignum equal to itself across separate computations.
	a := IntegerAdd(e, Int(fixnumMax), Int(5))
	b := IntegerAdd(e, Int(fixnumMax), Int(5))
	require.True(t, Eql(e, a, b))
	require.Equal(t, ValueHash(e, a), ValueHash(e, b))

	// Strings by content.
	s1, s2 := NewString(e, "hi"), NewString(e, "hi")
	require.True(t, Eql(e, s1, s2))
	require.Equal(t, ValueHash(e, s1), ValueHash(e, s2))

	// eql? is type-strict between Integer and Float.
	require.False(t, Eql(e, Int(2), Float(2.0)))
}

func TestIntegerFloatArithmeticViaDispatch(t *testing.T) {
	_, e := testEnv(t)

	require.Equal(t, 3.5, e.SendName(Int(3), "+", Float(0.5)).Float64())
	require.Equal(t, int64(-1), e.SendName(Int(1), "<=>", Int(2)).Int64())
	require.True(t, e.SendName(Int(2), "==", Float(2.0)).IsTruthy())
	require.False(t, e.SendName(Int(2), "eql?", Float(2.0)).IsTruthy())

	exc := expectRaise(t, e, "TypeError", func(e *Env) Value {
		return e.SendName(Int(2), "+", NewString(e, "x"))
	})
	assert.Contains(t, excMessage(exc), "can't be coerced into Integer")
}
