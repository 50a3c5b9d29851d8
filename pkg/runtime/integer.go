package runtime

import (
	"math"
	"math/big"
)

// integerData is the payload of a heap Integer: either a native integer
// that needed object identity (a boxed immediate) or a bignum.
type integerData struct {
	fix int64
	big *big.Int
}

// NewInteger returns i as a Value: an immediate when it fits the tagged
// range, a heap bignum otherwise.
func NewInteger(e *Env, i int64) Value {
	if i >= fixnumMin && i <= fixnumMax {
		return Int(i)
	}
	return ObjectValue(e.Global().allocateBignum(big.NewInt(i)))
}

// NewBigInteger normalizes an arbitrary-precision result: values inside
// the immediate range demote back to a tagged integer, everything else
// lives on the heap.
func NewBigInteger(e *Env, b *big.Int) Value {
	if b.IsInt64() {
		i := b.Int64()
		if i >= fixnumMin && i <= fixnumMax {
			return Int(i)
		}
	}
	return ObjectValue(e.Global().allocateBignum(new(big.Int).Set(b)))
}

// IsInteger reports whether v is an integer (immediate or heap bignum).
func IsInteger(v Value) bool {
	return v.IsInt() || (v.Object() != nil && v.Object().typ == TypeInteger)
}

// bigOf widens any integer Value to a big.Int.
func bigOf(v Value) *big.Int {
	if v.IsInt() {
		return big.NewInt(v.Int64())
	}
	d := v.Object().integer()
	if d.big != nil {
		return d.big
	}
	return big.NewInt(d.fix)
}

// IntegerAdd implements + with overflow promotion: the result is a
// bignum exactly when it leaves the tagged-immediate range.
func IntegerAdd(e *Env, a, b Value) Value {
	if a.IsInt() && b.IsInt() {
		x, y := a.Int64(), b.Int64()
		sum := x + y
		if ((x^sum)&(y^sum)) >= 0 && sum >= fixnumMin && sum <= fixnumMax {
			return Int(sum)
		}
	}
	return NewBigInteger(e, new(big.Int).Add(bigOf(a), bigOf(b)))
}

// IntegerSub implements - with overflow promotion.
func IntegerSub(e *Env, a, b Value) Value {
	if a.IsInt() && b.IsInt() {
		x, y := a.Int64(), b.Int64()
		diff := x - y
		if ((x^y)&(x^diff)) >= 0 && diff >= fixnumMin && diff <= fixnumMax {
			return Int(diff)
		}
	}
	return NewBigInteger(e, new(big.Int).Sub(bigOf(a), bigOf(b)))
}

// IntegerMul implements * with overflow promotion.
func IntegerMul(e *Env, a, b Value) Value {
	if a.IsInt() && b.IsInt() {
		x, y := a.Int64(), b.Int64()
		if x == 0 || y == 0 {
			return Int(0)
		}
		prod := x * y
		if prod/y == x && prod >= fixnumMin && prod <= fixnumMax {
			return Int(prod)
		}
	}
	return NewBigInteger(e, new(big.Int).Mul(bigOf(a), bigOf(b)))
}

// IntegerDiv implements floored division; division by zero raises
// ZeroDivisionError.
func IntegerDiv(e *Env, a, b Value) Value {
	q, _ := integerDivmod(e, a, b)
	return q
}

// IntegerMod implements floored modulus; the result carries the sign of
// the divisor.
func IntegerMod(e *Env, a, b Value) Value {
	_, r := integerDivmod(e, a, b)
	return r
}

// IntegerDivmod returns [quotient, modulus] as an Array value.
func IntegerDivmod(e *Env, a, b Value) Value {
	q, r := integerDivmod(e, a, b)
	return NewArray(e, q, r)
}

func integerDivmod(e *Env, a, b Value) (Value, Value) {
	if isIntegerZero(b) {
		e.Raise("ZeroDivisionError", "divided by 0")
	}
	if a.IsInt() && b.IsInt() {
		x, y := a.Int64(), b.Int64()
		q := x / y
		r := x % y
		// Floor semantics: the remainder takes the divisor's sign.
		if r != 0 && (r^y) < 0 {
			q--
			r += y
		}
		return Int(q), Int(r)
	}
	return integerDivmodBig(e, bigOf(a), bigOf(b))
}

func integerDivmodBig(e *Env, x, y *big.Int) (Value, Value) {
	var q, r big.Int
	q.Quo(x, y)
	r.Rem(x, y)
	if r.Sign() != 0 && r.Sign() != y.Sign() {
		q.Sub(&q, big.NewInt(1))
		r.Add(&r, y)
	}
	return NewBigInteger(e, &q), NewBigInteger(e, &r)
}

func isIntegerZero(v Value) bool {
	if v.IsInt() {
		return v.Int64() == 0
	}
	d := v.Object().integer()
	if d.big != nil {
		return d.big.Sign() == 0
	}
	return d.fix == 0
}

// IntegerCmp returns -1, 0, or 1.
func IntegerCmp(a, b Value) int {
	if a.IsInt() && b.IsInt() {
		x, y := a.Int64(), b.Int64()
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	return bigOf(a).Cmp(bigOf(b))
}

// IntegerEql implements eql?: same type, same numeric value.
func IntegerEql(a, b Value) bool {
	if !IsInteger(a) || !IsInteger(b) {
		return false
	}
	return IntegerCmp(a, b) == 0
}

// IntegerSucc returns the integer plus one.
func IntegerSucc(e *Env, a Value) Value {
	return IntegerAdd(e, a, Int(1))
}

// IntegerChr returns the one-character string for the code point;
// values outside a byte raise RangeError.
func IntegerChr(e *Env, a Value) Value {
	if !a.IsInt() || a.Int64() < 0 || a.Int64() > 255 {
		e.Raise("RangeError", "%s out of char range", a.Inspect())
	}
	return NewString(e, string([]byte{byte(a.Int64())}))
}

// IntegerComplement implements ~ (bitwise complement, -x-1).
func IntegerComplement(e *Env, a Value) Value {
	if a.IsInt() {
		return NewInteger(e, -a.Int64()-1)
	}
	var out big.Int
	out.Not(bigOf(a))
	return NewBigInteger(e, &out)
}

// IntegerNeg returns the arithmetic negation.
func IntegerNeg(e *Env, a Value) Value {
	if a.IsInt() && a.Int64() != fixnumMin {
		return Int(-a.Int64())
	}
	var out big.Int
	out.Neg(bigOf(a))
	return NewBigInteger(e, &out)
}

// IntegerToFloat widens an integer to a double.
func IntegerToFloat(a Value) float64 {
	if a.IsInt() {
		return float64(a.Int64())
	}
	f, _ := new(big.Float).SetInt(bigOf(a)).Float64()
	return f
}

// integerHash feeds the eql?/hash law: equal integers hash equally,
// whether immediate or bignum.
func integerHash(v Value) uint64 {
	b := bigOf(v)
	if b.IsInt64() {
		return hashUint64(uint64(b.Int64()))
	}
	h := fnvOffset
	for _, w := range b.Bits() {
		h = fnvMix(h, uint64(w))
	}
	if b.Sign() < 0 {
		h = fnvMix(h, math.MaxUint64)
	}
	return h
}
