// Package runtime implements the beryl core runtime: the object model,
// the method dispatcher, and the fiber subsystem, on top of the managed
// heap in pkg/heap.
//
// Execution Model:
//
// A compiled program (or an extension) is linked against this package.
// It obtains a root Env from a GlobalEnv, looks up or defines constants
// through the object model, and invokes methods through Send/PublicSend.
// Method bodies are native Go functions with the fixed signature
//
//	func(e *Env, self Value, args Args, block *Block) Value
//
// Exceptional control flow travels on an unwinding channel (a typed
// panic) orthogonal to normal returns; Begin/Rescue/ensure helpers
// recover it. Fibers are stackful cooperative coroutines; exactly one
// runs at a time.
package runtime

import (
	"fmt"
	"math"
)

// fixnumMax and fixnumMin bound the immediate integer range. One bit of
// the word is reserved as a tag, so immediates cover roughly ±2^62;
// anything outside is stored as a heap Integer carrying a bignum.
const (
	fixnumMax = int64(1)<<62 - 1
	fixnumMin = -(int64(1) << 62)
)

// valueKind discriminates the immediate forms of a Value.
type valueKind uint8

const (
	kindEmpty valueKind = iota
	kindInt
	kindFloat
	kindPointer
)

// Value is a word-sized handle: either an immediate (small integer or
// double) or a pointer to a heap Object. nil, true, and false are
// pointers to unique permanent Objects, so every Value with kindPointer
// has object identity.
//
// Values are passed by value. Equality is bitwise for immediates and
// pointer identity for objects; the struct compares correctly with ==.
type Value struct {
	kind valueKind
	bits int64
	obj  *Object
}

// Int returns an immediate integer Value. The caller must ensure i is
// inside the immediate range; NewInteger handles promotion.
func Int(i int64) Value { return Value{kind: kindInt, bits: i} }

// Float returns an immediate double Value.
func Float(f float64) Value { return Value{kind: kindFloat, bits: int64(math.Float64bits(f))} }

// ObjectValue wraps a heap object pointer.
func ObjectValue(o *Object) Value { return Value{kind: kindPointer, obj: o} }

// IsEmpty reports whether the Value is the zero Value (no object, no
// immediate). Empty values never escape to user code; they mark unset
// slots inside the runtime.
func (v Value) IsEmpty() bool { return v.kind == kindEmpty }

// IsInt reports whether the Value is an immediate integer.
func (v Value) IsInt() bool { return v.kind == kindInt }

// IsFloat reports whether the Value is an immediate double.
func (v Value) IsFloat() bool { return v.kind == kindFloat }

// IsPointer reports whether the Value holds a heap object.
func (v Value) IsPointer() bool { return v.kind == kindPointer }

// Int64 returns the immediate integer payload.
func (v Value) Int64() int64 { return v.bits }

// Float64 returns the immediate double payload.
func (v Value) Float64() float64 { return math.Float64frombits(uint64(v.bits)) }

// Object returns the heap object, or nil for immediates.
func (v Value) Object() *Object {
	if v.kind == kindPointer {
		return v.obj
	}
	return nil
}

// Type returns the object-model type tag of the value.
func (v Value) Type() Type {
	switch v.kind {
	case kindInt:
		return TypeInteger
	case kindFloat:
		return TypeFloat
	case kindPointer:
		return v.obj.typ
	}
	return TypeNone
}

// Class returns the class used for dispatch on this value.
func (v Value) Class(gl *GlobalEnv) *Object {
	switch v.kind {
	case kindInt:
		return gl.IntegerClass
	case kindFloat:
		return gl.FloatClass
	case kindPointer:
		return v.obj.effectiveClass()
	}
	return nil
}

// IsNil reports whether the value is the nil singleton.
func (v Value) IsNil() bool { return v.kind == kindPointer && v.obj.typ == TypeNil }

// IsTruthy implements the language truth rule: everything except nil
// and false is truthy.
func (v Value) IsTruthy() bool {
	if v.kind != kindPointer {
		return true
	}
	switch v.obj.typ {
	case TypeNil, TypeFalse:
		return false
	}
	return true
}

// Box promotes an immediate to a heap Object when a caller requires an
// identity-bearing reference. Boxing a pointer Value returns its object
// unchanged.
func (v Value) Box(e *Env) *Object {
	switch v.kind {
	case kindInt:
		return e.Global().allocateInteger(v.bits)
	case kindFloat:
		return e.Global().allocateFloat(v.Float64())
	case kindPointer:
		return v.obj
	}
	panic("boxing an empty value")
}

// Unbox demotes a heap Integer or Float back to its immediate form when
// it fits; every other value is returned unchanged.
func (v Value) Unbox() Value {
	if v.kind != kindPointer {
		return v
	}
	switch v.obj.typ {
	case TypeInteger:
		d := v.obj.integer()
		if d.big == nil {
			return Int(d.fix)
		}
	case TypeFloat:
		return Float(v.obj.float().val)
	}
	return v
}

// Inspect renders a short diagnostic form of the value. It is not the
// language-level inspect (that belongs to the class library); the
// runtime uses it for error messages.
func (v Value) Inspect() string {
	switch v.kind {
	case kindEmpty:
		return "<empty>"
	case kindInt:
		return fmt.Sprintf("%d", v.bits)
	case kindFloat:
		return fmt.Sprintf("%g", v.Float64())
	}
	return v.obj.inspect()
}
