package runtime

import (
	"fmt"

	"github.com/beryl-lang/beryl/pkg/heap"
)

// Type discriminates the heap object variants.
type Type uint8

const (
	TypeNone Type = iota
	TypeObject
	TypeNil
	TypeTrue
	TypeFalse
	TypeInteger
	TypeFloat
	TypeString
	TypeSymbol
	TypeArray
	TypeHash
	TypeProc
	TypeRegexp
	TypeMatchData
	TypeException
	TypeVoidP
	TypeModule
	TypeClass
	TypeFiber
	TypeMutex
)

func (t Type) String() string {
	switch t {
	case TypeObject:
		return "Object"
	case TypeNil:
		return "NilClass"
	case TypeTrue:
		return "TrueClass"
	case TypeFalse:
		return "FalseClass"
	case TypeInteger:
		return "Integer"
	case TypeFloat:
		return "Float"
	case TypeString:
		return "String"
	case TypeSymbol:
		return "Symbol"
	case TypeArray:
		return "Array"
	case TypeHash:
		return "Hash"
	case TypeProc:
		return "Proc"
	case TypeRegexp:
		return "Regexp"
	case TypeMatchData:
		return "MatchData"
	case TypeException:
		return "Exception"
	case TypeVoidP:
		return "VoidP"
	case TypeModule:
		return "Module"
	case TypeClass:
		return "Class"
	case TypeFiber:
		return "Fiber"
	case TypeMutex:
		return "Mutex"
	}
	return "?"
}

// Flags are per-object bit flags.
type Flags uint16

const (
	// FlagFrozen rejects all mutating operations with FrozenError.
	FlagFrozen Flags = 1 << iota
	// FlagTainted is carried for compatibility; the core only stores it.
	FlagTainted
	// FlagMain marks the main (top-level) object.
	FlagMain
	// FlagBreak marks a value propagating a break out of a block. The
	// iterating call strips the flag and unwinds.
	FlagBreak
	// FlagSynthesized marks a transient receiver built on the native
	// stack by the optimized immediate-dispatch path. Synthesized
	// objects must not escape; dispatch promotes them first.
	FlagSynthesized
)

// Object is the base record for every heap-managed entity. The variant
// payload hangs off data; modules and classes carry a *moduleData,
// integers an *integerData, and so on. The heap recycles Objects
// through fixed-size cells, so the struct layout is shared by every
// variant.
type Object struct {
	heap.Core

	typ       Type
	class     *Object // immediate class used for dispatch
	singleton *Object // lazily-allocated per-instance class
	owner     *Object // lexical owner used for constant resolution
	flags     Flags
	id        uint64            // lazily-assigned identity, used for hashing
	ivars     map[*Object]Value // symbol -> value

	data interface{}
}

// effectiveClass is the class dispatch starts from: the singleton class
// when one has been demanded, otherwise the object's class.
func (o *Object) effectiveClass() *Object {
	if o.singleton != nil {
		return o.singleton
	}
	return o.class
}

// Class returns the object's class (ignoring any singleton class).
func (o *Object) Class() *Object { return o.class }

// Owner returns the lexical owner module, or nil for plain objects.
func (o *Object) Owner() *Object { return o.owner }

// SetOwner records the lexical owner used for constant resolution.
func (o *Object) SetOwner(owner *Object) { o.owner = owner }

// HasFlag reports whether all bits of f are set.
func (o *Object) HasFlag(f Flags) bool { return o.flags&f == f }

// SetFlag sets the bits of f.
func (o *Object) SetFlag(f Flags) { o.flags |= f }

// ClearFlag clears the bits of f.
func (o *Object) ClearFlag(f Flags) { o.flags &^= f }

// Frozen reports whether the object is frozen.
func (o *Object) Frozen() bool { return o.HasFlag(FlagFrozen) }

// Freeze flags the object; subsequent mutation raises FrozenError.
func (o *Object) Freeze() { o.SetFlag(FlagFrozen) }

// assertNotFrozen raises FrozenError if the object is frozen.
func (o *Object) assertNotFrozen(e *Env) {
	if o.Frozen() {
		e.Raise("FrozenError", "can't modify frozen %s: %s", o.class.ModuleName(), o.inspect())
	}
}

// IvarGet reads an instance variable. Reading an unset ivar yields nil.
func (o *Object) IvarGet(e *Env, name *Object) Value {
	if o.ivars != nil {
		if v, ok := o.ivars[name]; ok {
			return v
		}
	}
	return e.Global().Nil
}

// IvarSet writes an instance variable. The object must not be frozen.
func (o *Object) IvarSet(e *Env, name *Object, val Value) Value {
	o.assertNotFrozen(e)
	if o.ivars == nil {
		o.ivars = make(map[*Object]Value)
	}
	o.ivars[name] = val
	return val
}

// IvarDefined reports whether the instance variable is set.
func (o *Object) IvarDefined(name *Object) bool {
	_, ok := o.ivars[name]
	return ok
}

// Dup makes a shallow copy on the heap: same class, same ivars, same
// payload reference, but without the frozen flag or the singleton
// class. The optimized-dispatch path uses it to promote a synthesized
// receiver before it can escape.
func (o *Object) Dup(e *Env) *Object {
	gl := e.Global()
	dup := gl.allocateObject(o.class, o.typ)
	dup.owner = o.owner
	dup.flags = o.flags &^ (FlagFrozen | FlagSynthesized)
	if o.ivars != nil {
		dup.ivars = make(map[*Object]Value, len(o.ivars))
		for k, v := range o.ivars {
			dup.ivars[k] = v
		}
	}
	switch o.typ {
	case TypeInteger:
		d := *o.integer()
		dup.data = &d
	case TypeFloat:
		d := *o.float()
		dup.data = &d
	default:
		dup.data = o.data
	}
	return dup
}

// payload accessors. Callers check the type tag first; a mismatch is a
// runtime bug, not a user error, so these just assert.

func (o *Object) integer() *integerData   { return o.data.(*integerData) }
func (o *Object) float() *floatData       { return o.data.(*floatData) }
func (o *Object) str() *stringData        { return o.data.(*stringData) }
func (o *Object) symbol() *symbolData     { return o.data.(*symbolData) }
func (o *Object) array() *arrayData       { return o.data.(*arrayData) }
func (o *Object) hash() *hashData         { return o.data.(*hashData) }
func (o *Object) proc() *procData         { return o.data.(*procData) }
func (o *Object) module() *moduleData     { return o.data.(*moduleData) }
func (o *Object) exception() *exceptionData {
	return o.data.(*exceptionData)
}
func (o *Object) fiber() *Fiber         { return o.data.(*Fiber) }
func (o *Object) mutex() *mutexData     { return o.data.(*mutexData) }
func (o *Object) voidp() *voidPData     { return o.data.(*voidPData) }
func (o *Object) regexp() *regexpData   { return o.data.(*regexpData) }
func (o *Object) matchdata() *matchData { return o.data.(*matchData) }

// IsModule reports whether the object is a module or class.
func (o *Object) IsModule() bool { return o.typ == TypeModule || o.typ == TypeClass }

// IsClass reports whether the object is a class.
func (o *Object) IsClass() bool { return o.typ == TypeClass }

// inspect renders a short diagnostic form used in error messages.
func (o *Object) inspect() string {
	switch o.typ {
	case TypeNil:
		return "nil"
	case TypeTrue:
		return "true"
	case TypeFalse:
		return "false"
	case TypeInteger:
		d := o.integer()
		if d.big != nil {
			return d.big.String()
		}
		return fmt.Sprintf("%d", d.fix)
	case TypeFloat:
		return fmt.Sprintf("%g", o.float().val)
	case TypeString:
		return fmt.Sprintf("%q", string(o.str().bytes))
	case TypeSymbol:
		return ":" + o.symbol().name
	case TypeModule, TypeClass:
		return o.ModuleName()
	case TypeException:
		return fmt.Sprintf("#<%s: %s>", o.class.ModuleName(), o.exception().message.Inspect())
	}
	if o.class != nil {
		return fmt.Sprintf("#<%s>", o.class.ModuleName())
	}
	return fmt.Sprintf("#<%s>", o.typ)
}

// VisitChildren enumerates every cell this object keeps alive: its
// class pointers, owner, instance variables, and the variant payload's
// substructures. Visitation is idempotent; the collector's mark bit
// makes cycles safe.
func (o *Object) VisitChildren(visit heap.Visitor) {
	markValue := func(v Value) {
		if obj := v.Object(); obj != nil {
			visit(obj)
		}
	}
	if o.class != nil {
		visit(o.class)
	}
	if o.singleton != nil {
		visit(o.singleton)
	}
	if o.owner != nil {
		visit(o.owner)
	}
	for name, v := range o.ivars {
		visit(name)
		markValue(v)
	}
	// A collection can run between a cell's allocation and the moment
	// its payload is attached; the newborn is rooted but has no
	// children yet.
	if o.data == nil {
		return
	}
	switch o.typ {
	case TypeArray:
		for _, v := range o.array().elems {
			markValue(v)
		}
	case TypeHash:
		o.hash().visit(markValue)
	case TypeString:
		// byte payloads own no cells
	case TypeProc:
		o.proc().block.visit(visit)
	case TypeModule, TypeClass:
		o.module().visit(visit)
	case TypeException:
		d := o.exception()
		markValue(d.message)
	case TypeFiber:
		o.fiber().visitChildren(visit)
	case TypeMutex:
		if owner := o.mutex().owner; owner != nil {
			visit(owner.object)
		}
	case TypeMatchData:
		markValue(o.matchdata().source)
	}
}

// Destroy is the sweep-phase destructor. Most variants own nothing
// outside the Go heap; VoidP runs its finalizer.
func (o *Object) Destroy() {
	if o.typ == TypeVoidP {
		d := o.voidp()
		if d.finalizer != nil {
			d.finalizer(d.ptr)
		}
	}
}

// payload footprint estimates used to route heap requests into size
// classes. The numbers only steer accounting; every cell stores a full
// Object.
func footprint(t Type) int {
	switch t {
	case TypeModule, TypeClass, TypeFiber:
		return 512
	case TypeHash:
		return 256
	case TypeArray, TypeString, TypeException, TypeRegexp, TypeMatchData, TypeProc:
		return 128
	}
	return 64
}

// objectSource is the heap.CellSource for Objects: blocks are backed by
// contiguous []Object arrays, and Reset zeroes the cell body while
// keeping the collector bookkeeping.
type objectSource struct{}

func (objectSource) NewCells(count int) []heap.Cell {
	backing := make([]Object, count)
	cells := make([]heap.Cell, count)
	for i := range backing {
		cells[i] = &backing[i]
	}
	return cells
}

func (objectSource) Reset(c heap.Cell) {
	o := c.(*Object)
	core := o.Core
	*o = Object{}
	o.Core = core
}
