package runtime

import (
	"github.com/beryl-lang/beryl/pkg/heap"
)

// FiberStatus is the fiber lifecycle state.
type FiberStatus uint8

const (
	FiberCreated FiberStatus = iota
	FiberResumed
	FiberSuspended
	FiberTerminated
)

func (s FiberStatus) String() string {
	switch s {
	case FiberCreated:
		return "created"
	case FiberResumed:
		return "resumed"
	case FiberSuspended:
		return "suspended"
	case FiberTerminated:
		return "terminated"
	}
	return "?"
}

// valueStack is a fiber's value-stack region: the arena argument spans
// and call temporaries live in, and the region the collector scans
// conservatively. The start of stack is fixed at creation (offset 0);
// the end of stack is the published top. Popped slots are zeroed so the
// scan never sees stale words.
type valueStack struct {
	values []Value
	top    int
}

func newValueStack(capacity int) *valueStack {
	return &valueStack{values: make([]Value, 0, capacity)}
}

func (s *valueStack) push(v Value) {
	if s.top == len(s.values) {
		s.values = append(s.values, v)
	} else {
		s.values[s.top] = v
	}
	s.top++
}

func (s *valueStack) truncate(mark int) {
	for i := mark; i < s.top; i++ {
		s.values[i] = Value{}
	}
	s.top = mark
}

// Fiber is a stackful cooperative coroutine. The Go rendition runs
// each fiber on its own goroutine, with a strict handoff so that
// exactly one fiber executes at any instant: control transfers only at
// resume/yield, argument and return values travel through the fiber
// records' argument slots, and the wake channels carry nothing but the
// transfer signal.
//
// Every suspend point is a GC-safe point: the suspending fiber
// publishes its end-of-stack marker (savedTop) before signalling, so a
// collection triggered by whichever fiber runs next can bound the
// conservative scan of this fiber's region.
type Fiber struct {
	gl     *GlobalEnv
	object *Object // the Fiber heap object wrapping this record
	status FiberStatus
	block  *Block
	prev   *Fiber // previous-fiber link, pushed by resume

	stack    *valueStack
	savedTop int
	env      *Env // the frame suspended at, for the precise root walk

	args []Value // transfer slots: resume arguments / yield results
	err  *Object // exception captured when the fiber dies

	storage *Object // fiber-local storage hash, nil until written

	wake chan struct{}
	root bool
}

const defaultFiberStackCapacity = 4 * 1024

// NewFiber creates a fiber in the created state that will run block
// when first resumed.
func NewFiber(e *Env, block *Block) Value {
	gl := e.Global()
	if block == nil {
		e.Raise("ArgumentError", "tried to create a Fiber without a block")
	}
	f := &Fiber{
		gl:     gl,
		status: FiberCreated,
		block:  block,
		stack:  newValueStack(gl.config.FiberStackCapacity),
		wake:   make(chan struct{}),
	}
	obj := gl.allocateObject(gl.FiberClass, TypeFiber)
	obj.data = f
	f.object = obj
	gl.fibers = append(gl.fibers, f)
	return ObjectValue(obj)
}

// CurrentFiber returns the running fiber's object.
func (gl *GlobalEnv) CurrentFiber() Value { return ObjectValue(gl.currentFiber.object) }

// MainFiber returns the root fiber's object.
func (gl *GlobalEnv) MainFiber() Value { return ObjectValue(gl.mainFiber.object) }

// FiberStatusOf returns the fiber's lifecycle state.
func FiberStatusOf(v Value) FiberStatus { return v.Object().fiber().status }

// FiberAlive reports whether the fiber can still be resumed or is
// running.
func FiberAlive(v Value) bool { return v.Object().fiber().status != FiberTerminated }

// ResumeFiber transfers control to the fiber. On first resume the
// block sees values as its entry arguments; on later resumes the
// fiber's pending yield returns them. The resumer blocks until the
// fiber yields, returns, or dies; a dead or already-running target is
// a FiberError.
func ResumeFiber(e *Env, v Value, values ...Value) Value {
	gl := e.Global()
	f := v.Object().fiber()
	current := gl.currentFiber

	switch f.status {
	case FiberTerminated:
		e.Raise("FiberError", "dead fiber called")
	case FiberResumed:
		if f == current {
			e.Raise("FiberError", "attempt to resume the current fiber")
		}
		e.Raise("FiberError", "double resume")
	}

	f.prev = current
	f.args = append([]Value(nil), values...)

	first := f.status == FiberCreated
	f.status = FiberResumed
	gl.currentFiber = f

	// GC-safe point: publish this fiber's end of stack before the
	// transfer. The env chain is already registered by the enclosing
	// call frames.
	current.savedTop = current.stack.top

	if first {
		go fiberEntry(f)
	}
	f.wake <- struct{}{}
	<-current.wake

	gl.currentFiber = current

	if f.status == FiberTerminated {
		gl.removeFiber(f)
	}

	if current.err != nil {
		exc := current.err
		current.err = nil
		e.RaiseException(exc)
	}
	return transferResult(e, current.args)
}

// YieldFiber suspends the running fiber, handing values back to the
// fiber that resumed it. Yielding from the root fiber is an error.
func YieldFiber(e *Env, values ...Value) Value {
	gl := e.Global()
	f := gl.currentFiber
	if f.root {
		e.Raise("FiberError", "can't yield from root fiber")
	}
	prev := f.prev

	f.status = FiberSuspended
	prev.args = append([]Value(nil), values...)
	gl.currentFiber = prev

	// GC-safe point, exactly as in resume.
	f.savedTop = f.stack.top

	prev.wake <- struct{}{}
	<-f.wake

	f.status = FiberResumed
	gl.currentFiber = f
	return transferResult(e, f.args)
}

// transferResult shapes the transfer slots the way a suspension
// expresses them: no values is nil, one value passes through, several
// arrive as an Array.
func transferResult(e *Env, values []Value) Value {
	switch len(values) {
	case 0:
		return e.Global().Nil
	case 1:
		return values[0]
	}
	return NewArray(e, values...)
}

// fiberEntry is the goroutine body wrapping a fiber's block. A normal
// return delivers the block's value to the resumer as a single-element
// result; an uncaught exception marks the fiber dead and re-raises in
// the resumer.
func fiberEntry(f *Fiber) {
	<-f.wake

	e := &Env{global: f.gl, file: "fiber", caller: f.block.Env()}

	result, exc := Protect(e, func(e *Env) Value {
		args := NewArgs(e, f.args...)
		defer args.Release()
		return CallBlockWithoutBreak(e, f.block, args, nil)
	})

	f.status = FiberTerminated
	prev := f.prev
	f.gl.currentFiber = prev
	if exc != nil {
		prev.err = exc
		prev.args = nil
	} else {
		prev.args = []Value{result}
	}
	f.savedTop = 0
	f.stack.truncate(0)
	prev.wake <- struct{}{}
}

// FiberStorageGet reads fiber-local storage for the running fiber.
// Reads fall back along the previous-fiber chain when the current
// fiber has no storage of its own.
func FiberStorageGet(e *Env, key *Object) Value {
	f := e.Global().currentFiber
	for f != nil {
		if f.storage != nil {
			return f.storage.HashGet(e, ObjectValue(key))
		}
		f = f.prev
	}
	return e.Global().Nil
}

// FiberStorageSet writes the running fiber's own storage, creating it
// on first write.
func FiberStorageSet(e *Env, key *Object, val Value) Value {
	f := e.Global().currentFiber
	if f.storage == nil {
		f.storage = NewHash(e).Object()
	}
	f.storage.HashPut(e, ObjectValue(key), val)
	return val
}

// SetFiberStorage installs a whole storage hash: it must be a Hash,
// symbol-keyed, and not frozen. Only the owning fiber may install it.
func SetFiberStorage(e *Env, v Value, storage Value) {
	f := v.Object().fiber()
	if f != e.Global().currentFiber {
		e.Raise("ArgumentError", "Fiber storage can only be accessed from the Fiber it belongs to")
	}
	obj := storage.Object()
	if obj == nil || obj.typ != TypeHash {
		e.Raise("TypeError", "storage must be a hash")
	}
	if obj.Frozen() {
		e.Raise("FrozenError", "storage must not be frozen")
	}
	obj.HashEach(func(k, val Value) {
		if sym := k.Object(); sym == nil || sym.typ != TypeSymbol {
			e.Raise("TypeError", "wrong argument type %s (expected Symbol)", TypeName(e, k))
		}
	})
	f.storage = obj
}

// visitChildren marks the cells reachable from the fiber record
// itself; the stack region is handled by visitRoots during the root
// scan.
func (f *Fiber) visitChildren(visit heap.Visitor) {
	if f.block != nil {
		f.block.visit(visit)
	}
	for _, v := range f.args {
		if obj := v.Object(); obj != nil {
			visit(obj)
		}
	}
	if f.err != nil {
		visit(f.err)
	}
	if f.storage != nil {
		visit(f.storage)
	}
	if f.prev != nil && f.prev.object != nil {
		visit(f.prev.object)
	}
}

// visitRoots contributes the fiber's roots to a collection: the
// conservative scan of its value-stack region between the start of
// stack and the published end of stack, plus a precise walk of the
// frame it suspended in. The currently-running fiber supplies its live
// top instead of the saved marker.
func (f *Fiber) visitRoots(h *heap.Heap, mark heap.Visitor, running bool) {
	if f.object != nil {
		mark(f.object)
	}
	end := f.savedTop
	if running {
		end = f.stack.top
	}
	for i := 0; i < end; i++ {
		if obj := f.stack.values[i].Object(); obj != nil && h.LiveCell(obj) {
			mark(obj)
		}
	}
	if f.env != nil {
		f.env.visit(mark)
	}
}
