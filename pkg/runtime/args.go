package runtime

// Args is a non-owning view over a span of the current fiber's value
// stack: positional count, start offset, and a flag recording that the
// last value is a keyword hash. Passing Args by value copies the view,
// not the arguments.
//
// The backing span doubles as a GC root region: while a call is in
// flight its arguments sit inside the fiber's scanned stack, so a
// collection triggered by the callee cannot reclaim them.
type Args struct {
	f          *Fiber
	start      int
	count      int
	keywordArg bool
}

// NewArgs pushes values onto the current fiber's value stack and
// returns a view over them. The creator is responsible for calling
// Release once the call it was built for has returned.
func NewArgs(e *Env, values ...Value) Args {
	f := e.Global().currentFiber
	start := f.stack.top
	for _, v := range values {
		f.stack.push(v)
	}
	return Args{f: f, start: start, count: len(values)}
}

// NewArgsWithKeywords is NewArgs with a trailing keyword hash.
func NewArgsWithKeywords(e *Env, kwHash Value, values ...Value) Args {
	a := NewArgs(e, append(values, kwHash)...)
	a.keywordArg = true
	return a
}

// Release pops the view's span off the fiber stack. Only the creator
// calls it, after the call completes.
func (a Args) Release() {
	a.f.stack.truncate(a.start)
}

// Size returns the positional count, including any keyword hash.
func (a Args) Size() int { return a.count }

// At returns argument i; out-of-range reads are a runtime bug.
func (a Args) At(i int) Value {
	if i < 0 || i >= a.count {
		panic("argument index out of range")
	}
	return a.f.stack.values[a.start+i]
}

// AtOrNil returns argument i, or nil past the end.
func (a Args) AtOrNil(e *Env, i int) Value {
	if i < 0 || i >= a.count {
		return e.Global().Nil
	}
	return a.f.stack.values[a.start+i]
}

// Shift removes and returns the first argument.
func (a *Args) Shift() Value {
	v := a.At(0)
	a.start++
	a.count--
	return v
}

// Pop removes and returns the last positional argument, keeping any
// keyword hash in place.
func (a *Args) Pop() Value {
	last := a.count - 1
	if a.keywordArg {
		last--
	}
	v := a.At(last)
	copy(a.f.stack.values[a.start+last:], a.f.stack.values[a.start+last+1:a.start+a.count])
	a.count--
	return v
}

// HasKeywordHash reports whether the last value is a keyword hash.
func (a Args) HasKeywordHash() bool { return a.keywordArg }

// KeywordHash returns the trailing keyword hash, or nil.
func (a Args) KeywordHash(e *Env) Value {
	if !a.keywordArg || a.count == 0 {
		return e.Global().Nil
	}
	return a.At(a.count - 1)
}

// PositionalCount is the argument count excluding the keyword hash.
func (a Args) PositionalCount() int {
	if a.keywordArg {
		return a.count - 1
	}
	return a.count
}

// ToSlice copies the view into a fresh slice.
func (a Args) ToSlice() []Value {
	out := make([]Value, a.count)
	for i := 0; i < a.count; i++ {
		out[i] = a.At(i)
	}
	return out
}

// ToArray reifies the view as an Array object.
func (a Args) ToArray(e *Env) Value {
	return NewArray(e, a.ToSlice()...)
}

// EnsureArgc raises ArgumentError unless exactly expected positionals
// were given.
func (a Args) EnsureArgc(e *Env, expected int) {
	if a.PositionalCount() != expected {
		e.Raise("ArgumentError", "wrong number of arguments (given %d, expected %d)", a.PositionalCount(), expected)
	}
}

// EnsureArgcRange raises ArgumentError unless the positional count is
// within [low, high].
func (a Args) EnsureArgcRange(e *Env, low, high int) {
	n := a.PositionalCount()
	if n < low || n > high {
		e.Raise("ArgumentError", "wrong number of arguments (given %d, expected %d..%d)", n, low, high)
	}
}

// EnsureArgcAtLeast raises ArgumentError unless at least expected
// positionals were given.
func (a Args) EnsureArgcAtLeast(e *Env, expected int) {
	if a.PositionalCount() < expected {
		e.Raise("ArgumentError", "wrong number of arguments (given %d, expected %d+)", a.PositionalCount(), expected)
	}
}
