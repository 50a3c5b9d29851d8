package runtime

// CallKind selects the visibility rules a send runs under.
type CallKind uint8

const (
	// CallImplicit is a send with an implicit receiver: private and
	// protected methods are callable.
	CallImplicit CallKind = iota
	// CallExplicit is a send with an explicit receiver: protected
	// methods need the caller's self to be_a the receiver's class.
	CallExplicit
	// CallPublicOnly is public_send: only public methods.
	CallPublicOnly
)

// dispatchKey identifies a lookup in the global dispatch cache.
type dispatchKey struct {
	class *Object
	name  *Object
}

// dispatchEntry snapshots a resolution at a method-cache version; the
// entry is dead the moment the global version moves on.
type dispatchEntry struct {
	version uint64
	info    *MethodInfo
	owner   *Object
}

// resolveMethod resolves name against the linearization of class:
//
//  1. The bounded global dispatch cache, keyed (class, name).
//  2. The per-module cache on the receiver class, compare-and-refresh
//     against the global method-cache version.
//  3. The linearization walk. A tombstone left by undef_method
//     terminates the search even when an ancestor still defines the
//     name.
//
// Results — including negative ones — are stored in both caches tagged
// with the current version, making lookup a pure function of
// (class, name, version).
func resolveMethod(e *Env, class *Object, name *Object) (*MethodInfo, *Object) {
	gl := e.Global()
	version := gl.methodCacheVersion

	key := dispatchKey{class: class, name: name}
	if gl.dispatchCache != nil {
		if cached, ok := gl.dispatchCache.Get(key); ok {
			ent := cached.(dispatchEntry)
			if ent.version == version {
				return ent.info, ent.owner
			}
		}
	}

	d := class.module()
	if d.cacheVersion != version {
		d.cache = nil
		d.cacheVersion = version
	}
	if ent, ok := d.cache[name]; ok {
		if gl.dispatchCache != nil {
			gl.dispatchCache.Add(key, dispatchEntry{version: version, info: ent.info, owner: ent.owner})
		}
		return ent.info, ent.owner
	}

	var found *MethodInfo
	var owner *Object
	for _, mod := range linearization(class) {
		if info, ok := mod.module().methods[name]; ok {
			if !info.Undefined {
				found = info
				owner = mod
			}
			break
		}
	}

	if d.cache == nil {
		d.cache = make(map[*Object]cachedLookup)
	}
	d.cache[name] = cachedLookup{info: found, owner: owner}
	if gl.dispatchCache != nil {
		gl.dispatchCache.Add(key, dispatchEntry{version: version, info: found, owner: owner})
	}
	return found, owner
}

// Send dispatches name on recv with an implicit receiver (the `send`
// form): private methods are callable.
func (e *Env) Send(recv Value, name *Object, args Args, block *Block) Value {
	return e.dispatch(CallImplicit, Value{}, recv, name, args, block)
}

// SendFrom dispatches with an explicit receiver; callerSelf feeds the
// protected-visibility check.
func (e *Env) SendFrom(callerSelf, recv Value, name *Object, args Args, block *Block) Value {
	return e.dispatch(CallExplicit, callerSelf, recv, name, args, block)
}

// PublicSend dispatches name with public-only visibility.
func (e *Env) PublicSend(recv Value, name *Object, args Args, block *Block) Value {
	return e.dispatch(CallPublicOnly, Value{}, recv, name, args, block)
}

// SendName is the convenience form over plain values; it owns the
// argument span and leaves only the result rooted on the fiber stack.
func (e *Env) SendName(recv Value, name string, values ...Value) Value {
	return e.SendNameBlock(recv, name, nil, values...)
}

// SendNameBlock is SendName with a block argument.
func (e *Env) SendNameBlock(recv Value, name string, block *Block, values ...Value) Value {
	gl := e.Global()
	stack := gl.currentFiber.stack
	mark := stack.top
	args := NewArgs(e, values...)
	result := e.dispatch(CallImplicit, Value{}, recv, gl.Intern(name), args, block)
	stack.truncate(mark)
	stack.push(result)
	return result
}

func (e *Env) dispatch(kind CallKind, callerSelf, recv Value, name *Object, args Args, block *Block) Value {
	gl := e.Global()
	class := recv.Class(gl)
	info, _ := resolveMethod(e, class, name)
	if info == nil || info.M == nil {
		e.raiseNoMethod(recv, name)
	}

	switch info.Vis {
	case VisibilityPrivate:
		if kind != CallImplicit {
			e.Raise("NoMethodError", "private method '%s' called for %s", name.SymbolName(), e.receiverDescription(recv))
		}
	case VisibilityProtected:
		switch kind {
		case CallPublicOnly:
			e.Raise("NoMethodError", "protected method '%s' called for %s", name.SymbolName(), e.receiverDescription(recv))
		case CallExplicit:
			if !IsA(e, callerSelf, recv.Class(gl)) {
				e.Raise("NoMethodError", "protected method '%s' called for %s", name.SymbolName(), e.receiverDescription(recv))
			}
		}
	}

	// Optimized immediate receivers: the audited methods never let
	// self escape, so the object-model receiver can live on the native
	// stack instead of the heap. Method.Call promotes it if it is ever
	// handed to a method outside the audited set.
	if info.M.optimized && (recv.IsInt() || recv.IsFloat()) {
		var synth Object
		synthesizeImmediate(gl, &synth, recv)
		recv = ObjectValue(&synth)
	}

	result := info.M.Call(e, recv, args, block)

	// This send supplied the block: a break unwinding out of it stops
	// here, and the send's value is the break's value.
	if block != nil && IsBreakValue(result) {
		return clearBreak(result)
	}
	return result
}

// SendSuper re-enters resolution starting after the currently
// executing method's owner in the receiver's linearization. Implicit
// super compiles to a SendSuper with the original arguments; explicit
// super passes its own.
func (e *Env) SendSuper(self Value, args Args, block *Block) Value {
	gl := e.Global()
	m := e.currentMethod()
	if m == nil {
		e.Raise("RuntimeError", "super called outside of method")
	}

	lin := linearization(self.Class(gl))
	start := -1
	for i, mod := range lin {
		if mod == m.Owner() {
			start = i + 1
			break
		}
	}
	if start < 0 {
		e.Raise("RuntimeError", "super: could not find the current method's owner for %s", e.receiverDescription(self))
	}

	for _, mod := range lin[start:] {
		if info, ok := mod.module().methods[m.NameSymbol()]; ok {
			if info.Undefined || info.M == nil {
				break
			}
			return info.M.Call(e, self, args, block)
		}
	}
	e.Raise("NoMethodError", "super: no superclass method '%s' for %s", m.Name(), e.receiverDescription(self))
	return Value{}
}

// RespondTo reports whether the value's class resolves name to a
// public method.
func RespondTo(e *Env, v Value, name string) bool {
	info, _ := resolveMethod(e, v.Class(e.Global()), e.Global().Intern(name))
	return info != nil && info.M != nil && info.Vis == VisibilityPublic
}

func (e *Env) raiseNoMethod(recv Value, name *Object) {
	e.Raise("NoMethodError", "undefined method '%s' for %s", name.SymbolName(), e.receiverDescription(recv))
}

func (e *Env) receiverDescription(recv Value) string {
	if obj := recv.Object(); obj != nil {
		switch obj.typ {
		case TypeNil:
			return "nil"
		case TypeTrue:
			return "true"
		case TypeFalse:
			return "false"
		case TypeModule:
			return "module " + obj.ModuleName()
		case TypeClass:
			return "class " + obj.ModuleName()
		}
	}
	return "an instance of " + recv.Class(e.Global()).ModuleName()
}

// synthesizeImmediate builds a transient object-model receiver for an
// immediate in caller-provided storage, marked so any escape path
// promotes it to the heap first.
func synthesizeImmediate(gl *GlobalEnv, synth *Object, v Value) {
	if v.IsInt() {
		synth.typ = TypeInteger
		synth.class = gl.IntegerClass
		synth.data = &integerData{fix: v.Int64()}
	} else {
		synth.typ = TypeFloat
		synth.class = gl.FloatClass
		synth.data = &floatData{val: v.Float64()}
	}
	synth.flags = FlagSynthesized
}
