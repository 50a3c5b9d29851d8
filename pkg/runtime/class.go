package runtime

// NewModule allocates an anonymous module; a name arrives with the
// first constant assignment.
func NewModule(e *Env) *Object {
	gl := e.Global()
	m := gl.allocateObject(gl.ModuleClass, TypeModule)
	m.data = &moduleData{env: gl.RootEnv()}
	return m
}

// NewClass allocates an anonymous class under the given superclass.
func NewClass(e *Env, superclass *Object) *Object {
	gl := e.Global()
	if superclass != nil && !superclass.IsClass() {
		e.Raise("TypeError", "superclass must be a Class (%s given)", TypeName(e, ObjectValue(superclass)))
	}
	if superclass == nil {
		superclass = gl.ObjectClass
	}
	if superclass.IsSingletonClass() {
		e.Raise("TypeError", "can't make subclass of singleton class")
	}
	c := gl.allocateObject(gl.ClassClass, TypeClass)
	c.data = &moduleData{superclass: superclass, env: gl.RootEnv()}
	return c
}

// DefineClass allocates a class and assigns it to a constant in owner,
// which names it.
func DefineClass(e *Env, owner *Object, name string, superclass *Object) *Object {
	c := NewClass(e, superclass)
	owner.ConstSet(e, name, ObjectValue(c))
	return c
}

// DefineModule allocates a module and assigns it to a constant in
// owner.
func DefineModule(e *Env, owner *Object, name string) *Object {
	m := NewModule(e)
	owner.ConstSet(e, name, ObjectValue(m))
	return m
}

// SingletonClass returns the value's singleton class, interposing a
// fresh class between the object and its current class on first call.
// Immediates have no identity to hang one on (TypeError); frozen
// objects forbid creation (FrozenError).
func SingletonClass(e *Env, v Value) *Object {
	gl := e.Global()
	obj := v.Object()
	if obj == nil {
		e.Raise("TypeError", "can't define singleton")
	}
	switch obj.typ {
	case TypeNil, TypeTrue, TypeFalse:
		// The singletons already have per-value classes.
		return obj.class
	case TypeInteger, TypeFloat, TypeSymbol:
		e.Raise("TypeError", "can't define singleton")
	}
	if obj.singleton != nil {
		return obj.singleton
	}
	if obj.Frozen() {
		e.Raise("FrozenError", "can't modify frozen %s: %s", obj.class.ModuleName(), obj.inspect())
	}

	// Interposing preserves is-a: the singleton's superclass is the
	// object's current class; for a class, the metaclass chain follows
	// the superclass's singleton.
	super := obj.class
	if obj.IsClass() {
		if sc := obj.module().superclass; sc != nil {
			super = SingletonClass(e, ObjectValue(sc))
		} else {
			super = gl.ClassClass
		}
	}
	sc := gl.allocateObject(gl.ClassClass, TypeClass)
	sc.data = &moduleData{superclass: super, env: gl.RootEnv(), isSingleton: true, attached: obj}
	obj.singleton = sc
	gl.bumpMethodCacheVersion()
	return sc
}

// DefineSingletonMethod installs a method on the value's singleton
// class, the per-object definition path of the registration ABI.
func DefineSingletonMethod(e *Env, v Value, name string, fn MethodFn, arity int) *Method {
	return SingletonClass(e, v).DefineMethod(e, name, fn, arity)
}

// ObjectNew instantiates a class: it allocates the instance and sends
// initialize when the class defines or inherits one.
func ObjectNew(e *Env, class *Object, args Args, block *Block) Value {
	gl := e.Global()
	if !class.IsClass() {
		e.Raise("TypeError", "can't instantiate %s", TypeName(e, ObjectValue(class)))
	}
	if class.IsSingletonClass() {
		e.Raise("TypeError", "can't create instance of singleton class")
	}
	obj := gl.allocateObject(class, TypeObject)
	v := ObjectValue(obj)
	if info, _ := resolveMethod(e, class, gl.Intern("initialize")); info != nil && !info.Undefined && info.M != nil {
		info.M.Call(e, v, args, block)
	}
	return v
}
