package runtime

import "github.com/beryl-lang/beryl/pkg/heap"

// Constant is a named slot owned by a module: either a resolved value
// or, for autoloaded constants, an initializer run once on first read.
type Constant struct {
	name       *Object
	value      Value
	private    bool
	deprecated bool

	autoloadPath string
	autoloadFn   func(*Env) Value
	loading      bool
}

func (c *Constant) visit(visitCell heap.Visitor) {
	visitCell(c.name)
	if obj := c.value.Object(); obj != nil {
		visitCell(obj)
	}
}

// ConstSet assigns a constant in this module. Assigning an anonymous
// module or class names it and records its lexical owner; constant
// assignment can change constant-based resolution, so the method-cache
// version is bumped.
func (o *Object) ConstSet(e *Env, name string, val Value) Value {
	o.assertNotFrozen(e)
	gl := e.Global()
	sym := gl.Intern(name)
	d := o.module()
	if d.constants == nil {
		d.constants = make(map[*Object]*Constant)
	}
	if mod := val.Object(); mod != nil && mod.IsModule() {
		md := mod.module()
		if md.name == "" && !md.isSingleton {
			if o == gl.ObjectClass {
				md.name = name
			} else {
				md.name = o.ModuleName() + "::" + name
			}
		}
		if mod.owner == nil {
			mod.owner = o
		}
	}
	d.constants[sym] = &Constant{name: sym, value: val}
	gl.bumpMethodCacheVersion()
	return val
}

// ConstSetAutoload installs an autoloaded constant: path names the
// feature, fn runs once on first read and supplies the value.
func (o *Object) ConstSetAutoload(e *Env, name, path string, fn func(*Env) Value) {
	o.assertNotFrozen(e)
	sym := e.Global().Intern(name)
	d := o.module()
	if d.constants == nil {
		d.constants = make(map[*Object]*Constant)
	}
	d.constants[sym] = &Constant{name: sym, autoloadPath: path, autoloadFn: fn}
}

// SetConstPrivate marks a constant private; reads from outside its
// owner raise NameError.
func (o *Object) SetConstPrivate(e *Env, name string) {
	c := o.ownConstant(e, name)
	c.private = true
}

// SetConstDeprecated marks a constant deprecated; reads warn when
// $VERBOSE is on.
func (o *Object) SetConstDeprecated(e *Env, name string) {
	c := o.ownConstant(e, name)
	c.deprecated = true
}

func (o *Object) ownConstant(e *Env, name string) *Constant {
	sym := e.Global().Intern(name)
	if c, ok := o.module().constants[sym]; ok {
		return c
	}
	e.Raise("NameError", "constant %s::%s not defined", o.ModuleName(), name)
	return nil
}

// ConstGet resolves name in this module only and raises NameError when
// missing (the strict, Module#const_get form).
func (o *Object) ConstGet(e *Env, name string) Value {
	if v, ok := o.constResolve(e, e.Global().Intern(name), true); ok {
		return v
	}
	e.Raise("NameError", "uninitialized constant %s::%s", o.ModuleName(), name)
	return Value{}
}

// ConstFetch reads an own constant without privacy or autoload
// processing; runtime internals use it during bootstrap.
func (o *Object) ConstFetch(sym *Object) (Value, bool) {
	c, ok := o.module().constants[sym]
	if !ok || c.autoloadFn != nil {
		return Value{}, false
	}
	return c.value, true
}

// ConstFind resolves name from the perspective of this module:
//
//	(a) the module's own constants;
//	(b) the lexically-enclosing modules (owner chain), excluding
//	    Object;
//	(c) the ancestor chain (included modules and superclasses);
//	(d) the root namespace (Object).
//
// Privacy and deprecation are checked at resolution time: a private
// constant found anywhere but lexically raises NameError, and a
// deprecated constant warns.
func (o *Object) ConstFind(e *Env, name string) Value {
	gl := e.Global()
	sym := gl.Intern(name)

	// (a) own constants
	if c, ok := o.module().constants[sym]; ok {
		return o.resolveConstant(e, c, true)
	}

	// (b) lexical owner chain, excluding Object
	for owner := o.owner; owner != nil && owner != gl.ObjectClass; owner = owner.owner {
		if c, ok := owner.module().constants[sym]; ok {
			return owner.resolveConstant(e, c, true)
		}
	}

	// (c) ancestors
	for _, mod := range linearization(o) {
		if mod == o {
			continue
		}
		if c, ok := mod.module().constants[sym]; ok {
			return mod.resolveConstant(e, c, false)
		}
	}

	// (d) root namespace
	if o != gl.ObjectClass {
		if c, ok := gl.ObjectClass.module().constants[sym]; ok {
			return gl.ObjectClass.resolveConstant(e, c, false)
		}
	}

	e.Raise("NameError", "uninitialized constant %s", name)
	return Value{}
}

func (o *Object) constResolve(e *Env, sym *Object, lexical bool) (Value, bool) {
	c, ok := o.module().constants[sym]
	if !ok {
		return Value{}, false
	}
	return o.resolveConstant(e, c, lexical), true
}

// resolveConstant applies privacy, deprecation, and autoload at the
// moment of resolution.
func (o *Object) resolveConstant(e *Env, c *Constant, lexical bool) Value {
	if c.private && !lexical {
		e.Raise("NameError", "private constant %s::%s referenced", o.ModuleName(), c.name.SymbolName())
	}
	if c.deprecated {
		e.Warn("constant %s::%s is deprecated", o.ModuleName(), c.name.SymbolName())
	}
	if c.autoloadFn != nil {
		if c.loading {
			e.Raise("NameError", "circular autoload of constant %s", c.name.SymbolName())
		}
		fn := c.autoloadFn
		c.loading = true
		val := fn(e)
		c.loading = false
		c.autoloadFn = nil
		c.value = val
		if mod := val.Object(); mod != nil && mod.IsModule() && mod.module().name == "" {
			mod.module().name = c.name.SymbolName()
			mod.owner = o
		}
	}
	return c.value
}
