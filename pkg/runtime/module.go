package runtime

import (
	"github.com/beryl-lang/beryl/pkg/heap"
)

// moduleData is the payload shared by modules and classes: the method
// table, constants, class variables, the ancestor bookkeeping, and the
// per-module method cache.
type moduleData struct {
	name       string
	superclass *Object   // nil for BasicObject and plain modules
	included   []*Object // insertion order; dispatch walks newest first
	prepended  []*Object // insertion order; dispatch walks newest first
	methods    map[*Object]*MethodInfo
	constants  map[*Object]*Constant
	cvars      map[*Object]Value
	env        *Env // declaration env for defs

	// method cache, valid only while cacheVersion matches the global
	// method-cache version
	cache        map[*Object]cachedLookup
	cacheVersion uint64

	isSingleton bool
	attached    *Object // the instance a singleton class belongs to
}

type cachedLookup struct {
	info  *MethodInfo
	owner *Object
}

// ModuleName returns the module's name, which stays unset until the
// module is first assigned to a constant.
func (o *Object) ModuleName() string {
	if o == nil {
		return "?"
	}
	if !o.IsModule() {
		return o.typ.String()
	}
	d := o.module()
	if d.name != "" {
		return d.name
	}
	if d.isSingleton && d.attached != nil {
		return "#<Class:" + d.attached.inspect() + ">"
	}
	if o.IsClass() {
		return "#<Class>"
	}
	return "#<Module>"
}

// Superclass returns the superclass pointer (nil for BasicObject).
func (o *Object) Superclass() *Object { return o.module().superclass }

// IsSingletonClass reports whether the class was interposed as a
// per-instance singleton.
func (o *Object) IsSingletonClass() bool {
	return o.IsModule() && o.module().isSingleton
}

// linearization is the ordered module list dispatch consults for a
// receiver class: for each class in the superclass chain, prepended
// modules (newest first), the class itself, then included modules
// (newest first). A module already present is skipped, which both
// prevents cycles and makes re-inclusion a no-op.
func linearization(mod *Object) []*Object {
	var out []*Object
	seen := make(map[*Object]bool)

	add := func(m *Object) {
		if m == nil || seen[m] {
			return
		}
		seen[m] = true
		out = append(out, m)
	}

	var addWithModules func(m *Object)
	addWithModules = func(m *Object) {
		if m == nil {
			return
		}
		d := m.module()
		for i := len(d.prepended) - 1; i >= 0; i-- {
			addWithModules(d.prepended[i])
		}
		add(m)
		for i := len(d.included) - 1; i >= 0; i-- {
			addWithModules(d.included[i])
		}
	}

	for c := mod; c != nil; {
		addWithModules(c)
		if !c.IsModule() {
			break
		}
		c = c.module().superclass
	}
	return out
}

// Ancestors returns the linearization, the module-level view of
// dispatch order.
func (o *Object) Ancestors() []*Object { return linearization(o) }

// Include inserts module after the receiver in its ancestor sequence.
// Re-including a module already present is a no-op.
func (o *Object) Include(e *Env, module *Object) {
	o.assertNotFrozen(e)
	if !module.IsModule() {
		e.Raise("TypeError", "wrong argument type %s (expected Module)", TypeName(e, ObjectValue(module)))
	}
	d := o.module()
	for _, m := range d.included {
		if m == module {
			return
		}
	}
	d.included = append(d.included, module)
	e.Global().bumpMethodCacheVersion()
}

// Prepend inserts module before the receiver in its ancestor sequence.
func (o *Object) Prepend(e *Env, module *Object) {
	o.assertNotFrozen(e)
	if !module.IsModule() {
		e.Raise("TypeError", "wrong argument type %s (expected Module)", TypeName(e, ObjectValue(module)))
	}
	d := o.module()
	for _, m := range d.prepended {
		if m == module {
			return
		}
	}
	d.prepended = append(d.prepended, module)
	e.Global().bumpMethodCacheVersion()
}

// Extend includes module into the object's singleton class.
func Extend(e *Env, v Value, module *Object) {
	SingletonClass(e, v).Include(e, module)
}

// DefineMethod installs a method in the module's table and returns it.
func (o *Object) DefineMethod(e *Env, name string, fn MethodFn, arity int) *Method {
	sym := e.Global().Intern(name)
	m := NewMethod(sym, o, fn, arity)
	o.installMethod(e, sym, &MethodInfo{Vis: VisibilityPublic, M: m})
	return m
}

// DefineMethodFromBlock is the define_method path: the body captures
// the block's env.
func (o *Object) DefineMethodFromBlock(e *Env, name string, block *Block) *Method {
	sym := e.Global().Intern(name)
	m := NewMethodFromBlock(sym, o, block)
	o.installMethod(e, sym, &MethodInfo{Vis: VisibilityPublic, M: m})
	return m
}

func (o *Object) installMethod(e *Env, sym *Object, info *MethodInfo) {
	o.assertNotFrozen(e)
	d := o.module()
	if d.methods == nil {
		d.methods = make(map[*Object]*MethodInfo)
	}
	d.methods[sym] = info
	e.Global().bumpMethodCacheVersion()
}

// UndefMethod installs a tombstone: the name resolves to "undefined"
// even if an ancestor defines it.
func (o *Object) UndefMethod(e *Env, name string) {
	gl := e.Global()
	sym := gl.Intern(name)
	if info, _ := resolveMethod(e, o, sym); info == nil || info.Undefined {
		e.Raise("NameError", "undefined method '%s' for %s", name, o.ModuleName())
	}
	o.installMethod(e, sym, &MethodInfo{Undefined: true})
}

// RemoveMethod deletes the module's own entry only; ancestors keep
// theirs.
func (o *Object) RemoveMethod(e *Env, name string) {
	o.assertNotFrozen(e)
	gl := e.Global()
	sym := gl.Intern(name)
	d := o.module()
	if _, ok := d.methods[sym]; !ok {
		e.Raise("NameError", "method '%s' not defined in %s", name, o.ModuleName())
	}
	delete(d.methods, sym)
	gl.bumpMethodCacheVersion()
}

// AliasMethod makes newName resolve to the method currently bound to
// oldName, recording the alias chain.
func (o *Object) AliasMethod(e *Env, newName, oldName string) {
	gl := e.Global()
	oldSym := gl.Intern(oldName)
	info, _ := resolveMethod(e, o, oldSym)
	if info == nil || info.Undefined || info.M == nil {
		e.Raise("NameError", "undefined method '%s' for %s", oldName, o.ModuleName())
	}
	newSym := gl.Intern(newName)
	aliased := *info.M
	aliased.name = newSym
	aliased.original = info.M
	o.installMethod(e, newSym, &MethodInfo{Vis: info.Vis, M: &aliased})
}

// SetMethodVisibility changes the visibility of name as seen through
// this module. When the method lives on an ancestor, a forwarding copy
// is installed locally, which is how visibility-only redeclarations
// behave.
func (o *Object) SetMethodVisibility(e *Env, name string, vis Visibility) {
	gl := e.Global()
	sym := gl.Intern(name)
	d := o.module()
	if info, ok := d.methods[sym]; ok {
		info.Vis = vis
		gl.bumpMethodCacheVersion()
		return
	}
	info, _ := resolveMethod(e, o, sym)
	if info == nil || info.Undefined || info.M == nil {
		e.Raise("NameError", "undefined method '%s' for %s", name, o.ModuleName())
	}
	o.installMethod(e, sym, &MethodInfo{Vis: vis, M: info.M})
}

// FindMethod searches the linearization directly, bypassing caches.
// Tombstones terminate the search.
func (o *Object) FindMethod(e *Env, sym *Object) (*MethodInfo, *Object) {
	for _, mod := range linearization(o) {
		if info, ok := mod.module().methods[sym]; ok {
			if info.Undefined {
				return nil, nil
			}
			return info, mod
		}
	}
	return nil, nil
}

// MethodDefined reports whether name resolves to a callable method.
func (o *Object) MethodDefined(e *Env, name string) bool {
	info, _ := resolveMethod(e, o, e.Global().Intern(name))
	return info != nil && !info.Undefined && info.M != nil
}

// CvarGet reads a class variable, searching the superclass chain and
// included modules; an unset name raises NameError.
func (o *Object) CvarGet(e *Env, name *Object) Value {
	if v, ok := o.cvarLookup(name); ok {
		return v
	}
	e.Raise("NameError", "uninitialized class variable %s in %s", name.SymbolName(), o.ModuleName())
	return Value{}
}

// CvarGetOrNil is CvarGet returning nil for unset names.
func (o *Object) CvarGetOrNil(e *Env, name *Object) Value {
	if v, ok := o.cvarLookup(name); ok {
		return v
	}
	return e.Global().Nil
}

func (o *Object) cvarLookup(name *Object) (Value, bool) {
	for _, mod := range linearization(o) {
		if v, ok := mod.module().cvars[name]; ok {
			return v, true
		}
	}
	return Value{}, false
}

// CvarSet writes a class variable: the nearest module in the chain
// that already defines it is updated, otherwise the receiver defines
// it.
func (o *Object) CvarSet(e *Env, name *Object, val Value) Value {
	o.assertNotFrozen(e)
	for _, mod := range linearization(o) {
		d := mod.module()
		if _, ok := d.cvars[name]; ok {
			d.cvars[name] = val
			return val
		}
	}
	d := o.module()
	if d.cvars == nil {
		d.cvars = make(map[*Object]Value)
	}
	d.cvars[name] = val
	return val
}

// DeclarationEnv returns the env defs in this module close over.
func (o *Object) DeclarationEnv() *Env { return o.module().env }

func (d *moduleData) visit(visitCell heap.Visitor) {
	if d.superclass != nil {
		visitCell(d.superclass)
	}
	for _, m := range d.included {
		visitCell(m)
	}
	for _, m := range d.prepended {
		visitCell(m)
	}
	for sym, info := range d.methods {
		visitCell(sym)
		if info.M != nil {
			info.M.visit(visitCell)
		}
	}
	for sym, c := range d.constants {
		visitCell(sym)
		c.visit(visitCell)
	}
	for sym, v := range d.cvars {
		visitCell(sym)
		if obj := v.Object(); obj != nil {
			visitCell(obj)
		}
	}
	for sym, ent := range d.cache {
		visitCell(sym)
		if ent.info != nil && ent.info.M != nil {
			ent.info.M.visit(visitCell)
		}
		if ent.owner != nil {
			visitCell(ent.owner)
		}
	}
	if d.attached != nil {
		visitCell(d.attached)
	}
	if d.env != nil {
		d.env.visitOne(visitCell)
	}
}
