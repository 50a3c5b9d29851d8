package runtime

import (
	"fmt"
	"math/big"

	lru "github.com/hashicorp/golang-lru"
	"github.com/inconshreveable/log15"

	"github.com/beryl-lang/beryl/pkg/heap"
)

// Config collects the runtime tunables. The zero value is usable;
// withDefaults fills in the rest.
type Config struct {
	// Verbose enables warnings ($VERBOSE).
	Verbose bool
	// GCDisabled leaves collection off after bootstrap.
	GCDisabled bool
	// GCStress collects on every allocation (tests only).
	GCStress bool
	// DispatchCacheSize bounds the global dispatch LRU.
	DispatchCacheSize int
	// FiberStackCapacity is the initial value-stack capacity per fiber.
	FiberStackCapacity int
	// Log receives runtime diagnostics; discarded by default.
	Log log15.Logger
}

func (c Config) withDefaults() Config {
	if c.DispatchCacheSize == 0 {
		c.DispatchCacheSize = 4096
	}
	if c.FiberStackCapacity == 0 {
		c.FiberStackCapacity = defaultFiberStackCapacity
	}
	if c.Log == nil {
		c.Log = log15.New("module", "beryl")
		c.Log.SetHandler(log15.DiscardHandler())
	}
	return c
}

// GlobalEnv is one runtime instance: the heap, the core classes, the
// symbol and global-variable tables, the method-cache version, and the
// fiber registry. Everything is accessed from a single OS thread;
// fibers hand off control explicitly, so no field needs
// synchronization.
type GlobalEnv struct {
	config Config
	log    log15.Logger
	heap   *heap.Heap

	rootEnv    *Env
	mainObject *Object

	// core classes
	BasicObjectClass *Object
	ObjectClass      *Object
	ModuleClass      *Object
	ClassClass       *Object
	NilClass         *Object
	TrueClass        *Object
	FalseClass       *Object
	NumericClass     *Object
	IntegerClass     *Object
	FloatClass       *Object
	StringClass      *Object
	SymbolClass      *Object
	ArrayClass       *Object
	HashClass        *Object
	ProcClass        *Object
	RegexpClass      *Object
	MatchDataClass   *Object
	ExceptionClass   *Object
	FiberClass       *Object
	MutexClass       *Object

	// singletons
	Nil   Value
	True  Value
	False Value

	symbols map[string]*Object
	globals map[*Object]Value

	// methodCacheVersion is the single monotonic counter every
	// resolution-affecting mutation bumps; caches compare-and-refresh
	// lazily against it.
	methodCacheVersion uint64
	dispatchCache      *lru.Cache

	fibers       []*Fiber
	mainFiber    *Fiber
	currentFiber *Fiber

	nextID uint64
}

// New bootstraps a runtime instance: the heap (collection disabled
// while the mutually-referential core classes come up), the class
// hierarchy, the singletons, the root fiber, and the audited immediate
// methods. Collection is enabled before returning unless the config
// says otherwise.
func New(cfg Config) *GlobalEnv {
	cfg = cfg.withDefaults()
	gl := &GlobalEnv{
		config:  cfg,
		log:     cfg.Log,
		symbols: make(map[string]*Object),
		globals: make(map[*Object]Value),
	}
	gl.heap = heap.New(objectSource{}, cfg.Log.New("module", "heap"))

	cache, err := lru.New(cfg.DispatchCacheSize)
	if err != nil {
		panic(err)
	}
	gl.dispatchCache = cache

	gl.rootEnv = &Env{global: gl, main: true, file: "main", line: 0}

	// The root fiber record must exist before the first allocation;
	// its heap object is attached once Fiber exists.
	gl.mainFiber = &Fiber{
		gl:     gl,
		status: FiberResumed,
		stack:  newValueStack(cfg.FiberStackCapacity),
		wake:   make(chan struct{}),
		root:   true,
	}
	gl.currentFiber = gl.mainFiber
	gl.fibers = append(gl.fibers, gl.mainFiber)

	gl.bootstrap()

	gl.heap.SetRootSource(gl)
	if !cfg.GCDisabled {
		gl.heap.Enable()
	}
	gl.heap.SetStress(cfg.GCStress)

	// Bootstrap temporaries are all reachable through the class
	// hierarchy now; release the root fiber's scratch region.
	gl.mainFiber.stack.truncate(0)
	return gl
}

// bootstrap builds the cyclic core of the class hierarchy. Class and
// BasicObject need each other: both start with their class pointer on
// a transient uninitialized sentinel, patched the moment both objects
// exist. No code after this function can observe the sentinel.
func (gl *GlobalEnv) bootstrap() {
	sentinel := &Object{typ: TypeClass, data: &moduleData{name: "uninitialized"}}

	classClass := gl.allocateObject(sentinel, TypeClass)
	classClass.data = &moduleData{name: "Class", env: gl.rootEnv}

	basicObject := gl.allocateObject(sentinel, TypeClass)
	basicObject.data = &moduleData{name: "BasicObject", env: gl.rootEnv}

	// Patch the cycle: Class.class == Class, BasicObject.class == Class.
	classClass.class = classClass
	basicObject.class = classClass

	gl.ClassClass = classClass
	gl.BasicObjectClass = basicObject

	gl.ObjectClass = gl.bootClass("Object", basicObject)
	gl.ModuleClass = gl.bootClass("Module", gl.ObjectClass)
	classClass.module().superclass = gl.ModuleClass

	// Now that Object exists, hang the bootstrapped classes off it.
	gl.bindCoreConstant("BasicObject", basicObject)
	gl.bindCoreConstant("Class", classClass)
	gl.bindCoreConstant("Object", gl.ObjectClass)
	gl.bindCoreConstant("Module", gl.ModuleClass)

	gl.SymbolClass = gl.bootClass("Symbol", gl.ObjectClass)
	gl.bindCoreConstant("Symbol", gl.SymbolClass)
	// Symbols interned before Symbol existed get their class patched.
	for _, sym := range gl.symbols {
		sym.class = gl.SymbolClass
	}

	gl.NilClass = gl.coreClass("NilClass", gl.ObjectClass)
	gl.TrueClass = gl.coreClass("TrueClass", gl.ObjectClass)
	gl.FalseClass = gl.coreClass("FalseClass", gl.ObjectClass)

	gl.Nil = ObjectValue(gl.allocateSingleton(gl.NilClass, TypeNil))
	gl.True = ObjectValue(gl.allocateSingleton(gl.TrueClass, TypeTrue))
	gl.False = ObjectValue(gl.allocateSingleton(gl.FalseClass, TypeFalse))

	gl.NumericClass = gl.coreClass("Numeric", gl.ObjectClass)
	gl.IntegerClass = gl.coreClass("Integer", gl.NumericClass)
	gl.FloatClass = gl.coreClass("Float", gl.NumericClass)
	gl.StringClass = gl.coreClass("String", gl.ObjectClass)
	gl.ArrayClass = gl.coreClass("Array", gl.ObjectClass)
	gl.HashClass = gl.coreClass("Hash", gl.ObjectClass)
	gl.ProcClass = gl.coreClass("Proc", gl.ObjectClass)
	gl.RegexpClass = gl.coreClass("Regexp", gl.ObjectClass)
	gl.MatchDataClass = gl.coreClass("MatchData", gl.ObjectClass)
	gl.FiberClass = gl.coreClass("Fiber", gl.ObjectClass)
	gl.MutexClass = gl.coreClass("Mutex", gl.ObjectClass)

	gl.bootstrapExceptions()

	// The main (top-level) object.
	gl.mainObject = gl.allocateObject(gl.ObjectClass, TypeObject)
	gl.mainObject.SetFlag(FlagMain)
	gl.mainObject.SetPermanent()

	// Give the root fiber its heap object.
	fiberObj := gl.allocateObject(gl.FiberClass, TypeFiber)
	fiberObj.data = gl.mainFiber
	fiberObj.SetPermanent()
	gl.mainFiber.object = fiberObj

	gl.globals[gl.Intern("$VERBOSE")] = gl.boolValue(gl.config.Verbose)

	gl.installBaseMethods()
	gl.installNumericMethods()
}

// bootClass builds a core class without touching the constant table
// (used while Object itself is coming up).
func (gl *GlobalEnv) bootClass(name string, superclass *Object) *Object {
	c := gl.allocateObject(gl.ClassClass, TypeClass)
	c.data = &moduleData{name: name, superclass: superclass, env: gl.rootEnv}
	return c
}

// coreClass builds a core class and binds it as a constant of Object.
func (gl *GlobalEnv) coreClass(name string, superclass *Object) *Object {
	c := gl.bootClass(name, superclass)
	gl.bindCoreConstant(name, c)
	return c
}

func (gl *GlobalEnv) bindCoreConstant(name string, class *Object) {
	sym := gl.Intern(name)
	d := gl.ObjectClass.module()
	if d.constants == nil {
		d.constants = make(map[*Object]*Constant)
	}
	d.constants[sym] = &Constant{name: sym, value: ObjectValue(class)}
	class.owner = gl.ObjectClass
}

// bootstrapExceptions builds the core error hierarchy.
func (gl *GlobalEnv) bootstrapExceptions() {
	gl.ExceptionClass = gl.coreClass("Exception", gl.ObjectClass)
	standard := gl.coreClass("StandardError", gl.ExceptionClass)
	runtimeErr := gl.coreClass("RuntimeError", standard)
	gl.coreClass("FrozenError", runtimeErr)
	gl.coreClass("ArgumentError", standard)
	gl.coreClass("TypeError", standard)
	name := gl.coreClass("NameError", standard)
	gl.coreClass("NoMethodError", name)
	rangeErr := gl.coreClass("RangeError", standard)
	gl.coreClass("FloatDomainError", rangeErr)
	gl.coreClass("LocalJumpError", standard)
	gl.coreClass("ZeroDivisionError", standard)
	gl.coreClass("FiberError", standard)
	gl.coreClass("ThreadError", standard)
	gl.coreClass("RegexpError", standard)
	gl.coreClass("SystemCallError", standard)
	gl.coreClass("ScriptError", gl.ExceptionClass)
}

// errorClass resolves one of the core error classes by name.
func (gl *GlobalEnv) errorClass(name string) *Object {
	if v, ok := gl.ObjectClass.ConstFetch(gl.Intern(name)); ok {
		if c := v.Object(); c != nil && c.IsClass() {
			return c
		}
	}
	gl.fatal("unknown core error class " + name)
	return nil
}

// RootEnv returns the top-level frame host programs run in.
func (gl *GlobalEnv) RootEnv() *Env { return gl.rootEnv }

// MainObject returns the top-level self.
func (gl *GlobalEnv) MainObject() Value { return ObjectValue(gl.mainObject) }

// Heap exposes the managed heap (collection control, diagnostics).
func (gl *GlobalEnv) Heap() *heap.Heap { return gl.heap }

// Log returns the runtime logger.
func (gl *GlobalEnv) Log() log15.Logger { return gl.log }

// GC runs one explicit collection cycle.
func (gl *GlobalEnv) GC() { gl.heap.Collect() }

// MethodCacheVersion returns the current global version; every cached
// lookup is valid exactly while this number holds still.
func (gl *GlobalEnv) MethodCacheVersion() uint64 { return gl.methodCacheVersion }

func (gl *GlobalEnv) bumpMethodCacheVersion() { gl.methodCacheVersion++ }

// Verbose reports whether $VERBOSE warnings are on.
func (gl *GlobalEnv) Verbose() bool {
	if v, ok := gl.globals[gl.Intern("$VERBOSE")]; ok {
		return v.IsTruthy()
	}
	return false
}

// DefineMethod is the registration ABI for built-in class libraries
// and extensions: module, name, native function, arity.
func (gl *GlobalEnv) DefineMethod(module *Object, name string, fn MethodFn, arity int) *Method {
	return module.DefineMethod(gl.rootEnv, name, fn, arity)
}

// DefineSingletonMethod registers a per-object method through the same
// ABI.
func (gl *GlobalEnv) DefineSingletonMethod(obj Value, name string, fn MethodFn, arity int) *Method {
	return DefineSingletonMethod(gl.rootEnv, obj, name, fn, arity)
}

func (gl *GlobalEnv) boolValue(b bool) Value {
	if b {
		return gl.True
	}
	return gl.False
}

// Bool converts a Go bool to the true/false singleton.
func (gl *GlobalEnv) Bool(b bool) Value { return gl.boolValue(b) }

func (gl *GlobalEnv) objectID(o *Object) uint64 {
	if o.id == 0 {
		gl.nextID++
		o.id = gl.nextID
	}
	return o.id
}

// removeFiber drops a terminated fiber from the root registry; its
// heap object stays alive only as long as user code references it.
func (gl *GlobalEnv) removeFiber(f *Fiber) {
	for i, cand := range gl.fibers {
		if cand == f {
			gl.fibers = append(gl.fibers[:i], gl.fibers[i+1:]...)
			return
		}
	}
}

func (gl *GlobalEnv) fatal(msg string) {
	gl.log.Crit("runtime invariant violated", "err", msg)
	panic("runtime: " + msg)
}

// allocation helpers

func (gl *GlobalEnv) allocateObject(class *Object, typ Type) *Object {
	cell := gl.heap.Allocate(footprint(typ))
	o := cell.(*Object)
	o.typ = typ
	o.class = class
	// Root the newborn in the running fiber's scanned region until the
	// enclosing call scope truncates; without this, an allocation made
	// while constructing a compound value could be collected before it
	// is connected to anything.
	gl.currentFiber.stack.push(ObjectValue(o))
	return o
}

func (gl *GlobalEnv) allocateSingleton(class *Object, typ Type) *Object {
	o := gl.allocateObject(class, typ)
	o.SetPermanent()
	o.Freeze()
	return o
}

func (gl *GlobalEnv) allocateInteger(fix int64) *Object {
	o := gl.allocateObject(gl.IntegerClass, TypeInteger)
	o.data = &integerData{fix: fix}
	return o
}

func (gl *GlobalEnv) allocateBignum(b *big.Int) *Object {
	o := gl.allocateObject(gl.IntegerClass, TypeInteger)
	o.data = &integerData{big: b}
	return o
}

func (gl *GlobalEnv) allocateFloat(f float64) *Object {
	o := gl.allocateObject(gl.FloatClass, TypeFloat)
	o.data = &floatData{val: f}
	return o
}

func (gl *GlobalEnv) allocateString(bytes []byte, enc *Encoding) *Object {
	o := gl.allocateObject(gl.StringClass, TypeString)
	o.data = &stringData{bytes: bytes, enc: enc}
	return o
}

func (gl *GlobalEnv) allocateArray(elems []Value) *Object {
	o := gl.allocateObject(gl.ArrayClass, TypeArray)
	o.data = &arrayData{elems: elems}
	return o
}

func (gl *GlobalEnv) allocateHash() *Object {
	o := gl.allocateObject(gl.HashClass, TypeHash)
	o.data = &hashData{}
	return o
}

// VisitRoots implements heap.RootSource: the explicit roots plus every
// non-terminated fiber's stack region and suspended frame.
func (gl *GlobalEnv) VisitRoots(h *heap.Heap, mark heap.Visitor) {
	mark(gl.Nil.Object())
	mark(gl.True.Object())
	mark(gl.False.Object())
	mark(gl.BasicObjectClass)
	mark(gl.ObjectClass)
	mark(gl.ModuleClass)
	mark(gl.ClassClass)
	mark(gl.mainObject)

	for _, sym := range gl.symbols {
		mark(sym)
	}
	for name, v := range gl.globals {
		mark(name)
		if obj := v.Object(); obj != nil {
			mark(obj)
		}
	}

	gl.rootEnv.visit(mark)

	for _, f := range gl.fibers {
		if f.status == FiberTerminated {
			continue
		}
		f.visitRoots(h, mark, f == gl.currentFiber)
	}
}

// PushScope records the running fiber's value-stack top. Host code
// brackets its own allocation bursts with PushScope/PopScope so
// temporaries rooted by the allocator are released again; inside the
// runtime, every method call scopes itself.
func (gl *GlobalEnv) PushScope() int { return gl.currentFiber.stack.top }

// PopScope releases every temporary rooted since the matching
// PushScope. Values the caller wants to keep must be reachable some
// other way (a local slot, an ivar, a constant) before popping.
func (gl *GlobalEnv) PopScope(mark int) { gl.currentFiber.stack.truncate(mark) }

// Describe renders a value with its class, for host-side diagnostics.
func (gl *GlobalEnv) Describe(v Value) string {
	return fmt.Sprintf("%s (%s)", v.Inspect(), v.Class(gl).ModuleName())
}
