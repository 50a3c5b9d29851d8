package runtime

import (
	"fmt"
	"strings"

	"github.com/beryl-lang/beryl/pkg/heap"
)

// MethodFn is the fixed native signature every method body compiles to.
type MethodFn func(e *Env, self Value, args Args, block *Block) Value

// Visibility of a method table entry.
type Visibility uint8

const (
	VisibilityPublic Visibility = iota
	VisibilityProtected
	VisibilityPrivate
)

func (v Visibility) String() string {
	switch v {
	case VisibilityProtected:
		return "protected"
	case VisibilityPrivate:
		return "private"
	}
	return "public"
}

// MethodInfo is a method-table entry: the callable plus its visibility.
// An entry with Undefined set is the tombstone undef_method leaves
// behind; lookup stops on it even if the name is defined further up.
type MethodInfo struct {
	Vis       Visibility
	M         *Method
	Undefined bool
}

// Method is a callable: a native function (or a captured block's body)
// plus calling metadata.
type Method struct {
	name      *Object // symbol
	owner     *Object // defining module
	fn        MethodFn
	env       *Env // closure env when defined from a block
	arity     int  // >= 0 exact, -n-1 for n required plus variadic
	params    *ParamSpec
	optimized bool
	original  *Method // alias chains point at the method they alias
	file      string
	line      int
}

// NewMethod wraps a native function.
func NewMethod(name, owner *Object, fn MethodFn, arity int) *Method {
	return &Method{name: name, owner: owner, fn: fn, arity: arity}
}

// NewMethodFromBlock captures a block as a method body, the
// define_method path: the body closes over the block's env.
func NewMethodFromBlock(name, owner *Object, block *Block) *Method {
	return &Method{name: name, owner: owner, fn: block.fn, env: block.env, arity: block.arity, params: block.params}
}

// Name returns the method's name.
func (m *Method) Name() string { return m.name.SymbolName() }

// NameSymbol returns the method's name symbol.
func (m *Method) NameSymbol() *Object { return m.name }

// Owner returns the module the method was defined in.
func (m *Method) Owner() *Object { return m.owner }

// Original follows an alias chain to the method originally defined.
func (m *Method) Original() *Method {
	orig := m
	for orig.original != nil {
		orig = orig.original
	}
	return orig
}

// Arity returns the arity metadata.
func (m *Method) Arity() int { return m.arity }

// SetParams attaches a full parameter descriptor; Bind uses it when
// present, arity checks otherwise.
func (m *Method) SetParams(p *ParamSpec) *Method {
	m.params = p
	return m
}

// SetLocation records the declaration site.
func (m *Method) SetLocation(file string, line int) *Method {
	m.file = file
	m.line = line
	return m
}

// setOptimized is reserved for the audited immediate methods
// registered by installNumericMethods: bodies that provably never let
// self or their arguments escape the call.
func (m *Method) setOptimized() *Method {
	m.optimized = true
	return m
}

// Call binds a frame and invokes the body.
//
// Frame linkage: outer is the closure env for block-defined methods,
// otherwise the owner's declaration env; caller is the sending frame.
//
// The synthesized-receiver handling mirrors the optimized immediate
// dispatch: an optimized method may receive (and synthesize) transient
// stack receivers; a non-optimized method called with a synthesized
// self promotes it to the heap before the body can let it escape.
func (m *Method) Call(e *Env, self Value, args Args, block *Block) Value {
	closure := m.env
	if closure == nil {
		closure = m.owner.module().env
	}
	frame := &Env{
		global: e.global,
		outer:  closure,
		caller: e,
		method: m,
		block:  block,
		file:   e.file,
		line:   e.line,
	}

	if !m.optimized {
		if obj := self.Object(); obj != nil && obj.HasFlag(FlagSynthesized) {
			self = ObjectValue(obj.Dup(e))
		}
	}

	if m.params != nil {
		m.params.Bind(frame, args, block)
	} else if m.arity >= 0 {
		args.EnsureArgc(e, m.arity)
	}

	if block != nil && block.callingEnv == nil {
		block.callingEnv = e
		defer func() { block.callingEnv = nil }()
	}

	// Scope the fiber's value stack: temporaries rooted during the
	// body are released at return, with only the result left for the
	// caller's scope. The frame also registers itself as the fiber's
	// innermost env so an in-body collection walks its locals.
	f := e.global.currentFiber
	prevEnv := f.env
	f.env = frame
	defer func() { f.env = prevEnv }()

	stack := f.stack
	mark := stack.top
	result := m.fn(frame, self, args, block)
	stack.truncate(mark)
	stack.push(result)
	return result
}

// visit marks the cells the method keeps alive.
func (m *Method) visit(visitCell heap.Visitor) {
	visitCell(m.name)
	if m.owner != nil {
		visitCell(m.owner)
	}
	if m.env != nil {
		m.env.visitOne(visitCell)
	}
	if m.original != nil {
		m.original.visit(visitCell)
	}
}

// OptionalParam is a positional parameter with a default expression,
// evaluated in the new frame only when the argument is missing.
type OptionalParam struct {
	Slot    int
	Default func(*Env) Value
}

// KeywordParam is an explicit keyword parameter.
type KeywordParam struct {
	Name    *Object
	Slot    int
	Default func(*Env) Value // nil means required
}

// ParamSpec describes a method's parameter list for argument binding:
// required positionals, optionals with defaults, a rest vector,
// post-positionals, keywords, a keyword-rest hash, and a captured
// block. Slots index into the frame's local arena.
type ParamSpec struct {
	Required     int
	Optional     []OptionalParam
	RestSlot     int // -1 when absent
	Post         int
	Keywords     []KeywordParam
	KeywordRest  int // slot, -1 when absent
	BlockSlot    int // slot for &block capture, -1 when absent
	RequiredSlot int // first slot of required positionals
	Locals       int // total local slots to allocate
}

// NewParamSpec returns a descriptor with no rest, keyword-rest, or
// block capture; callers fill in what the method declares.
func NewParamSpec(required int) *ParamSpec {
	return &ParamSpec{Required: required, RestSlot: -1, KeywordRest: -1, BlockSlot: -1, Locals: required}
}

func (p *ParamSpec) expectation() string {
	switch {
	case len(p.Optional) == 0 && p.RestSlot < 0:
		return fmt.Sprintf("%d", p.Required+p.Post)
	case p.RestSlot >= 0:
		return fmt.Sprintf("%d+", p.Required+p.Post)
	default:
		return fmt.Sprintf("%d..%d", p.Required+p.Post, p.Required+p.Post+len(p.Optional))
	}
}

// Bind matches arguments against the descriptor and fills the frame's
// local slots. Mismatches raise ArgumentError with the canonical
// "given N, expected M" message.
func (p *ParamSpec) Bind(frame *Env, args Args, block *Block) {
	gl := frame.global
	frame.BuildVars(p.Locals)

	kwHash := Value{}
	if len(p.Keywords) > 0 || p.KeywordRest >= 0 {
		if args.HasKeywordHash() {
			kwHash = args.KeywordHash(frame)
		}
	}

	n := args.PositionalCount()
	min := p.Required + p.Post
	if n < min {
		frame.Raise("ArgumentError", "wrong number of arguments (given %d, expected %s)", n, p.expectation())
	}
	if p.RestSlot < 0 && n > min+len(p.Optional) {
		frame.Raise("ArgumentError", "wrong number of arguments (given %d, expected %s)", n, p.expectation())
	}

	pos := 0
	slot := p.RequiredSlot
	for i := 0; i < p.Required; i++ {
		frame.VarSet(0, slot, args.At(pos))
		slot++
		pos++
	}

	available := n - p.Required - p.Post
	for _, opt := range p.Optional {
		if available > 0 {
			frame.VarSet(0, opt.Slot, args.At(pos))
			pos++
			available--
		} else {
			frame.VarSet(0, opt.Slot, opt.Default(frame))
		}
	}

	if p.RestSlot >= 0 {
		rest := make([]Value, 0, available)
		for available > 0 {
			rest = append(rest, args.At(pos))
			pos++
			available--
		}
		frame.VarSet(0, p.RestSlot, NewArray(frame, rest...))
	}

	for i := 0; i < p.Post; i++ {
		frame.VarSet(0, slotForPost(p, i), args.At(pos))
		pos++
	}

	p.bindKeywords(frame, kwHash)

	if p.BlockSlot >= 0 {
		if block != nil {
			frame.VarSet(0, p.BlockSlot, NewProc(frame, block))
		} else {
			frame.VarSet(0, p.BlockSlot, gl.Nil)
		}
	}
}

func slotForPost(p *ParamSpec, i int) int {
	// Post slots follow required, optional, and rest slots.
	base := p.RequiredSlot + p.Required + len(p.Optional)
	if p.RestSlot >= 0 {
		base++
	}
	return base + i
}

func (p *ParamSpec) bindKeywords(frame *Env, kwHash Value) {
	if len(p.Keywords) == 0 && p.KeywordRest < 0 {
		return
	}

	consumed := map[*Object]bool{}
	for _, kw := range p.Keywords {
		val := Value{}
		if kwObj := kwHash.Object(); kwObj != nil && kwObj.typ == TypeHash {
			if kwObj.HashHasKey(frame, ObjectValue(kw.Name)) {
				val = kwObj.HashGet(frame, ObjectValue(kw.Name))
			}
		}
		if val.IsEmpty() {
			if kw.Default == nil {
				frame.Raise("ArgumentError", "missing keyword: :%s", kw.Name.SymbolName())
			}
			val = kw.Default(frame)
		}
		frame.VarSet(0, kw.Slot, val)
		consumed[kw.Name] = true
	}

	if p.KeywordRest >= 0 {
		rest := NewHash(frame)
		if kwObj := kwHash.Object(); kwObj != nil && kwObj.typ == TypeHash {
			kwObj.HashEach(func(k, v Value) {
				if sym := k.Object(); sym != nil && consumed[sym] {
					return
				}
				rest.Object().HashPut(frame, k, v)
			})
		}
		frame.VarSet(0, p.KeywordRest, rest)
	} else if kwObj := kwHash.Object(); kwObj != nil && kwObj.typ == TypeHash {
		var unknown []string
		kwObj.HashEach(func(k, v Value) {
			if sym := k.Object(); sym != nil && !consumed[sym] {
				unknown = append(unknown, sym.SymbolName())
			}
		})
		if len(unknown) > 0 {
			frame.Raise("ArgumentError", "unknown keyword: :%s", strings.Join(unknown, ", :"))
		}
	}
}
