package runtime

import (
	"fmt"

	"github.com/beryl-lang/beryl/pkg/heap"
)

// Env is a call frame: the per-activation lexical and dynamic record.
//
// Frame Linkage:
//
//	outer  — the lexical parent: a block's closure env, or the owning
//	         module's declaration env for defs
//	caller — the dynamic parent, used for backtrace synthesis
//
// Local variables live in vars, an arena of Values indexed by
// compile-time slot position. The error channel fills the exception
// slot while a rescue clause runs, and match holds the frame's $~.
type Env struct {
	global *GlobalEnv
	outer  *Env
	caller *Env
	method *Method
	block  *Block
	vars   []Value
	file   string
	line   int
	match  Value
	exc    *Object
	main   bool
}

// NewEnv creates a frame lexically nested in outer.
func NewEnv(outer *Env) *Env {
	return &Env{global: outer.global, outer: outer, file: outer.file, line: outer.line}
}

// Global returns the owning global env.
func (e *Env) Global() *GlobalEnv { return e.global }

// Outer returns the lexical parent frame.
func (e *Env) Outer() *Env { return e.outer }

// Caller returns the dynamic parent frame.
func (e *Env) Caller() *Env { return e.caller }

// Method returns the method this frame activates, or nil for blocks
// and the main frame.
func (e *Env) Method() *Method { return e.method }

// Block returns the block passed to this activation, if any.
func (e *Env) Block() *Block { return e.block }

// IsMain reports whether this is the top-level frame.
func (e *Env) IsMain() bool { return e.main }

// SetFileLine records the current source position for backtraces.
func (e *Env) SetFileLine(file string, line int) {
	e.file = file
	e.line = line
}

// File returns the frame's current source file.
func (e *Env) File() string { return e.file }

// Line returns the frame's current source line.
func (e *Env) Line() int { return e.line }

// BuildVars sizes the local-variable arena. Compiled code calls it once
// per frame with the compile-time slot count.
func (e *Env) BuildVars(n int) {
	if n == 0 {
		return
	}
	e.vars = make([]Value, n)
	for i := range e.vars {
		e.vars[i] = e.global.Nil
	}
}

// VarGet reads local slot index, searching outward depth lexical
// frames first (depth 0 is this frame).
func (e *Env) VarGet(depth, index int) Value {
	env := e
	for i := 0; i < depth; i++ {
		env = env.outer
	}
	if index >= len(env.vars) {
		e.global.fatal(fmt.Sprintf("reading local %d which was never allocated", index))
	}
	v := env.vars[index]
	if v.IsEmpty() {
		return e.global.Nil
	}
	return v
}

// VarSet writes local slot index at the given lexical depth. The slot
// must have been allocated by BuildVars.
func (e *Env) VarSet(depth, index int, val Value) Value {
	env := e
	for i := 0; i < depth; i++ {
		env = env.outer
	}
	if index >= len(env.vars) {
		e.global.fatal(fmt.Sprintf("writing local %d which was never allocated", index))
	}
	env.vars[index] = val
	return val
}

// LastMatch returns the frame's $~ value, or nil if no match ran.
func (e *Env) LastMatch() Value {
	if e.match.IsEmpty() {
		return e.global.Nil
	}
	return e.match
}

// SetLastMatch stores into the frame's $~ slot.
func (e *Env) SetLastMatch(v Value) { e.match = v }

// GlobalGet reads a global variable; unset globals read as nil.
func (e *Env) GlobalGet(name *Object) Value {
	if v, ok := e.global.globals[name]; ok {
		return v
	}
	return e.global.Nil
}

// GlobalSet writes a global variable.
func (e *Env) GlobalSet(name *Object, val Value) Value {
	e.global.globals[name] = val
	return val
}

// currentMethod walks outward to the nearest frame with a method.
func (e *Env) currentMethod() *Method {
	env := e
	for env != nil && env.method == nil && env.outer != nil {
		env = env.outer
	}
	if env == nil {
		return nil
	}
	return env.method
}

// locationName names this frame for backtraces: '<main>' for the
// top-level frame, the method name for method frames, and the
// 'block in <name>' synthesis for blocks.
func (e *Env) locationName() string {
	if e.main {
		return "<main>"
	}
	if e.method != nil {
		return e.method.Name()
	}
	if e.outer != nil {
		return "block in " + e.outer.locationName()
	}
	return "block"
}

// Warn emits a warning through the runtime logger when $VERBOSE is on.
func (e *Env) Warn(format string, args ...interface{}) {
	if e.global.Verbose() {
		e.global.log.Warn(fmt.Sprintf(format, args...))
	}
}

// visit marks the cells this frame keeps alive: its locals, lexical
// and dynamic parents, block, match slot, and pending exception.
func (e *Env) visit(visitCell heap.Visitor) {
	for env := e; env != nil; env = env.caller {
		env.visitOne(visitCell)
	}
}

func (e *Env) visitOne(visitCell heap.Visitor) {
	for _, v := range e.vars {
		if obj := v.Object(); obj != nil {
			visitCell(obj)
		}
	}
	if obj := e.match.Object(); obj != nil {
		visitCell(obj)
	}
	if e.exc != nil {
		visitCell(e.exc)
	}
	if e.block != nil {
		e.block.visit(visitCell)
	}
	if e.method != nil {
		e.method.visit(visitCell)
	}
	if e.outer != nil {
		e.outer.visitOne(visitCell)
	}
}
