package runtime

import "github.com/beryl-lang/beryl/pkg/heap"

// Block is a closure: a body compiled to the native signature plus the
// lexical Env and self it captured. A Proc is a reified block; a
// Lambda is a Proc with strict arity and return-from-lambda semantics.
type Block struct {
	env        *Env
	self       Value
	fn         MethodFn
	arity      int // -1: loose (proc semantics pad/truncate)
	params     *ParamSpec
	lambda     bool
	callingEnv *Env // set for the duration of the call that received it
}

// NewBlock captures a closure over the current frame.
func NewBlock(e *Env, self Value, fn MethodFn, arity int) *Block {
	return &Block{env: e, self: self, fn: fn, arity: arity}
}

// SetParams attaches a parameter descriptor for full binding.
func (b *Block) SetParams(p *ParamSpec) *Block {
	b.params = p
	return b
}

// Env returns the captured lexical frame.
func (b *Block) Env() *Env { return b.env }

// Self returns the captured self.
func (b *Block) Self() Value { return b.self }

// IsLambda reports lambda semantics.
func (b *Block) IsLambda() bool { return b.lambda }

// procData is the payload of a reified block.
type procData struct {
	block *Block
}

// NewProc reifies a block as a Proc object.
func NewProc(e *Env, b *Block) Value {
	o := e.Global().allocateObject(e.Global().ProcClass, TypeProc)
	o.data = &procData{block: b}
	return ObjectValue(o)
}

// NewLambda reifies a block with lambda semantics.
func NewLambda(e *Env, b *Block) Value {
	lb := *b
	lb.lambda = true
	o := e.Global().allocateObject(e.Global().ProcClass, TypeProc)
	o.data = &procData{block: &lb}
	return ObjectValue(o)
}

// ProcBlock returns the block inside a Proc object.
func (o *Object) ProcBlock() *Block { return o.proc().block }

// run invokes the body in a fresh frame nested in the captured env.
func (b *Block) run(e *Env, args Args, blockArg *Block) Value {
	frame := &Env{
		global: e.global,
		outer:  b.env,
		caller: e,
		file:   e.file,
		line:   e.line,
	}
	if b.params != nil {
		b.params.Bind(frame, args, blockArg)
	} else if b.lambda && b.arity >= 0 {
		args.EnsureArgc(e, b.arity)
	}
	f := e.global.currentFiber
	prevEnv := f.env
	f.env = frame
	defer func() { f.env = prevEnv }()

	stack := f.stack
	mark := stack.top
	result := b.fn(frame, b.self, args, blockArg)
	stack.truncate(mark)
	stack.push(result)
	return result
}

// CallBlock yields to a block from an iterating method. A break inside
// the block unwinds back through the iteration with the break marker
// set; the iterating call's Send strips it. Callers that must not see
// a break (fiber bodies, procs invoked through ProcCall) use
// CallBlockWithoutBreak.
func CallBlock(e *Env, b *Block, args Args, blockArg *Block) Value {
	return b.run(e, args, blockArg)
}

// CallBlockValues is CallBlock over plain values.
func CallBlockValues(e *Env, b *Block, values ...Value) Value {
	args := NewArgs(e, values...)
	defer args.Release()
	return CallBlock(e, b, args, nil)
}

// CallBlockWithoutBreak runs a block in a position where break has no
// enclosing iteration: a break surfacing here raises LocalJumpError.
func CallBlockWithoutBreak(e *Env, b *Block, args Args, blockArg *Block) Value {
	result := b.run(e, args, blockArg)
	if IsBreakValue(result) {
		e.RaiseLocalJumpError(clearBreak(result), "break from proc-closure")
	}
	return result
}

// BreakValue marks v as a break in flight. Immediates are boxed so the
// marker flag has an object to live on.
func BreakValue(e *Env, v Value) Value {
	obj := v.Box(e)
	obj.SetFlag(FlagBreak)
	return ObjectValue(obj)
}

// IsBreakValue reports whether v carries the break marker.
func IsBreakValue(v Value) bool {
	obj := v.Object()
	return obj != nil && obj.HasFlag(FlagBreak)
}

// clearBreak strips the marker and demotes boxed immediates.
func clearBreak(v Value) Value {
	obj := v.Object()
	obj.ClearFlag(FlagBreak)
	return ObjectValue(obj).Unbox()
}

// LocalReturn unwinds a non-lambda return: it exits the method whose
// frame lexically encloses the block, not the block itself. The method
// frame recovers it in RunWithLocalReturns.
func LocalReturn(e *Env, v Value) {
	home := e
	for home.method == nil && home.outer != nil {
		home = home.outer
	}
	if home.method == nil && !home.main {
		e.RaiseLocalJumpError(v, "unexpected return")
	}
	panic(&localReturn{home: home, value: v})
}

// RunWithLocalReturns wraps a method body so a non-lambda return from
// a nested block lands here. Method bodies that create blocks with
// return statements run through it.
func RunWithLocalReturns(frame *Env, body func() Value) (result Value) {
	defer func() {
		if r := recover(); r != nil {
			lr, ok := r.(*localReturn)
			if !ok || lr.home != frame {
				panic(r)
			}
			result = lr.value
		}
	}()
	return body()
}

// ProcCall invokes a Proc or Lambda object. Lambdas enforce arity
// strictly and contain their returns; procs bind loosely and let a
// return unwind to the method that created the block.
func ProcCall(e *Env, proc Value, values ...Value) Value {
	b := proc.Object().ProcBlock()
	if b.lambda {
		args := NewArgs(e, values...)
		defer args.Release()
		if b.arity >= 0 {
			args.EnsureArgc(e, b.arity)
		}
		return runLambda(e, b, args)
	}
	// Proc semantics: pad or truncate to the block's arity.
	if b.arity >= 0 {
		for len(values) < b.arity {
			values = append(values, e.Global().Nil)
		}
		values = values[:b.arity]
	}
	args := NewArgs(e, values...)
	defer args.Release()
	return CallBlockWithoutBreak(e, b, args, nil)
}

// runLambda contains a return issued inside the lambda body: it exits
// the lambda, not the enclosing method.
func runLambda(e *Env, b *Block, args Args) Value {
	frame := &Env{
		global: e.global,
		outer:  b.env,
		caller: e,
		file:   e.file,
		line:   e.line,
	}
	f := e.global.currentFiber
	prevEnv := f.env
	f.env = frame
	defer func() { f.env = prevEnv }()

	stack := f.stack
	mark := stack.top
	result := func() (out Value) {
		defer func() {
			if r := recover(); r != nil {
				if lr, ok := r.(*localReturn); ok {
					out = lr.value
					return
				}
				panic(r)
			}
		}()
		if b.params != nil {
			b.params.Bind(frame, args, nil)
		}
		return b.fn(frame, b.self, args, nil)
	}()
	stack.truncate(mark)
	stack.push(result)
	return result
}

// Yield invokes the block passed to the current method, raising
// LocalJumpError when none was given.
func (e *Env) Yield(values ...Value) Value {
	env := e
	for env.block == nil && env.outer != nil {
		env = env.outer
	}
	if env.block == nil {
		e.RaiseLocalJumpError(e.global.Nil, "no block given (yield)")
	}
	return CallBlockValues(e, env.block, values...)
}

// visit marks the cells the block keeps alive.
func (b *Block) visit(visitCell heap.Visitor) {
	if obj := b.self.Object(); obj != nil {
		visitCell(obj)
	}
	if b.env != nil {
		b.env.visitOne(visitCell)
	}
}
