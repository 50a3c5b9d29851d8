// Primitive methods the core itself registers: a small base set on
// BasicObject, Object, Class, Module and String, and the audited
// immediate methods on Integer and Float. The full class library lives outside the core and registers
// through the same ABI.
package runtime

import "math"

// installBaseMethods registers the identity, freezing, and reflection
// primitives every object answers.
func (gl *GlobalEnv) installBaseMethods() {
	e := gl.rootEnv

	gl.BasicObjectClass.DefineMethod(e, "initialize", func(e *Env, self Value, args Args, block *Block) Value {
		return e.Global().Nil
	}, -1)
	gl.BasicObjectClass.DefineMethod(e, "==", func(e *Env, self Value, args Args, block *Block) Value {
		return e.Global().Bool(sameValue(self, args.At(0)))
	}, 1)
	gl.BasicObjectClass.DefineMethod(e, "!", func(e *Env, self Value, args Args, block *Block) Value {
		return e.Global().Bool(!self.IsTruthy())
	}, 0)

	obj := gl.ObjectClass
	obj.DefineMethod(e, "class", func(e *Env, self Value, args Args, block *Block) Value {
		return ObjectValue(self.Class(e.Global()))
	}, 0)
	obj.DefineMethod(e, "freeze", func(e *Env, self Value, args Args, block *Block) Value {
		if o := self.Object(); o != nil {
			o.Freeze()
		}
		return self
	}, 0)
	obj.DefineMethod(e, "frozen?", func(e *Env, self Value, args Args, block *Block) Value {
		gl := e.Global()
		if o := self.Object(); o != nil {
			return gl.Bool(o.Frozen())
		}
		return gl.True // immediates are frozen by nature
	}, 0)
	obj.DefineMethod(e, "equal?", func(e *Env, self Value, args Args, block *Block) Value {
		return e.Global().Bool(sameValue(self, args.At(0)))
	}, 1)
	obj.DefineMethod(e, "eql?", func(e *Env, self Value, args Args, block *Block) Value {
		return e.Global().Bool(Eql(e, self, args.At(0)))
	}, 1)
	obj.DefineMethod(e, "hash", func(e *Env, self Value, args Args, block *Block) Value {
		return NewInteger(e, int64(ValueHash(e, self)>>2))
	}, 0)
	obj.DefineMethod(e, "inspect", func(e *Env, self Value, args Args, block *Block) Value {
		return NewString(e, self.Inspect())
	}, 0)
	obj.DefineMethod(e, "object_id", func(e *Env, self Value, args Args, block *Block) Value {
		gl := e.Global()
		if o := self.Object(); o != nil {
			return NewInteger(e, int64(gl.objectID(o)))
		}
		return NewInteger(e, self.Int64())
	}, 0)
	obj.DefineMethod(e, "is_a?", func(e *Env, self Value, args Args, block *Block) Value {
		mod := args.At(0).Object()
		if mod == nil || !mod.IsModule() {
			e.Raise("TypeError", "class or module required")
		}
		return e.Global().Bool(IsA(e, self, mod))
	}, 1)
	obj.AliasMethod(e, "kind_of?", "is_a?")
	obj.DefineMethod(e, "respond_to?", func(e *Env, self Value, args Args, block *Block) Value {
		name := args.At(0)
		sym := name.Object()
		if sym == nil || (sym.typ != TypeSymbol && sym.typ != TypeString) {
			e.Raise("TypeError", "%s is not a symbol nor a string", name.Inspect())
		}
		s := ""
		if sym.typ == TypeSymbol {
			s = sym.SymbolName()
		} else {
			s = string(sym.StringContents())
		}
		return e.Global().Bool(RespondTo(e, self, s))
	}, 1)
	obj.DefineMethod(e, "dup", func(e *Env, self Value, args Args, block *Block) Value {
		if o := self.Object(); o != nil {
			return ObjectValue(o.Dup(e))
		}
		return self
	}, 0)
	obj.DefineMethod(e, "send", func(e *Env, self Value, args Args, block *Block) Value {
		args.EnsureArgcAtLeast(e, 1)
		name := args.Shift()
		sym := name.Object()
		if sym == nil || sym.typ != TypeSymbol {
			e.Raise("TypeError", "%s is not a symbol", name.Inspect())
		}
		return e.Send(self, sym, args, block)
	}, -1)
	obj.DefineMethod(e, "public_send", func(e *Env, self Value, args Args, block *Block) Value {
		args.EnsureArgcAtLeast(e, 1)
		name := args.Shift()
		sym := name.Object()
		if sym == nil || sym.typ != TypeSymbol {
			e.Raise("TypeError", "%s is not a symbol", name.Inspect())
		}
		return e.PublicSend(self, sym, args, block)
	}, -1)
	obj.DefineMethod(e, "raise", func(e *Env, self Value, args Args, block *Block) Value {
		gl := e.Global()
		switch args.Size() {
		case 0:
			e.Raise("RuntimeError", "unhandled exception")
		case 1:
			v := args.At(0)
			if c := v.Object(); c != nil && c.IsClass() {
				e.RaiseClass(c, "%s", c.ModuleName())
			}
			if s := v.Object(); s != nil && s.typ == TypeString {
				e.Raise("RuntimeError", "%s", string(s.StringContents()))
			}
			if exc := v.Object(); exc != nil && exc.typ == TypeException {
				e.RaiseException(exc)
			}
			e.Raise("TypeError", "exception class/object expected")
		default:
			c := args.At(0).Object()
			msg := args.At(1).Object()
			if c == nil || !c.IsClass() || msg == nil || msg.typ != TypeString {
				e.Raise("TypeError", "exception class/object expected")
			}
			e.RaiseClass(c, "%s", string(msg.StringContents()))
		}
		return gl.Nil
	}, -1)

	gl.ClassClass.DefineMethod(e, "new", func(e *Env, self Value, args Args, block *Block) Value {
		return ObjectNew(e, self.Object(), args, block)
	}, -1)
	gl.ModuleClass.DefineMethod(e, "name", func(e *Env, self Value, args Args, block *Block) Value {
		d := self.Object().module()
		if d.name == "" {
			return e.Global().Nil
		}
		return NewString(e, d.name)
	}, 0)
	gl.ModuleClass.DefineMethod(e, "ancestors", func(e *Env, self Value, args Args, block *Block) Value {
		var out []Value
		for _, m := range linearization(self.Object()) {
			out = append(out, ObjectValue(m))
		}
		return NewArray(e, out...)
	}, 0)

	str := gl.StringClass
	str.DefineMethod(e, "<<", func(e *Env, self Value, args Args, block *Block) Value {
		return StringAppend(e, self, args.At(0))
	}, 1)
	str.DefineMethod(e, "to_s", func(e *Env, self Value, args Args, block *Block) Value {
		return self
	}, 0)
	str.DefineMethod(e, "size", func(e *Env, self Value, args Args, block *Block) Value {
		return NewInteger(e, int64(len(self.Object().StringContents())))
	}, 0)
}

// sameValue is object identity: pointer identity for heap values,
// bitwise equality for immediates.
func sameValue(a, b Value) bool {
	if ao, bo := a.Object(), b.Object(); ao != nil || bo != nil {
		return ao == bo
	}
	return a == b
}

// installNumericMethods registers the audited optimized methods on the
// immediate types. Every body here has been checked to never let self
// or its arguments escape the call, which is what permits the
// synthesized stack receiver in dispatch.
func (gl *GlobalEnv) installNumericMethods() {
	e := gl.rootEnv
	intClass := gl.IntegerClass

	defineOptimized := func(class *Object, name string, arity int, fn MethodFn) {
		class.DefineMethod(e, name, fn, arity).setOptimized()
	}

	intBinop := func(name string, intOp func(*Env, Value, Value) Value, floatOp func(float64, float64) Value) {
		defineOptimized(intClass, name, 1, func(e *Env, self Value, args Args, block *Block) Value {
			a := numericValue(self)
			b := args.At(0)
			switch {
			case IsInteger(b):
				return intOp(e, a, b)
			case isFloatValue(b):
				if floatOp == nil {
					e.Raise("TypeError", "no implicit conversion of Float into Integer")
				}
				return floatOp(IntegerToFloat(a), FloatOf(b))
			}
			e.Raise("TypeError", "%s can't be coerced into Integer", TypeName(e, b))
			return Value{}
		})
	}

	intBinop("+", IntegerAdd, func(x, y float64) Value { return Float(x + y) })
	intBinop("-", IntegerSub, func(x, y float64) Value { return Float(x - y) })
	intBinop("*", IntegerMul, func(x, y float64) Value { return Float(x * y) })
	intBinop("/", IntegerDiv, func(x, y float64) Value { return Float(x / y) })
	intBinop("%", IntegerMod, nil)
	intBinop("divmod", IntegerDivmod, nil)

	intCompare := func(name string, ok func(int) bool) {
		defineOptimized(intClass, name, 1, func(e *Env, self Value, args Args, block *Block) Value {
			a := numericValue(self)
			b := args.At(0)
			switch {
			case IsInteger(b):
				return e.Global().Bool(ok(IntegerCmp(a, b)))
			case isFloatValue(b):
				return e.Global().Bool(ok(compareFloats(IntegerToFloat(a), FloatOf(b))))
			}
			e.Raise("ArgumentError", "comparison of Integer with %s failed", args.At(0).Inspect())
			return Value{}
		})
	}
	intCompare("<", func(c int) bool { return c < 0 })
	intCompare("<=", func(c int) bool { return c <= 0 })
	intCompare(">", func(c int) bool { return c > 0 })
	intCompare(">=", func(c int) bool { return c >= 0 })

	defineOptimized(intClass, "==", 1, func(e *Env, self Value, args Args, block *Block) Value {
		a := numericValue(self)
		b := args.At(0)
		switch {
		case IsInteger(b):
			return e.Global().Bool(IntegerCmp(a, b) == 0)
		case isFloatValue(b):
			return e.Global().Bool(IntegerToFloat(a) == FloatOf(b))
		}
		return e.Global().False
	})
	defineOptimized(intClass, "<=>", 1, func(e *Env, self Value, args Args, block *Block) Value {
		a := numericValue(self)
		b := args.At(0)
		switch {
		case IsInteger(b):
			return Int(int64(IntegerCmp(a, b)))
		case isFloatValue(b):
			return Int(int64(compareFloats(IntegerToFloat(a), FloatOf(b))))
		}
		return e.Global().Nil
	})
	defineOptimized(intClass, "eql?", 1, func(e *Env, self Value, args Args, block *Block) Value {
		return e.Global().Bool(IntegerEql(numericValue(self), args.At(0)))
	})
	defineOptimized(intClass, "succ", 0, func(e *Env, self Value, args Args, block *Block) Value {
		return IntegerSucc(e, numericValue(self))
	})
	defineOptimized(intClass, "chr", 0, func(e *Env, self Value, args Args, block *Block) Value {
		return IntegerChr(e, numericValue(self))
	})
	defineOptimized(intClass, "~", 0, func(e *Env, self Value, args Args, block *Block) Value {
		return IntegerComplement(e, numericValue(self))
	})
	defineOptimized(intClass, "-@", 0, func(e *Env, self Value, args Args, block *Block) Value {
		return IntegerNeg(e, numericValue(self))
	})
	defineOptimized(intClass, "hash", 0, func(e *Env, self Value, args Args, block *Block) Value {
		return NewInteger(e, int64(ValueHash(e, numericValue(self))>>2))
	})
	defineOptimized(intClass, "to_f", 0, func(e *Env, self Value, args Args, block *Block) Value {
		return Float(IntegerToFloat(numericValue(self)))
	})

	floatClass := gl.FloatClass
	floatBinop := func(name string, op func(x, y float64) float64) {
		defineOptimized(floatClass, name, 1, func(e *Env, self Value, args Args, block *Block) Value {
			b := args.At(0)
			if !isFloatValue(b) && !IsInteger(b) {
				e.Raise("TypeError", "%s can't be coerced into Float", TypeName(e, b))
			}
			return Float(op(FloatOf(numericValue(self)), FloatOf(b)))
		})
	}
	floatBinop("+", func(x, y float64) float64 { return x + y })
	floatBinop("-", func(x, y float64) float64 { return x - y })
	floatBinop("*", func(x, y float64) float64 { return x * y })
	floatBinop("/", func(x, y float64) float64 { return x / y })

	floatCompare := func(name string, ok func(int) bool) {
		defineOptimized(floatClass, name, 1, func(e *Env, self Value, args Args, block *Block) Value {
			b := args.At(0)
			if !isFloatValue(b) && !IsInteger(b) {
				e.Raise("ArgumentError", "comparison of Float with %s failed", b.Inspect())
			}
			return e.Global().Bool(ok(compareFloats(FloatOf(numericValue(self)), FloatOf(b))))
		})
	}
	floatCompare("<", func(c int) bool { return c < 0 })
	floatCompare("<=", func(c int) bool { return c <= 0 })
	floatCompare(">", func(c int) bool { return c > 0 })
	floatCompare(">=", func(c int) bool { return c >= 0 })

	defineOptimized(floatClass, "==", 1, func(e *Env, self Value, args Args, block *Block) Value {
		b := args.At(0)
		if !isFloatValue(b) && !IsInteger(b) {
			return e.Global().False
		}
		return e.Global().Bool(FloatOf(numericValue(self)) == FloatOf(b))
	})
	defineOptimized(floatClass, "eql?", 1, func(e *Env, self Value, args Args, block *Block) Value {
		return e.Global().Bool(FloatEql(numericValue(self), args.At(0)))
	})
	defineOptimized(floatClass, "divmod", 1, func(e *Env, self Value, args Args, block *Block) Value {
		return FloatDivmod(e, numericValue(self), args.At(0))
	})
	defineOptimized(floatClass, "nan?", 0, func(e *Env, self Value, args Args, block *Block) Value {
		return e.Global().Bool(math.IsNaN(FloatOf(numericValue(self))))
	})
	defineOptimized(floatClass, "hash", 0, func(e *Env, self Value, args Args, block *Block) Value {
		return NewInteger(e, int64(ValueHash(e, numericValue(self))>>2))
	})
}

// numericValue reads the numeric payload back out of a receiver that
// dispatch may have synthesized on the stack, without letting the
// receiver itself escape.
func numericValue(self Value) Value {
	o := self.Object()
	if o == nil {
		return self
	}
	switch o.typ {
	case TypeInteger:
		d := o.integer()
		if d.big != nil {
			return self // bignum: the heap object itself carries the value
		}
		return Int(d.fix)
	case TypeFloat:
		return Float(o.float().val)
	}
	return self
}

func isFloatValue(v Value) bool {
	return v.IsFloat() || (v.Object() != nil && v.Object().typ == TypeFloat)
}

func compareFloats(x, y float64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}
