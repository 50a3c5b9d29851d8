package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRescueMatchesByClass(t *testing.T) {
	gl, e := testEnv(t)

	caught := Begin(e, func(e *Env) Value {
		e.Raise("TypeError", "boom")
		return gl.Nil
	}, []RescueClause{
		{Classes: []*Object{gl.errorClass("ArgumentError")}, Body: func(e *Env, exc *Object) Value {
			return NewString(e, "wrong clause")
		}},
		{Classes: []*Object{gl.errorClass("TypeError")}, Body: func(e *Env, exc *Object) Value {
			return NewString(e, "caught "+excMessage(exc))
		}},
	}, nil)

	require.Equal(t, "caught boom", string(caught.Object().StringContents()))
}

func TestBareRescueCatchesStandardErrorOnly(t *testing.T) {
	gl, e := testEnv(t)

	result := Begin(e, func(e *Env) Value {
		e.Raise("RuntimeError", "standard")
		return gl.Nil
	}, []RescueClause{
		{Body: func(e *Env, exc *Object) Value { return NewString(e, "rescued") }},
	}, nil)
	require.Equal(t, "rescued", string(result.Object().StringContents()))

	// A bare Exception slips through a bare rescue.
	_, exc := Protect(e, func(e *Env) Value {
		return Begin(e, func(e *Env) Value {
			e.RaiseClass(gl.ExceptionClass, "fatal")
			return gl.Nil
		}, []RescueClause{
			{Body: func(e *Env, exc *Object) Value { return gl.Nil }},
		}, nil)
	})
	require.NotNil(t, exc)
	require.Equal(t, "Exception", exc.Class().ModuleName())
}

func TestEnsureRunsOnEveryExitPath(t *testing.T) {
	gl, e := testEnv(t)

	runs := 0
	ensure := func(*Env) { runs++ }

	// Normal return.
	Begin(e, func(e *Env) Value { return gl.Nil }, nil, ensure)
	require.Equal(t, 1, runs)

	// Rescued raise.
	Begin(e, func(e *Env) Value {
		e.Raise("RuntimeError", "x")
		return gl.Nil
	}, []RescueClause{{Body: func(e *Env, exc *Object) Value { return gl.Nil }}}, ensure)
	require.Equal(t, 2, runs)

	// Unrescued raise still runs ensure on the way out.
	Protect(e, func(e *Env) Value {
		return Begin(e, func(e *Env) Value {
			e.Raise("TypeError", "x")
			return gl.Nil
		}, nil, ensure)
	})
	require.Equal(t, 3, runs)
}

func TestRetryReentersBody(t *testing.T) {
	gl, e := testEnv(t)

	attempts := 0
	result := Begin(e, func(e *Env) Value {
		attempts++
		if attempts < 3 {
			e.Raise("RuntimeError", "again")
		}
		return Int(int64(attempts))
	}, []RescueClause{
		{Body: func(e *Env, exc *Object) Value {
			e.Retry()
			return gl.Nil
		}},
	}, nil)

	require.Equal(t, 3, attempts)
	require.Equal(t, int64(3), result.Int64())
}

func TestBacktraceCapturedAtFirstRaise(t *testing.T) {
	gl, e := testEnv(t)

	c := DefineClass(e, gl.ObjectClass, "Tracer", nil)
	c.DefineMethod(e, "h", func(e *Env, self Value, args Args, block *Block) Value {
		e.SetFileLine("tracer.rb", 12)
		e.Raise("RuntimeError", "kaput")
		return gl.Nil
	}, 0)
	c.DefineMethod(e, "g", func(e *Env, self Value, args Args, block *Block) Value {
		e.SetFileLine("tracer.rb", 5)
		return e.SendName(self, "h")
	}, 0)
	obj := ObjectNew(e, c, NewArgs(e), nil)

	exc := expectRaise(t, e, "RuntimeError", func(e *Env) Value {
		return e.SendName(obj, "g")
	})

	bt := exc.ExceptionBacktrace()
	require.NotNil(t, bt)
	require.GreaterOrEqual(t, len(bt.Items), 3)
	assert.Contains(t, bt.Items[0], "tracer.rb:12:in 'h'")
	assert.Contains(t, bt.Items[1], "tracer.rb:5:in 'g'")
	assert.Contains(t, bt.Items[len(bt.Items)-1], "in '<main>'")
}

func TestReRaiseKeepsOriginalBacktrace(t *testing.T) {
	gl, e := testEnv(t)

	var first *Backtrace
	_, exc := Protect(e, func(e *Env) Value {
		return Begin(e, func(e *Env) Value {
			e.SetFileLine("deep.rb", 3)
			e.Raise("RuntimeError", "original")
			return gl.Nil
		}, []RescueClause{
			{Body: func(e *Env, exc *Object) Value {
				first = exc.ExceptionBacktrace()
				e.SetFileLine("deep.rb", 99)
				e.RaiseException(exc) // re-raise
				return gl.Nil
			}},
		}, nil)
	})

	require.NotNil(t, exc)
	require.Same(t, first, exc.ExceptionBacktrace(), "backtrace reflects the first raise, not the re-raise")
}

func TestLocalJumpErrorCarriesExitValue(t *testing.T) {
	gl, e := testEnv(t)

	exc := expectRaise(t, e, "LocalJumpError", func(e *Env) Value {
		e.RaiseLocalJumpError(Int(42), "unexpected return")
		return gl.Nil
	})
	require.Equal(t, int64(42), exc.IvarGet(e, gl.Intern("@exit_value")).Int64())
}

func TestExceptionSlotBoundDuringRescue(t *testing.T) {
	gl, e := testEnv(t)

	Begin(e, func(e *Env) Value {
		e.Raise("RuntimeError", "inside")
		return gl.Nil
	}, []RescueClause{
		{Body: func(e *Env, exc *Object) Value {
			require.Same(t, exc, e.exc, "the frame's exception slot holds the in-flight exception")
			return gl.Nil
		}},
	}, nil)
	require.Nil(t, e.exc, "cleared after the clause")
}

func TestRaisePrimitive(t *testing.T) {
	gl, e := testEnv(t)

	exc := expectRaise(t, e, "RuntimeError", func(e *Env) Value {
		return e.SendName(gl.MainObject(), "raise", NewString(e, "from user code"))
	})
	assert.Equal(t, "from user code", excMessage(exc))

	exc = expectRaise(t, e, "TypeError", func(e *Env) Value {
		return e.SendName(gl.MainObject(), "raise", ObjectValue(gl.errorClass("TypeError")))
	})
	assert.Equal(t, "TypeError", excMessage(exc))
}

func TestSystemCallErrorCarriesErrno(t *testing.T) {
	gl, e := testEnv(t)

	exc := expectRaise(t, e, "SystemCallError", func(e *Env) Value {
		e.RaiseErrno(2, "open failed")
		return gl.Nil
	})
	require.Equal(t, int64(2), exc.IvarGet(e, gl.Intern("@errno")).Int64())
}
