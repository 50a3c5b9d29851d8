package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueTruthiness(t *testing.T) {
	gl, e := testEnv(t)
	_ = e

	assert.False(t, gl.Nil.IsTruthy())
	assert.False(t, gl.False.IsTruthy())
	assert.True(t, gl.True.IsTruthy())
	assert.True(t, Int(0).IsTruthy(), "zero is truthy")
	assert.True(t, Float(0).IsTruthy())
}

func TestSingletonsHaveIdentity(t *testing.T) {
	gl, _ := testEnv(t)

	require.Equal(t, gl.Nil, gl.Nil)
	require.True(t, gl.Nil.IsNil())
	require.True(t, gl.Nil.Object().Frozen())
	require.True(t, gl.Nil.Object().Permanent())
	require.Equal(t, "NilClass", gl.Nil.Class(gl).ModuleName())
}

func TestIvarReadsUnsetAsNil(t *testing.T) {
	gl, e := testEnv(t)

	c := DefineClass(e, gl.ObjectClass, "Bag", nil)
	obj := ObjectNew(e, c, NewArgs(e), nil).Object()
	name := gl.Intern("@missing")

	require.True(t, obj.IvarGet(e, name).IsNil())
	require.False(t, obj.IvarDefined(name))

	obj.IvarSet(e, name, Int(5))
	require.Equal(t, int64(5), obj.IvarGet(e, name).Int64())
}

func TestFrozenObjectRejectsIvarWrite(t *testing.T) {
	gl, e := testEnv(t)

	c := DefineClass(e, gl.ObjectClass, "Icy", nil)
	obj := ObjectNew(e, c, NewArgs(e), nil).Object()
	obj.Freeze()

	exc := expectRaise(t, e, "FrozenError", func(e *Env) Value {
		return obj.IvarSet(e, gl.Intern("@x"), Int(1))
	})
	assert.Contains(t, excMessage(exc), "can't modify frozen Icy")
}

func TestFrozenStringScenario(t *testing.T) {
	_, e := testEnv(t)

	s := NewString(e, "hi")
	s.Object().Freeze()

	expectRaise(t, e, "FrozenError", func(e *Env) Value {
		return e.SendName(s, "<<", NewString(e, "x"))
	})
	require.Equal(t, "hi", string(s.Object().StringContents()), "the string is unchanged")
}

func TestDupDropsFrozenAndSingleton(t *testing.T) {
	gl, e := testEnv(t)

	c := DefineClass(e, gl.ObjectClass, "Copied", nil)
	obj := ObjectNew(e, c, NewArgs(e), nil)
	obj.Object().IvarSet(e, gl.Intern("@v"), Int(3))
	gl.DefineSingletonMethod(obj, "only_here", returning(func(e *Env) Value { return Int(1) }), 0)
	obj.Object().Freeze()

	dup := obj.Object().Dup(e)
	assert.False(t, dup.Frozen())
	require.Equal(t, int64(3), dup.IvarGet(e, gl.Intern("@v")).Int64())
	expectRaise(t, e, "NoMethodError", func(e *Env) Value {
		return e.SendName(ObjectValue(dup), "only_here")
	})
}

func TestClassBootstrapCycle(t *testing.T) {
	gl, _ := testEnv(t)

	// Class.class == Class; BasicObject closes the cycle.
	require.Same(t, gl.ClassClass, gl.ClassClass.Class())
	require.Same(t, gl.ClassClass, gl.BasicObjectClass.Class())
	require.Nil(t, gl.BasicObjectClass.Superclass())
	require.Same(t, gl.BasicObjectClass, gl.ObjectClass.Superclass())
	require.Same(t, gl.ModuleClass, gl.ClassClass.Superclass())

	// Every core class is reachable as a constant of Object.
	for _, name := range []string{"Object", "Module", "Class", "Integer", "Exception", "Fiber", "Mutex"} {
		v, ok := gl.ObjectClass.ConstFetch(gl.Intern(name))
		require.True(t, ok, "missing core constant %s", name)
		require.True(t, v.Object().IsClass())
	}
}

func TestLastMatchSlot(t *testing.T) {
	gl, e := testEnv(t)

	require.True(t, e.LastMatch().IsNil())

	re := NewRegexp(e, `(\w+)-(\d+)`)
	md := RegexpMatch(e, re, NewString(e, "job-42"))
	require.False(t, md.IsNil())
	require.Equal(t, e.LastMatch(), md)

	cap := md.Object().MatchCapture(e, 2)
	require.Equal(t, "42", string(cap.Object().StringContents()))

	RegexpMatch(e, re, NewString(e, "nope"))
	require.True(t, e.LastMatch().IsNil())
	_ = gl
}

func TestGlobalVariables(t *testing.T) {
	gl, e := testEnv(t)

	name := gl.Intern("$counter")
	require.True(t, e.GlobalGet(name).IsNil())
	e.GlobalSet(name, Int(1))
	require.Equal(t, int64(1), e.GlobalGet(name).Int64())
}
