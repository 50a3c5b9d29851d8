package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionReclaimsDroppedCycle(t *testing.T) {
	gl, e := testEnv(t)

	destroyed := 0
	mark := gl.PushScope()

	// A cyclic pair A <-> B plus finalizer carriers to observe the
	// destructor.
	a := NewArray(e).Object()
	b := NewArray(e).Object()
	a.ArrayPush(e, ObjectValue(b), NewVoidP(e, "a", func(interface{}) { destroyed++ }))
	b.ArrayPush(e, ObjectValue(a), NewVoidP(e, "b", func(interface{}) { destroyed++ }))

	gl.GC()
	require.Zero(t, destroyed, "still rooted through the scope")

	// Drop all references and collect: both halves destruct.
	a, b = nil, nil
	gl.PopScope(mark)
	gl.GC()
	require.Equal(t, 2, destroyed)

	// Exactly once.
	gl.GC()
	require.Equal(t, 2, destroyed)
}

func TestReachableObjectsKeepIdentityAcrossCollection(t *testing.T) {
	gl, e := testEnv(t)

	s := NewString(e, "stable")
	obj := s.Object()
	gl.GC()
	gl.GC()

	require.Same(t, obj, s.Object())
	require.Equal(t, "stable", string(obj.StringContents()))
	require.True(t, gl.Heap().LiveCell(obj))
}

func TestEnvLocalsAreRoots(t *testing.T) {
	gl, e := testEnv(t)

	destroyed := 0
	c := DefineClass(e, gl.ObjectClass, "Holder", nil)
	c.DefineMethod(e, "hold", func(e *Env, self Value, args Args, block *Block) Value {
		e.BuildVars(1)
		e.VarSet(0, 0, NewVoidP(e, "held", func(interface{}) { destroyed++ }))
		gl.GC()
		require.Zero(t, destroyed, "a local slot of an active frame is a root")
		return gl.Nil
	}, 0)
	obj := ObjectNew(e, c, NewArgs(e), nil)

	mark := gl.PushScope()
	e.SendName(obj, "hold")
	gl.PopScope(mark)

	gl.GC()
	require.Equal(t, 1, destroyed, "reclaimed once the frame is gone")
}

func TestSuspendedFiberStackIsScanned(t *testing.T) {
	gl, e := testEnv(t)

	destroyed := 0
	blk := NewBlock(e, gl.MainObject(), func(e *Env, self Value, args Args, block *Block) Value {
		held := NewVoidP(e, "fiber-held", func(interface{}) { destroyed++ })
		YieldFiber(e)
		return held
	}, -1)
	f := NewFiber(e, blk)
	ResumeFiber(e, f)

	// The fiber is suspended; its value-stack region keeps the value
	// alive through the conservative scan.
	gl.GC()
	require.Zero(t, destroyed)

	result := ResumeFiber(e, f)
	require.NotNil(t, result.Object())

	mark := gl.PushScope()
	gl.PopScope(mark)
	_ = result
}

func TestTerminatedFiberStackIsNotARoot(t *testing.T) {
	gl, e := testEnv(t)

	destroyed := 0
	blk := NewBlock(e, gl.MainObject(), func(e *Env, self Value, args Args, block *Block) Value {
		NewVoidP(e, "dropped", func(interface{}) { destroyed++ })
		return gl.Nil
	}, -1)
	f := NewFiber(e, blk)

	mark := gl.PushScope()
	ResumeFiber(e, f)
	gl.PopScope(mark)

	gl.GC()
	require.Equal(t, 1, destroyed, "a dead fiber's temporaries are reclaimable")
}

func TestSymbolsArePermanent(t *testing.T) {
	gl, e := testEnv(t)
	_ = e

	sym := gl.Intern("transient")
	require.True(t, sym.Permanent())
	gl.GC()
	require.True(t, gl.Heap().LiveCell(sym))
	require.Same(t, sym, gl.Intern("transient"))
}

func TestAllocationWithGCDisabledIsMonotonic(t *testing.T) {
	gl, e := testEnv(t)

	gl.Heap().Disable()
	var objs []*Object
	for i := 0; i < 50; i++ {
		objs = append(objs, NewString(e, "x").Object())
	}
	before := gl.Heap().Collections()
	gl.GC() // disabled: no-op
	require.Equal(t, before, gl.Heap().Collections())
	for _, o := range objs {
		require.True(t, gl.Heap().LiveCell(o), "no identity changes while GC is off")
	}
}

func TestStressModeSurvivesDispatch(t *testing.T) {
	gl := New(Config{GCStress: true})
	e := gl.RootEnv()

	c := DefineClass(e, gl.ObjectClass, "Stressed", nil)
	c.DefineMethod(e, "build", func(e *Env, self Value, args Args, block *Block) Value {
		s := NewString(e, "a")
		StringAppend(e, s, NewString(e, "b"))
		return s
	}, 0)
	obj := ObjectNew(e, c, NewArgs(e), nil)

	for i := 0; i < 10; i++ {
		result := e.SendName(obj, "build")
		require.Equal(t, "ab", string(result.Object().StringContents()))
	}
	assert.Greater(t, gl.Heap().Collections(), uint64(0))
}

func TestConstantsAreRoots(t *testing.T) {
	gl, e := testEnv(t)

	mark := gl.PushScope()
	gl.ObjectClass.ConstSet(e, "PINNED", NewString(e, "kept"))
	gl.PopScope(mark)

	gl.GC()
	v := gl.ObjectClass.ConstFind(e, "PINNED")
	require.Equal(t, "kept", string(v.Object().StringContents()))
}
