package runtime_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beryl-lang/beryl/pkg/runtime"
)

// initCounterExtension plays the role of a compiled extension: it
// receives the root env and the Object base class and registers its
// classes and methods through the registration ABI.
func initCounterExtension(e *runtime.Env, object *runtime.Object) {
	gl := e.Global()
	counter := runtime.DefineClass(e, object, "Counter", nil)

	gl.DefineMethod(counter, "initialize", func(e *runtime.Env, self runtime.Value, args runtime.Args, block *runtime.Block) runtime.Value {
		self.Object().IvarSet(e, gl.Intern("@count"), runtime.Int(0))
		return gl.Nil
	}, 0)
	gl.DefineMethod(counter, "increment", func(e *runtime.Env, self runtime.Value, args runtime.Args, block *runtime.Block) runtime.Value {
		name := gl.Intern("@count")
		next := e.SendName(self.Object().IvarGet(e, name), "+", runtime.Int(1))
		return self.Object().IvarSet(e, name, next)
	}, 0)
	gl.DefineMethod(counter, "count", func(e *runtime.Env, self runtime.Value, args runtime.Args, block *runtime.Block) runtime.Value {
		return self.Object().IvarGet(e, gl.Intern("@count"))
	}, 0)
	gl.DefineSingletonMethod(runtime.ObjectValue(counter), "description", func(e *runtime.Env, self runtime.Value, args runtime.Args, block *runtime.Block) runtime.Value {
		return runtime.NewString(e, "counts things")
	}, 0)
}

func TestHostProgramLifecycle(t *testing.T) {
	gl := runtime.New(runtime.Config{})
	e := gl.RootEnv()

	initCounterExtension(e, gl.ObjectClass)

	counter := gl.ObjectClass.ConstFind(e, "Counter")
	obj := e.SendName(counter, "new")

	for i := 0; i < 3; i++ {
		e.SendName(obj, "increment")
	}
	require.Equal(t, int64(3), e.SendName(obj, "count").Int64())
	require.Equal(t, "counts things",
		string(e.SendName(counter, "description").Object().StringContents()))
}

func TestMethodRedefinitionEndToEnd(t *testing.T) {
	gl := runtime.New(runtime.Config{})
	e := gl.RootEnv()

	c := runtime.DefineClass(e, gl.ObjectClass, "C", nil)
	gl.DefineMethod(c, "m", func(e *runtime.Env, self runtime.Value, args runtime.Args, block *runtime.Block) runtime.Value {
		return runtime.Int(1)
	}, 0)

	obj := e.SendName(runtime.ObjectValue(c), "new")
	for i := 0; i < 100; i++ {
		require.Equal(t, int64(1), e.SendName(obj, "m").Int64())
	}

	gl.DefineMethod(c, "m", func(e *runtime.Env, self runtime.Value, args runtime.Args, block *runtime.Block) runtime.Value {
		return runtime.Int(2)
	}, 0)
	require.Equal(t, int64(2), e.SendName(obj, "m").Int64())
}

func TestFiberPingPongEndToEnd(t *testing.T) {
	gl := runtime.New(runtime.Config{})
	e := gl.RootEnv()

	blk := runtime.NewBlock(e, gl.MainObject(), func(e *runtime.Env, self runtime.Value, args runtime.Args, block *runtime.Block) runtime.Value {
		for i := int64(1); i <= 3; i++ {
			runtime.YieldFiber(e, runtime.Int(i))
		}
		return runtime.NewString(e, "done")
	}, -1)
	f := runtime.NewFiber(e, blk)

	var got []string
	for i := 0; i < 4; i++ {
		v := runtime.ResumeFiber(e, f)
		got = append(got, gl.Describe(v))
	}
	assert.Equal(t, []string{"1 (Integer)", "2 (Integer)", "3 (Integer)", `"done" (String)`}, got)

	_, exc := runtime.Protect(e, func(e *runtime.Env) runtime.Value {
		return runtime.ResumeFiber(e, f)
	})
	require.NotNil(t, exc)
	require.Equal(t, "FiberError", exc.Class().ModuleName())
}

func TestUncaughtExceptionExitStatus(t *testing.T) {
	gl := runtime.New(runtime.Config{})
	e := gl.RootEnv()

	_, exc := runtime.Protect(e, func(e *runtime.Env) runtime.Value {
		e.Raise("RuntimeError", "top-level failure")
		return gl.Nil
	})
	require.NotNil(t, exc)
	require.Equal(t, 1, runtime.HandleTopLevelException(e, exc))
}

func TestGCEndToEnd(t *testing.T) {
	gl := runtime.New(runtime.Config{})
	e := gl.RootEnv()

	destroyed := 0
	mark := gl.PushScope()
	a := runtime.NewArray(e)
	b := runtime.NewArray(e)
	a.Object().ArrayPush(e, b, runtime.NewVoidP(e, nil, func(interface{}) { destroyed++ }))
	b.Object().ArrayPush(e, a, runtime.NewVoidP(e, nil, func(interface{}) { destroyed++ }))
	gl.PopScope(mark)

	gl.GC()
	require.Equal(t, 2, destroyed, "the dropped cycle is destructed")
}
