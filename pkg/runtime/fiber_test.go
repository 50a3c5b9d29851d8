package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiberPingPong(t *testing.T) {
	gl, e := testEnv(t)

	blk := NewBlock(e, gl.MainObject(), func(e *Env, self Value, args Args, block *Block) Value {
		for i := int64(1); i <= 3; i++ {
			YieldFiber(e, Int(i))
		}
		return NewString(e, "done")
	}, -1)
	f := NewFiber(e, blk)

	require.Equal(t, int64(1), ResumeFiber(e, f).Int64())
	require.Equal(t, int64(2), ResumeFiber(e, f).Int64())
	require.Equal(t, int64(3), ResumeFiber(e, f).Int64())
	require.Equal(t, "done", string(ResumeFiber(e, f).Object().StringContents()))

	exc := expectRaise(t, e, "FiberError", func(e *Env) Value {
		return ResumeFiber(e, f)
	})
	assert.Equal(t, "dead fiber called", excMessage(exc))
	assert.Equal(t, FiberTerminated, FiberStatusOf(f))
}

func TestFiberArgumentTransfer(t *testing.T) {
	gl, e := testEnv(t)

	var entry, yieldReturn Value
	blk := NewBlock(e, gl.MainObject(), func(e *Env, self Value, args Args, block *Block) Value {
		entry = args.At(0)
		yieldReturn = YieldFiber(e, NewString(e, "Y"))
		return yieldReturn
	}, -1)
	f := NewFiber(e, blk)

	// First resume: X arrives as the block's entry arguments.
	observed := ResumeFiber(e, f, Int(10))
	require.Equal(t, int64(10), entry.Int64())
	require.Equal(t, "Y", string(observed.Object().StringContents()))

	// Second resume: Z becomes the yield's return value.
	final := ResumeFiber(e, f, Int(20))
	require.Equal(t, int64(20), yieldReturn.Int64())
	require.Equal(t, int64(20), final.Int64())
}

func TestFiberStatusMachine(t *testing.T) {
	gl, e := testEnv(t)

	blk := NewBlock(e, gl.MainObject(), func(e *Env, self Value, args Args, block *Block) Value {
		YieldFiber(e)
		return gl.Nil
	}, -1)
	f := NewFiber(e, blk)

	require.Equal(t, FiberCreated, FiberStatusOf(f))
	ResumeFiber(e, f)
	require.Equal(t, FiberSuspended, FiberStatusOf(f))
	require.True(t, FiberAlive(f))
	ResumeFiber(e, f)
	require.Equal(t, FiberTerminated, FiberStatusOf(f))
	require.False(t, FiberAlive(f))
}

func TestResumingTheCurrentFiber(t *testing.T) {
	gl, e := testEnv(t)

	var inner *Object
	blk := NewBlock(e, gl.MainObject(), func(e *Env, self Value, args Args, block *Block) Value {
		self2 := gl.CurrentFiber()
		_, inner = Protect(e, func(e *Env) Value {
			return ResumeFiber(e, self2)
		})
		return gl.Nil
	}, -1)
	f := NewFiber(e, blk)
	ResumeFiber(e, f)

	require.NotNil(t, inner)
	assert.Equal(t, "attempt to resume the current fiber", excMessage(inner))
}

func TestYieldFromRootFiber(t *testing.T) {
	_, e := testEnv(t)

	exc := expectRaise(t, e, "FiberError", func(e *Env) Value {
		return YieldFiber(e)
	})
	assert.Equal(t, "can't yield from root fiber", excMessage(exc))
}

func TestFiberExceptionReRaisesInResumer(t *testing.T) {
	gl, e := testEnv(t)

	blk := NewBlock(e, gl.MainObject(), func(e *Env, self Value, args Args, block *Block) Value {
		e.Raise("RuntimeError", "died inside")
		return gl.Nil
	}, -1)
	f := NewFiber(e, blk)

	exc := expectRaise(t, e, "RuntimeError", func(e *Env) Value {
		return ResumeFiber(e, f)
	})
	assert.Equal(t, "died inside", excMessage(exc))
	assert.Equal(t, FiberTerminated, FiberStatusOf(f))
}

func TestBreakInsideFiberIsLocalJump(t *testing.T) {
	gl, e := testEnv(t)

	blk := NewBlock(e, gl.MainObject(), func(e *Env, self Value, args Args, block *Block) Value {
		return BreakValue(e, Int(1))
	}, -1)
	f := NewFiber(e, blk)

	expectRaise(t, e, "LocalJumpError", func(e *Env) Value {
		return ResumeFiber(e, f)
	})
}

func TestFiberStorageFallsBackAlongPreviousChain(t *testing.T) {
	gl, e := testEnv(t)

	key := gl.Intern("request_id")
	FiberStorageSet(e, key, Int(7))

	var seen Value
	blk := NewBlock(e, gl.MainObject(), func(e *Env, self Value, args Args, block *Block) Value {
		// No own storage yet: the read walks the previous-fiber chain.
		seen = FiberStorageGet(e, key)
		// An own write shadows the parent.
		FiberStorageSet(e, key, Int(8))
		return FiberStorageGet(e, key)
	}, -1)
	f := NewFiber(e, blk)
	result := ResumeFiber(e, f)

	require.Equal(t, int64(7), seen.Int64())
	require.Equal(t, int64(8), result.Int64())
	require.Equal(t, int64(7), FiberStorageGet(e, key).Int64(), "the parent's storage is untouched")
}

func TestSetFiberStorageValidation(t *testing.T) {
	gl, e := testEnv(t)

	cur := gl.CurrentFiber()

	expectRaise(t, e, "TypeError", func(e *Env) Value {
		SetFiberStorage(e, cur, Int(1))
		return gl.Nil
	})

	frozen := NewHash(e)
	frozen.Object().Freeze()
	expectRaise(t, e, "FrozenError", func(e *Env) Value {
		SetFiberStorage(e, cur, frozen)
		return gl.Nil
	})

	bad := NewHash(e)
	bad.Object().HashPut(e, NewString(e, "k"), Int(1))
	expectRaise(t, e, "TypeError", func(e *Env) Value {
		SetFiberStorage(e, cur, bad)
		return gl.Nil
	})
}

func TestMutexFiberOwnership(t *testing.T) {
	gl, e := testEnv(t)

	m := NewMutex(e)
	MutexLock(e, m)
	require.True(t, MutexLocked(m))

	exc := expectRaise(t, e, "ThreadError", func(e *Env) Value {
		return MutexLock(e, m)
	})
	assert.Contains(t, excMessage(exc), "recursive locking")

	// Another fiber cannot unlock it.
	blk := NewBlock(e, gl.MainObject(), func(e *Env, self Value, args Args, block *Block) Value {
		_, inner := Protect(e, func(e *Env) Value {
			return MutexUnlock(e, m)
		})
		if inner == nil {
			return NewString(e, "no error raised")
		}
		return NewString(e, excMessage(inner))
	}, -1)
	f := NewFiber(e, blk)
	msg := ResumeFiber(e, f)
	assert.Contains(t, string(msg.Object().StringContents()), "locked by another fiber")

	MutexUnlock(e, m)
	require.False(t, MutexLocked(m))

	expectRaise(t, e, "ThreadError", func(e *Env) Value {
		return MutexUnlock(e, m)
	})
}

func TestMutexSynchronizeReleasesOnRaise(t *testing.T) {
	gl, e := testEnv(t)

	m := NewMutex(e)
	Protect(e, func(e *Env) Value {
		return MutexSynchronize(e, m, func(e *Env) Value {
			e.Raise("RuntimeError", "inside")
			return gl.Nil
		})
	})
	require.False(t, MutexLocked(m), "released on the error path")

	require.True(t, MutexTryLock(e, m))
	MutexUnlock(e, m)
}
