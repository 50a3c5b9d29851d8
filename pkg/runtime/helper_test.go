package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testEnv(t *testing.T) (*GlobalEnv, *Env) {
	t.Helper()
	gl := New(Config{})
	return gl, gl.RootEnv()
}

// expectRaise runs fn and requires that it raises an exception of the
// named class, returning it for further checks.
func expectRaise(t *testing.T, e *Env, className string, fn func(*Env) Value) *Object {
	t.Helper()
	_, exc := Protect(e, fn)
	require.NotNil(t, exc, "expected %s, got no exception", className)
	require.Equal(t, className, exc.Class().ModuleName(),
		"expected %s, got %s: %s", className, exc.Class().ModuleName(), exc.ExceptionMessage().Inspect())
	return exc
}

func excMessage(exc *Object) string {
	if s := exc.ExceptionMessage().Object(); s != nil && s.typ == TypeString {
		return string(s.StringContents())
	}
	return exc.ExceptionMessage().Inspect()
}

// returning wraps a constant-returning native method body.
func returning(v func(e *Env) Value) MethodFn {
	return func(e *Env, self Value, args Args, block *Block) Value {
		return v(e)
	}
}
