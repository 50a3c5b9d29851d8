package runtime

import (
	"fmt"
	"os"
)

// exceptionData is the payload of an Exception: the message and the
// backtrace captured at first raise.
type exceptionData struct {
	message   Value
	backtrace *Backtrace
}

// thrown is the error channel's panic payload. It unwinds native
// frames until a rescue (or Protect) recovers it; everything else in
// flight runs its deferred ensure handlers on the way out.
type thrown struct {
	exc *Object
}

// localReturn unwinds a non-lambda return out of the blocks it is
// lexically nested in, back to the method frame that created them.
type localReturn struct {
	home  *Env
	value Value
}

// retrySignal restarts the body of the enclosing Begin.
type retrySignal struct{}

// NewException builds an exception object of the given class with a
// string message. The backtrace stays empty until the first raise.
func NewException(e *Env, class *Object, format string, args ...interface{}) *Object {
	gl := e.Global()
	exc := gl.allocateObject(class, TypeException)
	exc.data = &exceptionData{message: NewString(e, fmt.Sprintf(format, args...))}
	return exc
}

// ExceptionMessage returns the message value.
func (o *Object) ExceptionMessage() Value { return o.exception().message }

// ExceptionBacktrace returns the backtrace captured at first raise, or
// nil if the exception was never raised.
func (o *Object) ExceptionBacktrace() *Backtrace { return o.exception().backtrace }

// Raise creates an exception of the named class and raises it.
func (e *Env) Raise(className string, format string, args ...interface{}) {
	class := e.Global().errorClass(className)
	e.RaiseException(NewException(e, class, format, args...))
}

// RaiseClass raises an exception of an explicit class.
func (e *Env) RaiseClass(class *Object, format string, args ...interface{}) {
	e.RaiseException(NewException(e, class, format, args...))
}

// RaiseException transfers control onto the error channel. The
// backtrace is captured here, on the first raise only; a re-raise
// keeps the original.
func (e *Env) RaiseException(exc *Object) {
	d := exc.exception()
	if d.backtrace == nil {
		d.backtrace = buildBacktrace(e)
	}
	panic(&thrown{exc: exc})
}

// RaiseLocalJumpError raises LocalJumpError carrying the value that
// tried to escape in @exit_value.
func (e *Env) RaiseLocalJumpError(exitValue Value, format string, args ...interface{}) {
	gl := e.Global()
	exc := NewException(e, gl.errorClass("LocalJumpError"), format, args...)
	exc.IvarSet(e, gl.Intern("@exit_value"), exitValue)
	e.RaiseException(exc)
}

// RaiseErrno surfaces an OS-level failure from collaborator code as a
// SystemCallError carrying the errno.
func (e *Env) RaiseErrno(errno int, what string) {
	gl := e.Global()
	exc := NewException(e, gl.errorClass("SystemCallError"), "%s (errno %d)", what, errno)
	exc.IvarSet(e, gl.Intern("@errno"), Int(int64(errno)))
	e.RaiseException(exc)
}

// IsA walks the receiver class's linearization.
func IsA(e *Env, v Value, module *Object) bool {
	for _, m := range linearization(v.Class(e.Global())) {
		if m == module {
			return true
		}
	}
	return false
}

// RescueClause matches exceptions by class and handles them. An empty
// class list matches StandardError, like a bare rescue.
type RescueClause struct {
	Classes []*Object
	Body    func(e *Env, exc *Object) Value
}

// Begin runs body with rescue clauses and an ensure, the runtime's
// rendition of begin/rescue/ensure:
//
//   - A raised exception is caught by the first clause whose class
//     matches (is_a?); the clause may call e.Retry to re-enter body.
//   - ensure runs on every exit path: normal return, rescue return,
//     re-raise, non-local return, and break.
//
// The matched exception is bound to the frame's exception slot while
// the clause runs, then cleared.
func Begin(e *Env, body func(*Env) Value, rescues []RescueClause, ensure func(*Env)) (result Value) {
	if ensure != nil {
		defer ensure(e)
	}
	for {
		retry := false
		result = func() (out Value) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				t, ok := r.(*thrown)
				if !ok {
					panic(r)
				}
				clause := matchRescue(e, rescues, t.exc)
				if clause == nil {
					panic(r)
				}
				e.exc = t.exc
				defer func() { e.exc = nil }()
				func() {
					defer func() {
						if r2 := recover(); r2 != nil {
							if _, isRetry := r2.(retrySignal); isRetry {
								retry = true
								return
							}
							panic(r2)
						}
					}()
					out = clause.Body(e, t.exc)
				}()
			}()
			return body(e)
		}()
		if !retry {
			return result
		}
	}
}

func matchRescue(e *Env, rescues []RescueClause, exc *Object) *RescueClause {
	for i := range rescues {
		clause := &rescues[i]
		if len(clause.Classes) == 0 {
			if IsA(e, ObjectValue(exc), e.Global().errorClass("StandardError")) {
				return clause
			}
			continue
		}
		for _, class := range clause.Classes {
			if IsA(e, ObjectValue(exc), class) {
				return clause
			}
		}
	}
	return nil
}

// Retry restarts the enclosing Begin's body. Calling it outside a
// rescue clause is a runtime bug.
func (e *Env) Retry() {
	panic(retrySignal{})
}

// Protect runs fn and hands back any exception instead of letting it
// unwind further. Host programs and the fiber entry wrapper use it as
// the outermost recovery point; break values escaping all iterations
// surface here as LocalJumpError.
func Protect(e *Env, fn func(*Env) Value) (result Value, exc *Object) {
	defer func() {
		if r := recover(); r != nil {
			t, ok := r.(*thrown)
			if !ok {
				panic(r)
			}
			exc = t.exc
		}
	}()
	result = fn(e)
	if IsBreakValue(result) {
		result = Value{}
		exc = NewException(e, e.Global().errorClass("LocalJumpError"), "break from proc-closure")
		exc.exception().backtrace = buildBacktrace(e)
	}
	return result, exc
}

// HandleTopLevelException prints the uncaught exception's message and
// backtrace the way the top level does, and returns the process exit
// status.
func HandleTopLevelException(e *Env, exc *Object) int {
	msg := exc.ExceptionMessage().Inspect()
	if s := exc.ExceptionMessage().Object(); s != nil && s.typ == TypeString {
		msg = string(s.StringContents())
	}
	fmt.Fprintf(os.Stderr, "%s (%s)\n", msg, exc.Class().ModuleName())
	if bt := exc.ExceptionBacktrace(); bt != nil {
		for _, item := range bt.Items {
			fmt.Fprintf(os.Stderr, "\tfrom %s\n", item)
		}
	}
	return 1
}
