package runtime

// voidPData wraps an opaque host pointer handed in by extension code,
// with an optional finalizer the sweep phase runs when the wrapper is
// collected.
type voidPData struct {
	ptr       interface{}
	finalizer func(interface{})
}

// NewVoidP wraps an opaque host value.
func NewVoidP(e *Env, ptr interface{}, finalizer func(interface{})) Value {
	o := e.Global().allocateObject(e.Global().ObjectClass, TypeVoidP)
	o.data = &voidPData{ptr: ptr, finalizer: finalizer}
	return ObjectValue(o)
}

// VoidPtr returns the wrapped host value.
func (o *Object) VoidPtr() interface{} { return o.voidp().ptr }
