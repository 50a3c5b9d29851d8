package runtime

import (
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"
)

// dumpConfig keeps spew from chasing the whole object graph: class
// pointers loop back through the hierarchy immediately.
var dumpConfig = spew.ConfigState{
	Indent:                  "  ",
	MaxDepth:                4,
	DisableMethods:          true,
	DisablePointerAddresses: false,
}

// DumpValue renders a deep diagnostic dump of a value, for debugging
// the runtime itself.
func DumpValue(v Value) string {
	if obj := v.Object(); obj != nil {
		return dumpConfig.Sdump(obj)
	}
	return fmt.Sprintf("immediate %s\n", v.Inspect())
}

// WriteHeapStats renders the heap's size-class table.
func (gl *GlobalEnv) WriteHeapStats(w io.Writer) {
	gl.heap.WriteStats(w)
}

// DumpAncestors lists a module's linearization, the order dispatch
// consults.
func DumpAncestors(w io.Writer, mod *Object) {
	for i, m := range linearization(mod) {
		fmt.Fprintf(w, "%2d. %s\n", i, m.ModuleName())
	}
}
