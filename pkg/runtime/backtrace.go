package runtime

import "fmt"

// Backtrace is the call-frame trace captured when an exception is
// first raised. Items are ordered innermost first and formatted
// "file:line:in 'name'"; the trace reflects methods and blocks, not
// dispatcher internals.
type Backtrace struct {
	Items []string
}

// buildBacktrace walks the caller chain from the raise site outward.
func buildBacktrace(e *Env) *Backtrace {
	bt := &Backtrace{}
	for env := e; env != nil; env = env.caller {
		bt.Items = append(bt.Items, fmt.Sprintf("%s:%d:in '%s'", env.file, env.line, env.locationName()))
	}
	return bt
}
