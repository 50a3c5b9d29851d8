package runtime

import "regexp"

// regexpData is the payload of a Regexp: the source pattern and its
// compiled form. The pattern language itself is a collaborator; the
// core only stores and matches.
type regexpData struct {
	source string
	re     *regexp.Regexp
}

// matchData is the payload of a MatchData: the source string and the
// capture regions from the match that produced it.
type matchData struct {
	source   Value
	captures []int // pairs of byte offsets, -1 for absent groups
}

// NewRegexp compiles and wraps a pattern; a malformed pattern raises
// RegexpError.
func NewRegexp(e *Env, source string) Value {
	re, err := regexp.Compile(source)
	if err != nil {
		e.Raise("RegexpError", "%v", err)
	}
	o := e.Global().allocateObject(e.Global().RegexpClass, TypeRegexp)
	o.data = &regexpData{source: source, re: re}
	return ObjectValue(o)
}

// RegexpSource returns the pattern text.
func (o *Object) RegexpSource() string { return o.regexp().source }

// RegexpMatch matches a String, returning a MatchData or nil. A
// successful match also populates the caller's $~ slot.
func RegexpMatch(e *Env, re Value, str Value) Value {
	gl := e.Global()
	if str.Object() == nil || str.Object().typ != TypeString {
		e.Raise("TypeError", "wrong argument type %s (expected String)", TypeName(e, str))
	}
	loc := re.Object().regexp().re.FindSubmatchIndex(str.Object().StringContents())
	if loc == nil {
		e.SetLastMatch(gl.Nil)
		return gl.Nil
	}
	md := gl.allocateObject(gl.MatchDataClass, TypeMatchData)
	md.data = &matchData{source: str, captures: loc}
	v := ObjectValue(md)
	e.SetLastMatch(v)
	return v
}

// MatchCapture returns the text of capture group n, or nil.
func (o *Object) MatchCapture(e *Env, n int) Value {
	d := o.matchdata()
	if n < 0 || 2*n+1 >= len(d.captures) || d.captures[2*n] < 0 {
		return e.Global().Nil
	}
	src := d.source.Object().StringContents()
	return NewString(e, string(src[d.captures[2*n]:d.captures[2*n+1]]))
}
