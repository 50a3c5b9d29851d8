package runtime

// Encoding is an opaque reference to a character encoding. Encoding
// conversion itself is a collaborator; the core only tags strings.
type Encoding struct {
	Name string
}

// The encodings the core itself needs to tag strings with.
var (
	EncodingUTF8  = &Encoding{Name: "UTF-8"}
	EncodingASCII = &Encoding{Name: "US-ASCII"}
)

// stringData is the payload of a String: raw bytes plus an encoding
// reference.
type stringData struct {
	bytes []byte
	enc   *Encoding
}

// NewString allocates a String object with UTF-8 encoding.
func NewString(e *Env, s string) Value {
	return ObjectValue(e.Global().allocateString([]byte(s), EncodingUTF8))
}

// StringContents returns the raw bytes of a String object.
func (o *Object) StringContents() []byte { return o.str().bytes }

// StringEncoding returns the string's encoding reference.
func (o *Object) StringEncoding() *Encoding { return o.str().enc }

// StringAppend implements <<, the canonical mutating operation: frozen
// strings reject it with FrozenError and are left unchanged.
func StringAppend(e *Env, s Value, other Value) Value {
	obj := s.Object()
	obj.assertNotFrozen(e)
	d := obj.str()
	switch {
	case other.IsPointer() && other.Object().typ == TypeString:
		d.bytes = append(d.bytes, other.Object().str().bytes...)
	case other.IsInt():
		d.bytes = append(d.bytes, byte(other.Int64()))
	default:
		e.Raise("TypeError", "no implicit conversion of %s into String", TypeName(e, other))
	}
	return s
}

// StringEql reports content-and-encoding equality.
func StringEql(a, b Value) bool {
	ao, bo := a.Object(), b.Object()
	if ao == nil || bo == nil || ao.typ != TypeString || bo.typ != TypeString {
		return false
	}
	return string(ao.str().bytes) == string(bo.str().bytes) && ao.str().enc == bo.str().enc
}

func stringHash(v Value) uint64 {
	h := fnvOffset
	for _, b := range v.Object().str().bytes {
		h = fnvMix(h, uint64(b))
	}
	return h
}

// TypeName names a value's class for error messages, tolerating the
// pre-bootstrap window where classes may be absent.
func TypeName(e *Env, v Value) string {
	if c := v.Class(e.Global()); c != nil {
		return c.ModuleName()
	}
	return v.Type().String()
}
