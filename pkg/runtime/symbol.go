package runtime

// symbolData is the payload of an interned symbol.
type symbolData struct {
	name string
}

// Intern returns the unique symbol object for name, allocating it on
// first use. Symbols are permanent: the collector never reclaims them,
// which is what makes them safe as identity keys in method tables,
// instance-variable maps, and constant tables.
func (gl *GlobalEnv) Intern(name string) *Object {
	if sym, ok := gl.symbols[name]; ok {
		return sym
	}
	sym := gl.allocateObject(gl.SymbolClass, TypeSymbol)
	sym.data = &symbolData{name: name}
	sym.SetPermanent()
	gl.symbols[name] = sym
	return sym
}

// SymbolName returns the string a symbol was interned from.
func (o *Object) SymbolName() string { return o.symbol().name }

// Symbol is the Value form of Intern.
func (gl *GlobalEnv) Symbol(name string) Value { return ObjectValue(gl.Intern(name)) }
