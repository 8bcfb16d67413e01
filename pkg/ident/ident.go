// Package ident interns identifier strings to small integer handles.
//
// The rest of the compiler stores and compares identifiers exclusively by
// handle; the strings themselves are only needed again when emitting output
// or diagnostics.
package ident

// Ident is an opaque handle to an interned string. Two Idents are equal
// exactly when the strings they were interned from are equal.
type Ident uint32

// Interner maps strings to Idents and back.
type Interner struct {
	handles map[string]Ident
	strings []string
}

func NewInterner() *Interner {
	return &Interner{handles: make(map[string]Ident)}
}

// Intern returns the handle for s, creating one if s has not been seen before.
func (in *Interner) Intern(s string) Ident {
	if h, ok := in.handles[s]; ok {
		return h
	}
	h := Ident(len(in.strings))
	in.handles[s] = h
	in.strings = append(in.strings, s)
	return h
}

// Resolve returns the string a handle was interned from.
// Resolving a handle that was never returned by Intern is a programming
// error, not a recoverable condition.
func (in *Interner) Resolve(h Ident) string {
	if int(h) >= len(in.strings) {
		panic("ident: resolving unknown handle")
	}
	return in.strings[h]
}

// Lookup returns the handle for s without interning it.
func (in *Interner) Lookup(s string) (Ident, bool) {
	h, ok := in.handles[s]
	return h, ok
}
