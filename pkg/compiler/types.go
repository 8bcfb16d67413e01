package compiler

import (
	"fmt"

	"evsc/pkg/ident"
)

// Type describes a value's runtime representation: signedness plus width in
// bytes. Types are compared by value; two names bound to the same Type are
// interchangeable.
type Type struct {
	Signed bool
	Size   uint8
}

// String renders the canonical spelling, "u8", "i16", and so on.
func (t Type) String() string {
	sign := "u"
	if t.Signed {
		sign = "i"
	}
	return fmt.Sprintf("%s%d", sign, int(t.Size)*8)
}

// Promote yields the type of a binary operation's result: signed if either
// operand is signed, as wide as the wider operand.
func Promote(l, r Type) Type {
	size := l.Size
	if r.Size > size {
		size = r.Size
	}
	return Type{Signed: l.Signed || r.Signed, Size: size}
}

// TypeTable maps type names to their representations. Typedefs are pure
// aliases; they resolve to the same Type value as their target.
type TypeTable struct {
	types   map[ident.Ident]Type
	structs map[ident.Ident]bool
	idents  *ident.Interner
}

func NewTypeTable(in *ident.Interner) *TypeTable {
	t := &TypeTable{
		types:   make(map[ident.Ident]Type),
		structs: make(map[ident.Ident]bool),
		idents:  in,
	}
	t.types[in.Intern("u8")] = Type{Signed: false, Size: 1}
	t.types[in.Intern("i8")] = Type{Signed: true, Size: 1}
	t.types[in.Intern("u16")] = Type{Signed: false, Size: 2}
	t.types[in.Intern("i16")] = Type{Signed: true, Size: 2}
	return t
}

// Lookup resolves a type name.
func (t *TypeTable) Lookup(name ident.Ident, span Span) (Type, error) {
	if typ, ok := t.types[name]; ok {
		return typ, nil
	}
	if t.structs[name] {
		return Type{}, errorf(span, "Struct types are not yet supported")
	}
	return Type{}, errorf(span, "Type %s not found", t.idents.Resolve(name))
}

// DefineAlias binds a new name to an existing type.
func (t *TypeTable) DefineAlias(name, target ident.Ident, span Span) error {
	typ, err := t.Lookup(target, span)
	if err != nil {
		return err
	}
	if _, exists := t.types[name]; exists {
		return errorf(span, "Redefinition of type %s", t.idents.Resolve(name))
	}
	t.types[name] = typ
	return nil
}

// DefineStruct records a struct's name. Struct values cannot be used yet;
// the name is reserved so lookups report a useful error.
func (t *TypeTable) DefineStruct(name ident.Ident, span Span) error {
	if _, exists := t.types[name]; exists || t.structs[name] {
		return errorf(span, "Redefinition of type %s", t.idents.Resolve(name))
	}
	t.structs[name] = true
	return nil
}
