package compiler

import (
	"fmt"

	"evsc/pkg/ident"
)

// frameSize is the scratch space available to one compiled script.
const frameSize = 256

type frameVar struct {
	typ   Type
	name  ident.Ident
	named bool
}

// Frame allocates a script's 256-byte scratch space first-fit. Slots are
// never freed; a variable's record sits at its starting address and covers
// typ.Size bytes.
type Frame struct {
	vars      [frameSize]*frameVar
	highWater int
}

func NewFrame() *Frame { return &Frame{} }

// Alloc claims the first free run large enough for t and returns its
// starting address.
func (f *Frame) Alloc(t Type, span Span) (uint8, error) {
	size := int(t.Size)
	addr := 0
	for addr < frameSize {
		if v := f.vars[addr]; v != nil {
			addr += int(v.typ.Size)
			continue
		}
		if addr+size <= frameSize && f.runFree(addr, size) {
			f.vars[addr] = &frameVar{typ: t}
			if addr+size > f.highWater {
				f.highWater = addr + size
			}
			return uint8(addr), nil
		}
		addr++
	}
	return 0, errorf(span, "Out of variable space; a single function is limited to %d bytes", frameSize)
}

func (f *Frame) runFree(addr, size int) bool {
	for i := addr; i < addr+size; i++ {
		if f.vars[i] != nil {
			return false
		}
	}
	return true
}

// Bind names an already-allocated slot, turning an anonymous temporary
// into a variable. The address must start a variable; anything else is a
// compiler bug.
func (f *Frame) Bind(addr uint8, name ident.Ident) {
	v := f.vars[addr]
	if v == nil {
		panic(fmt.Sprintf("no variable starts at frame address %d", addr))
	}
	v.name = name
	v.named = true
}

// Lookup finds the first bound variable with the given name.
func (f *Frame) Lookup(name ident.Ident) (uint8, bool) {
	addr := 0
	for addr < frameSize {
		v := f.vars[addr]
		if v == nil {
			addr++
			continue
		}
		if v.named && v.name == name {
			return uint8(addr), true
		}
		addr += int(v.typ.Size)
	}
	return 0, false
}

// TypeOf returns the type of the variable starting at addr. Panics if addr
// does not start a variable; callers only pass addresses they got from
// Alloc or Lookup.
func (f *Frame) TypeOf(addr uint8) Type {
	v := f.vars[addr]
	if v == nil {
		panic(fmt.Sprintf("no variable starts at frame address %d", addr))
	}
	return v.typ
}

// HighWater reports the number of frame bytes ever claimed, for usage
// reporting against the environment's pool size.
func (f *Frame) HighWater() int { return f.highWater }
