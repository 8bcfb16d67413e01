package compiler

import (
	"fmt"
	"io"

	"evsc/pkg/ident"
)

// Definition is one environment entry. Kind selects which fields are
// meaningful: Direct definitions own an Opcode, aliases carry a Target and
// its substitution list, macros carry literal target text.
type Definition struct {
	Kind       DefKind
	Params     []DefParam
	Opcode     uint8
	Target     ident.Ident
	TargetArgs []AliasArg
	MacroText  string
	Varargs    bool
}

// valueArity counts the formal value parameters, excluding the Return slot.
func (d *Definition) valueArity() int {
	n := 0
	for _, p := range d.Params {
		if !p.Return {
			n++
		}
	}
	return n
}

// Environment is a named opcode namespace: a definition table plus an
// optional scratch-pool size. Once built it is only read, or copied
// wholesale into another environment via `use`.
type Environment struct {
	Name    ident.Ident
	defs    map[ident.Ident]*Definition
	order   []ident.Ident // insertion order, for deterministic output
	counter int           // next Direct opcode id
	Pool    uint16
	PoolSet bool
	idents  *ident.Interner
}

func newEnvironment(name ident.Ident, in *ident.Interner) *Environment {
	return &Environment{
		Name:   name,
		defs:   make(map[ident.Ident]*Definition),
		idents: in,
	}
}

// Lookup resolves a definition by name.
func (e *Environment) Lookup(name ident.Ident, span Span) (*Definition, error) {
	def, ok := e.defs[name]
	if !ok {
		return nil, errorf(span, "Definition of %s not found", e.idents.Resolve(name))
	}
	return def, nil
}

// Expand resolves a definition down to its owning Direct definition and
// returns the qualified opcode name, "<environment>@<name>". Alias chains
// are followed; reaching a macro is an error because macros own no opcode.
func (e *Environment) Expand(name ident.Ident, span Span) (string, error) {
	cur := name
	for depth := 0; depth < 256; depth++ {
		def, ok := e.defs[cur]
		if !ok {
			return "", errorf(span, "Definition of %s not found", e.idents.Resolve(cur))
		}
		switch def.Kind {
		case DefSimple:
			return fmt.Sprintf("%s@%s", e.idents.Resolve(e.Name), e.idents.Resolve(cur)), nil
		case DefAlias:
			cur = def.Target
		case DefMacro:
			return "", errorf(span, "%s may not be a macro", e.idents.Resolve(cur))
		}
	}
	return "", errorf(span, "Definition of %s recurses too deeply", e.idents.Resolve(name))
}

// define inserts a local definition. A Direct id clash or a name clash with
// any existing definition, merged or local, is an error.
func (e *Environment) define(name ident.Ident, def *Definition, span Span) error {
	if def.Kind == DefSimple {
		for _, otherName := range e.order {
			other := e.defs[otherName]
			if other.Kind == DefSimple && other.Opcode == def.Opcode {
				return errorf(span, "Function %s tries to have the same ID (%d) as %s",
					e.idents.Resolve(name), def.Opcode, e.idents.Resolve(otherName))
			}
		}
	}
	if _, exists := e.defs[name]; exists {
		return errorf(span, "Redefinition of function %s", e.idents.Resolve(name))
	}
	e.defs[name] = def
	e.order = append(e.order, name)
	return nil
}

// merge copies every definition of src into e. Direct opcode ids are
// rebased by e's current counter so the merged block keeps its internal id
// structure; the counter then advances past the merged block. Name
// collisions are non-fatal: the incoming definition wins and a warning is
// logged.
func (e *Environment) merge(src *Environment, span Span, file string, rep *Reporter) error {
	base := e.counter
	maxID := e.counter - 1
	for _, name := range src.order {
		def := src.defs[name]
		copied := *def
		if def.Kind == DefSimple {
			id := base + int(def.Opcode)
			if id > 255 {
				return errorf(span, "Hit bytecode limit in environment %s", e.idents.Resolve(e.Name))
			}
			copied.Opcode = uint8(id)
			if id > maxID {
				maxID = id
			}
		}
		if _, exists := e.defs[name]; exists {
			rep.Warnf(file, span, "duplicate definition of %s inside `use` statement", e.idents.Resolve(name))
		} else {
			e.order = append(e.order, name)
		}
		e.defs[name] = &copied
	}
	e.counter = maxID + 1
	return nil
}

// writeDefs emits one `def <env>@<name> equ <id>` line per Direct
// definition, in insertion order.
func (e *Environment) writeDefs(w io.Writer) {
	envName := e.idents.Resolve(e.Name)
	for _, name := range e.order {
		def := e.defs[name]
		if def.Kind != DefSimple {
			continue
		}
		fmt.Fprintf(w, "def %s@%s equ %d\n", envName, e.idents.Resolve(name), def.Opcode)
	}
}

// EnvTable holds every environment declared so far, including the built-in
// standard environment.
type EnvTable struct {
	envs   map[ident.Ident]*Environment
	idents *ident.Interner
}

func NewEnvTable(in *ident.Interner) *EnvTable {
	t := &EnvTable{envs: make(map[ident.Ident]*Environment), idents: in}
	std := StdEnvironment(in)
	t.envs[std.Name] = std
	return t
}

// Lookup resolves an environment by name.
func (t *EnvTable) Lookup(name ident.Ident, span Span) (*Environment, error) {
	env, ok := t.envs[name]
	if !ok {
		return nil, errorf(span, "Environment %s does not exist", t.idents.Resolve(name))
	}
	return env, nil
}

// Build processes one environment declaration and registers the result.
func (t *EnvTable) Build(decl *EnvDecl, rep *Reporter) (*Environment, error) {
	if _, exists := t.envs[decl.Name]; exists {
		return nil, errorf(decl.Span, "Redefinition of environment %s", t.idents.Resolve(decl.Name))
	}
	env := newEnvironment(decl.Name, t.idents)

	for _, stmt := range decl.Body {
		switch s := stmt.(type) {
		case *DefStmt:
			def := &Definition{
				Kind:       s.Kind,
				Params:     s.Params,
				Target:     s.Target,
				TargetArgs: s.TargetArgs,
				MacroText:  s.MacroTarget,
				Varargs:    s.Varargs,
			}
			if err := checkParams(s.Params); err != nil {
				return nil, err
			}
			if s.Kind == DefSimple {
				if env.counter > 255 {
					return nil, errorf(s.Span, "Hit bytecode limit in environment %s", t.idents.Resolve(decl.Name))
				}
				def.Opcode = uint8(env.counter)
				env.counter++
			}
			if err := env.define(s.Name, def, s.Span); err != nil {
				return nil, err
			}

		case *UseStmt:
			src, err := t.Lookup(s.Target, s.Span)
			if err != nil {
				return nil, err
			}
			if err := env.merge(src, s.Span, decl.File, rep); err != nil {
				return nil, err
			}

		case *PoolStmt:
			size, ok := s.Size.ConstEval()
			if !ok {
				return nil, errorf(s.Span, "This pool size is not computable at compile time!")
			}
			const maxPool = 65534
			if size > maxPool {
				return nil, errorf(s.Span, "A pool size of %d is larger than the maximum of %d", size, maxPool)
			}
			if size < 0 {
				return nil, errorf(s.Span, "A pool size cannot be negative")
			}
			if env.PoolSet {
				return nil, errorf(s.Span, "Redefinition of the pool size")
			}
			env.Pool = uint16(size)
			env.PoolSet = true
		}
	}

	t.envs[decl.Name] = env
	return env, nil
}

// checkParams enforces the single-Return rule on a formal parameter list.
func checkParams(params []DefParam) error {
	seen := false
	for _, p := range params {
		if !p.Return {
			continue
		}
		if seen {
			return errorf(p.Span, "A function may only have one return value")
		}
		seen = true
	}
	return nil
}

// stdOps lists the built-in environment's Direct definitions in opcode
// order. Each unsigned mnemonic has a signed twin at the same id; the VM
// encoding does not distinguish them.
var stdOps = []struct {
	name  string
	arity int // value params; -1 marks (dest, imm) ops not directly callable
}{
	{"return", 0},
	{"yield", 0},
	{"put", -1},
	{"mov", 2},
	{"add", 3},
	{"sub", 3},
	{"mul", 3},
	{"div", 3},
	{"mod", 3},
	{"shl", 3},
	{"shr", 3},
	{"band", 3},
	{"bxor", 3},
	{"bor", 3},
	{"equ", 3},
	{"nequ", 3},
	{"lt", 3},
	{"gt", 3},
	{"lte", 3},
	{"gte", 3},
	{"land", 3},
	{"lor", 3},
}

// StdEnvironment builds the read-only built-in environment, "std". Scripts
// reach it through `use std;`; its ids 0..21 are the VM's base instruction
// set.
func StdEnvironment(in *ident.Interner) *Environment {
	env := newEnvironment(in.Intern("std"), in)
	u8 := in.Intern("u8")
	i8 := in.Intern("i8")

	params := func(typ ident.Ident, n int) []DefParam {
		// put's second operand is an immediate, not a slot, so it gets no
		// formals at all: a direct call arity-errors instead of emitting an
		// instruction whose operand means something else at runtime.
		if n < 0 {
			return nil
		}
		ps := make([]DefParam, n)
		for i := range ps {
			ps[i] = DefParam{Type: typ}
		}
		return ps
	}

	for id, op := range stdOps {
		if op.arity == 0 {
			def := &Definition{Kind: DefSimple, Opcode: uint8(id)}
			env.defs[in.Intern(op.name)] = def
			env.order = append(env.order, in.Intern(op.name))
			continue
		}
		uname := in.Intern(op.name + "_u8")
		iname := in.Intern(op.name + "_i8")
		env.defs[uname] = &Definition{Kind: DefSimple, Opcode: uint8(id), Params: params(u8, op.arity)}
		env.defs[iname] = &Definition{Kind: DefSimple, Opcode: uint8(id), Params: params(i8, op.arity)}
		env.order = append(env.order, uname, iname)
	}
	env.counter = len(stdOps)
	return env
}
