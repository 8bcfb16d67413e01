package compiler

import (
	"fmt"
	"strings"

	"evsc/pkg/ident"
)

// ScriptUsage records how much frame space one compiled script claimed,
// for usage reporting.
type ScriptUsage struct {
	Name  string
	Bytes int
}

// CodeGen lowers a parsed program to assembler text. Top-level
// declarations process strictly in source order, so a script can only use
// environments and types declared before it.
type CodeGen struct {
	idents *ident.Interner
	types  *TypeTable
	envs   *EnvTable
	rep    *Reporter
	out    strings.Builder
	file   string
	usage  []ScriptUsage
}

// Compile lowers roots and returns the generated assembler source plus
// per-script frame usage. The first error aborts compilation; warnings
// accumulate on the Reporter without interrupting it.
func Compile(roots []Root, in *ident.Interner, rep *Reporter) (string, []ScriptUsage, error) {
	g := &CodeGen{
		idents: in,
		types:  NewTypeTable(in),
		envs:   NewEnvTable(in),
		rep:    rep,
	}

	// The built-in environment's opcode ids head the output so that a
	// script running directly in `std` assembles without any declarations.
	std, err := g.envs.Lookup(in.Intern("std"), Span{})
	if err != nil {
		panic("std environment missing from a fresh table")
	}
	std.writeDefs(&g.out)

	for _, root := range roots {
		g.file = root.SourceFile()
		if err := g.compileRoot(root); err != nil {
			if d, ok := err.(*Diagnostic); ok && d.File == "" {
				d.File = g.file
			}
			return "", nil, err
		}
	}
	return g.out.String(), g.usage, nil
}

func (g *CodeGen) compileRoot(root Root) error {
	switch r := root.(type) {
	case *EnvDecl:
		env, err := g.envs.Build(r, g.rep)
		if err != nil {
			return err
		}
		env.writeDefs(&g.out)
		return nil
	case *ScriptDecl:
		return g.compileScript(r)
	case *RawAsm:
		g.out.WriteString(r.Contents)
		g.out.WriteByte('\n')
		return nil
	case *IncludeDecl:
		return errorf(r.Span, "Include of %q was not expanded before compilation", r.Path)
	case *TypedefDecl:
		return g.types.DefineAlias(r.Name, r.Target, r.Span)
	case *StructDecl:
		return g.types.DefineStruct(r.Name, r.Span)
	}
	panic(fmt.Sprintf("unknown root node %T", root))
}

func (g *CodeGen) compileScript(s *ScriptDecl) error {
	env, err := g.envs.Lookup(s.Env, s.Span)
	if err != nil {
		return err
	}
	frame := NewFrame()
	name := g.idents.Resolve(s.Name)

	fmt.Fprintf(&g.out, "\nsection \"%s evscript fn\", romx\n%s::\n", name, name)
	for _, stmt := range s.Body {
		if err := g.compileStatement(stmt, env, frame); err != nil {
			return err
		}
	}
	g.out.WriteString("\tdb 0\n")

	used := frame.HighWater()
	g.usage = append(g.usage, ScriptUsage{Name: name, Bytes: used})
	if env.PoolSet && used > int(env.Pool) {
		g.rep.Warnf(g.file, s.Span, "Script %s uses %d bytes of variable space but environment %s reserves only %d",
			name, used, g.idents.Resolve(env.Name), env.Pool)
	}
	return nil
}

func (g *CodeGen) compileStatement(stmt Statement, env *Environment, frame *Frame) error {
	switch st := stmt.(type) {
	case *ExprStatement:
		// The result slot, if any, is simply abandoned; frame space is
		// never released within a script.
		_, _, err := g.lowerOp(&st.Expr, st.Expr.Result(), env, frame)
		return err

	case *VarDecl:
		if st.Pointer {
			return errorf(st.Span, "Pointer types are not yet supported")
		}
		typ, err := g.types.Lookup(st.Type, st.Span)
		if err != nil {
			return err
		}
		addr, err := frame.Alloc(typ, st.Span)
		if err != nil {
			return err
		}
		frame.Bind(addr, st.Name)
		if st.Init != nil {
			// Deliberately an ordinary assignment onto the fresh variable,
			// so assignment's "destination must exist" rule holds everywhere.
			_, err = g.compileSet(st.Name, st.Init, env, frame, st.Span)
		}
		return err

	case *Assignment:
		_, err := g.compileSet(st.Name, &st.Value, env, frame, st.Span)
		return err

	case *IfStmt:
		return errorf(st.Span, "If statements are not yet supported")
	case *WhileStmt:
		return errorf(st.Span, "While statements are not yet supported")
	case *DoWhileStmt:
		return errorf(st.Span, "Do-while statements are not yet supported")
	case *ForStmt:
		return errorf(st.Span, "For statements are not yet supported")
	case *RepeatStmt:
		return errorf(st.Span, "Repeat statements are not yet supported")
	case *LoopStmt:
		return errorf(st.Span, "Loop statements are not yet supported")
	}
	panic(fmt.Sprintf("unknown statement node %T", stmt))
}

// compileSet lowers `name = value`. The destination must already exist;
// declarations go through VarDecl, never through assignment.
func (g *CodeGen) compileSet(name ident.Ident, value *Expr, env *Environment, frame *Frame, span Span) (uint8, error) {
	dest, ok := frame.Lookup(name)
	if !ok {
		return 0, errorf(span, "Variable %s does not exist", g.idents.Resolve(name))
	}
	destType := frame.TypeOf(dest)

	src, hasVal, err := g.lowerOp(value, value.Result(), env, frame)
	if err != nil {
		return 0, err
	}
	if !hasVal {
		return 0, errorf(span, "Expression has no return value")
	}

	qual, err := env.Expand(g.idents.Intern("mov_"+destType.String()), span)
	if err != nil {
		return 0, err
	}
	fmt.Fprintf(&g.out, "\tdb %s, %d, %d\n", qual, dest, src)
	return dest, nil
}

// lowerOp compiles the op at ref, emitting instructions and returning the
// frame address of the result. Value-less expressions (calls without a
// Return slot) report hasVal false.
func (g *CodeGen) lowerOp(e *Expr, ref OpRef, env *Environment, frame *Frame) (addr uint8, hasVal bool, err error) {
	op := e.Op(ref)
	switch op.Kind {
	case OpNumber:
		// Bare constants default to the narrowest unsigned type.
		t := Type{Signed: false, Size: 1}
		slot, err := frame.Alloc(t, op.Span)
		if err != nil {
			return 0, false, err
		}
		qual, err := env.Expand(g.idents.Intern("put_"+t.String()), op.Span)
		if err != nil {
			return 0, false, err
		}
		fmt.Fprintf(&g.out, "\tdb %s, %d, %d\n", qual, slot, op.Num)
		return slot, true, nil

	case OpString:
		return 0, false, errorf(op.Span, "String literals are not yet supported")

	case OpVariable:
		slot, ok := frame.Lookup(op.Name)
		if !ok {
			return 0, false, errorf(op.Span, "Variable %s does not exist", g.idents.Resolve(op.Name))
		}
		return slot, true, nil

	case OpAddress:
		return 0, false, errorf(op.Span, "Address-of is not yet supported")

	case OpDeref:
		return 0, false, errorf(op.Span, "Dereferencing is not yet supported")

	case OpNeg:
		// Lowered as `0 - x`; the instruction set has no unary negate.
		operand, err := g.lowerOperand(e, op.L, env, frame)
		if err != nil {
			return 0, false, err
		}
		t := frame.TypeOf(operand)
		zero, err := frame.Alloc(t, op.Span)
		if err != nil {
			return 0, false, err
		}
		result, err := frame.Alloc(t, op.Span)
		if err != nil {
			return 0, false, err
		}
		put, err := env.Expand(g.idents.Intern("put_"+t.String()), op.Span)
		if err != nil {
			return 0, false, err
		}
		sub, err := env.Expand(g.idents.Intern("sub_"+t.String()), op.Span)
		if err != nil {
			return 0, false, err
		}
		fmt.Fprintf(&g.out, "\tdb %s, %d, 0\n", put, zero)
		fmt.Fprintf(&g.out, "\tdb %s, %d, %d, %d\n", sub, result, zero, operand)
		return result, true, nil

	case OpCpl:
		// Lowered as `x ^ $FF`, for the same reason as negate.
		operand, err := g.lowerOperand(e, op.L, env, frame)
		if err != nil {
			return 0, false, err
		}
		t := frame.TypeOf(operand)
		ff, err := frame.Alloc(t, op.Span)
		if err != nil {
			return 0, false, err
		}
		result, err := frame.Alloc(t, op.Span)
		if err != nil {
			return 0, false, err
		}
		put, err := env.Expand(g.idents.Intern("put_"+t.String()), op.Span)
		if err != nil {
			return 0, false, err
		}
		xor, err := env.Expand(g.idents.Intern("bxor_"+t.String()), op.Span)
		if err != nil {
			return 0, false, err
		}
		fmt.Fprintf(&g.out, "\tdb %s, %d, $FF\n", put, ff)
		fmt.Fprintf(&g.out, "\tdb %s, %d, %d, %d\n", xor, result, operand, ff)
		return result, true, nil

	case OpCall:
		return g.lowerCall(e, op, env, frame)
	}

	// Everything else is a binary operator: left fully, then right, then
	// a fresh slot of the promoted type.
	l, err := g.lowerOperand(e, op.L, env, frame)
	if err != nil {
		return 0, false, err
	}
	r, err := g.lowerOperand(e, op.R, env, frame)
	if err != nil {
		return 0, false, err
	}
	t := Promote(frame.TypeOf(l), frame.TypeOf(r))
	result, err := frame.Alloc(t, op.Span)
	if err != nil {
		return 0, false, err
	}
	qual, err := env.Expand(g.idents.Intern(opMnemonic(op.Kind)+"_"+t.String()), op.Span)
	if err != nil {
		return 0, false, err
	}
	fmt.Fprintf(&g.out, "\tdb %s, %d, %d, %d\n", qual, result, l, r)
	return result, true, nil
}

// lowerOperand lowers an op that must produce a value.
func (g *CodeGen) lowerOperand(e *Expr, ref OpRef, env *Environment, frame *Frame) (uint8, error) {
	slot, hasVal, err := g.lowerOp(e, ref, env, frame)
	if err != nil {
		return 0, err
	}
	if !hasVal {
		return 0, errorf(e.Op(ref).Span, "Expression has no return value")
	}
	return slot, nil
}

func (g *CodeGen) lowerCall(e *Expr, op *Op, env *Environment, frame *Frame) (uint8, bool, error) {
	def, err := env.Lookup(op.Name, op.Span)
	if err != nil {
		return 0, false, err
	}

	arity := def.valueArity()
	if len(op.Args) > arity && !(def.Kind == DefMacro && def.Varargs) {
		return 0, false, errorf(op.Span, "Too many arguments")
	}
	if len(op.Args) < arity {
		return 0, false, errorf(op.Span, "Not enough arguments")
	}

	// The Return slot is allocated before any argument is lowered, so
	// arguments may not accidentally reuse it.
	var retAddr uint8
	hasRet := false
	for _, p := range def.Params {
		if !p.Return {
			continue
		}
		if hasRet {
			return 0, false, errorf(p.Span, "A function may only have one return value")
		}
		t, err := g.types.Lookup(p.Type, p.Span)
		if err != nil {
			return 0, false, err
		}
		retAddr, err = frame.Alloc(t, op.Span)
		if err != nil {
			return 0, false, err
		}
		hasRet = true
	}

	// Lower the supplied arguments against the formal list, slotting the
	// Return address at its declared position.
	argSlots := make([]uint8, 0, len(def.Params))
	next := 0
	for _, p := range def.Params {
		if p.Return {
			argSlots = append(argSlots, retAddr)
			continue
		}
		argRef := op.Args[next]
		next++
		slot, err := g.lowerOperand(e, argRef, env, frame)
		if err != nil {
			return 0, false, err
		}
		declared, err := g.types.Lookup(p.Type, p.Span)
		if err != nil {
			return 0, false, err
		}
		if declared != frame.TypeOf(slot) {
			g.rep.Warnf(g.file, e.Op(argRef).Span, "argument type does not match definition")
		}
		argSlots = append(argSlots, slot)
	}

	switch def.Kind {
	case DefSimple:
		qual, err := env.Expand(op.Name, op.Span)
		if err != nil {
			return 0, false, err
		}
		fmt.Fprintf(&g.out, "\tdb %s", qual)
		for _, slot := range argSlots {
			fmt.Fprintf(&g.out, ", %d", slot)
		}
		g.out.WriteByte('\n')
		return retAddr, hasRet, nil

	case DefAlias:
		// Substitute the target's argument list: placeholders index the
		// just-lowered local slots, fixed expressions lower on their own.
		qual, err := env.Expand(def.Target, op.Span)
		if err != nil {
			return 0, false, err
		}
		targetSlots := make([]uint8, 0, len(def.TargetArgs))
		for _, ta := range def.TargetArgs {
			if ta.Expr != nil {
				slot, err := g.lowerOperand(ta.Expr, ta.Expr.Result(), env, frame)
				if err != nil {
					return 0, false, err
				}
				targetSlots = append(targetSlots, slot)
				continue
			}
			if ta.Placeholder > len(argSlots) {
				return 0, false, errorf(ta.Span, "Argument ID is too large (%d)", ta.Placeholder)
			}
			targetSlots = append(targetSlots, argSlots[ta.Placeholder-1])
		}
		fmt.Fprintf(&g.out, "\tdb %s", qual)
		for _, slot := range targetSlots {
			fmt.Fprintf(&g.out, ", %d", slot)
		}
		g.out.WriteByte('\n')
		return retAddr, hasRet, nil

	case DefMacro:
		// Varargs past the formal list lower without a declared type to
		// check against.
		for ; next < len(op.Args); next++ {
			slot, err := g.lowerOperand(e, op.Args[next], env, frame)
			if err != nil {
				return 0, false, err
			}
			argSlots = append(argSlots, slot)
		}
		fmt.Fprintf(&g.out, "\t%s", def.MacroText)
		for _, slot := range argSlots {
			fmt.Fprintf(&g.out, " %d,", slot)
		}
		g.out.WriteByte('\n')
		return retAddr, hasRet, nil
	}
	panic("unknown definition kind")
}
