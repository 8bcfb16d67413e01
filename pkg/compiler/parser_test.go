package compiler

import (
	"strings"
	"testing"

	"evsc/pkg/ident"
)

func parseSrc(t *testing.T, src string) ([]Root, *ident.Interner) {
	t.Helper()
	in := ident.NewInterner()
	tokens, err := Lex(src)
	if err != nil {
		t.Fatalf("Lex failed: %v", err)
	}
	roots, err := Parse(tokens, "test.evs", in)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return roots, in
}

func TestParse_EnvDecl(t *testing.T) {
	roots, in := parseSrc(t, `
		env game {
			use std;
			def wait(u8 frames);
			def rand(return u8);
			def delay(u8 n) = alias wait(@1, 0);
			def print(u8 n, ...) = macro PrintThing;
			pool = 16;
		}
	`)
	if len(roots) != 1 {
		t.Fatalf("Expected 1 root, got %d", len(roots))
	}
	env, ok := roots[0].(*EnvDecl)
	if !ok {
		t.Fatalf("Expected an EnvDecl, got %T", roots[0])
	}
	if env.Name != in.Intern("game") {
		t.Errorf("Expected environment name 'game'")
	}
	if len(env.Body) != 6 {
		t.Fatalf("Expected 6 environment statements, got %d", len(env.Body))
	}

	use := env.Body[0].(*UseStmt)
	if use.Target != in.Intern("std") {
		t.Errorf("Expected use target 'std'")
	}

	wait := env.Body[1].(*DefStmt)
	if wait.Kind != DefSimple || len(wait.Params) != 1 || wait.Params[0].Return {
		t.Errorf("Unexpected shape for def wait: %+v", wait)
	}

	rand := env.Body[2].(*DefStmt)
	if len(rand.Params) != 1 || !rand.Params[0].Return {
		t.Errorf("Expected def rand to have a single return parameter")
	}

	delay := env.Body[3].(*DefStmt)
	if delay.Kind != DefAlias || delay.Target != in.Intern("wait") {
		t.Errorf("Unexpected shape for def delay: %+v", delay)
	}
	if len(delay.TargetArgs) != 2 {
		t.Fatalf("Expected 2 alias arguments, got %d", len(delay.TargetArgs))
	}
	if delay.TargetArgs[0].Placeholder != 1 || delay.TargetArgs[0].Expr != nil {
		t.Errorf("Expected first alias argument to be placeholder @1")
	}
	if delay.TargetArgs[1].Expr == nil {
		t.Errorf("Expected second alias argument to be an expression")
	}

	print := env.Body[4].(*DefStmt)
	if print.Kind != DefMacro || print.MacroTarget != "PrintThing" || !print.Varargs {
		t.Errorf("Unexpected shape for def print: %+v", print)
	}

	pool := env.Body[5].(*PoolStmt)
	if v, ok := pool.Size.ConstEval(); !ok || v != 16 {
		t.Errorf("Expected pool size to fold to 16")
	}
}

func TestParse_Script(t *testing.T) {
	roots, in := parseSrc(t, `
		game main {
			u8 x;
			u8 y = 5;
			x = y;
			wait(10);
			return;
		}
	`)
	script, ok := roots[0].(*ScriptDecl)
	if !ok {
		t.Fatalf("Expected a ScriptDecl, got %T", roots[0])
	}
	if script.Env != in.Intern("game") || script.Name != in.Intern("main") {
		t.Errorf("Unexpected script header")
	}
	if len(script.Body) != 5 {
		t.Fatalf("Expected 5 statements, got %d", len(script.Body))
	}

	decl := script.Body[0].(*VarDecl)
	if decl.Init != nil || decl.Pointer {
		t.Errorf("Expected a bare declaration")
	}
	init := script.Body[1].(*VarDecl)
	if init.Init == nil {
		t.Fatalf("Expected an initialized declaration")
	}
	if v, ok := init.Init.ConstEval(); !ok || v != 5 {
		t.Errorf("Expected initializer to fold to 5")
	}
	if _, ok := script.Body[2].(*Assignment); !ok {
		t.Errorf("Expected an Assignment, got %T", script.Body[2])
	}
	call := script.Body[3].(*ExprStatement)
	if call.Expr.Op(call.Expr.Result()).Kind != OpCall {
		t.Errorf("Expected a call statement")
	}
	ret := script.Body[4].(*ExprStatement)
	retOp := ret.Expr.Op(ret.Expr.Result())
	if retOp.Kind != OpCall || retOp.Name != in.Intern("return") {
		t.Errorf("Expected `return;` to parse as a call to return")
	}
}

func TestParse_PointerDecl(t *testing.T) {
	roots, _ := parseSrc(t, "game main { u8* p; }")
	script := roots[0].(*ScriptDecl)
	decl := script.Body[0].(*VarDecl)
	if !decl.Pointer {
		t.Errorf("Expected a pointer declaration")
	}
}

func TestParse_ControlFlow(t *testing.T) {
	roots, _ := parseSrc(t, `
		game main {
			if x == 1 { yield(); } else if x == 2 { yield(); } else { return; }
			while x < 10 { x = x + 1; }
			do { yield(); } while x;
			for i = 0; i < 8; i = i + 1 { yield(); }
			repeat 4 { yield(); }
			loop { yield(); }
		}
	`)
	script := roots[0].(*ScriptDecl)
	if len(script.Body) != 6 {
		t.Fatalf("Expected 6 statements, got %d", len(script.Body))
	}
	ifStmt := script.Body[0].(*IfStmt)
	if len(ifStmt.Else) != 1 {
		t.Fatalf("Expected a chained else-if")
	}
	chained := ifStmt.Else[0].(*IfStmt)
	if len(chained.Else) != 1 {
		t.Errorf("Expected the chained if to carry the final else block")
	}
	if _, ok := script.Body[1].(*WhileStmt); !ok {
		t.Errorf("Expected a WhileStmt, got %T", script.Body[1])
	}
	if _, ok := script.Body[2].(*DoWhileStmt); !ok {
		t.Errorf("Expected a DoWhileStmt, got %T", script.Body[2])
	}
	if _, ok := script.Body[3].(*ForStmt); !ok {
		t.Errorf("Expected a ForStmt, got %T", script.Body[3])
	}
	if _, ok := script.Body[4].(*RepeatStmt); !ok {
		t.Errorf("Expected a RepeatStmt, got %T", script.Body[4])
	}
	if _, ok := script.Body[5].(*LoopStmt); !ok {
		t.Errorf("Expected a LoopStmt, got %T", script.Body[5])
	}
}

func TestParse_TopLevelDecls(t *testing.T) {
	roots, in := parseSrc(t, `
		include "lib.evs";
		typedef u8 byte;
		struct actor { u8 x; u8 y; }
		asm "SECTION \"header\", rom0";
	`)
	if len(roots) != 4 {
		t.Fatalf("Expected 4 roots, got %d", len(roots))
	}
	inc := roots[0].(*IncludeDecl)
	if inc.Path != "lib.evs" {
		t.Errorf("Expected include path 'lib.evs', got %q", inc.Path)
	}
	td := roots[1].(*TypedefDecl)
	if td.Target != in.Intern("u8") || td.Name != in.Intern("byte") {
		t.Errorf("Unexpected typedef shape")
	}
	st := roots[2].(*StructDecl)
	if len(st.Members) != 2 {
		t.Errorf("Expected 2 struct members, got %d", len(st.Members))
	}
	raw := roots[3].(*RawAsm)
	if raw.Contents != `SECTION "header", rom0` {
		t.Errorf("Unexpected raw asm contents: %q", raw.Contents)
	}
}

func TestParse_ConstantFolding(t *testing.T) {
	tests := []struct {
		src  string
		want int64
	}{
		{"3 + 4", 7},
		{"2 * (3 + 4)", 14},
		{"-5", -5},
		{"~0", -1},
		{"10 % 3", 1},
		{"1 << 4", 16},
		{"$f0 | $0f", 255},
		{"3 < 4", 1},
		{"1 && 0", 0},
	}
	for _, tt := range tests {
		roots, _ := parseSrc(t, "game main { u8 x = "+tt.src+"; }")
		decl := roots[0].(*ScriptDecl).Body[0].(*VarDecl)
		v, ok := decl.Init.ConstEval()
		if !ok {
			t.Errorf("Expected %q to fold to a constant", tt.src)
			continue
		}
		if v != tt.want {
			t.Errorf("Expected %q to fold to %d, got %d", tt.src, tt.want, v)
		}
	}
}

func TestParse_RightNestedOperandKeepsBackwardRefs(t *testing.T) {
	// a + b * c: the product's arena is spliced after a, so its refs must be
	// rebased to point at b and c in the combined arena.
	roots, in := parseSrc(t, "game main { x = a + b * c; }")
	e := &roots[0].(*ScriptDecl).Body[0].(*Assignment).Value
	want := []struct {
		kind OpKind
		name string
		l, r OpRef
	}{
		{kind: OpVariable, name: "a"},
		{kind: OpVariable, name: "b"},
		{kind: OpVariable, name: "c"},
		{kind: OpMul, l: 1, r: 2},
		{kind: OpAdd, l: 0, r: 3},
	}
	if e.Result() != OpRef(len(want)-1) {
		t.Fatalf("Expected %d ops, got %d", len(want), e.Result()+1)
	}
	for i, w := range want {
		op := e.Op(OpRef(i))
		if op.Kind != w.kind {
			t.Errorf("op %d: expected kind %v, got %v", i, w.kind, op.Kind)
			continue
		}
		if w.kind == OpVariable {
			if got := in.Resolve(op.Name); got != w.name {
				t.Errorf("op %d: expected variable %s, got %s", i, w.name, got)
			}
			continue
		}
		if op.L != w.l || op.R != w.r {
			t.Errorf("op %d: expected refs (%d, %d), got (%d, %d)", i, w.l, w.r, op.L, op.R)
		}
	}
}

func TestParse_CompoundCallArgumentKeepsBackwardRefs(t *testing.T) {
	roots, _ := parseSrc(t, "game main { f(a + b, c); }")
	e := &roots[0].(*ScriptDecl).Body[0].(*ExprStatement).Expr
	call := e.Op(e.Result())
	if call.Kind != OpCall {
		t.Fatalf("Expected the result op to be OpCall, got %v", call.Kind)
	}
	if len(call.Args) != 2 || call.Args[0] != 2 || call.Args[1] != 3 {
		t.Fatalf("Expected call args at refs [2 3], got %v", call.Args)
	}
	sum := e.Op(call.Args[0])
	if sum.Kind != OpAdd || sum.L != 0 || sum.R != 1 {
		t.Errorf("Expected the first argument to be OpAdd over refs (0, 1), got %v over (%d, %d)", sum.Kind, sum.L, sum.R)
	}
}

func TestParse_FoldingStopsAtVariables(t *testing.T) {
	roots, _ := parseSrc(t, "game main { u8 x = a + 4; }")
	decl := roots[0].(*ScriptDecl).Body[0].(*VarDecl)
	if _, ok := decl.Init.ConstEval(); ok {
		t.Errorf("Expected a + 4 not to fold")
	}
	if got := decl.Init.Op(decl.Init.Result()).Kind; got != OpAdd {
		t.Errorf("Expected the result op to be OpAdd, got %v", got)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"missing semicolon", "game main { u8 x }", "expected ';'"},
		{"zero placeholder", "env e { def f(u8 a) = alias g(@0); }", "placeholder indices start at 1"},
		{"stray token", "} game main { }", "expected a declaration"},
		{"division by zero", "game main { u8 x = 1 / 0; }", "Division by zero"},
		{"bad env statement", "env e { u8 x; }", "expected 'def', 'use', or 'pool'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := ident.NewInterner()
			tokens, err := Lex(tt.src)
			if err != nil {
				t.Fatalf("Lex failed: %v", err)
			}
			_, err = Parse(tokens, "test.evs", in)
			if err == nil {
				t.Fatalf("Expected Parse(%q) to fail", tt.src)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error to mention %q, got %q", tt.want, err)
			}
		})
	}
}
