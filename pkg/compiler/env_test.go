package compiler

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"evsc/pkg/ident"
)

// buildEnvSrc parses src and builds every environment it declares, in
// order. Warnings land in the returned buffer.
func buildEnvSrc(t *testing.T, src string) (*EnvTable, *ident.Interner, *bytes.Buffer, error) {
	t.Helper()
	in := ident.NewInterner()
	var warnings bytes.Buffer
	rep := NewReporter(&warnings, in)

	tokens, err := Lex(src)
	if err != nil {
		t.Fatalf("Lex failed: %v", err)
	}
	roots, err := Parse(tokens, "test.evs", in)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	table := NewEnvTable(in)
	for _, root := range roots {
		decl, ok := root.(*EnvDecl)
		if !ok {
			t.Fatalf("Expected only environment declarations, got %T", root)
		}
		if _, err := table.Build(decl, rep); err != nil {
			return table, in, &warnings, err
		}
	}
	return table, in, &warnings, nil
}

func opcodeOf(t *testing.T, table *EnvTable, in *ident.Interner, env, def string) uint8 {
	t.Helper()
	e, err := table.Lookup(in.Intern(env), Span{})
	if err != nil {
		t.Fatalf("Environment %s missing: %v", env, err)
	}
	d, err := e.Lookup(in.Intern(def), Span{})
	if err != nil {
		t.Fatalf("Definition %s missing in %s: %v", def, env, err)
	}
	if d.Kind != DefSimple {
		t.Fatalf("Definition %s in %s owns no opcode id", def, env)
	}
	return d.Opcode
}

func TestStdEnvironment_Ids(t *testing.T) {
	table, in, _, err := buildEnvSrc(t, "")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	tests := []struct {
		def  string
		want uint8
	}{
		{"return", 0},
		{"yield", 1},
		{"put_u8", 2},
		{"mov_u8", 3},
		{"add_u8", 4},
		{"sub_u8", 5},
		{"mul_u8", 6},
		{"div_u8", 7},
		{"mod_u8", 8},
		{"shl_u8", 9},
		{"shr_u8", 10},
		{"band_u8", 11},
		{"bxor_u8", 12},
		{"bor_u8", 13},
		{"equ_u8", 14},
		{"nequ_u8", 15},
		{"lt_u8", 16},
		{"gt_u8", 17},
		{"lte_u8", 18},
		{"gte_u8", 19},
		{"land_u8", 20},
		{"lor_u8", 21},
	}
	for _, tt := range tests {
		if got := opcodeOf(t, table, in, "std", tt.def); got != tt.want {
			t.Errorf("Expected std@%s to have id %d, got %d", tt.def, tt.want, got)
		}
	}
}

func TestStdEnvironment_SignedAliasesShareIds(t *testing.T) {
	table, in, _, err := buildEnvSrc(t, "")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	for _, op := range []string{"put", "mov", "add", "sub", "mul", "div", "equ", "lor"} {
		u := opcodeOf(t, table, in, "std", op+"_u8")
		i := opcodeOf(t, table, in, "std", op+"_i8")
		if u != i {
			t.Errorf("Expected %s_u8 and %s_i8 to share an id, got %d and %d", op, op, u, i)
		}
	}
}

func TestEnvBuild_SequentialIds(t *testing.T) {
	table, in, _, err := buildEnvSrc(t, "env a { def f(); def g(); def h(); }")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	for i, def := range []string{"f", "g", "h"} {
		if got := opcodeOf(t, table, in, "a", def); got != uint8(i) {
			t.Errorf("Expected a@%s to have id %d, got %d", def, i, got)
		}
	}
}

func TestEnvBuild_UseRebasesIds(t *testing.T) {
	table, in, _, err := buildEnvSrc(t, `
		env a { def f(); def g(); def h(); }
		env b { use a; def extra(); }
		env c { def own(); use a; def extra(); }
	`)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if got := opcodeOf(t, table, in, "b", "extra"); got != 3 {
		t.Errorf("Expected b@extra at id 3, got %d", got)
	}
	if got := opcodeOf(t, table, in, "c", "own"); got != 0 {
		t.Errorf("Expected c@own at id 0, got %d", got)
	}
	for i, def := range []string{"f", "g", "h"} {
		if got := opcodeOf(t, table, in, "c", def); got != uint8(i+1) {
			t.Errorf("Expected c@%s at id %d, got %d", def, i+1, got)
		}
	}
	if got := opcodeOf(t, table, in, "c", "extra"); got != 4 {
		t.Errorf("Expected c@extra at id 4, got %d", got)
	}
}

func TestEnvBuild_MergeCollisionWarns(t *testing.T) {
	table, in, warnings, err := buildEnvSrc(t, `
		env a { def f(); def g(); }
		env b { use a; def extra(); use a; }
	`)
	if err != nil {
		t.Fatalf("Expected merge collisions to stay non-fatal, got %v", err)
	}
	if !strings.Contains(warnings.String(), "duplicate definition of") {
		t.Errorf("Expected a duplicate-definition warning, got %q", warnings.String())
	}
	// The re-merge must not disturb b's own definition.
	if got := opcodeOf(t, table, in, "b", "extra"); got != 2 {
		t.Errorf("Expected b@extra to stay at id 2, got %d", got)
	}
	// The later copy of f wins; its id reflects the second rebase.
	if got := opcodeOf(t, table, in, "b", "f"); got != 3 {
		t.Errorf("Expected the re-merged b@f at id 3, got %d", got)
	}
}

func TestEnvBuild_LocalRedefinitionErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"local twice", "env a { def f(); def f(); }", "Redefinition of function f"},
		{"local after use", "env a { def f(); } env b { use a; def f(); }", "Redefinition of function f"},
		{"environment twice", "env a { def f(); } env a { def g(); }", "Redefinition of environment a"},
		{"std shadowed", "env std { def f(); }", "Redefinition of environment std"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := buildEnvSrc(t, tt.src)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected %q, got %v", tt.want, err)
			}
		})
	}
}

func TestEnvBuild_BytecodeLimit(t *testing.T) {
	var src strings.Builder
	src.WriteString("env big {\n")
	for i := 0; i < 130; i++ {
		fmt.Fprintf(&src, "\tdef f%d();\n", i)
	}
	src.WriteString("}\n")
	src.WriteString("env over { use big; use big; }\n")

	_, _, _, err := buildEnvSrc(t, src.String())
	if err == nil || !strings.Contains(err.Error(), "Hit bytecode limit in environment over") {
		t.Errorf("Expected a bytecode-limit error, got %v", err)
	}
}

func TestEnvBuild_Pool(t *testing.T) {
	t.Run("maximum accepted", func(t *testing.T) {
		table, in, _, err := buildEnvSrc(t, "env a { pool = 65534; }")
		if err != nil {
			t.Fatalf("Expected pool = 65534 to succeed, got %v", err)
		}
		env, _ := table.Lookup(in.Intern("a"), Span{})
		if !env.PoolSet || env.Pool != 65534 {
			t.Errorf("Expected pool 65534, got %d (set=%v)", env.Pool, env.PoolSet)
		}
	})

	t.Run("explicit zero is recorded", func(t *testing.T) {
		table, in, _, err := buildEnvSrc(t, "env a { pool = 0; }")
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		env, _ := table.Lookup(in.Intern("a"), Span{})
		if !env.PoolSet {
			t.Errorf("Expected an explicit pool of 0 to be distinct from no pool")
		}
	})

	errTests := []struct {
		name string
		src  string
		want string
	}{
		{"too large", "env a { pool = 65535; }", "larger than the maximum of 65534"},
		{"negative", "env a { pool = -1; }", "A pool size cannot be negative"},
		{"duplicate", "env a { pool = 1; pool = 2; }", "Redefinition of the pool size"},
		{"non-constant", "env a { pool = x; }", "not computable at compile time"},
	}
	for _, tt := range errTests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := buildEnvSrc(t, tt.src)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected %q, got %v", tt.want, err)
			}
		})
	}
}

func TestEnvironment_Expand(t *testing.T) {
	table, in, _, err := buildEnvSrc(t, `
		env a {
			use std;
			def wait(u8 frames);
			def delay(u8 n) = alias wait(@1);
			def nested(u8 n) = alias delay(@1);
			def print(u8 n) = macro PrintThing;
			def bad(u8 n) = alias print(@1);
		}
	`)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	env, _ := table.Lookup(in.Intern("a"), Span{})

	t.Run("direct", func(t *testing.T) {
		got, err := env.Expand(in.Intern("wait"), Span{})
		if err != nil || got != "a@wait" {
			t.Errorf("Expected a@wait, got %q (%v)", got, err)
		}
	})

	t.Run("alias chain", func(t *testing.T) {
		got, err := env.Expand(in.Intern("nested"), Span{})
		if err != nil || got != "a@wait" {
			t.Errorf("Expected the chain to land on a@wait, got %q (%v)", got, err)
		}
	})

	t.Run("macro rejected", func(t *testing.T) {
		_, err := env.Expand(in.Intern("bad"), Span{})
		if err == nil || !strings.Contains(err.Error(), "print may not be a macro") {
			t.Errorf("Expected 'print may not be a macro', got %v", err)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := env.Expand(in.Intern("missing"), Span{})
		if err == nil || !strings.Contains(err.Error(), "Definition of missing not found") {
			t.Errorf("Expected a not-found error, got %v", err)
		}
	})
}

func TestEnvBuild_SingleReturnRule(t *testing.T) {
	_, _, _, err := buildEnvSrc(t, "env a { def f(return u8, return u8); }")
	if err == nil || !strings.Contains(err.Error(), "A function may only have one return value") {
		t.Errorf("Expected the single-return rule to fire, got %v", err)
	}
}
