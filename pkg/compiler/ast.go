package compiler

import (
	"evsc/pkg/ident"
)

// Root is a top-level declaration. Each carries the file it was parsed from
// so diagnostics from multi-file programs point at the right source.
type Root interface {
	rootNode()
	SourceFile() string
}

type rootBase struct {
	Span Span
	File string
}

func (rootBase) rootNode()            {}
func (r rootBase) SourceFile() string { return r.File }

// ScriptDecl is a bytecode function: an environment name, a script name,
// and a statement body.
type ScriptDecl struct {
	rootBase
	Env  ident.Ident
	Name ident.Ident
	Body []Statement
}

// EnvDecl declares an execution environment.
type EnvDecl struct {
	rootBase
	Name ident.Ident
	Body []EnvStatement
}

// RawAsm passes its contents through to the output untouched.
type RawAsm struct {
	rootBase
	Contents string
}

// IncludeDecl pulls in another source file. The loader replaces these
// before compilation.
type IncludeDecl struct {
	rootBase
	Path string
}

// TypedefDecl binds a new name to an existing type.
type TypedefDecl struct {
	rootBase
	Target ident.Ident
	Name   ident.Ident
}

// StructDecl declares an aggregate type.
type StructDecl struct {
	rootBase
	Name    ident.Ident
	Members []StructMember
}

type StructMember struct {
	Span Span
	Type ident.Ident
	Name ident.Ident
}

// Statement is one statement inside a script body.
type Statement interface {
	stmtNode()
	Pos() Span
}

type stmtBase struct {
	Span Span
}

func (stmtBase) stmtNode()   {}
func (s stmtBase) Pos() Span { return s.Span }

// ExprStatement evaluates an expression for its side effects.
type ExprStatement struct {
	stmtBase
	Expr Expr
}

// VarDecl declares a variable, optionally with an initializer.
type VarDecl struct {
	stmtBase
	Type    ident.Ident
	Pointer bool
	Name    ident.Ident
	Init    *Expr
}

// Assignment stores an expression's value into an existing variable.
type Assignment struct {
	stmtBase
	Name  ident.Ident
	Value Expr
}

type IfStmt struct {
	stmtBase
	Cond Expr
	Body []Statement
	Else []Statement
}

type WhileStmt struct {
	stmtBase
	Cond Expr
	Body []Statement
}

type DoWhileStmt struct {
	stmtBase
	Body []Statement
	Cond Expr
}

type ForStmt struct {
	stmtBase
	Init Statement
	Cond Expr
	Post Statement
	Body []Statement
}

type RepeatStmt struct {
	stmtBase
	Count Expr
	Body  []Statement
}

type LoopStmt struct {
	stmtBase
	Body []Statement
}

// EnvStatement is one entry inside an environment body.
type EnvStatement interface {
	envStmtNode()
	Pos() Span
}

type envStmtBase struct {
	Span Span
}

func (envStmtBase) envStmtNode() {}
func (s envStmtBase) Pos() Span  { return s.Span }

// DefKind distinguishes the three definition forms.
type DefKind int

const (
	DefSimple DefKind = iota
	DefAlias
	DefMacro
)

// DefStmt declares a callable inside an environment.
type DefStmt struct {
	envStmtBase
	Name    ident.Ident
	Params  []DefParam
	Varargs bool
	Kind    DefKind

	// Alias fields.
	Target     ident.Ident
	TargetArgs []AliasArg

	// Macro field.
	MacroTarget string
}

// DefParam is one formal parameter. Return marks the single out-slot a
// definition may declare.
type DefParam struct {
	Span   Span
	Return bool
	Type   ident.Ident
	Name   ident.Ident
	Named  bool
}

// AliasArg is one argument in an alias target list: either a placeholder
// (@N, 1-based) referring to the alias's own formals, or a fixed expression.
type AliasArg struct {
	Span        Span
	Placeholder int
	Expr        *Expr
}

// UseStmt merges another environment's definitions.
type UseStmt struct {
	envStmtBase
	Target ident.Ident
}

// PoolStmt sets the environment's memory pool size.
type PoolStmt struct {
	envStmtBase
	Size Expr
}
