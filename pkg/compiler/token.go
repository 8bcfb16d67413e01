package compiler

import "fmt"

// Span is a byte-offset range into the source file a node was parsed from.
type Span struct {
	Start int
	End   int
}

func (s Span) String() string { return fmt.Sprintf("%d..%d", s.Start, s.End) }

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF TokenType = iota // sentinel: end of input

	// Literals
	IDENTIFIER // environment / script / variable name
	NUMBER     // integer literal (decimal, $hex, 0x hex, 0b binary)
	STRING     // string literal "..."

	// Keywords
	INCLUDE // "include"
	TYPEDEF // "typedef"
	STRUCT  // "struct"
	ASM     // "asm"
	ENV     // "env"
	DEF     // "def"
	USE     // "use"
	POOL    // "pool"
	ALIAS   // "alias"
	MACRO   // "macro"
	RETURN  // "return" (inside a def parameter list)
	IF      // "if"
	ELSE    // "else"
	WHILE   // "while"
	DO      // "do"
	FOR     // "for"
	REPEAT  // "repeat"
	LOOP    // "loop"

	// Paired delimiters
	LBRACE // {
	RBRACE // }
	LPAREN // (
	RPAREN // )

	// Punctuation
	SEMICOLON // ;
	COMMA     // ,
	AT        // @ (alias argument placeholder)
	ELLIPSIS  // ... (varargs marker)

	// Operators
	PLUS    // +
	MINUS   // -
	STAR    // *
	SLASH   // /
	PERCENT // %
	AMP     // &
	PIPE    // |
	CARET   // ^
	TILDE   // ~
	SHL     // <<
	SHR     // >>
	LAND    // &&
	LOR     // ||

	ASSIGN     // =
	EQU        // ==
	NEQU       // !=
	LESS       // <
	GREATER    // >
	LESS_EQ    // <=
	GREATER_EQ // >=
)

var tokenNames = [...]string{
	EOF:        "EOF",
	IDENTIFIER: "IDENTIFIER",
	NUMBER:     "NUMBER",
	STRING:     "STRING",
	INCLUDE:    "INCLUDE",
	TYPEDEF:    "TYPEDEF",
	STRUCT:     "STRUCT",
	ASM:        "ASM",
	ENV:        "ENV",
	DEF:        "DEF",
	USE:        "USE",
	POOL:       "POOL",
	ALIAS:      "ALIAS",
	MACRO:      "MACRO",
	RETURN:     "RETURN",
	IF:         "IF",
	ELSE:       "ELSE",
	WHILE:      "WHILE",
	DO:         "DO",
	FOR:        "FOR",
	REPEAT:     "REPEAT",
	LOOP:       "LOOP",
	LBRACE:     "LBRACE",
	RBRACE:     "RBRACE",
	LPAREN:     "LPAREN",
	RPAREN:     "RPAREN",
	SEMICOLON:  "SEMICOLON",
	COMMA:      "COMMA",
	AT:         "AT",
	ELLIPSIS:   "ELLIPSIS",
	PLUS:       "PLUS",
	MINUS:      "MINUS",
	STAR:       "STAR",
	SLASH:      "SLASH",
	PERCENT:    "PERCENT",
	AMP:        "AMP",
	PIPE:       "PIPE",
	CARET:      "CARET",
	TILDE:      "TILDE",
	SHL:        "SHL",
	SHR:        "SHR",
	LAND:       "LAND",
	LOR:        "LOR",
	ASSIGN:     "ASSIGN",
	EQU:        "EQU",
	NEQU:       "NEQU",
	LESS:       "LESS",
	GREATER:    "GREATER",
	LESS_EQ:    "LESS_EQ",
	GREATER_EQ: "GREATER_EQ",
}

func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// Token is a single lexical unit produced by the Lexer.
type Token struct {
	Type   TokenType
	Lexeme string // the exact source text that was matched (escapes resolved for STRING)
	Span   Span
}

func (t Token) String() string {
	return fmt.Sprintf("%-10s %-14q  at %s", t.Type, t.Lexeme, t.Span)
}
