package compiler

import (
	"fmt"
	"unicode"
)

// keywords maps source text to its keyword TokenType.
var keywords = map[string]TokenType{
	"include": INCLUDE,
	"typedef": TYPEDEF,
	"struct":  STRUCT,
	"asm":     ASM,
	"env":     ENV,
	"def":     DEF,
	"use":     USE,
	"pool":    POOL,
	"alias":   ALIAS,
	"macro":   MACRO,
	"return":  RETURN,
	"if":      IF,
	"else":    ELSE,
	"while":   WHILE,
	"do":      DO,
	"for":     FOR,
	"repeat":  REPEAT,
	"loop":    LOOP,
}

// Lexer holds all mutable state for a single scanning pass over src.
// Positions are byte offsets so that token spans index directly into src.
type Lexer struct {
	src []byte
	pos int // index of the next byte to consume
}

func newLexer(src string) *Lexer {
	return &Lexer{src: []byte(src)}
}

// peek returns the byte at the current position without advancing.
func (l *Lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

// peek2 returns the byte one position ahead of the current position.
func (l *Lexer) peek2() byte {
	if l.pos+1 >= len(l.src) {
		return 0
	}
	return l.src[l.pos+1]
}

func (l *Lexer) advance() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	b := l.src[l.pos]
	l.pos++
	return b
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) && unicode.IsSpace(rune(l.peek())) {
		l.advance()
	}
}

// skipLineComment discards everything from the current position to end-of-line.
// The opening "//" must already have been consumed.
func (l *Lexer) skipLineComment() {
	for l.pos < len(l.src) && l.peek() != '\n' {
		l.advance()
	}
}

// skipBlockComment discards everything up to and including the closing "*/".
// The opening "/*" must already have been consumed.
func (l *Lexer) skipBlockComment(open int) error {
	for l.pos < len(l.src) {
		if l.peek() == '*' && l.peek2() == '/' {
			l.advance()
			l.advance()
			return nil
		}
		l.advance()
	}
	return &Diagnostic{Msg: "unterminated block comment", Span: Span{open, len(l.src)}}
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentPart(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

// scanIdent collects a full identifier or keyword token.
func (l *Lexer) scanIdent() Token {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(l.peek()) {
		l.advance()
	}
	lexeme := string(l.src[start:l.pos])
	tt := IDENTIFIER
	if kw, ok := keywords[lexeme]; ok {
		tt = kw
	}
	return Token{Type: tt, Lexeme: lexeme, Span: Span{start, l.pos}}
}

// scanNumber collects an integer literal: decimal, $hex, 0x hex, or 0b binary.
// The first character ('$' or a digit) must still be at l.peek().
func (l *Lexer) scanNumber() (Token, error) {
	start := l.pos

	if l.peek() == '$' {
		l.advance()
		for l.pos < len(l.src) && isHexDigit(l.peek()) {
			l.advance()
		}
		if l.pos == start+1 {
			return Token{}, &Diagnostic{Msg: "'$' must be followed by hexadecimal digits", Span: Span{start, l.pos}}
		}
		return Token{Type: NUMBER, Lexeme: string(l.src[start:l.pos]), Span: Span{start, l.pos}}, nil
	}

	if l.peek() == '0' && (l.peek2() == 'x' || l.peek2() == 'X') {
		l.advance()
		l.advance()
		for l.pos < len(l.src) && isHexDigit(l.peek()) {
			l.advance()
		}
	} else if l.peek() == '0' && (l.peek2() == 'b' || l.peek2() == 'B') {
		l.advance()
		l.advance()
		for l.pos < len(l.src) && (l.peek() == '0' || l.peek() == '1') {
			l.advance()
		}
	} else {
		for l.pos < len(l.src) && l.peek() >= '0' && l.peek() <= '9' {
			l.advance()
		}
	}

	return Token{Type: NUMBER, Lexeme: string(l.src[start:l.pos]), Span: Span{start, l.pos}}, nil
}

// scanString collects a string literal "...", resolving escape sequences.
func (l *Lexer) scanString() (Token, error) {
	start := l.pos
	l.advance() // consume opening "
	var val []byte

	for l.pos < len(l.src) {
		b := l.peek()
		if b == '"' {
			l.advance()
			return Token{Type: STRING, Lexeme: string(val), Span: Span{start, l.pos}}, nil
		}
		if b == '\n' {
			break
		}
		if b == '\\' {
			l.advance()
			switch next := l.peek(); next {
			case 'n':
				val = append(val, '\n')
			case 't':
				val = append(val, '\t')
			case '"':
				val = append(val, '"')
			case '\\':
				val = append(val, '\\')
			default:
				return Token{}, &Diagnostic{
					Msg:  fmt.Sprintf("unknown escape sequence \\%c", next),
					Span: Span{l.pos - 1, l.pos + 1},
				}
			}
			l.advance()
			continue
		}
		val = append(val, b)
		l.advance()
	}

	return Token{}, &Diagnostic{Msg: "unterminated string literal", Span: Span{start, l.pos}}
}

// nextToken skips whitespace/comments and returns the next Token.
func (l *Lexer) nextToken() (Token, error) {
	for {
		l.skipWhitespace()
		if l.pos >= len(l.src) {
			return Token{Type: EOF, Span: Span{l.pos, l.pos}}, nil
		}
		if l.peek() == '/' && l.peek2() == '/' {
			l.advance()
			l.advance()
			l.skipLineComment()
			continue
		}
		if l.peek() == '/' && l.peek2() == '*' {
			open := l.pos
			l.advance()
			l.advance()
			if err := l.skipBlockComment(open); err != nil {
				return Token{}, err
			}
			continue
		}
		break
	}

	ch := l.peek()
	start := l.pos

	if isIdentStart(ch) {
		return l.scanIdent(), nil
	}
	if (ch >= '0' && ch <= '9') || ch == '$' {
		return l.scanNumber()
	}
	if ch == '"' {
		return l.scanString()
	}

	one := func(tt TokenType) (Token, error) {
		return Token{Type: tt, Lexeme: string(l.src[start:l.pos]), Span: Span{start, l.pos}}, nil
	}

	l.advance()
	switch ch {
	case '{':
		return one(LBRACE)
	case '}':
		return one(RBRACE)
	case '(':
		return one(LPAREN)
	case ')':
		return one(RPAREN)
	case ';':
		return one(SEMICOLON)
	case ',':
		return one(COMMA)
	case '@':
		return one(AT)
	case '+':
		return one(PLUS)
	case '-':
		return one(MINUS)
	case '*':
		return one(STAR)
	case '/':
		return one(SLASH)
	case '%':
		return one(PERCENT)
	case '^':
		return one(CARET)
	case '~':
		return one(TILDE)
	case '.':
		if l.peek() == '.' && l.peek2() == '.' {
			l.advance()
			l.advance()
			return one(ELLIPSIS)
		}
	case '&':
		if l.peek() == '&' {
			l.advance()
			return one(LAND)
		}
		return one(AMP)
	case '|':
		if l.peek() == '|' {
			l.advance()
			return one(LOR)
		}
		return one(PIPE)
	case '!':
		if l.peek() == '=' {
			l.advance()
			return one(NEQU)
		}
	case '<':
		if l.peek() == '=' {
			l.advance()
			return one(LESS_EQ)
		}
		if l.peek() == '<' {
			l.advance()
			return one(SHL)
		}
		return one(LESS)
	case '>':
		if l.peek() == '=' {
			l.advance()
			return one(GREATER_EQ)
		}
		if l.peek() == '>' {
			l.advance()
			return one(SHR)
		}
		return one(GREATER)
	case '=':
		if l.peek() == '=' {
			l.advance()
			return one(EQU)
		}
		return one(ASSIGN)
	}

	return Token{}, &Diagnostic{
		Msg:  fmt.Sprintf("unexpected character %q", ch),
		Span: Span{start, l.pos},
	}
}

// Lex tokenises src and returns all tokens including the final EOF token.
// It returns a non-nil error on the first illegal character or unterminated
// comment or string.
func Lex(src string) ([]Token, error) {
	l := newLexer(src)
	var tokens []Token
	for {
		tok, err := l.nextToken()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens, nil
		}
	}
}
