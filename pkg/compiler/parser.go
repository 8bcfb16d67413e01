package compiler

import (
	"strconv"

	"evsc/pkg/ident"
)

// Parser turns a token stream into a list of Roots. It is a plain
// recursive-descent parser; expression precedence follows C.
type Parser struct {
	tokens []Token
	pos    int
	file   string
	idents *ident.Interner
}

// Parse consumes the whole token stream and returns the top-level
// declarations it contains.
func Parse(tokens []Token, file string, in *ident.Interner) ([]Root, error) {
	p := &Parser{tokens: tokens, file: file, idents: in}
	var roots []Root
	for !p.check(EOF) {
		root, err := p.parseRoot()
		if err != nil {
			if d, ok := err.(*Diagnostic); ok && d.File == "" {
				d.File = file
			}
			return nil, err
		}
		roots = append(roots, root)
	}
	return roots, nil
}

func (p *Parser) cur() Token { return p.tokens[p.pos] }

func (p *Parser) peekAhead(n int) Token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1] // EOF
	}
	return p.tokens[p.pos+n]
}

func (p *Parser) advance() Token {
	tok := p.tokens[p.pos]
	if tok.Type != EOF {
		p.pos++
	}
	return tok
}

func (p *Parser) check(tt TokenType) bool { return p.cur().Type == tt }

func (p *Parser) match(tt TokenType) bool {
	if p.check(tt) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(tt TokenType, what string) (Token, error) {
	if !p.check(tt) {
		tok := p.cur()
		return Token{}, errorf(tok.Span, "expected %s, found %q", what, tok.Lexeme)
	}
	return p.advance(), nil
}

func (p *Parser) expectIdent(what string) (ident.Ident, Span, error) {
	tok, err := p.expect(IDENTIFIER, what)
	if err != nil {
		return 0, Span{}, err
	}
	return p.idents.Intern(tok.Lexeme), tok.Span, nil
}

func (p *Parser) base(start Span) rootBase {
	return rootBase{Span: Span{start.Start, p.peekAhead(-1).Span.End}, File: p.file}
}

// parseRoot dispatches on the leading token of a top-level declaration.
func (p *Parser) parseRoot() (Root, error) {
	switch p.cur().Type {
	case INCLUDE:
		return p.parseInclude()
	case TYPEDEF:
		return p.parseTypedef()
	case STRUCT:
		return p.parseStruct()
	case ASM:
		return p.parseRawAsm()
	case ENV:
		return p.parseEnv()
	case IDENTIFIER:
		return p.parseScript()
	}
	tok := p.cur()
	return nil, errorf(tok.Span, "expected a declaration, found %q", tok.Lexeme)
}

func (p *Parser) parseInclude() (Root, error) {
	start := p.advance().Span
	path, err := p.expect(STRING, "a file path")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON, "';'"); err != nil {
		return nil, err
	}
	return &IncludeDecl{rootBase: p.base(start), Path: path.Lexeme}, nil
}

// parseTypedef handles `typedef <existing> <new>;`.
func (p *Parser) parseTypedef() (Root, error) {
	start := p.advance().Span
	target, _, err := p.expectIdent("a type name")
	if err != nil {
		return nil, err
	}
	name, _, err := p.expectIdent("a new type name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON, "';'"); err != nil {
		return nil, err
	}
	return &TypedefDecl{rootBase: p.base(start), Target: target, Name: name}, nil
}

func (p *Parser) parseStruct() (Root, error) {
	start := p.advance().Span
	name, _, err := p.expectIdent("a struct name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LBRACE, "'{'"); err != nil {
		return nil, err
	}
	var members []StructMember
	for !p.check(RBRACE) && !p.check(EOF) {
		mtype, mspan, err := p.expectIdent("a member type")
		if err != nil {
			return nil, err
		}
		mname, _, err := p.expectIdent("a member name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(SEMICOLON, "';'"); err != nil {
			return nil, err
		}
		members = append(members, StructMember{Span: mspan, Type: mtype, Name: mname})
	}
	if _, err := p.expect(RBRACE, "'}'"); err != nil {
		return nil, err
	}
	return &StructDecl{rootBase: p.base(start), Name: name, Members: members}, nil
}

func (p *Parser) parseRawAsm() (Root, error) {
	start := p.advance().Span
	contents, err := p.expect(STRING, "assembly text")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON, "';'"); err != nil {
		return nil, err
	}
	return &RawAsm{rootBase: p.base(start), Contents: contents.Lexeme}, nil
}

func (p *Parser) parseEnv() (Root, error) {
	start := p.advance().Span
	name, _, err := p.expectIdent("an environment name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LBRACE, "'{'"); err != nil {
		return nil, err
	}
	var body []EnvStatement
	for !p.check(RBRACE) && !p.check(EOF) {
		stmt, err := p.parseEnvStatement()
		if err != nil {
			return nil, err
		}
		body = append(body, stmt)
	}
	if _, err := p.expect(RBRACE, "'}'"); err != nil {
		return nil, err
	}
	return &EnvDecl{rootBase: p.base(start), Name: name, Body: body}, nil
}

func (p *Parser) parseEnvStatement() (EnvStatement, error) {
	switch p.cur().Type {
	case DEF:
		return p.parseDef()
	case USE:
		return p.parseUse()
	case POOL:
		return p.parsePool()
	}
	tok := p.cur()
	return nil, errorf(tok.Span, "expected 'def', 'use', or 'pool', found %q", tok.Lexeme)
}

// parseDef handles the three definition forms:
//
//	def name(u8 a, return u8);
//	def name(u8 a) = alias target(@1, 0);
//	def name(u8 a, ...) = macro Target;
func (p *Parser) parseDef() (EnvStatement, error) {
	start := p.advance().Span
	name, _, err := p.expectIdent("a definition name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LPAREN, "'('"); err != nil {
		return nil, err
	}

	def := &DefStmt{envStmtBase: envStmtBase{}, Name: name}
	for !p.check(RPAREN) && !p.check(EOF) {
		if p.match(ELLIPSIS) {
			def.Varargs = true
			break // "..." must be the final parameter
		}
		param, err := p.parseDefParam()
		if err != nil {
			return nil, err
		}
		def.Params = append(def.Params, param)
		if !p.match(COMMA) {
			break
		}
	}
	if _, err := p.expect(RPAREN, "')'"); err != nil {
		return nil, err
	}

	if p.match(ASSIGN) {
		switch p.cur().Type {
		case ALIAS:
			p.advance()
			if err := p.parseAliasBody(def); err != nil {
				return nil, err
			}
		case MACRO:
			p.advance()
			target, err := p.expect(IDENTIFIER, "a macro name")
			if err != nil {
				return nil, err
			}
			def.Kind = DefMacro
			def.MacroTarget = target.Lexeme
		default:
			tok := p.cur()
			return nil, errorf(tok.Span, "expected 'alias' or 'macro', found %q", tok.Lexeme)
		}
	}

	if _, err := p.expect(SEMICOLON, "';'"); err != nil {
		return nil, err
	}
	def.envStmtBase.Span = Span{start.Start, p.peekAhead(-1).Span.End}
	return def, nil
}

func (p *Parser) parseDefParam() (DefParam, error) {
	var param DefParam
	if p.check(RETURN) {
		param.Return = true
		param.Span = p.advance().Span
	}
	typ, tspan, err := p.expectIdent("a parameter type")
	if err != nil {
		return DefParam{}, err
	}
	param.Type = typ
	if !param.Return {
		param.Span = tspan
	}
	if p.check(IDENTIFIER) {
		tok := p.advance()
		param.Name = p.idents.Intern(tok.Lexeme)
		param.Named = true
	}
	return param, nil
}

func (p *Parser) parseAliasBody(def *DefStmt) error {
	target, _, err := p.expectIdent("an alias target")
	if err != nil {
		return err
	}
	def.Kind = DefAlias
	def.Target = target
	if _, err := p.expect(LPAREN, "'('"); err != nil {
		return err
	}
	for !p.check(RPAREN) && !p.check(EOF) {
		if p.check(AT) {
			at := p.advance()
			num, err := p.expect(NUMBER, "a placeholder index")
			if err != nil {
				return err
			}
			idx, err := parseNumber(num)
			if err != nil {
				return err
			}
			if idx < 1 {
				return errorf(Span{at.Span.Start, num.Span.End}, "alias placeholder indices start at 1")
			}
			def.TargetArgs = append(def.TargetArgs, AliasArg{
				Span:        Span{at.Span.Start, num.Span.End},
				Placeholder: int(idx),
			})
		} else {
			expr, err := p.parseExpr()
			if err != nil {
				return err
			}
			e := expr
			def.TargetArgs = append(def.TargetArgs, AliasArg{Span: e.Op(e.Result()).Span, Expr: &e})
		}
		if !p.match(COMMA) {
			break
		}
	}
	_, err = p.expect(RPAREN, "')'")
	return err
}

func (p *Parser) parseUse() (EnvStatement, error) {
	start := p.advance().Span
	target, _, err := p.expectIdent("an environment name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON, "';'"); err != nil {
		return nil, err
	}
	return &UseStmt{envStmtBase: envStmtBase{Span{start.Start, p.peekAhead(-1).Span.End}}, Target: target}, nil
}

func (p *Parser) parsePool() (EnvStatement, error) {
	start := p.advance().Span
	if _, err := p.expect(ASSIGN, "'='"); err != nil {
		return nil, err
	}
	size, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON, "';'"); err != nil {
		return nil, err
	}
	return &PoolStmt{envStmtBase: envStmtBase{Span{start.Start, p.peekAhead(-1).Span.End}}, Size: size}, nil
}

// parseScript handles `<env> <name> { ... }`.
func (p *Parser) parseScript() (Root, error) {
	envName, start, err := p.expectIdent("an environment name")
	if err != nil {
		return nil, err
	}
	name, _, err := p.expectIdent("a script name")
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ScriptDecl{rootBase: p.base(start), Env: envName, Name: name, Body: body}, nil
}

func (p *Parser) parseBlock() ([]Statement, error) {
	if _, err := p.expect(LBRACE, "'{'"); err != nil {
		return nil, err
	}
	var body []Statement
	for !p.check(RBRACE) && !p.check(EOF) {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		body = append(body, stmt)
	}
	if _, err := p.expect(RBRACE, "'}'"); err != nil {
		return nil, err
	}
	return body, nil
}

func (p *Parser) parseStatement() (Statement, error) {
	switch p.cur().Type {
	case IF:
		return p.parseIf()
	case WHILE:
		return p.parseWhile()
	case DO:
		return p.parseDoWhile()
	case FOR:
		return p.parseFor()
	case REPEAT:
		return p.parseRepeat()
	case LOOP:
		return p.parseLoop()
	case RETURN:
		// "return" is a keyword, but inside a script body it is a call to
		// the definition of that name. Both `return;` and `return();` work.
		tok := p.advance()
		if p.match(LPAREN) {
			if _, err := p.expect(RPAREN, "')'"); err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(SEMICOLON, "';'"); err != nil {
			return nil, err
		}
		return &ExprStatement{
			stmtBase: stmtBase{Span{tok.Span.Start, p.peekAhead(-1).Span.End}},
			Expr:     CallExpr(p.idents.Intern("return"), nil, tok.Span),
		}, nil
	}
	stmt, err := p.parseSimpleStatement()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON, "';'"); err != nil {
		return nil, err
	}
	return stmt, nil
}

// parseSimpleStatement handles declarations, assignments, and expression
// statements. The trailing semicolon is left to the caller so the same
// production serves for-loop headers.
func (p *Parser) parseSimpleStatement() (Statement, error) {
	if p.check(IDENTIFIER) {
		next := p.peekAhead(1)
		// Two identifiers in a row, or "ident*", begin a declaration.
		if next.Type == IDENTIFIER || (next.Type == STAR && p.peekAhead(2).Type == IDENTIFIER) {
			return p.parseVarDecl()
		}
		if next.Type == ASSIGN {
			nameTok := p.advance()
			p.advance() // =
			value, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			return &Assignment{
				stmtBase: stmtBase{Span{nameTok.Span.Start, p.peekAhead(-1).Span.End}},
				Name:     p.idents.Intern(nameTok.Lexeme),
				Value:    value,
			}, nil
		}
	}
	start := p.cur().Span
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ExprStatement{
		stmtBase: stmtBase{Span{start.Start, p.peekAhead(-1).Span.End}},
		Expr:     expr,
	}, nil
}

func (p *Parser) parseVarDecl() (Statement, error) {
	typeTok := p.advance()
	decl := &VarDecl{Type: p.idents.Intern(typeTok.Lexeme)}
	if p.match(STAR) {
		decl.Pointer = true
	}
	name, _, err := p.expectIdent("a variable name")
	if err != nil {
		return nil, err
	}
	decl.Name = name
	if p.match(ASSIGN) {
		init, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		decl.Init = &init
	}
	decl.stmtBase = stmtBase{Span{typeTok.Span.Start, p.peekAhead(-1).Span.End}}
	return decl, nil
}

func (p *Parser) parseIf() (Statement, error) {
	start := p.advance().Span
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	stmt := &IfStmt{Cond: cond, Body: body}
	if p.match(ELSE) {
		if p.check(IF) {
			chained, err := p.parseIf()
			if err != nil {
				return nil, err
			}
			stmt.Else = []Statement{chained}
		} else {
			stmt.Else, err = p.parseBlock()
			if err != nil {
				return nil, err
			}
		}
	}
	stmt.stmtBase = stmtBase{Span{start.Start, p.peekAhead(-1).Span.End}}
	return stmt, nil
}

func (p *Parser) parseWhile() (Statement, error) {
	start := p.advance().Span
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &WhileStmt{
		stmtBase: stmtBase{Span{start.Start, p.peekAhead(-1).Span.End}},
		Cond:     cond,
		Body:     body,
	}, nil
}

func (p *Parser) parseDoWhile() (Statement, error) {
	start := p.advance().Span
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(WHILE, "'while'"); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON, "';'"); err != nil {
		return nil, err
	}
	return &DoWhileStmt{
		stmtBase: stmtBase{Span{start.Start, p.peekAhead(-1).Span.End}},
		Body:     body,
		Cond:     cond,
	}, nil
}

func (p *Parser) parseFor() (Statement, error) {
	start := p.advance().Span
	init, err := p.parseSimpleStatement()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON, "';'"); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON, "';'"); err != nil {
		return nil, err
	}
	post, err := p.parseSimpleStatement()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ForStmt{
		stmtBase: stmtBase{Span{start.Start, p.peekAhead(-1).Span.End}},
		Init:     init,
		Cond:     cond,
		Post:     post,
		Body:     body,
	}, nil
}

func (p *Parser) parseRepeat() (Statement, error) {
	start := p.advance().Span
	count, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &RepeatStmt{
		stmtBase: stmtBase{Span{start.Start, p.peekAhead(-1).Span.End}},
		Count:    count,
		Body:     body,
	}, nil
}

func (p *Parser) parseLoop() (Statement, error) {
	start := p.advance().Span
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &LoopStmt{
		stmtBase: stmtBase{Span{start.Start, p.peekAhead(-1).Span.End}},
		Body:     body,
	}, nil
}

// Expression parsing, lowest precedence first.

type binaryLevel struct {
	tokens map[TokenType]OpKind
}

var binaryLevels = []binaryLevel{
	{map[TokenType]OpKind{LOR: OpLogOr}},
	{map[TokenType]OpKind{LAND: OpLogAnd}},
	{map[TokenType]OpKind{PIPE: OpBinOr}},
	{map[TokenType]OpKind{CARET: OpBinXor}},
	{map[TokenType]OpKind{AMP: OpBinAnd}},
	{map[TokenType]OpKind{EQU: OpEqu, NEQU: OpNotEqu}},
	{map[TokenType]OpKind{LESS: OpLess, GREATER: OpGreater, LESS_EQ: OpLessEqu, GREATER_EQ: OpGreaterEqu}},
	{map[TokenType]OpKind{SHL: OpShl, SHR: OpShr}},
	{map[TokenType]OpKind{PLUS: OpAdd, MINUS: OpSub}},
	{map[TokenType]OpKind{STAR: OpMul, SLASH: OpDiv, PERCENT: OpMod}},
}

func (p *Parser) parseExpr() (Expr, error) {
	return p.parseBinary(0)
}

func (p *Parser) parseBinary(level int) (Expr, error) {
	if level >= len(binaryLevels) {
		return p.parseUnary()
	}
	lhs, err := p.parseBinary(level + 1)
	if err != nil {
		return Expr{}, err
	}
	for {
		kind, ok := binaryLevels[level].tokens[p.cur().Type]
		if !ok {
			return lhs, nil
		}
		opTok := p.advance()
		rhs, err := p.parseBinary(level + 1)
		if err != nil {
			return Expr{}, err
		}
		lhs, err = BinaryExpr(kind, lhs, rhs, opTok.Span)
		if err != nil {
			return Expr{}, err
		}
	}
}

func (p *Parser) parseUnary() (Expr, error) {
	switch p.cur().Type {
	case MINUS:
		tok := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return Expr{}, err
		}
		return UnaryExpr(OpNeg, operand, tok.Span), nil
	case TILDE:
		tok := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return Expr{}, err
		}
		return UnaryExpr(OpCpl, operand, tok.Span), nil
	case STAR:
		tok := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return Expr{}, err
		}
		return UnaryExpr(OpDeref, operand, tok.Span), nil
	case AMP:
		tok := p.advance()
		name, span, err := p.expectIdent("a variable name")
		if err != nil {
			return Expr{}, err
		}
		return AddressExpr(name, Span{tok.Span.Start, span.End}), nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.cur()
	switch tok.Type {
	case NUMBER:
		p.advance()
		v, err := parseNumber(tok)
		if err != nil {
			return Expr{}, err
		}
		return NumberExpr(v, tok.Span), nil
	case STRING:
		p.advance()
		return StringExpr(tok.Lexeme, tok.Span), nil
	case IDENTIFIER:
		p.advance()
		name := p.idents.Intern(tok.Lexeme)
		if p.check(LPAREN) {
			return p.parseCallArgs(name, tok.Span)
		}
		return VariableExpr(name, tok.Span), nil
	case LPAREN:
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return Expr{}, err
		}
		if _, err := p.expect(RPAREN, "')'"); err != nil {
			return Expr{}, err
		}
		return expr, nil
	}
	return Expr{}, errorf(tok.Span, "expected an expression, found %q", tok.Lexeme)
}

func (p *Parser) parseCallArgs(name ident.Ident, start Span) (Expr, error) {
	p.advance() // (
	var args []Expr
	for !p.check(RPAREN) && !p.check(EOF) {
		arg, err := p.parseExpr()
		if err != nil {
			return Expr{}, err
		}
		args = append(args, arg)
		if !p.match(COMMA) {
			break
		}
	}
	end, err := p.expect(RPAREN, "')'")
	if err != nil {
		return Expr{}, err
	}
	return CallExpr(name, args, Span{start.Start, end.Span.End}), nil
}

// parseNumber evaluates a NUMBER token's lexeme. "$" is the assembler
// spelling for hexadecimal; everything else is handled by base-0 parsing.
func parseNumber(tok Token) (int64, error) {
	lexeme := tok.Lexeme
	var v int64
	var err error
	if len(lexeme) > 0 && lexeme[0] == '$' {
		v, err = strconv.ParseInt(lexeme[1:], 16, 64)
	} else {
		v, err = strconv.ParseInt(lexeme, 0, 64)
	}
	if err != nil {
		return 0, errorf(tok.Span, "invalid number literal %q", lexeme)
	}
	return v, nil
}
