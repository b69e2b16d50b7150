// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.
package ast

import (
	"fmt"

	"ccgo/diag"
)

// Parser is a recursive-descent parser over the token stream, mirroring
// falcon's single-token-lookahead shape (ast/parser.go's lookNext/consume)
// but driving C's grammar: precedence-climbing expressions per spec.md
// section 4.2's ladder (assignment < ternary < logical-or < logical-and <
// bitwise-or < bitwise-xor < bitwise-and < equality < relational < shift <
// additive < multiplicative < cast < unary < postfix < primary) and
// top-down declarations.
type Parser struct {
	lx   *Lexer
	bag  *diag.Bag
	file string

	tok     Token
	next    Token
	hasNext bool

	global   *Scope
	scope    *Scope
	anonTag  int
	strCount int

	// lastParamNames holds the parameter names parsed by the most recent
	// parseParamList call, picked up by parseFuncDef immediately after its
	// declarator parse to bind names in the function's scope.
	lastParamNames []string

	unit *TranslationUnit

	funcScope *Func // enclosing function, for Scopes back-reference and return-type checks
}

func NewParser(file string, src []byte) *Parser {
	bag := diag.NewBag(file)
	p := &Parser{
		lx:     NewLexer(file, src, bag),
		bag:    bag,
		file:   file,
		global: NewScope(nil),
	}
	p.scope = p.global
	p.tok = p.lx.Next()
	return p
}

func (p *Parser) Diagnostics() *diag.Bag { return p.bag }

func (p *Parser) errf(format string, args ...interface{}) {
	p.bag.Report(diag.ParseError, p.tok.Span.Line, p.tok.Span.Col, format, args...)
}

func (p *Parser) advance() Token {
	cur := p.tok
	if p.hasNext {
		p.tok = p.next
		p.hasNext = false
	} else {
		p.tok = p.lx.Next()
	}
	return cur
}

func (p *Parser) peek2() Token {
	if !p.hasNext {
		p.next = p.lx.Next()
		p.hasNext = true
	}
	return p.next
}

func (p *Parser) expect(k TokenKind) Token {
	if p.tok.Kind != k {
		p.errf("expected %v but got %v", k, p.tok.Kind)
		return p.tok
	}
	return p.advance()
}

func (p *Parser) at(k TokenKind) bool { return p.tok.Kind == k }

// -----------------------------------------------------------------------------
// Top level

// ParseFile parses a complete translation unit.
func ParseFile(file string, src []byte) (*TranslationUnit, *diag.Bag) {
	p := NewParser(file, src)
	unit := p.parseUnit()
	return unit, p.bag
}

func (p *Parser) parseUnit() *TranslationUnit {
	p.unit = &TranslationUnit{File: p.file, Globals: p.global}
	for !p.at(TK_EOF) {
		p.parseExternalDecl()
	}
	return p.unit
}

// isTypeStart reports whether the current token can begin a declaration
// specifier list.
func (p *Parser) isTypeStart() bool {
	switch p.tok.Kind {
	case KW_VOID, KW_CHAR, KW_SHORT, KW_INT, KW_LONG, KW_FLOAT, KW_DOUBLE,
		KW_SIGNED, KW_UNSIGNED, KW_STRUCT, KW_UNION, KW_CONST, KW_VOLATILE,
		KW_STATIC, KW_EXTERN, KW_ENUM:
		return true
	}
	return false
}

type declSpec struct {
	base    *Type
	storage StorageClass
}

// parseDeclSpecs parses storage-class keywords, qualifiers, and the base
// type (before any pointer/declarator punctuation).
func (p *Parser) parseDeclSpecs() declSpec {
	storage := StorageAuto
	var quals Qualifier
	signedSeen, unsignedSeen := false, false
	longCount := 0
	var kw TokenKind = TK_INVALID
	var base *Type

loop:
	for {
		switch p.tok.Kind {
		case KW_STATIC:
			storage = StorageStatic
			p.advance()
		case KW_EXTERN:
			storage = StorageExtern
			p.advance()
		case KW_CONST:
			quals |= QConst
			p.advance()
		case KW_VOLATILE:
			quals |= QVolatile
			p.advance()
		case KW_SIGNED:
			signedSeen = true
			p.advance()
		case KW_UNSIGNED:
			unsignedSeen = true
			p.advance()
		case KW_LONG:
			longCount++
			p.advance()
		case KW_VOID, KW_CHAR, KW_SHORT, KW_INT, KW_FLOAT, KW_DOUBLE:
			kw = p.tok.Kind
			p.advance()
		case KW_STRUCT, KW_UNION:
			base = p.parseStructOrUnion()
			break loop
		case KW_ENUM:
			base = p.parseEnum()
			break loop
		default:
			break loop
		}
	}

	if base == nil {
		switch kw {
		case KW_VOID:
			base = TVoid
		case KW_CHAR:
			base = pick(unsignedSeen, TUChar, TChar)
		case KW_SHORT:
			base = pick(unsignedSeen, TUShort, TShort)
		case KW_FLOAT:
			base = TFloat
		case KW_DOUBLE:
			base = TDouble
		case KW_INT, TK_INVALID:
			if longCount > 0 {
				base = pick(unsignedSeen, TULong, TLong)
			} else {
				base = pick(unsignedSeen, TUInt, TInt)
			}
		default:
			base = TInt
		}
	}
	_ = signedSeen
	return declSpec{base: Qualify(base, quals), storage: storage}
}

func pick(cond bool, a, b *Type) *Type {
	if cond {
		return a
	}
	return b
}

func (p *Parser) parseStructOrUnion() *Type {
	isUnion := p.tok.Kind == KW_UNION
	p.advance() // struct/union
	tag := ""
	if p.at(TK_IDENT) {
		tag = p.tok.Name.String()
		p.advance()
	} else {
		p.anonTag++
		tag = fmt.Sprintf("$anon%d", p.anonTag)
	}
	t := StructType(tag, isUnion)
	if p.at(TK_LBRACE) {
		p.advance()
		var fields []Member
		for !p.at(TK_RBRACE) && !p.at(TK_EOF) {
			spec := p.parseDeclSpecs()
			for {
				ft, name := p.parseDeclarator(spec.base)
				bitWidth := 0
				if p.at(TK_COLON) {
					p.advance()
					bitWidth = int(p.expect(TK_LIT_INT).Int)
				}
				fields = append(fields, Member{Name: name, Type: ft, BitWidth: bitWidth})
				if p.at(TK_COMMA) {
					p.advance()
					continue
				}
				break
			}
			p.expect(TK_SEMI)
		}
		p.expect(TK_RBRACE)
		CompleteStruct(t, fields)
	}
	return t
}

func (p *Parser) parseEnum() *Type {
	p.advance() // enum
	if p.at(TK_IDENT) {
		p.advance()
	}
	if p.at(TK_LBRACE) {
		p.advance()
		var next int64 = 0
		for !p.at(TK_RBRACE) && !p.at(TK_EOF) {
			name := p.expect(TK_IDENT).Name.String()
			if p.at(TK_ASSIGN) {
				p.advance()
				next = p.parseConstExpr()
			}
			p.scope.Declare(&VarInfo{Name: name, Type: TInt, Storage: StorageEnumMember, EnumValue: next})
			next++
			if p.at(TK_COMMA) {
				p.advance()
				continue
			}
			break
		}
		p.expect(TK_RBRACE)
	}
	return TInt
}

// parseConstExpr evaluates a constant integer expression (array sizes,
// enum values) by parsing a conditional expression and requiring it fold
// to an IntLit; this compiler does not implement a general constant folder
// beyond what the parser needs.
func (p *Parser) parseConstExpr() int64 {
	e := p.parseConditional()
	if lit, ok := e.(*IntLit); ok {
		return lit.Value
	}
	p.errf("expected constant integer expression")
	return 0
}

// parseDeclarator parses `*...name[dims]` or `*...name(params)` around a
// base type, returning the full type and the declared name. Array
// dimensions in function-parameter position are kept here; parseParamList
// decays them to pointers, per spec.md section 4.2.
func (p *Parser) parseDeclarator(base *Type) (*Type, string) {
	t := base
	for p.at(TK_STAR) {
		p.advance()
		var q Qualifier
		for p.at(KW_CONST) || p.at(KW_VOLATILE) {
			if p.at(KW_CONST) {
				q |= QConst
			} else {
				q |= QVolatile
			}
			p.advance()
		}
		t = Qualify(PointerTo(t), q)
	}
	name := ""
	if p.at(TK_IDENT) {
		name = p.tok.Name.String()
		p.advance()
	}
	for p.at(TK_LBRACKET) {
		p.advance()
		count := -1
		if !p.at(TK_RBRACKET) {
			count = int(p.parseConstExpr())
		}
		p.expect(TK_RBRACKET)
		t = ArrayOf(t, count)
	}
	if p.at(TK_LPAREN) {
		params, vaargs := p.parseParamList()
		t = FunctionType(t, params, vaargs)
	}
	return t, name
}

func (p *Parser) parseParamList() ([]*Type, bool) {
	p.expect(TK_LPAREN)
	var params []*Type
	var names []string
	vaargs := false
	for !p.at(TK_RPAREN) {
		if p.at(TK_ELLIPSIS) {
			p.advance()
			vaargs = true
			break
		}
		spec := p.parseDeclSpecs()
		pt, name := p.parseDeclarator(spec.base)
		params = append(params, pt.Decay())
		names = append(names, name)
		if p.at(TK_COMMA) {
			p.advance()
			continue
		}
		break
	}
	p.expect(TK_RPAREN)
	p.lastParamNames = names
	return params, vaargs
}

// parseExternalDecl parses one top-level function definition/prototype or
// global variable declaration.
func (p *Parser) parseExternalDecl() {
	if p.at(KW_ASM) {
		p.unit.Decls = append(p.unit.Decls, &Asm{Text: p.parseAsmText()})
		return
	}
	spec := p.parseDeclSpecs()
	first := true
	for {
		t, name := p.parseDeclarator(spec.base)
		if name == "" {
			p.errf("expected declarator name")
			p.skipToSemi()
			return
		}
		if first && t.IsFunction() && p.at(TK_LBRACE) {
			p.parseFuncDef(name, t, spec.storage)
			return
		}
		vi := &VarInfo{Name: name, Type: t, Storage: spec.storage}
		if !p.global.Declare(vi) {
			p.errf("redeclaration of %q", name)
		}
		var init Expr
		if p.at(TK_ASSIGN) {
			p.advance()
			init = p.parseInitializer()
			vi.Init = init
		}
		p.unit.Decls = append(p.unit.Decls, &VarDecl{Vars: []*VarInfo{vi}, Inits: []Expr{init}})
		first = false
		if p.at(TK_COMMA) {
			p.advance()
			continue
		}
		break
	}
	p.expect(TK_SEMI)
}

func (p *Parser) skipToSemi() {
	for !p.at(TK_SEMI) && !p.at(TK_EOF) {
		p.advance()
	}
	if p.at(TK_SEMI) {
		p.advance()
	}
}

// parseInitializer parses a scalar expression or a brace-enclosed list,
// the latter becoming a CompoundLiteral the IR builder assigns field/
// element-wise (spec.md section 4.3, "Lvalue lowering").
func (p *Parser) parseInitializer() Expr {
	if p.at(TK_LBRACE) {
		tok := p.tok
		p.advance()
		var elems []Expr
		for !p.at(TK_RBRACE) && !p.at(TK_EOF) {
			elems = append(elems, p.parseInitializer())
			if p.at(TK_COMMA) {
				p.advance()
				continue
			}
			break
		}
		p.expect(TK_RBRACE)
		return &CompoundLiteral{ExprBase: ExprBase{Tok: tok}, Elems: elems}
	}
	return p.parseAssignment()
}

func (p *Parser) parseAsmText() string {
	p.advance() // asm
	p.expect(TK_LPAREN)
	text := ""
	if p.at(TK_LIT_STR) {
		text = string(p.tok.Str)
		p.advance()
	}
	p.expect(TK_RPAREN)
	p.expect(TK_SEMI)
	return text
}

func (p *Parser) parseFuncDef(name string, t *Type, storage StorageClass) {
	fn := &Func{Name: name, Type: t}
	vi := &VarInfo{Name: name, Type: t, Storage: storage}
	p.global.Declare(vi)

	fnScope := NewScope(p.global)
	fnScope.IsFunc = true
	p.scope = fnScope
	prevFunc := p.funcScope
	p.funcScope = fn
	fn.Scopes = append(fn.Scopes, fnScope)

	names := p.lastParamNames
	p.lastParamNames = nil
	for i, pt := range t.Params {
		pname := fmt.Sprintf("$arg%d", i)
		if i < len(names) && names[i] != "" {
			pname = names[i]
		}
		pv := &VarInfo{Name: pname, Type: pt, Storage: StorageParameter}
		fn.Params = append(fn.Params, pv)
		fnScope.Declare(pv)
	}

	fn.Block = p.parseBlockBody(fnScope)
	p.funcScope = prevFunc
	p.scope = p.global
	p.unit.Funcs = append(p.unit.Funcs, fn)
	p.unit.Decls = append(p.unit.Decls, fn)
}

// -----------------------------------------------------------------------------
// Statements

func (p *Parser) parseBlockBody(scope *Scope) *Block {
	p.expect(TK_LBRACE)
	b := &Block{Scope: scope}
	for !p.at(TK_RBRACE) && !p.at(TK_EOF) {
		b.Stmts = append(b.Stmts, p.parseStmt())
	}
	p.expect(TK_RBRACE)
	return b
}

func (p *Parser) parseBlock() *Block {
	scope := NewScope(p.scope)
	if p.funcScope != nil {
		p.funcScope.Scopes = append(p.funcScope.Scopes, scope)
	}
	prev := p.scope
	p.scope = scope
	b := p.parseBlockBody(scope)
	p.scope = prev
	return b
}

func (p *Parser) parseStmt() Stmt {
	switch p.tok.Kind {
	case TK_LBRACE:
		return p.parseBlock()
	case KW_IF:
		return p.parseIf()
	case KW_WHILE:
		return p.parseWhile()
	case KW_DO:
		return p.parseDoWhile()
	case KW_FOR:
		return p.parseFor()
	case KW_SWITCH:
		return p.parseSwitch()
	case KW_BREAK:
		p.advance()
		p.expect(TK_SEMI)
		return &Break{}
	case KW_CONTINUE:
		p.advance()
		p.expect(TK_SEMI)
		return &Continue{}
	case KW_RETURN:
		p.advance()
		var x Expr
		if !p.at(TK_SEMI) {
			x = p.parseExpr()
		}
		p.expect(TK_SEMI)
		return &Return{X: x}
	case KW_GOTO:
		p.advance()
		name := p.expect(TK_IDENT).Name.String()
		p.expect(TK_SEMI)
		return &Goto{Label: name}
	case KW_ASM:
		return &Asm{Text: p.parseAsmText()}
	case TK_SEMI:
		p.advance()
		return &ExprStmt{}
	default:
		if p.isTypeStart() {
			return p.parseLocalVarDecl()
		}
		if p.at(TK_IDENT) && p.peek2().Kind == TK_COLON {
			name := p.advance().Name.String()
			p.advance() // colon
			return &Label{Name: name, Stmt: p.parseStmt()}
		}
		x := p.parseExpr()
		p.expect(TK_SEMI)
		return &ExprStmt{X: x}
	}
}

func (p *Parser) parseLocalVarDecl() Stmt {
	spec := p.parseDeclSpecs()
	decl := &VarDecl{}
	for {
		t, name := p.parseDeclarator(spec.base)
		vi := &VarInfo{Name: name, Type: t, Storage: spec.storage}
		if !p.scope.Declare(vi) {
			p.errf("redeclaration of %q", name)
		}
		var init Expr
		if p.at(TK_ASSIGN) {
			p.advance()
			init = p.parseInitializer()
		}
		decl.Vars = append(decl.Vars, vi)
		decl.Inits = append(decl.Inits, init)
		if p.at(TK_COMMA) {
			p.advance()
			continue
		}
		break
	}
	p.expect(TK_SEMI)
	return decl
}

func (p *Parser) parseIf() Stmt {
	p.advance()
	p.expect(TK_LPAREN)
	cond := p.parseExpr()
	p.expect(TK_RPAREN)
	then := p.parseStmt()
	var els Stmt
	if p.at(KW_ELSE) {
		p.advance()
		els = p.parseStmt()
	}
	return &If{Cond: cond, Then: then, Else: els}
}

func (p *Parser) parseWhile() Stmt {
	p.advance()
	p.expect(TK_LPAREN)
	cond := p.parseExpr()
	p.expect(TK_RPAREN)
	body := p.parseStmt()
	return &While{Cond: cond, Body: body}
}

func (p *Parser) parseDoWhile() Stmt {
	p.advance()
	body := p.parseStmt()
	p.expect(KW_WHILE)
	p.expect(TK_LPAREN)
	cond := p.parseExpr()
	p.expect(TK_RPAREN)
	p.expect(TK_SEMI)
	return &DoWhile{Cond: cond, Body: body}
}

func (p *Parser) parseFor() Stmt {
	p.advance()
	p.expect(TK_LPAREN)
	scope := NewScope(p.scope)
	if p.funcScope != nil {
		p.funcScope.Scopes = append(p.funcScope.Scopes, scope)
	}
	prev := p.scope
	p.scope = scope

	var init Stmt
	if p.at(TK_SEMI) {
		p.advance()
	} else if p.isTypeStart() {
		init = p.parseLocalVarDecl()
	} else {
		x := p.parseExpr()
		p.expect(TK_SEMI)
		init = &ExprStmt{X: x}
	}
	var cond Expr
	if !p.at(TK_SEMI) {
		cond = p.parseExpr()
	}
	p.expect(TK_SEMI)
	var post Expr
	if !p.at(TK_RPAREN) {
		post = p.parseExpr()
	}
	p.expect(TK_RPAREN)
	body := p.parseStmt()
	p.scope = prev
	return &For{Init: init, Cond: cond, Post: post, Body: body}
}

func (p *Parser) parseSwitch() Stmt {
	p.advance()
	p.expect(TK_LPAREN)
	val := p.parseExpr()
	p.expect(TK_RPAREN)
	p.expect(TK_LBRACE)
	sw := &Switch{Value: val}
	for !p.at(TK_RBRACE) && !p.at(TK_EOF) {
		if p.at(KW_CASE) {
			p.advance()
			cv := p.parseConditional()
			p.expect(TK_COLON)
			c := &Case{Value: cv}
			for !p.at(KW_CASE) && !p.at(KW_DEFAULT) && !p.at(TK_RBRACE) {
				c.Stmts = append(c.Stmts, p.parseStmt())
			}
			sw.Cases = append(sw.Cases, c)
		} else if p.at(KW_DEFAULT) {
			p.advance()
			p.expect(TK_COLON)
			sw.HasDefault = true
			c := &Case{}
			for !p.at(KW_CASE) && !p.at(KW_DEFAULT) && !p.at(TK_RBRACE) {
				c.Stmts = append(c.Stmts, p.parseStmt())
			}
			sw.Cases = append(sw.Cases, c)
		} else {
			p.errf("expected case or default in switch body")
			p.advance()
		}
	}
	p.expect(TK_RBRACE)
	return sw
}

// -----------------------------------------------------------------------------
// Expressions: precedence-climbing ladder of spec.md section 4.2.

func (p *Parser) parseExpr() Expr {
	e := p.parseAssignment()
	if p.at(TK_COMMA) {
		tok := p.tok
		exprs := []Expr{e}
		for p.at(TK_COMMA) {
			p.advance()
			exprs = append(exprs, p.parseAssignment())
		}
		return &Comma{ExprBase: ExprBase{Tok: tok}, Exprs: exprs}
	}
	return e
}

func (p *Parser) parseAssignment() Expr {
	left := p.parseConditional()
	if p.at(TK_ASSIGN) {
		tok := p.advance()
		right := p.parseAssignment()
		return &Assign{ExprBase: ExprBase{Tok: tok}, Left: left, Right: right}
	}
	if p.tok.Kind.IsCompoundAssign() {
		op := p.tok.Kind.CompoundBase()
		tok := p.advance()
		right := p.parseAssignment()
		return &Modify{ExprBase: ExprBase{Tok: tok}, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseConditional() Expr {
	cond := p.parseLogicalOr()
	if p.at(TK_QUESTION) {
		tok := p.advance()
		then := p.parseExpr()
		p.expect(TK_COLON)
		els := p.parseConditional()
		return &Cond{ExprBase: ExprBase{Tok: tok}, Cond: cond, Then: then, Else: els}
	}
	return cond
}

func (p *Parser) parseLogicalOr() Expr {
	left := p.parseLogicalAnd()
	for p.at(TK_OROR) {
		tok := p.advance()
		right := p.parseLogicalAnd()
		left = &Logical{ExprBase: ExprBase{Tok: tok}, Op: TK_OROR, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseLogicalAnd() Expr {
	left := p.parseBitOr()
	for p.at(TK_ANDAND) {
		tok := p.advance()
		right := p.parseBitOr()
		left = &Logical{ExprBase: ExprBase{Tok: tok}, Op: TK_ANDAND, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseBitOr() Expr {
	left := p.parseBitXor()
	for p.at(TK_PIPE) {
		tok := p.advance()
		right := p.parseBitXor()
		left = &Binary{ExprBase: ExprBase{Tok: tok}, Op: TK_PIPE, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseBitXor() Expr {
	left := p.parseBitAnd()
	for p.at(TK_CARET) {
		tok := p.advance()
		right := p.parseBitAnd()
		left = &Binary{ExprBase: ExprBase{Tok: tok}, Op: TK_CARET, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseBitAnd() Expr {
	left := p.parseEquality()
	for p.at(TK_AMP) {
		tok := p.advance()
		right := p.parseEquality()
		left = &Binary{ExprBase: ExprBase{Tok: tok}, Op: TK_AMP, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseEquality() Expr {
	left := p.parseRelational()
	for p.at(TK_EQ) || p.at(TK_NE) {
		op := p.tok.Kind
		tok := p.advance()
		right := p.parseRelational()
		left = &Binary{ExprBase: ExprBase{Tok: tok}, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseRelational() Expr {
	left := p.parseShift()
	for p.at(TK_LT) || p.at(TK_LE) || p.at(TK_GT) || p.at(TK_GE) {
		op := p.tok.Kind
		tok := p.advance()
		right := p.parseShift()
		left = &Binary{ExprBase: ExprBase{Tok: tok}, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseShift() Expr {
	left := p.parseAdditive()
	for p.at(TK_SHL) || p.at(TK_SHR) {
		op := p.tok.Kind
		tok := p.advance()
		right := p.parseAdditive()
		left = &Binary{ExprBase: ExprBase{Tok: tok}, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseAdditive() Expr {
	left := p.parseMultiplicative()
	for p.at(TK_PLUS) || p.at(TK_MINUS) {
		op := p.tok.Kind
		tok := p.advance()
		right := p.parseMultiplicative()
		left = &Binary{ExprBase: ExprBase{Tok: tok}, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseMultiplicative() Expr {
	left := p.parseCast()
	for p.at(TK_STAR) || p.at(TK_SLASH) || p.at(TK_PERCENT) {
		op := p.tok.Kind
		tok := p.advance()
		right := p.parseCast()
		left = &Binary{ExprBase: ExprBase{Tok: tok}, Op: op, Left: left, Right: right}
	}
	return left
}

// isCastAhead reports whether `( type-name )` begins here, disambiguating
// a cast from a parenthesised expression.
func (p *Parser) isCastAhead() bool {
	if !p.at(TK_LPAREN) {
		return false
	}
	return p.peek2().Kind != TK_INVALID && p.peekIsTypeStartAt2()
}

func (p *Parser) peekIsTypeStartAt2() bool {
	switch p.next.Kind {
	case KW_VOID, KW_CHAR, KW_SHORT, KW_INT, KW_LONG, KW_FLOAT, KW_DOUBLE,
		KW_SIGNED, KW_UNSIGNED, KW_STRUCT, KW_UNION, KW_CONST, KW_VOLATILE, KW_ENUM:
		return true
	}
	return false
}

func (p *Parser) parseCast() Expr {
	if p.isCastAhead() {
		tok := p.tok
		p.advance() // (
		spec := p.parseDeclSpecs()
		t, _ := p.parseDeclarator(spec.base)
		p.expect(TK_RPAREN)
		if p.at(TK_LBRACE) {
			// Compound literal: (T){ ... }
			init := p.parseInitializer()
			cl := init.(*CompoundLiteral)
			cl.Tok = tok
			cl.Type = t
			return p.parsePostfixTail(cl)
		}
		operand := p.parseCast()
		return &Cast{ExprBase: ExprBase{Tok: tok, Type: t}, Operand: operand}
	}
	return p.parseUnary()
}

func (p *Parser) parseUnary() Expr {
	switch p.tok.Kind {
	case TK_PLUS:
		p.advance()
		return p.parseCast()
	case TK_MINUS, TK_TILDE, TK_BANG, TK_AMP, TK_STAR:
		op := p.tok.Kind
		tok := p.advance()
		operand := p.parseCast()
		return &Unary{ExprBase: ExprBase{Tok: tok}, Op: op, Operand: operand}
	case TK_INC, TK_DEC:
		op := p.tok.Kind
		tok := p.advance()
		operand := p.parseUnary()
		return &IncDec{ExprBase: ExprBase{Tok: tok}, Op: op, Target: operand, Post: false}
	case KW_SIZEOF:
		tok := p.advance()
		if p.at(TK_LPAREN) && p.peekIsTypeStartAt2() {
			p.advance()
			spec := p.parseDeclSpecs()
			t, _ := p.parseDeclarator(spec.base)
			p.expect(TK_RPAREN)
			return &IntLit{ExprBase: ExprBase{Tok: tok, Type: TULong}, Value: int64(t.Size())}
		}
		operand := p.parseUnary()
		return &IntLit{ExprBase: ExprBase{Tok: tok, Type: TULong}, Value: int64(sizeofExpr(operand))}
	default:
		return p.parsePostfix()
	}
}

// sizeofExpr returns a best-effort size for `sizeof expr` when the operand
// type isn't known until after type inference; callers that need the
// exact value after lowering re-evaluate against GetType().
func sizeofExpr(e Expr) int {
	if e.GetType() != nil {
		return e.GetType().Size()
	}
	return 0
}

func (p *Parser) parsePostfix() Expr {
	e := p.parsePrimary()
	return p.parsePostfixTail(e)
}

func (p *Parser) parsePostfixTail(e Expr) Expr {
	for {
		switch p.tok.Kind {
		case TK_LBRACKET:
			p.advance()
			idx := p.parseExpr()
			p.expect(TK_RBRACKET)
			e = &Index{ExprBase: ExprBase{Tok: e.Token()}, Target: e, Idx: idx}
		case TK_LPAREN:
			tok := p.advance()
			var args []Expr
			for !p.at(TK_RPAREN) {
				args = append(args, p.parseAssignment())
				if p.at(TK_COMMA) {
					p.advance()
					continue
				}
				break
			}
			p.expect(TK_RPAREN)
			e = &Call{ExprBase: ExprBase{Tok: tok}, Callee: e, Args: args}
		case TK_DOT:
			p.advance()
			field := p.expect(TK_IDENT).Name.String()
			e = &MemberExpr{ExprBase: ExprBase{Tok: e.Token()}, Target: e, Field: field, Arrow: false}
		case TK_ARROW:
			p.advance()
			field := p.expect(TK_IDENT).Name.String()
			e = &MemberExpr{ExprBase: ExprBase{Tok: e.Token()}, Target: e, Field: field, Arrow: true}
		case TK_INC, TK_DEC:
			op := p.tok.Kind
			tok := p.advance()
			e = &IncDec{ExprBase: ExprBase{Tok: tok}, Op: op, Target: e, Post: true}
		default:
			return e
		}
	}
}

func (p *Parser) parsePrimary() Expr {
	tok := p.tok
	switch p.tok.Kind {
	case TK_LIT_INT:
		p.advance()
		t := TInt
		if tok.IsL {
			t = TLong
		}
		if tok.IsU {
			if tok.IsL {
				t = TULong
			} else {
				t = TUInt
			}
		}
		return &IntLit{ExprBase: ExprBase{Tok: tok, Type: t}, Value: tok.Int}
	case TK_LIT_FLOAT:
		p.advance()
		t := TDouble
		if tok.IsF32 {
			t = TFloat
		}
		return &FloatLit{ExprBase: ExprBase{Tok: tok, Type: t}, Value: tok.Float}
	case TK_LIT_CHAR:
		p.advance()
		return &IntLit{ExprBase: ExprBase{Tok: tok, Type: TChar}, Value: tok.Int}
	case TK_LIT_STR:
		p.advance()
		return &StrLit{ExprBase: ExprBase{Tok: tok, Type: PointerTo(TChar)}, Value: tok.Str}
	case TK_IDENT:
		p.advance()
		name := tok.Name.String()
		vi, ok := p.scope.Lookup(name)
		if !ok {
			p.errf("undefined symbol %q", name)
		}
		id := &Ident{ExprBase: ExprBase{Tok: tok}, Name: name, Var: vi}
		if vi != nil {
			id.Type = vi.Type
		}
		return id
	case TK_LPAREN:
		p.advance()
		e := p.parseExpr()
		p.expect(TK_RPAREN)
		return e
	default:
		p.errf("unexpected token %v in expression", p.tok.Kind)
		p.advance()
		return &IntLit{ExprBase: ExprBase{Tok: tok, Type: TInt}}
	}
}
