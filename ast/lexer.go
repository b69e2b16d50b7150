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
	"strconv"
	"strings"

	"ccgo/diag"
)

// Lexer produces a lazy sequence of tokens from a byte stream, following
// falcon's byte-at-a-time reader shape (ast/lexer.go) but generalised to
// C's richer literal and punctuator grammar (spec.md section 4.1).
type Lexer struct {
	src    []byte
	pos    int
	line   int
	col    int
	bag    *diag.Bag
	file   string
}

func NewLexer(file string, src []byte, bag *diag.Bag) *Lexer {
	return &Lexer{src: src, line: 1, col: 1, bag: bag, file: file}
}

func (l *Lexer) peekByte() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekByteAt(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) advance() byte {
	b := l.peekByte()
	l.pos++
	if b == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return b
}

func (l *Lexer) errf(format string, args ...interface{}) {
	l.bag.Report(diag.LexError, l.line, l.col, format, args...)
}

func isDigit(b byte) bool      { return b >= '0' && b <= '9' }
func isHexDigit(b byte) bool   { return isDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F') }
func isIdentStart(b byte) bool { return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') }
func isIdentCont(b byte) bool  { return isIdentStart(b) || isDigit(b) }

// skipTrivia consumes whitespace, `//...\n` line comments, and `/*...*/`
// block comments.
func (l *Lexer) skipTrivia() {
	for {
		switch l.peekByte() {
		case ' ', '\t', '\r', '\n':
			l.advance()
		case '/':
			if l.peekByteAt(1) == '/' {
				for l.peekByte() != '\n' && l.peekByte() != 0 {
					l.advance()
				}
				continue
			}
			if l.peekByteAt(1) == '*' {
				l.advance()
				l.advance()
				for !(l.peekByte() == '*' && l.peekByteAt(1) == '/') {
					if l.peekByte() == 0 {
						l.errf("unterminated block comment")
						return
					}
					l.advance()
				}
				l.advance()
				l.advance()
				continue
			}
			return
		default:
			return
		}
	}
}

// Next returns the next token in the stream, TK_EOF at end of input.
func (l *Lexer) Next() Token {
	l.skipTrivia()
	startLine, startCol := l.line, l.col
	span := Span{startLine, startCol}

	b := l.peekByte()
	switch {
	case b == 0:
		return Token{Kind: TK_EOF, Span: span}
	case isIdentStart(b):
		return l.lexIdent(span)
	case isDigit(b):
		return l.lexNumber(span)
	case b == '"':
		return l.lexString(span)
	case b == '\'':
		return l.lexChar(span)
	default:
		return l.lexPunct(span)
	}
}

func (l *Lexer) lexIdent(span Span) Token {
	start := l.pos
	for isIdentCont(l.peekByte()) {
		l.advance()
	}
	text := string(l.src[start:l.pos])
	if kw, ok := Keywords[text]; ok {
		return Token{Kind: kw, Span: span, Name: Intern(text)}
	}
	return Token{Kind: TK_IDENT, Span: span, Name: Intern(text)}
}

// lexNumber accepts decimal, 0x-hex, 0-octal integers with optional
// u/l/ll suffixes, and double/float literals with an optional f suffix,
// per spec.md section 4.1.
func (l *Lexer) lexNumber(span Span) Token {
	start := l.pos
	if l.peekByte() == '0' && (l.peekByteAt(1) == 'x' || l.peekByteAt(1) == 'X') {
		l.advance()
		l.advance()
		for isHexDigit(l.peekByte()) {
			l.advance()
		}
		v, err := strconv.ParseUint(string(l.src[start+2:l.pos]), 16, 64)
		if err != nil {
			l.errf("malformed hex literal: %s", err)
		}
		tok := Token{Kind: TK_LIT_INT, Span: span, Int: int64(v)}
		l.lexIntSuffix(&tok)
		return tok
	}

	isFloat := false
	for isDigit(l.peekByte()) {
		l.advance()
	}
	if l.peekByte() == '.' && isDigit(l.peekByteAt(1)) {
		isFloat = true
		l.advance()
		for isDigit(l.peekByte()) {
			l.advance()
		}
	}
	if l.peekByte() == 'e' || l.peekByte() == 'E' {
		isFloat = true
		l.advance()
		if l.peekByte() == '+' || l.peekByte() == '-' {
			l.advance()
		}
		for isDigit(l.peekByte()) {
			l.advance()
		}
	}
	text := string(l.src[start:l.pos])
	if isFloat {
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			l.errf("malformed float literal: %s", err)
		}
		tok := Token{Kind: TK_LIT_FLOAT, Span: span, Float: v}
		if l.peekByte() == 'f' || l.peekByte() == 'F' {
			l.advance()
			tok.IsF32 = true
		}
		return tok
	}
	// Octal when the leading digit is 0 and there's more than one digit.
	base := 10
	if len(text) > 1 && text[0] == '0' {
		base = 8
	}
	v, err := strconv.ParseUint(text, base, 64)
	if err != nil {
		l.errf("malformed integer literal: %s", err)
	}
	tok := Token{Kind: TK_LIT_INT, Span: span, Int: int64(v)}
	l.lexIntSuffix(&tok)
	return tok
}

func (l *Lexer) lexIntSuffix(tok *Token) {
	for {
		switch l.peekByte() {
		case 'u', 'U':
			tok.IsU = true
			l.advance()
		case 'l', 'L':
			tok.IsL = true
			l.advance()
			if l.peekByte() == 'l' || l.peekByte() == 'L' {
				l.advance()
			}
		default:
			return
		}
	}
}

// lexEscape processes \n \t \r \0 \" \\ \xHH \OOO per spec.md section 4.1.
func (l *Lexer) lexEscape() byte {
	l.advance() // consume backslash
	b := l.advance()
	switch b {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case '"':
		return '"'
	case '\'':
		return '\''
	case '\\':
		return '\\'
	case 'x':
		start := l.pos
		for isHexDigit(l.peekByte()) {
			l.advance()
		}
		v, _ := strconv.ParseUint(string(l.src[start:l.pos]), 16, 8)
		return byte(v)
	default:
		if b >= '0' && b <= '7' {
			digits := []byte{b}
			for len(digits) < 3 && l.peekByte() >= '0' && l.peekByte() <= '7' {
				digits = append(digits, l.advance())
			}
			v, _ := strconv.ParseUint(string(digits), 8, 8)
			return byte(v)
		}
		l.errf("unknown escape sequence \\%c", b)
		return b
	}
}

func (l *Lexer) lexString(span Span) Token {
	l.advance() // opening quote
	var sb strings.Builder
	for l.peekByte() != '"' {
		if l.peekByte() == 0 {
			l.errf("unterminated string literal")
			break
		}
		if l.peekByte() == '\\' {
			sb.WriteByte(l.lexEscape())
			continue
		}
		sb.WriteByte(l.advance())
	}
	l.advance() // closing quote
	return Token{Kind: TK_LIT_STR, Span: span, Str: []byte(sb.String())}
}

func (l *Lexer) lexChar(span Span) Token {
	l.advance() // opening quote
	var v byte
	if l.peekByte() == '\\' {
		v = l.lexEscape()
	} else {
		v = l.advance()
	}
	if l.peekByte() == '\'' {
		l.advance()
	} else {
		l.errf("unterminated character literal")
	}
	return Token{Kind: TK_LIT_CHAR, Span: span, Int: int64(v)}
}

// punct3 and punct2 are ordered longest-first so greedy matching in
// lexPunct never needs backtracking (spec.md section 4.1).
var punct3 = []struct {
	text string
	kind TokenKind
}{
	{"...", TK_ELLIPSIS},
	{"<<=", TK_SHL_EQ},
	{">>=", TK_SHR_EQ},
}

var punct2 = []struct {
	text string
	kind TokenKind
}{
	{"==", TK_EQ}, {"!=", TK_NE}, {"<=", TK_LE}, {">=", TK_GE},
	{"<<", TK_SHL}, {">>", TK_SHR}, {"&&", TK_ANDAND}, {"||", TK_OROR},
	{"++", TK_INC}, {"--", TK_DEC}, {"->", TK_ARROW},
	{"+=", TK_PLUS_EQ}, {"-=", TK_MINUS_EQ}, {"*=", TK_STAR_EQ}, {"/=", TK_SLASH_EQ},
	{"%=", TK_PERCENT_EQ}, {"&=", TK_AMP_EQ}, {"|=", TK_PIPE_EQ}, {"^=", TK_CARET_EQ},
}

var punct1 = map[byte]TokenKind{
	'+': TK_PLUS, '-': TK_MINUS, '*': TK_STAR, '/': TK_SLASH, '%': TK_PERCENT,
	'&': TK_AMP, '|': TK_PIPE, '^': TK_CARET, '~': TK_TILDE, '!': TK_BANG,
	'=': TK_ASSIGN, '<': TK_LT, '>': TK_GT, '(': TK_LPAREN, ')': TK_RPAREN,
	'{': TK_LBRACE, '}': TK_RBRACE, '[': TK_LBRACKET, ']': TK_RBRACKET,
	';': TK_SEMI, ':': TK_COLON, ',': TK_COMMA, '.': TK_DOT, '?': TK_QUESTION,
}

func (l *Lexer) lexPunct(span Span) Token {
	rest := l.src[l.pos:]
	for _, p := range punct3 {
		if strings.HasPrefix(string(rest), p.text) {
			for range p.text {
				l.advance()
			}
			return Token{Kind: p.kind, Span: span}
		}
	}
	for _, p := range punct2 {
		if strings.HasPrefix(string(rest), p.text) {
			for range p.text {
				l.advance()
			}
			return Token{Kind: p.kind, Span: span}
		}
	}
	b := l.advance()
	if kind, ok := punct1[b]; ok {
		return Token{Kind: kind, Span: span}
	}
	l.errf("unexpected character %q", b)
	return Token{Kind: TK_INVALID, Span: span}
}

// TokenStream lexes src completely, for the "round-trip on tokens"
// testable property in spec.md section 8.
func TokenStream(file string, src []byte) ([]Token, *diag.Bag) {
	bag := diag.NewBag(file)
	lx := NewLexer(file, src, bag)
	var toks []Token
	for {
		t := lx.Next()
		toks = append(toks, t)
		if t.Kind == TK_EOF {
			break
		}
	}
	return toks, bag
}
