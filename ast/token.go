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

import "fmt"

type TokenKind int

const (
	TK_INVALID TokenKind = iota
	TK_EOF
	TK_IDENT
	TK_LIT_INT
	TK_LIT_FLOAT
	TK_LIT_STR
	TK_LIT_CHAR

	// Punctuators, greedy-longest-first in the lexer.
	TK_PLUS     // +
	TK_MINUS    // -
	TK_STAR     // *
	TK_SLASH    // /
	TK_PERCENT  // %
	TK_AMP      // &
	TK_PIPE     // |
	TK_CARET    // ^
	TK_TILDE    // ~
	TK_BANG     // !
	TK_ASSIGN   // =
	TK_LT       // <
	TK_GT       // >
	TK_LPAREN   // (
	TK_RPAREN   // )
	TK_LBRACE   // {
	TK_RBRACE   // }
	TK_LBRACKET // [
	TK_RBRACKET // ]
	TK_SEMI     // ;
	TK_COLON    // :
	TK_COMMA    // ,
	TK_DOT      // .
	TK_QUESTION // ?

	TK_EQ        // ==
	TK_NE        // !=
	TK_LE        // <=
	TK_GE        // >=
	TK_SHL       // <<
	TK_SHR       // >>
	TK_ANDAND    // &&
	TK_OROR      // ||
	TK_INC       // ++
	TK_DEC       // --
	TK_ARROW     // ->
	TK_ELLIPSIS  // ...
	TK_PLUS_EQ   // +=
	TK_MINUS_EQ  // -=
	TK_STAR_EQ   // *=
	TK_SLASH_EQ  // /=
	TK_PERCENT_EQ
	TK_AMP_EQ
	TK_PIPE_EQ
	TK_CARET_EQ
	TK_SHL_EQ // <<=
	TK_SHR_EQ // >>=

	// Keywords.
	KW_IF
	KW_ELSE
	KW_WHILE
	KW_DO
	KW_FOR
	KW_BREAK
	KW_CONTINUE
	KW_RETURN
	KW_GOTO
	KW_SWITCH
	KW_CASE
	KW_DEFAULT
	KW_STRUCT
	KW_UNION
	KW_SIZEOF
	KW_VOID
	KW_CHAR
	KW_SHORT
	KW_INT
	KW_LONG
	KW_FLOAT
	KW_DOUBLE
	KW_SIGNED
	KW_UNSIGNED
	KW_CONST
	KW_VOLATILE
	KW_STATIC
	KW_EXTERN
	KW_ENUM
	KW_ASM
)

var punctText = map[TokenKind]string{
	TK_PLUS: "+", TK_MINUS: "-", TK_STAR: "*", TK_SLASH: "/", TK_PERCENT: "%",
	TK_AMP: "&", TK_PIPE: "|", TK_CARET: "^", TK_TILDE: "~", TK_BANG: "!",
	TK_ASSIGN: "=", TK_LT: "<", TK_GT: ">", TK_LPAREN: "(", TK_RPAREN: ")",
	TK_LBRACE: "{", TK_RBRACE: "}", TK_LBRACKET: "[", TK_RBRACKET: "]",
	TK_SEMI: ";", TK_COLON: ":", TK_COMMA: ",", TK_DOT: ".", TK_QUESTION: "?",
	TK_EQ: "==", TK_NE: "!=", TK_LE: "<=", TK_GE: ">=", TK_SHL: "<<", TK_SHR: ">>",
	TK_ANDAND: "&&", TK_OROR: "||", TK_INC: "++", TK_DEC: "--", TK_ARROW: "->",
	TK_ELLIPSIS: "...", TK_PLUS_EQ: "+=", TK_MINUS_EQ: "-=", TK_STAR_EQ: "*=",
	TK_SLASH_EQ: "/=", TK_PERCENT_EQ: "%=", TK_AMP_EQ: "&=", TK_PIPE_EQ: "|=",
	TK_CARET_EQ: "^=", TK_SHL_EQ: "<<=", TK_SHR_EQ: ">>=",
}

var Keywords = map[string]TokenKind{
	"if": KW_IF, "else": KW_ELSE, "while": KW_WHILE, "do": KW_DO, "for": KW_FOR,
	"break": KW_BREAK, "continue": KW_CONTINUE, "return": KW_RETURN, "goto": KW_GOTO,
	"switch": KW_SWITCH, "case": KW_CASE, "default": KW_DEFAULT,
	"struct": KW_STRUCT, "union": KW_UNION, "sizeof": KW_SIZEOF,
	"void": KW_VOID, "char": KW_CHAR, "short": KW_SHORT, "int": KW_INT, "long": KW_LONG,
	"float": KW_FLOAT, "double": KW_DOUBLE, "signed": KW_SIGNED, "unsigned": KW_UNSIGNED,
	"const": KW_CONST, "volatile": KW_VOLATILE, "static": KW_STATIC, "extern": KW_EXTERN,
	"enum": KW_ENUM, "asm": KW_ASM,
}

func (k TokenKind) String() string {
	if s, ok := punctText[k]; ok {
		return s
	}
	for s, kw := range Keywords {
		if kw == k {
			return s
		}
	}
	switch k {
	case TK_INVALID:
		return "<invalid>"
	case TK_EOF:
		return "<eof>"
	case TK_IDENT:
		return "<identifier>"
	case TK_LIT_INT:
		return "<integer>"
	case TK_LIT_FLOAT:
		return "<float>"
	case TK_LIT_STR:
		return "<string>"
	case TK_LIT_CHAR:
		return "<char>"
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

func (k TokenKind) IsCmpOp() bool {
	switch k {
	case TK_EQ, TK_NE, TK_LT, TK_LE, TK_GT, TK_GE:
		return true
	}
	return false
}

func (k TokenKind) IsCompoundAssign() bool {
	switch k {
	case TK_PLUS_EQ, TK_MINUS_EQ, TK_STAR_EQ, TK_SLASH_EQ, TK_PERCENT_EQ,
		TK_AMP_EQ, TK_PIPE_EQ, TK_CARET_EQ, TK_SHL_EQ, TK_SHR_EQ:
		return true
	}
	return false
}

// CompoundBase returns the underlying binary operator for a compound
// assignment token, e.g. TK_PLUS_EQ -> TK_PLUS.
func (k TokenKind) CompoundBase() TokenKind {
	switch k {
	case TK_PLUS_EQ:
		return TK_PLUS
	case TK_MINUS_EQ:
		return TK_MINUS
	case TK_STAR_EQ:
		return TK_STAR
	case TK_SLASH_EQ:
		return TK_SLASH
	case TK_PERCENT_EQ:
		return TK_PERCENT
	case TK_AMP_EQ:
		return TK_AMP
	case TK_PIPE_EQ:
		return TK_PIPE
	case TK_CARET_EQ:
		return TK_CARET
	case TK_SHL_EQ:
		return TK_SHL
	case TK_SHR_EQ:
		return TK_SHR
	}
	return TK_INVALID
}

// Span is a source position: 1-based line and column, matching the lexer's
// counting convention in spec.md section 4.1.
type Span struct {
	Line, Col int
}

func (s Span) String() string { return fmt.Sprintf("%d:%d", s.Line, s.Col) }

// Token is the lexer's discriminated output value: a kind, a source span,
// and an immediate payload (spec.md section 3, "Token").
type Token struct {
	Kind  TokenKind
	Span  Span
	Name  *Name   // interned identifier/keyword text, when applicable
	Int   int64   // integer or character literal value
	Float float64 // floating literal value
	Str   []byte  // string literal bytes, after escape processing
	IsU   bool    // integer literal carries a u/U suffix
	IsL   bool    // integer literal carries an l/L or ll/LL suffix
	IsF32 bool    // floating literal carries an f/F suffix (truncate to float)
}

func (t Token) String() string {
	switch t.Kind {
	case TK_IDENT:
		return t.Name.String()
	case TK_LIT_INT:
		return fmt.Sprintf("%d", t.Int)
	case TK_LIT_FLOAT:
		return fmt.Sprintf("%g", t.Float)
	case TK_LIT_STR:
		return fmt.Sprintf("%q", string(t.Str))
	default:
		return t.Kind.String()
	}
}
