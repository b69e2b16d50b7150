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

// Lowerer runs after parsing to materialise string literals as anonymous
// static globals, the pass spec.md section 4.2 separates out from name
// resolution and implicit conversions (both already done by the parser
// against live scopes). Bit-field member accesses are not marked here:
// the IR builder recognises them from the field's Member.BitWidth.
// Compound-assignment desugaring into Modify is likewise done directly by
// the parser, which has the lvalue in hand at parse time and so never
// needs a later pass to avoid double-evaluating it.
type Lowerer struct {
	unit     *TranslationUnit
	strCount int
}

func Lower(unit *TranslationUnit) {
	l := &Lowerer{unit: unit}
	for _, fn := range unit.Funcs {
		if fn.Block != nil {
			l.lowerBlock(fn.Block)
		}
	}
	for _, d := range unit.Decls {
		if vd, ok := d.(*VarDecl); ok {
			for i, init := range vd.Inits {
				vd.Inits[i] = l.lowerExpr(init)
			}
		}
	}
}

func (l *Lowerer) lowerBlock(b *Block) {
	if b == nil {
		return
	}
	for i, s := range b.Stmts {
		b.Stmts[i] = l.lowerStmt(s)
	}
}

func (l *Lowerer) lowerStmt(s Stmt) Stmt {
	switch v := s.(type) {
	case *ExprStmt:
		v.X = l.lowerExpr(v.X)
	case *Block:
		l.lowerBlock(v)
	case *If:
		v.Cond = l.lowerExpr(v.Cond)
		v.Then = l.lowerStmt(v.Then)
		if v.Else != nil {
			v.Else = l.lowerStmt(v.Else)
		}
	case *Switch:
		v.Value = l.lowerExpr(v.Value)
		for _, c := range v.Cases {
			for i, cs := range c.Stmts {
				c.Stmts[i] = l.lowerStmt(cs)
			}
		}
	case *While:
		v.Cond = l.lowerExpr(v.Cond)
		v.Body = l.lowerStmt(v.Body)
	case *DoWhile:
		v.Cond = l.lowerExpr(v.Cond)
		v.Body = l.lowerStmt(v.Body)
	case *For:
		if v.Init != nil {
			v.Init = l.lowerStmt(v.Init)
		}
		if v.Cond != nil {
			v.Cond = l.lowerExpr(v.Cond)
		}
		if v.Post != nil {
			v.Post = l.lowerExpr(v.Post)
		}
		v.Body = l.lowerStmt(v.Body)
	case *Return:
		if v.X != nil {
			v.X = l.lowerExpr(v.X)
		}
	case *Label:
		v.Stmt = l.lowerStmt(v.Stmt)
	case *VarDecl:
		for i, init := range v.Inits {
			v.Inits[i] = l.lowerExpr(init)
		}
	}
	return s
}

// lowerExpr walks the expression tree, replacing StrLit nodes with the
// address of a synthesised anonymous static global holding the bytes (see
// hoistString). Every other node is lowered in place and returned as is.
func (l *Lowerer) lowerExpr(e Expr) Expr {
	switch v := e.(type) {
	case nil:
		return nil
	case *StrLit:
		return l.hoistString(v)
	case *MemberExpr:
		v.Target = l.lowerExpr(v.Target)
	case *Index:
		v.Target = l.lowerExpr(v.Target)
		v.Idx = l.lowerExpr(v.Idx)
	case *Unary:
		v.Operand = l.lowerExpr(v.Operand)
	case *Binary:
		v.Left = l.lowerExpr(v.Left)
		v.Right = l.lowerExpr(v.Right)
	case *Logical:
		v.Left = l.lowerExpr(v.Left)
		v.Right = l.lowerExpr(v.Right)
	case *Cond:
		v.Cond = l.lowerExpr(v.Cond)
		v.Then = l.lowerExpr(v.Then)
		v.Else = l.lowerExpr(v.Else)
	case *Assign:
		v.Left = l.lowerExpr(v.Left)
		v.Right = l.lowerExpr(v.Right)
	case *Modify:
		v.Left = l.lowerExpr(v.Left)
		v.Right = l.lowerExpr(v.Right)
	case *IncDec:
		v.Target = l.lowerExpr(v.Target)
	case *Cast:
		v.Operand = l.lowerExpr(v.Operand)
	case *Call:
		v.Callee = l.lowerExpr(v.Callee)
		for i, a := range v.Args {
			v.Args[i] = l.lowerExpr(a)
		}
	case *CompoundLiteral:
		for i, el := range v.Elems {
			v.Elems[i] = l.lowerExpr(el)
		}
	case *Comma:
		for i, el := range v.Exprs {
			v.Exprs[i] = l.lowerExpr(el)
		}
	case *BlockExpr:
		l.lowerBlock(v.Body)
	}
	return e
}

// hoistString creates a file-scope anonymous char-array global for a
// string literal and rewrites its use site to the global's address,
// matching falcon's constant-pool hoisting in compile/codegen. Each
// literal gets its own "$strN" global, numbered in the order the literals
// are met; identical strings are not merged into shared storage.
func (l *Lowerer) hoistString(s *StrLit) Expr {
	l.strCount++
	name := fmt.Sprintf("$str%d", l.strCount)
	arrType := ArrayOf(TChar, len(s.Value)+1)
	vi := &VarInfo{Name: name, Type: arrType, Storage: StorageStatic, Init: s}
	l.unit.Globals.Declare(vi)
	l.unit.Strings = append(l.unit.Strings, vi)

	id := &Ident{ExprBase: ExprBase{Tok: s.Tok, Type: arrType}, Name: name, Var: vi}
	return &Unary{ExprBase: ExprBase{Tok: s.Tok, Type: PointerTo(TChar)}, Op: TK_AMP, Operand: &Index{
		ExprBase: ExprBase{Tok: s.Tok, Type: TChar},
		Target:   id,
		Idx:      &IntLit{ExprBase: ExprBase{Tok: s.Tok, Type: TInt}, Value: 0},
	}}
}
