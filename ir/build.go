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
package ir

import (
	"ccgo/ast"
	"ccgo/diag"
)

// Builder lowers a parsed, lowered *ast.TranslationUnit into a Program.
// Every addressable storage location - every local, not only ones whose
// address is taken - lives in a stack frame slot addressed relative to
// the frame pointer; vregs hold only transient expression temporaries.
// This trades some avoidable loads/stores for scalars that never escape
// in exchange for never needing an escape-analysis prepass before
// building the CFG, the same stack-resident-locals model
// original_source/src/cc/parser.h uses for its own non-register-allocated
// frame layout (see DESIGN.md, ir package entry).
type Builder struct {
	bag *diag.Bag
	fn  *Function
	cur *BasicBlock

	frameCursor int // grows negative as locals are declared
	sretOffset  int64

	breakTargets    []int
	continueTargets []int

	labelBlocks  map[string]int
	pendingGotos []pendingGoto
}

type pendingGoto struct {
	block *BasicBlock
	instr int
	label string
}

// addr is an lvalue address: base == -1 means frame-relative (offset is
// the frame slot), base >= 0 means offset bytes from the address held in
// that vreg (a materialised global or pointer base).
type addr struct {
	base   int
	offset int64
	typ    *ast.Type
	field  *ast.Member // non-nil when this addr denotes a bit-field member
}

func BuildProgram(unit *ast.TranslationUnit, bag *diag.Bag) *Program {
	prog := &Program{}
	for _, name := range unit.Globals.Names() {
		vi, _ := unit.Globals.LookupLocal(name)
		if vi.Storage == ast.StorageEnumMember || vi.Type.IsFunction() {
			continue
		}
		prog.Globals = append(prog.Globals, &Global{
			Name:     vi.Name,
			Type:     vi.Type,
			Init:     vi.Init,
			BSS:      vi.Init == nil,
			Exported: vi.Storage != ast.StorageStatic,
		})
	}
	for _, fn := range unit.Funcs {
		if fn.Block == nil {
			continue // prototype only
		}
		prog.Funcs = append(prog.Funcs, buildFunction(fn, bag))
	}
	return prog
}

func valueKindOf(t *ast.Type) ValueKind {
	u := t.Unqualified()
	if u.IsFlonum() {
		if u.IsDouble {
			return VF64
		}
		return VF32
	}
	signed := u.IsFixnum() && u.Signed
	switch t.Size() {
	case 1:
		if signed {
			return VI8
		}
		return VU8
	case 2:
		if signed {
			return VI16
		}
		return VU16
	case 4:
		if signed {
			return VI32
		}
		return VU32
	default:
		if signed {
			return VI64
		}
		return VU64
	}
}

func buildFunction(fn *ast.Func, bag *diag.Bag) *Function {
	irf := &Function{Name: fn.Name, Exported: fn.Exported, StructRets: map[int]int{}}
	ret := fn.Type.Ret
	irf.HasRet = !ret.IsVoid()
	irf.SRet = ret.IsStruct()
	if irf.HasRet && !irf.SRet {
		irf.RetKind = valueKindOf(ret)
	}

	b := &Builder{bag: bag, fn: irf, labelBlocks: map[string]int{}}
	entry := irf.NewBlock()
	irf.Entry = entry.Index
	b.cur = entry

	if irf.SRet {
		sret := &ast.VarInfo{Name: "$sret", Type: ast.PointerTo(ast.TVoid)}
		b.declareParamFrame(sret)
		b.sretOffset = int64(sret.Frame.Offset)
	}
	for _, p := range fn.Params {
		b.declareParamFrame(p)
	}

	b.buildBlock(fn.Block)
	if irf.HasRet == false || len(b.cur.Instrs) == 0 || b.cur.Instrs[len(b.cur.Instrs)-1].Op != OpReturn {
		b.emit(Instr{Op: OpReturn, Src1: -1})
	}

	for _, g := range b.pendingGotos {
		if target, ok := b.labelBlocks[g.label]; ok {
			instr := g.block.Instrs[g.instr]
			instr.Target = target
			g.block.Instrs[g.instr] = instr
			irf.AddEdge(g.block.Index, target)
		} else {
			bag.Report(diag.SemanticError, 0, 0, "undefined label %q", g.label)
		}
	}

	irf.FrameSize = -b.frameCursor
	return irf
}

func (b *Builder) declareParamFrame(p *ast.VarInfo) {
	size := p.Type.Size()
	if size < 8 {
		size = 8
	}
	b.frameCursor -= size
	off := b.frameCursor
	p.Frame = &ast.FrameInfo{VReg: -1, Offset: off}
	vreg := b.fn.NewVReg(p.Type.Size(), p.Type.IsFlonum(), signedOf(p.Type))
	b.fn.Params = append(b.fn.Params, vreg)
	b.fn.ParamOffsets = append(b.fn.ParamOffsets, off)
}

func signedOf(t *ast.Type) bool {
	u := t.Unqualified()
	if u.IsFixnum() {
		return u.Signed
	}
	return false
}

func (b *Builder) emit(i Instr) int {
	idx := len(b.cur.Instrs)
	b.cur.Instrs = append(b.cur.Instrs, i)
	return idx
}

func (b *Builder) newBlock() *BasicBlock {
	return b.fn.NewBlock()
}

func (b *Builder) switchTo(blk *BasicBlock) { b.cur = blk }

// declareLocal reserves a frame slot for a local VarDecl entry.
func (b *Builder) declareLocal(vi *ast.VarInfo) {
	if vi.Storage == ast.StorageStatic {
		// function-local static: hoisted as its own global, addressed by
		// name like any other global rather than a frame slot.
		return
	}
	size := vi.Type.Size()
	align := vi.Type.Align()
	if align < 1 {
		align = 1
	}
	b.frameCursor -= size
	if rem := (-b.frameCursor) % align; rem != 0 {
		b.frameCursor -= align - rem
	}
	vi.Frame = &ast.FrameInfo{VReg: -1, Offset: b.frameCursor}
}

// -----------------------------------------------------------------------------
// Statements

func (b *Builder) buildBlock(blk *ast.Block) {
	for _, s := range blk.Stmts {
		b.buildStmt(s)
	}
}

func (b *Builder) buildStmt(s ast.Stmt) {
	switch v := s.(type) {
	case *ast.ExprStmt:
		if v.X != nil {
			b.buildExpr(v.X)
		}
	case *ast.Block:
		b.buildBlock(v)
	case *ast.VarDecl:
		for i, vi := range v.Vars {
			b.declareLocal(vi)
			if v.Inits[i] != nil {
				b.buildAssignTo(vi, v.Inits[i])
			}
		}
	case *ast.If:
		b.buildIf(v)
	case *ast.While:
		b.buildWhile(v)
	case *ast.DoWhile:
		b.buildDoWhile(v)
	case *ast.For:
		b.buildFor(v)
	case *ast.Switch:
		b.buildSwitch(v)
	case *ast.Break:
		if len(b.breakTargets) > 0 {
			target := b.breakTargets[len(b.breakTargets)-1]
			b.emit(Instr{Op: OpJump, Target: target})
			b.fn.AddEdge(b.cur.Index, target)
		}
	case *ast.Continue:
		if len(b.continueTargets) > 0 {
			target := b.continueTargets[len(b.continueTargets)-1]
			b.emit(Instr{Op: OpJump, Target: target})
			b.fn.AddEdge(b.cur.Index, target)
		}
	case *ast.Return:
		b.buildReturn(v)
	case *ast.Goto:
		idx := b.emit(Instr{Op: OpJump, Target: -1})
		b.pendingGotos = append(b.pendingGotos, pendingGoto{block: b.cur, instr: idx, label: v.Label})
	case *ast.Label:
		next := b.newBlock()
		b.emit(Instr{Op: OpJump, Target: next.Index})
		b.fn.AddEdge(b.cur.Index, next.Index)
		b.labelBlocks[v.Name] = next.Index
		b.switchTo(next)
		b.buildStmt(v.Stmt)
	case *ast.Asm:
		b.emit(Instr{Op: OpAsm, Text: v.Text})
	}
}

func (b *Builder) buildReturn(r *ast.Return) {
	if r.X == nil {
		b.emit(Instr{Op: OpReturn, Src1: -1})
		return
	}
	if b.fn.SRet {
		ptr := b.fn.NewVReg(8, false, false)
		b.emit(Instr{Op: OpLoad, Dst: ptr, Src1: -1, Imm: b.sretOffset})
		dst := addr{base: ptr, offset: 0, typ: r.X.GetType()}
		b.storeAggregate(dst, r.X)
		b.emit(Instr{Op: OpReturn, Src1: -1})
		return
	}
	v := b.buildExpr(r.X)
	b.emit(Instr{Op: OpReturn, Src1: v})
}

func (b *Builder) buildIf(s *ast.If) {
	thenBlk := b.newBlock()
	var elseBlk, joinBlk *BasicBlock
	if s.Else != nil {
		elseBlk = b.newBlock()
	}
	joinBlk = b.newBlock()
	elseTarget := joinBlk.Index
	if elseBlk != nil {
		elseTarget = elseBlk.Index
	}
	b.buildCond(s.Cond, thenBlk.Index, elseTarget)

	b.switchTo(thenBlk)
	b.buildStmt(s.Then)
	b.emit(Instr{Op: OpJump, Target: joinBlk.Index})
	b.fn.AddEdge(b.cur.Index, joinBlk.Index)

	if elseBlk != nil {
		b.switchTo(elseBlk)
		b.buildStmt(s.Else)
		b.emit(Instr{Op: OpJump, Target: joinBlk.Index})
		b.fn.AddEdge(b.cur.Index, joinBlk.Index)
	}
	b.switchTo(joinBlk)
}

func (b *Builder) buildWhile(s *ast.While) {
	head := b.newBlock()
	body := b.newBlock()
	after := b.newBlock()
	b.emit(Instr{Op: OpJump, Target: head.Index})
	b.fn.AddEdge(b.cur.Index, head.Index)

	b.switchTo(head)
	b.buildCond(s.Cond, body.Index, after.Index)

	b.breakTargets = append(b.breakTargets, after.Index)
	b.continueTargets = append(b.continueTargets, head.Index)
	b.switchTo(body)
	b.buildStmt(s.Body)
	b.emit(Instr{Op: OpJump, Target: head.Index})
	b.fn.AddEdge(b.cur.Index, head.Index)
	b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]
	b.continueTargets = b.continueTargets[:len(b.continueTargets)-1]

	b.switchTo(after)
}

func (b *Builder) buildDoWhile(s *ast.DoWhile) {
	body := b.newBlock()
	head := b.newBlock()
	after := b.newBlock()
	b.emit(Instr{Op: OpJump, Target: body.Index})
	b.fn.AddEdge(b.cur.Index, body.Index)

	b.breakTargets = append(b.breakTargets, after.Index)
	b.continueTargets = append(b.continueTargets, head.Index)
	b.switchTo(body)
	b.buildStmt(s.Body)
	b.emit(Instr{Op: OpJump, Target: head.Index})
	b.fn.AddEdge(b.cur.Index, head.Index)
	b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]
	b.continueTargets = b.continueTargets[:len(b.continueTargets)-1]

	b.switchTo(head)
	b.buildCond(s.Cond, body.Index, after.Index)

	b.switchTo(after)
}

func (b *Builder) buildFor(s *ast.For) {
	if s.Init != nil {
		b.buildStmt(s.Init)
	}
	head := b.newBlock()
	body := b.newBlock()
	post := b.newBlock()
	after := b.newBlock()
	b.emit(Instr{Op: OpJump, Target: head.Index})
	b.fn.AddEdge(b.cur.Index, head.Index)

	b.switchTo(head)
	if s.Cond != nil {
		b.buildCond(s.Cond, body.Index, after.Index)
	} else {
		b.emit(Instr{Op: OpJump, Target: body.Index})
		b.fn.AddEdge(b.cur.Index, body.Index)
	}

	b.breakTargets = append(b.breakTargets, after.Index)
	b.continueTargets = append(b.continueTargets, post.Index)
	b.switchTo(body)
	b.buildStmt(s.Body)
	b.emit(Instr{Op: OpJump, Target: post.Index})
	b.fn.AddEdge(b.cur.Index, post.Index)
	b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]
	b.continueTargets = b.continueTargets[:len(b.continueTargets)-1]

	b.switchTo(post)
	if s.Post != nil {
		b.buildExpr(s.Post)
	}
	b.emit(Instr{Op: OpJump, Target: head.Index})
	b.fn.AddEdge(b.cur.Index, head.Index)

	b.switchTo(after)
}

// buildSwitch lowers to a linear compare-and-branch chain against the
// switch value, in source order, falling through between arms exactly
// like C's fallthrough semantics; the dense-case jump-table optimisation
// OpTableJump exists for is not attempted here (see DESIGN.md).
func (b *Builder) buildSwitch(s *ast.Switch) {
	val := b.buildExpr(s.Value)
	after := b.newBlock()
	b.breakTargets = append(b.breakTargets, after.Index)

	var caseBlocks []*BasicBlock
	for range s.Cases {
		caseBlocks = append(caseBlocks, b.newBlock())
	}

	dispatch := b.cur
	for i, c := range s.Cases {
		if c.Value == nil {
			continue // default handled in the fallback jump below
		}
		b.switchTo(dispatch)
		cv := b.buildExpr(c.Value)
		next := b.newBlock()
		cmpDst := b.fn.NewVReg(4, false, true)
		b.emit(Instr{Op: OpCmp, Dst: cmpDst, Src1: val, Src2: cv, Cond: CEq})
		b.emit(Instr{Op: OpCondJump, Src1: cmpDst, Target: caseBlocks[i].Index, Else: next.Index})
		b.fn.AddEdge(b.cur.Index, caseBlocks[i].Index)
		b.fn.AddEdge(b.cur.Index, next.Index)
		dispatch = next
	}
	b.switchTo(dispatch)
	defaultTarget := after.Index
	for i, c := range s.Cases {
		if c.Value == nil {
			defaultTarget = caseBlocks[i].Index
		}
	}
	b.emit(Instr{Op: OpJump, Target: defaultTarget})
	b.fn.AddEdge(b.cur.Index, defaultTarget)

	for i, c := range s.Cases {
		b.switchTo(caseBlocks[i])
		for _, cs := range c.Stmts {
			b.buildStmt(cs)
		}
		nextIdx := after.Index
		if i+1 < len(caseBlocks) {
			nextIdx = caseBlocks[i+1].Index
		}
		b.emit(Instr{Op: OpJump, Target: nextIdx})
		b.fn.AddEdge(b.cur.Index, nextIdx)
	}

	b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]
	b.switchTo(after)
}

// buildCond evaluates a boolean-context expression and branches directly,
// special-casing Logical so short-circuit && / || never materialise an
// intermediate 0/1 value (spec.md section 4.3, "short-circuit evaluation").
func (b *Builder) buildCond(e ast.Expr, thenIdx, elseIdx int) {
	if lg, ok := e.(*ast.Logical); ok {
		if lg.Op == ast.TK_ANDAND {
			mid := b.newBlock()
			b.buildCond(lg.Left, mid.Index, elseIdx)
			b.switchTo(mid)
			b.buildCond(lg.Right, thenIdx, elseIdx)
			return
		}
		mid := b.newBlock()
		b.buildCond(lg.Left, thenIdx, mid.Index)
		b.switchTo(mid)
		b.buildCond(lg.Right, thenIdx, elseIdx)
		return
	}
	if un, ok := e.(*ast.Unary); ok && un.Op == ast.TK_BANG {
		b.buildCond(un.Operand, elseIdx, thenIdx)
		return
	}
	v := b.buildExpr(e)
	b.emit(Instr{Op: OpCondJump, Src1: v, Target: thenIdx, Else: elseIdx})
	b.fn.AddEdge(b.cur.Index, thenIdx)
	b.fn.AddEdge(b.cur.Index, elseIdx)
}

// -----------------------------------------------------------------------------
// Lvalues

func (b *Builder) addressOf(e ast.Expr) addr {
	switch v := e.(type) {
	case *ast.Ident:
		vi := v.Var
		if vi.Storage == ast.StorageStatic && vi.Frame == nil {
			base := b.fn.NewVReg(8, false, false)
			b.emit(Instr{Op: OpBofs, Dst: base, Sym: vi.Name})
			return addr{base: base, offset: 0, typ: vi.Type}
		}
		if vi.Storage == ast.StorageExtern {
			base := b.fn.NewVReg(8, false, false)
			b.emit(Instr{Op: OpBofs, Dst: base, Sym: vi.Name})
			return addr{base: base, offset: 0, typ: vi.Type}
		}
		return addr{base: -1, offset: int64(vi.Frame.Offset), typ: vi.Type}
	case *ast.Index:
		elem := v.Target.GetType().Unqualified().Elem
		var baseAddr int
		if v.Target.GetType().Unqualified().IsArray() {
			baseAddr = b.materialize(b.addressOf(v.Target))
		} else {
			baseAddr = b.buildExpr(v.Target)
		}
		idx := b.buildExpr(v.Idx)
		scaled := b.scaleIndex(idx, elem.Size())
		sum := b.fn.NewVReg(8, false, false)
		b.emit(Instr{Op: OpBinary, Dst: sum, Src1: baseAddr, Src2: scaled, BinOp: BAdd})
		return addr{base: sum, offset: 0, typ: elem}
	case *ast.MemberExpr:
		f, _ := v.Target.GetType().Unqualified().Field(v.Field)
		if v.Arrow {
			ptrElem := v.Target.GetType().Unqualified().Elem
			f2, _ := ptrElem.Field(v.Field)
			f = f2
			base := b.buildExpr(v.Target)
			a := addr{base: base, offset: int64(f.Offset), typ: f.Type}
			if f.BitWidth > 0 {
				a.field = &f
			}
			return a
		}
		inner := b.addressOf(v.Target)
		inner.offset += int64(f.Offset)
		inner.typ = f.Type
		if f.BitWidth > 0 {
			fc := f
			inner.field = &fc
		} else {
			inner.field = nil
		}
		return inner
	case *ast.Unary:
		if v.Op == ast.TK_STAR {
			base := b.buildExpr(v.Operand)
			return addr{base: base, offset: 0, typ: v.GetType()}
		}
	}
	b.bag.Report(diag.IRError, 0, 0, "expression is not an lvalue")
	return addr{base: -1, offset: 0, typ: ast.TInt}
}

func (b *Builder) materialize(a addr) int {
	if a.base == -1 {
		dst := b.fn.NewVReg(8, false, false)
		b.emit(Instr{Op: OpSofs, Dst: dst, Imm: a.offset})
		return dst
	}
	if a.offset == 0 {
		return a.base
	}
	imm := b.fn.NewVReg(8, false, true)
	b.emit(Instr{Op: OpLoadConst, Dst: imm, Imm: a.offset})
	dst := b.fn.NewVReg(8, false, false)
	b.emit(Instr{Op: OpBinary, Dst: dst, Src1: a.base, Src2: imm, BinOp: BAdd})
	return dst
}

// scaleIndex multiplies an integer index by an element size for pointer
// arithmetic, per spec.md section 4.2 ("p + i scales i by sizeof *p").
func (b *Builder) scaleIndex(idx int, elemSize int) int {
	if elemSize == 1 {
		return idx
	}
	imm := b.fn.NewVReg(8, false, true)
	b.emit(Instr{Op: OpLoadConst, Dst: imm, Imm: int64(elemSize)})
	dst := b.fn.NewVReg(8, false, false)
	b.emit(Instr{Op: OpBinary, Dst: dst, Src1: idx, Src2: imm, BinOp: BMul})
	return dst
}

func (b *Builder) loadAddr(a addr) int {
	if a.field != nil {
		return b.loadBitfield(a)
	}
	vk := valueKindOf(a.typ)
	dst := b.fn.NewVReg(a.typ.Size(), a.typ.IsFlonum(), signedOf(a.typ))
	b.emit(Instr{Op: OpLoad, Dst: dst, Src1: a.base, Imm: a.offset, CastTo: vk})
	return dst
}

func (b *Builder) storeAddr(a addr, val int) {
	if a.field != nil {
		b.storeBitfield(a, val)
		return
	}
	b.emit(Instr{Op: OpStore, Dst: a.base, Src1: val, Imm: a.offset})
}

// loadBitfield reads the storage unit, shifts the field into bit 0, and
// masks it to width, per spec.md section 4.3 "Bit-fields".
func (b *Builder) loadBitfield(a addr) int {
	unit := b.fn.NewVReg(4, false, false)
	b.emit(Instr{Op: OpLoad, Dst: unit, Src1: a.base, Imm: a.offset})
	shiftImm := b.fn.NewVReg(4, false, true)
	b.emit(Instr{Op: OpLoadConst, Dst: shiftImm, Imm: int64(a.field.BitOffset)})
	shifted := b.fn.NewVReg(4, false, false)
	b.emit(Instr{Op: OpBinary, Dst: shifted, Src1: unit, Src2: shiftImm, BinOp: BShr})
	maskImm := b.fn.NewVReg(4, false, true)
	mask := int64(1)<<uint(a.field.BitWidth) - 1
	b.emit(Instr{Op: OpLoadConst, Dst: maskImm, Imm: mask})
	dst := b.fn.NewVReg(4, false, signedOf(a.field.Type))
	b.emit(Instr{Op: OpBinary, Dst: dst, Src1: shifted, Src2: maskImm, BinOp: BAnd})
	return dst
}

func (b *Builder) storeBitfield(a addr, val int) {
	unit := b.fn.NewVReg(4, false, false)
	b.emit(Instr{Op: OpLoad, Dst: unit, Src1: a.base, Imm: a.offset})
	mask := int64(1)<<uint(a.field.BitWidth) - 1
	clearMaskImm := b.fn.NewVReg(4, false, true)
	b.emit(Instr{Op: OpLoadConst, Dst: clearMaskImm, Imm: ^(mask << uint(a.field.BitOffset))})
	cleared := b.fn.NewVReg(4, false, false)
	b.emit(Instr{Op: OpBinary, Dst: cleared, Src1: unit, Src2: clearMaskImm, BinOp: BAnd})
	maskImm := b.fn.NewVReg(4, false, true)
	b.emit(Instr{Op: OpLoadConst, Dst: maskImm, Imm: mask})
	masked := b.fn.NewVReg(4, false, false)
	b.emit(Instr{Op: OpBinary, Dst: masked, Src1: val, Src2: maskImm, BinOp: BAnd})
	shiftImm := b.fn.NewVReg(4, false, true)
	b.emit(Instr{Op: OpLoadConst, Dst: shiftImm, Imm: int64(a.field.BitOffset)})
	shifted := b.fn.NewVReg(4, false, false)
	b.emit(Instr{Op: OpBinary, Dst: shifted, Src1: masked, Src2: shiftImm, BinOp: BShl})
	result := b.fn.NewVReg(4, false, false)
	b.emit(Instr{Op: OpBinary, Dst: result, Src1: cleared, Src2: shifted, BinOp: BOr})
	b.emit(Instr{Op: OpStore, Dst: a.base, Src1: result, Imm: a.offset})
}

// buildAssignTo stores the value of rhs into vi's storage, used for
// VarDecl initialisers.
func (b *Builder) buildAssignTo(vi *ast.VarInfo, rhs ast.Expr) {
	a := b.lvalueOfVar(vi)
	if vi.Type.IsStruct() || vi.Type.IsArray() {
		b.storeAggregate(a, rhs)
		return
	}
	v := b.buildExpr(rhs)
	b.storeAddr(a, v)
}

func (b *Builder) lvalueOfVar(vi *ast.VarInfo) addr {
	if vi.Storage == ast.StorageStatic || vi.Storage == ast.StorageExtern {
		base := b.fn.NewVReg(8, false, false)
		b.emit(Instr{Op: OpBofs, Dst: base, Sym: vi.Name})
		return addr{base: base, offset: 0, typ: vi.Type}
	}
	return addr{base: -1, offset: int64(vi.Frame.Offset), typ: vi.Type}
}

// storeAggregate assigns a struct/array value field-by-field (or, for a
// brace initialiser, element-by-element), the "struct assignment lowers
// to a memcpy-shaped sequence of scalar moves" rule of spec.md section
// 4.3; it never calls an actual memcpy since aggregate sizes are always
// compile-time constants here.
func (b *Builder) storeAggregate(dst addr, rhs ast.Expr) {
	if cl, ok := rhs.(*ast.CompoundLiteral); ok {
		t := dst.typ
		if t.IsStruct() {
			for i, el := range cl.Elems {
				if i >= len(t.Fields) {
					break
				}
				f := t.Fields[i]
				fieldAddr := addr{base: dst.base, offset: dst.offset + int64(f.Offset), typ: f.Type}
				if f.Type.IsStruct() || f.Type.IsArray() {
					b.storeAggregate(fieldAddr, el)
				} else {
					b.storeAddr(fieldAddr, b.buildExpr(el))
				}
			}
		} else if t.IsArray() {
			elemSize := int64(t.Elem.Size())
			for i, el := range cl.Elems {
				elAddr := addr{base: dst.base, offset: dst.offset + int64(i)*elemSize, typ: t.Elem}
				if t.Elem.IsStruct() || t.Elem.IsArray() {
					b.storeAggregate(elAddr, el)
				} else {
					b.storeAddr(elAddr, b.buildExpr(el))
				}
			}
		}
		return
	}
	// whole-aggregate copy from another lvalue of the same type
	src := b.addressOf(rhs)
	size := dst.typ.Size()
	var off int64
	for off < int64(size) {
		chunk := int64(8)
		for off+chunk > int64(size) {
			chunk /= 2
		}
		tmpTy := sizedType(int(chunk))
		v := b.fn.NewVReg(int(chunk), false, false)
		b.emit(Instr{Op: OpLoad, Dst: v, Src1: src.base, Imm: src.offset + off})
		b.emit(Instr{Op: OpStore, Dst: dst.base, Src1: v, Imm: dst.offset + off})
		_ = tmpTy
		off += chunk
	}
}

func sizedType(n int) *ast.Type {
	switch n {
	case 1:
		return ast.TUChar
	case 2:
		return ast.TUShort
	case 4:
		return ast.TUInt
	default:
		return ast.TULong
	}
}

// -----------------------------------------------------------------------------
// Expressions

func (b *Builder) buildExpr(e ast.Expr) int {
	switch v := e.(type) {
	case *ast.IntLit:
		dst := b.fn.NewVReg(maxInt(v.GetType().Size(), 4), false, signedOf(v.GetType()))
		b.emit(Instr{Op: OpLoadConst, Dst: dst, Imm: v.Value})
		return dst
	case *ast.FloatLit:
		dst := b.fn.NewVReg(v.GetType().Size(), true, false)
		b.emit(Instr{Op: OpLoadConst, Dst: dst, FImm: v.Value})
		return dst
	case *ast.Ident:
		if v.Var.Storage == ast.StorageEnumMember {
			dst := b.fn.NewVReg(4, false, true)
			b.emit(Instr{Op: OpLoadConst, Dst: dst, Imm: v.Var.EnumValue})
			return dst
		}
		if v.Var.Type.IsArray() {
			a := b.addressOf(v)
			return b.materialize(a)
		}
		return b.loadAddr(b.addressOf(v))
	case *ast.MemberExpr:
		a := b.addressOf(v)
		if a.typ.IsArray() {
			return b.materialize(a)
		}
		return b.loadAddr(a)
	case *ast.Index:
		a := b.addressOf(v)
		if a.typ.IsArray() {
			return b.materialize(a)
		}
		return b.loadAddr(a)
	case *ast.Unary:
		return b.buildUnary(v)
	case *ast.Binary:
		return b.buildBinary(v)
	case *ast.Logical:
		return b.buildLogical(v)
	case *ast.Cond:
		return b.buildTernary(v)
	case *ast.Assign:
		return b.buildAssign(v)
	case *ast.Modify:
		return b.buildModify(v)
	case *ast.IncDec:
		return b.buildIncDec(v)
	case *ast.Cast:
		return b.buildCast(v)
	case *ast.Call:
		return b.buildCall(v)
	case *ast.Comma:
		var last int
		for _, x := range v.Exprs {
			last = b.buildExpr(x)
		}
		return last
	case *ast.CompoundLiteral:
		b.frameCursor -= v.GetType().Size()
		if rem := (-b.frameCursor) % v.GetType().Align(); rem != 0 {
			b.frameCursor -= v.GetType().Align() - rem
		}
		a := addr{base: -1, offset: int64(b.frameCursor), typ: v.GetType()}
		b.storeAggregate(a, v)
		return b.materialize(a)
	case *ast.BlockExpr:
		var last int
		for _, s := range v.Body.Stmts {
			if es, ok := s.(*ast.ExprStmt); ok && es.X != nil {
				last = b.buildExpr(es.X)
			} else {
				b.buildStmt(s)
			}
		}
		return last
	}
	b.bag.Report(diag.IRError, 0, 0, "unsupported expression %v", e)
	return b.fn.NewVReg(4, false, true)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (b *Builder) buildUnary(v *ast.Unary) int {
	switch v.Op {
	case ast.TK_AMP:
		a := b.addressOf(v.Operand)
		return b.materialize(a)
	case ast.TK_STAR:
		val := b.buildExpr(v.Operand)
		a := addr{base: val, offset: 0, typ: v.GetType()}
		if a.typ.IsArray() {
			return val
		}
		return b.loadAddr(a)
	case ast.TK_MINUS:
		x := b.buildExpr(v.Operand)
		dst := b.fn.NewVReg(v.GetType().Size(), v.GetType().IsFlonum(), signedOf(v.GetType()))
		b.emit(Instr{Op: OpUnary, Dst: dst, Src1: x, UnOp: UNeg})
		return dst
	case ast.TK_TILDE:
		x := b.buildExpr(v.Operand)
		dst := b.fn.NewVReg(v.GetType().Size(), false, signedOf(v.GetType()))
		b.emit(Instr{Op: OpUnary, Dst: dst, Src1: x, UnOp: UNot})
		return dst
	case ast.TK_BANG:
		x := b.buildExpr(v.Operand)
		dst := b.fn.NewVReg(4, false, true)
		b.emit(Instr{Op: OpUnary, Dst: dst, Src1: x, UnOp: ULNot})
		return dst
	}
	b.bag.Report(diag.IRError, 0, 0, "unsupported unary operator %v", v.Op)
	return b.fn.NewVReg(4, false, true)
}

func binOpOf(k ast.TokenKind) (BinOp, bool) {
	switch k {
	case ast.TK_PLUS:
		return BAdd, true
	case ast.TK_MINUS:
		return BSub, true
	case ast.TK_STAR:
		return BMul, true
	case ast.TK_SLASH:
		return BDiv, true
	case ast.TK_PERCENT:
		return BMod, true
	case ast.TK_AMP:
		return BAnd, true
	case ast.TK_PIPE:
		return BOr, true
	case ast.TK_CARET:
		return BXor, true
	case ast.TK_SHL:
		return BShl, true
	case ast.TK_SHR:
		return BShr, true
	}
	return 0, false
}

func condOf(k ast.TokenKind) (Cond, bool) {
	switch k {
	case ast.TK_EQ:
		return CEq, true
	case ast.TK_NE:
		return CNe, true
	case ast.TK_LT:
		return CLt, true
	case ast.TK_LE:
		return CLe, true
	case ast.TK_GT:
		return CGt, true
	case ast.TK_GE:
		return CGe, true
	}
	return 0, false
}

func (b *Builder) buildBinary(v *ast.Binary) int {
	// pointer +/- integer scales the integer operand by the pointee size.
	if v.Op == ast.TK_PLUS || v.Op == ast.TK_MINUS {
		lt, rt := v.Left.GetType().Unqualified(), v.Right.GetType().Unqualified()
		if lt.IsPointer() && rt.IsFixnum() {
			base := b.buildExpr(v.Left)
			idx := b.buildExpr(v.Right)
			scaled := b.scaleIndex(idx, lt.Elem.Size())
			dst := b.fn.NewVReg(8, false, false)
			op := BAdd
			if v.Op == ast.TK_MINUS {
				op = BSub
			}
			b.emit(Instr{Op: OpBinary, Dst: dst, Src1: base, Src2: scaled, BinOp: op})
			return dst
		}
		if lt.IsPointer() && rt.IsPointer() && v.Op == ast.TK_MINUS {
			lp := b.buildExpr(v.Left)
			rp := b.buildExpr(v.Right)
			diff := b.fn.NewVReg(8, false, true)
			b.emit(Instr{Op: OpBinary, Dst: diff, Src1: lp, Src2: rp, BinOp: BSub})
			sizeImm := b.fn.NewVReg(8, false, true)
			b.emit(Instr{Op: OpLoadConst, Dst: sizeImm, Imm: int64(lt.Elem.Size())})
			dst := b.fn.NewVReg(8, false, true)
			b.emit(Instr{Op: OpBinary, Dst: dst, Src1: diff, Src2: sizeImm, BinOp: BDiv})
			return dst
		}
	}
	if cond, ok := condOf(v.Op); ok {
		l := b.buildExpr(v.Left)
		r := b.buildExpr(v.Right)
		dst := b.fn.NewVReg(4, false, true)
		b.emit(Instr{Op: OpCmp, Dst: dst, Src1: l, Src2: r, Cond: cond})
		return dst
	}
	op, ok := binOpOf(v.Op)
	if !ok {
		b.bag.Report(diag.IRError, 0, 0, "unsupported binary operator %v", v.Op)
		return b.fn.NewVReg(4, false, true)
	}
	l := b.buildExpr(v.Left)
	r := b.buildExpr(v.Right)
	dst := b.fn.NewVReg(v.GetType().Size(), v.GetType().IsFlonum(), signedOf(v.GetType()))
	b.emit(Instr{Op: OpBinary, Dst: dst, Src1: l, Src2: r, BinOp: op})
	return dst
}

// buildLogical materialises && / || to a 0/1 value via buildCond plus a
// diamond of constant assignments, for contexts using the result as a
// value rather than as a branch condition (e.g. `int ok = a && b;`).
func (b *Builder) buildLogical(v *ast.Logical) int {
	thenBlk := b.newBlock()
	elseBlk := b.newBlock()
	join := b.newBlock()
	b.buildCond(v, thenBlk.Index, elseBlk.Index)

	dst := b.fn.NewVReg(4, false, true)
	b.switchTo(thenBlk)
	one := b.fn.NewVReg(4, false, true)
	b.emit(Instr{Op: OpLoadConst, Dst: one, Imm: 1})
	b.emit(Instr{Op: OpMov, Dst: dst, Src1: one})
	b.emit(Instr{Op: OpJump, Target: join.Index})
	b.fn.AddEdge(b.cur.Index, join.Index)

	b.switchTo(elseBlk)
	zero := b.fn.NewVReg(4, false, true)
	b.emit(Instr{Op: OpLoadConst, Dst: zero, Imm: 0})
	b.emit(Instr{Op: OpMov, Dst: dst, Src1: zero})
	b.emit(Instr{Op: OpJump, Target: join.Index})
	b.fn.AddEdge(b.cur.Index, join.Index)

	b.switchTo(join)
	return dst
}

func (b *Builder) buildTernary(v *ast.Cond) int {
	thenBlk := b.newBlock()
	elseBlk := b.newBlock()
	join := b.newBlock()
	b.buildCond(v.Cond, thenBlk.Index, elseBlk.Index)

	dst := b.fn.NewVReg(v.GetType().Size(), v.GetType().IsFlonum(), signedOf(v.GetType()))
	b.switchTo(thenBlk)
	tv := b.buildExpr(v.Then)
	b.emit(Instr{Op: OpMov, Dst: dst, Src1: tv})
	b.emit(Instr{Op: OpJump, Target: join.Index})
	b.fn.AddEdge(b.cur.Index, join.Index)

	b.switchTo(elseBlk)
	ev := b.buildExpr(v.Else)
	b.emit(Instr{Op: OpMov, Dst: dst, Src1: ev})
	b.emit(Instr{Op: OpJump, Target: join.Index})
	b.fn.AddEdge(b.cur.Index, join.Index)

	b.switchTo(join)
	return dst
}

func (b *Builder) buildAssign(v *ast.Assign) int {
	if v.GetType().IsStruct() || v.GetType().IsArray() {
		a := b.addressOf(v.Left)
		b.storeAggregate(a, v.Right)
		return b.materialize(a)
	}
	a := b.addressOf(v.Left)
	val := b.buildExpr(v.Right)
	b.storeAddr(a, val)
	return val
}

func (b *Builder) buildModify(v *ast.Modify) int {
	a := b.addressOf(v.Left)
	cur := b.loadAddr(a)
	rhs := b.buildExpr(v.Right)
	op, _ := binOpOf(v.Op)
	dst := b.fn.NewVReg(a.typ.Size(), a.typ.IsFlonum(), signedOf(a.typ))
	b.emit(Instr{Op: OpBinary, Dst: dst, Src1: cur, Src2: rhs, BinOp: op})
	b.storeAddr(a, dst)
	return dst
}

func (b *Builder) buildIncDec(v *ast.IncDec) int {
	a := b.addressOf(v.Target)
	cur := b.loadAddr(a)
	step := int64(1)
	if a.typ.Unqualified().IsPointer() {
		step = int64(a.typ.Unqualified().Elem.Size())
	}
	stepReg := b.fn.NewVReg(a.typ.Size(), false, true)
	b.emit(Instr{Op: OpLoadConst, Dst: stepReg, Imm: step})
	op := BAdd
	if v.Op == ast.TK_DEC {
		op = BSub
	}
	next := b.fn.NewVReg(a.typ.Size(), a.typ.IsFlonum(), signedOf(a.typ))
	b.emit(Instr{Op: OpBinary, Dst: next, Src1: cur, Src2: stepReg, BinOp: op})
	b.storeAddr(a, next)
	if v.Post {
		return cur
	}
	return next
}

func (b *Builder) buildCast(v *ast.Cast) int {
	src := b.buildExpr(v.Operand)
	to := v.GetType()
	from := v.Operand.GetType()
	if from.Unqualified() == to.Unqualified() {
		return src
	}
	dst := b.fn.NewVReg(to.Size(), to.IsFlonum(), signedOf(to))
	b.emit(Instr{Op: OpCast, Dst: dst, Src1: src, CastFrom: valueKindOf(from), CastTo: valueKindOf(to)})
	return dst
}

// buildCall evaluates the arguments left to right into vregs, then emits
// OpPrecall, one OpPusharg per argument (Imm is its source position),
// OpCall and, for a non-void callee, OpResult. No argument is first
// stored to a temporary, and arguments are not classified into integer,
// floating or stack slots: each takes the integer register of its position.
func (b *Builder) buildCall(v *ast.Call) int {
	var args []int
	for _, a := range v.Args {
		args = append(args, b.buildExpr(a))
	}
	b.emit(Instr{Op: OpPrecall})
	for i, a := range args {
		b.emit(Instr{Op: OpPusharg, Src1: a, Imm: int64(i)})
	}
	sym := ""
	var indirect int = -1
	if id, ok := v.Callee.(*ast.Ident); ok {
		sym = id.Name
	} else {
		indirect = b.buildExpr(v.Callee)
	}
	b.emit(Instr{Op: OpCall, Sym: sym, Src1: indirect, Args: args})
	if v.GetType().IsVoid() {
		return -1
	}
	dst := b.fn.NewVReg(v.GetType().Size(), v.GetType().IsFlonum(), signedOf(v.GetType()))
	b.emit(Instr{Op: OpResult, Dst: dst})
	return dst
}
