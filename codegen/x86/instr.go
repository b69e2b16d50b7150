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
package x86

import (
	"math"

	"ccgo/ir"
)

// operand resolves a vreg index to its AT&T register text at the given
// width. regalloc.Allocate (including its spill-code pass) has already
// run by the time codegen sees a function, so every vreg reaching here
// carries a real PhysReg - a spilled vreg never appears directly, only
// the shadow vreg regalloc/spill.go materialises around its
// OpLoadSpilled/OpStoreSpilled pair.
func operand(fn *ir.Function, v, size int) string {
	return regName(fn.VRegs[v].PhysReg, size)
}

// width is just the operand vreg's declared size, named for readability
// at call sites that pick it off whichever operand drives an
// instruction's suffix (destination for most, a source for a store or
// comparison that defines nothing).
func width(fn *ir.Function, v int) int {
	return fn.VRegs[v].Size
}

func (e *emitter) instr(fn *ir.Function, in ir.Instr, epilogue string) {
	switch in.Op {
	case ir.OpLoadConst:
		vr := fn.VRegs[in.Dst]
		if vr.Flonum {
			// the destination GPR carries the literal's raw bit pattern;
			// arithmetic on it moves through a scratch XMM register (see
			// loadFlonum/storeFlonum in arith.go).
			e.line("\tmovabsq $0x%x, %s", floatBits(vr.Size, in.FImm), operand(fn, in.Dst, 8))
		} else {
			e.line("\tmovq $%d, %s", in.Imm, operand(fn, in.Dst, 8))
		}

	case ir.OpMov:
		w := width(fn, in.Dst)
		e.line("\tmov%s %s, %s", suffix(w), operand(fn, in.Src1, w), operand(fn, in.Dst, w))

	case ir.OpLoad:
		w := fn.VRegs[in.Dst].Size
		e.line("\tmov%s %d(%s), %s", suffix(w), in.Imm, baseReg(fn, in.Src1), operand(fn, in.Dst, w))

	case ir.OpStore:
		w := width(fn, in.Src1)
		e.line("\tmov%s %s, %d(%s)", suffix(w), operand(fn, in.Src1, w), in.Imm, baseReg(fn, in.Dst))

	case ir.OpBofs:
		e.line("\tleaq %s(%%rip), %s", e.symbol(in.Sym), operand(fn, in.Dst, 8))

	case ir.OpSofs:
		e.line("\tleaq %d(%%rbp), %s", in.Imm, operand(fn, in.Dst, 8))

	case ir.OpIofs:
		e.line("\tleaq %d(%s), %s", in.Imm, operand(fn, in.Src1, 8), operand(fn, in.Dst, 8))

	case ir.OpBinary:
		e.binary(fn, in)

	case ir.OpUnary:
		e.unary(fn, in)

	case ir.OpCmp:
		w := width(fn, in.Src1)
		e.line("\tcmp%s %s, %s", suffix(w), operand(fn, in.Src2, w), operand(fn, in.Src1, w))
		e.line("\t%s %s", setcc(in.Cond), operand(fn, in.Dst, 1))
		e.line("\tmovzbl %s, %s", operand(fn, in.Dst, 1), operand(fn, in.Dst, 4))

	case ir.OpJump:
		e.line("\tjmp .L%s_bb%d", fn.Name, in.Target)

	case ir.OpCondJump:
		w := width(fn, in.Src1)
		e.line("\tcmp%s $0, %s", suffix(w), operand(fn, in.Src1, w))
		e.line("\tjne .L%s_bb%d", fn.Name, in.Target)
		e.line("\tjmp .L%s_bb%d", fn.Name, in.Else)

	case ir.OpTableJump:
		// never emitted by ir.Builder (see ir.OpTableJump doc comment)

	case ir.OpPrecall:
		// no text: argument registers are loaded directly by OpPusharg

	case ir.OpPusharg:
		w := width(fn, in.Src1)
		e.line("\tmov%s %s, %s", suffix(w), operand(fn, in.Src1, w), argReg(int(in.Imm), maxWidth(w, 4)))

	case ir.OpCall:
		if in.Sym != "" {
			e.line("\tcall %s", e.symbol(in.Sym))
		} else {
			e.line("\tcall *%s", operand(fn, in.Src1, 8))
		}

	case ir.OpResult:
		w := fn.VRegs[in.Dst].Size
		e.line("\tmov%s %s, %s", suffix(w), returnReg(w), operand(fn, in.Dst, w))

	case ir.OpCast:
		e.cast(fn, in)

	case ir.OpSubsp:
		// frame allocation is folded into the prologue's subq once
		// regalloc knows the final frame size; nothing to emit here.

	case ir.OpLoadSpilled:
		e.line("\tmovq %d(%%rbp), %s", in.Imm, operand(fn, in.Dst, 8))

	case ir.OpStoreSpilled:
		e.line("\tmovq %s, %d(%%rbp)", operand(fn, in.Src1, 8), in.Imm)

	case ir.OpAsm:
		e.line("%s", in.Text)

	case ir.OpReturn:
		if in.Src1 >= 0 {
			w := fn.VRegs[in.Src1].Size
			e.line("\tmov%s %s, %s", suffix(w), operand(fn, in.Src1, w), returnReg(w))
		}
		e.line("\tjmp %s", epilogue)
	}
}

func maxWidth(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// baseReg resolves an OpLoad/OpStore address operand: -1 means frame
// relative (the caller already printed the rbp-relative offset), any
// other value is a vreg holding an absolute address.
func baseReg(fn *ir.Function, v int) string {
	if v == -1 {
		return "%rbp"
	}
	return operand(fn, v, 8)
}

func setcc(c ir.Cond) string {
	switch c {
	case ir.CEq:
		return "sete"
	case ir.CNe:
		return "setne"
	case ir.CLt:
		return "setl"
	case ir.CLe:
		return "setle"
	case ir.CGt:
		return "setg"
	case ir.CGe:
		return "setge"
	case ir.CAny:
		return "movb $1,"
	default:
		return "movb $0,"
	}
}

func floatBits(size int, f float64) uint64 {
	if size == 4 {
		return uint64(math.Float32bits(float32(f)))
	}
	return math.Float64bits(f)
}
