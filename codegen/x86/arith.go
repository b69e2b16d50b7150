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

import "ccgo/ir"

// Flonum values ride through the GPR pool regalloc hands out, same as any
// other vreg, carrying their IEEE-754 bit pattern rather than a real
// number. This keeps the allocator ignorant of a second register file.
// Actual floating-point arithmetic borrows two fixed XMM scratch
// registers that never participate in allocation: the bit pattern is
// moved GPR -> XMM with movq (movd for a 4-byte float), the operation
// runs as a normal SSE instruction, and the result moves back XMM -> GPR
// the same way. Falcon has no flonum type at all (its source language is
// integer/pointer only), so this has no direct falcon ancestor. Flonum
// arguments and return values travel in the integer argument registers
// and %rax like any other vreg; floats are not passed or returned in
// %xmm0 as the System V convention has them.
const (
	xmmA = "%xmm0"
	xmmB = "%xmm1"
)

func (e *emitter) loadFlonum(fn *ir.Function, v int, xmm string, double bool) {
	if double {
		e.line("\tmovq %s, %s", operand(fn, v, 8), xmm)
	} else {
		e.line("\tmovd %s, %s", operand(fn, v, 4), xmm)
	}
}

func (e *emitter) storeFlonum(fn *ir.Function, v int, xmm string, double bool) {
	if double {
		e.line("\tmovq %s, %s", xmm, operand(fn, v, 8))
	} else {
		e.line("\tmovd %s, %s", xmm, operand(fn, v, 4))
	}
}

func sseSuffix(double bool) string {
	if double {
		return "sd"
	}
	return "ss"
}

func (e *emitter) binary(fn *ir.Function, in ir.Instr) {
	dstVr := fn.VRegs[in.Dst]
	if dstVr.Flonum {
		e.flonumBinary(fn, in, dstVr)
		return
	}

	w := width(fn, in.Dst)
	dst := operand(fn, in.Dst, w)
	lhs := operand(fn, in.Src1, w)
	rhs := operand(fn, in.Src2, w)

	switch in.BinOp {
	case ir.BAdd:
		e.line("\tmov%s %s, %s", suffix(w), lhs, dst)
		e.line("\tadd%s %s, %s", suffix(w), rhs, dst)
	case ir.BSub:
		e.line("\tmov%s %s, %s", suffix(w), lhs, dst)
		e.line("\tsub%s %s, %s", suffix(w), rhs, dst)
	case ir.BAnd:
		e.line("\tmov%s %s, %s", suffix(w), lhs, dst)
		e.line("\tand%s %s, %s", suffix(w), rhs, dst)
	case ir.BOr:
		e.line("\tmov%s %s, %s", suffix(w), lhs, dst)
		e.line("\tor%s %s, %s", suffix(w), rhs, dst)
	case ir.BXor:
		e.line("\tmov%s %s, %s", suffix(w), lhs, dst)
		e.line("\txor%s %s, %s", suffix(w), rhs, dst)
	case ir.BShl:
		e.line("\tmov%s %s, %s", suffix(w), lhs, dst)
		e.line("\tmovb %s, %%cl", operand(fn, in.Src2, 1))
		e.line("\tsal%s %%cl, %s", suffix(w), dst)
	case ir.BShr:
		e.line("\tmov%s %s, %s", suffix(w), lhs, dst)
		e.line("\tmovb %s, %%cl", operand(fn, in.Src2, 1))
		if dstVr.Signed {
			e.line("\tsar%s %%cl, %s", suffix(w), dst)
		} else {
			e.line("\tshr%s %%cl, %s", suffix(w), dst)
		}
	case ir.BMul:
		e.line("\tmov%s %s, %s", suffix(w), lhs, dst)
		if dstVr.Signed {
			e.line("\timul%s %s, %s", suffix(w), rhs, dst)
		} else {
			// no unsigned imul form on most operand encodings; signed
			// imul produces the identical low bits for a 2's-complement
			// multiply, which is all a truncating assignment observes.
			e.line("\timul%s %s, %s", suffix(w), rhs, dst)
		}
	case ir.BDiv, ir.BMod:
		e.divide(fn, in, w, dst, lhs, rhs, dstVr.Signed)
	}
}

// divide lowers C's / and % to idiv, using %rax/%rdx/%rcx: these three
// registers are reserved out of regalloc's pool (see
// regalloc.NumAllocatable's doc comment) specifically so this sequence
// never has to save/restore a live vreg around it.
func (e *emitter) divide(fn *ir.Function, in ir.Instr, w int, dst, lhs, rhs string, signed bool) {
	e.line("\tmov%s %s, %s", suffix(w), lhs, sizedReg("%rax", w))
	e.line("\tmov%s %s, %s", suffix(w), rhs, sizedReg("%rcx", w))
	if signed {
		switch w {
		case 8:
			e.line("\tcqto")
		case 4:
			e.line("\tcltd")
		default:
			e.line("\tcwtd")
		}
		e.line("\tidiv%s %s", suffix(w), sizedReg("%rcx", w))
	} else {
		e.line("\txorq %%rdx, %%rdx")
		e.line("\tdiv%s %s", suffix(w), sizedReg("%rcx", w))
	}
	if in.BinOp == ir.BDiv {
		e.line("\tmov%s %s, %s", suffix(w), sizedReg("%rax", w), dst)
	} else {
		e.line("\tmov%s %s, %s", suffix(w), sizedReg("%rdx", w), dst)
	}
}

func sizedReg(reg64 string, size int) string {
	table := map[string][4]string{
		"%rax": {"%al", "%ax", "%eax", "%rax"},
		"%rcx": {"%cl", "%cx", "%ecx", "%rcx"},
		"%rdx": {"%dl", "%dx", "%edx", "%rdx"},
	}
	row := table[reg64]
	switch size {
	case 1:
		return row[0]
	case 2:
		return row[1]
	case 4:
		return row[2]
	default:
		return row[3]
	}
}

func (e *emitter) flonumBinary(fn *ir.Function, in ir.Instr, dstVr *ir.VReg) {
	double := dstVr.Size == 8
	e.loadFlonum(fn, in.Src1, xmmA, double)
	e.loadFlonum(fn, in.Src2, xmmB, double)
	switch in.BinOp {
	case ir.BAdd:
		e.line("\tadd%s %s, %s", sseSuffix(double), xmmB, xmmA)
	case ir.BSub:
		e.line("\tsub%s %s, %s", sseSuffix(double), xmmB, xmmA)
	case ir.BMul:
		e.line("\tmul%s %s, %s", sseSuffix(double), xmmB, xmmA)
	case ir.BDiv:
		e.line("\tdiv%s %s, %s", sseSuffix(double), xmmB, xmmA)
	}
	e.storeFlonum(fn, in.Dst, xmmA, double)
}

func (e *emitter) unary(fn *ir.Function, in ir.Instr) {
	dstVr := fn.VRegs[in.Dst]
	if dstVr.Flonum && in.UnOp == ir.UNeg {
		double := dstVr.Size == 8
		e.loadFlonum(fn, in.Src1, xmmA, double)
		e.line("\txor%s %s, %s", sseSuffix(double), xmmB, xmmB)
		e.line("\tsub%s %s, %s", sseSuffix(double), xmmA, xmmB)
		e.storeFlonum(fn, in.Dst, xmmB, double)
		return
	}

	if in.UnOp == ir.ULNot {
		// tests Src1 at its own width, not Dst's: Dst is always the
		// 4-byte int a C `!` expression produces regardless of the
		// operand's size (e.g. `!somePointer`), so sizing the zero-test
		// off Dst would truncate a wide operand before comparing it.
		sw := width(fn, in.Src1)
		e.line("\tcmp%s $0, %s", suffix(sw), operand(fn, in.Src1, sw))
		e.line("\tsete %s", operand(fn, in.Dst, 1))
		e.line("\tmovzbl %s, %s", operand(fn, in.Dst, 1), operand(fn, in.Dst, 4))
		return
	}

	w := width(fn, in.Dst)
	dst := operand(fn, in.Dst, w)
	src := operand(fn, in.Src1, w)
	e.line("\tmov%s %s, %s", suffix(w), src, dst)
	switch in.UnOp {
	case ir.UNeg:
		e.line("\tneg%s %s", suffix(w), dst)
	case ir.UNot:
		e.line("\tnot%s %s", suffix(w), dst)
	}
}

// cast lowers an explicit or implicit conversion between ValueKinds:
// sign/zero-extend between integer widths, truncate (a no-op move at the
// narrower width since x86 registers alias their low bytes), or convert
// to/from a flonum via cvtsi2sd/cvttsd2si and friends.
func (e *emitter) cast(fn *ir.Function, in ir.Instr) {
	dstVr := fn.VRegs[in.Dst]
	srcFlo := isFlonumKind(in.CastFrom)
	dstFlo := isFlonumKind(in.CastTo)

	switch {
	case srcFlo && dstFlo:
		srcDouble := in.CastFrom == ir.VF64
		dstDouble := in.CastTo == ir.VF64
		e.loadFlonum(fn, in.Src1, xmmA, srcDouble)
		if srcDouble != dstDouble {
			if dstDouble {
				e.line("\tcvtss2sd %s, %s", xmmA, xmmA)
			} else {
				e.line("\tcvtsd2ss %s, %s", xmmA, xmmA)
			}
		}
		e.storeFlonum(fn, in.Dst, xmmA, dstDouble)

	case srcFlo && !dstFlo:
		srcDouble := in.CastFrom == ir.VF64
		e.loadFlonum(fn, in.Src1, xmmA, srcDouble)
		if srcDouble {
			e.line("\tcvttsd2si %s, %s", xmmA, operand(fn, in.Dst, 8))
		} else {
			e.line("\tcvttss2si %s, %s", xmmA, operand(fn, in.Dst, 8))
		}

	case !srcFlo && dstFlo:
		dstDouble := in.CastTo == ir.VF64
		srcW := fn.VRegs[in.Src1].Size
		if srcW < 4 {
			srcW = 4
		}
		if dstDouble {
			e.line("\tcvtsi2sd %s, %s", operand(fn, in.Src1, srcW), xmmA)
		} else {
			e.line("\tcvtsi2ss %s, %s", operand(fn, in.Src1, srcW), xmmA)
		}
		e.storeFlonum(fn, in.Dst, xmmA, dstDouble)

	default:
		e.castInt(fn, in, dstVr)
	}
}

func (e *emitter) castInt(fn *ir.Function, in ir.Instr, dstVr *ir.VReg) {
	srcW := fn.VRegs[in.Src1].Size
	dstW := dstVr.Size
	src := operand(fn, in.Src1, srcW)
	dst := operand(fn, in.Dst, dstW)

	if dstW <= srcW {
		e.line("\tmov%s %s, %s", suffix(dstW), operand(fn, in.Src1, dstW), dst)
		return
	}
	if fn.VRegs[in.Src1].Signed {
		e.line("\tmovs%s%s %s, %s", intSuffixCode(srcW), intSuffixCode(dstW), src, dst)
	} else if srcW == 4 && dstW == 8 {
		e.line("\tmovl %s, %s", src, operand(fn, in.Dst, 4))
	} else {
		e.line("\tmovz%s%s %s, %s", intSuffixCode(srcW), intSuffixCode(dstW), src, dst)
	}
}

func intSuffixCode(size int) string {
	switch size {
	case 1:
		return "b"
	case 2:
		return "w"
	case 4:
		return "l"
	default:
		return "q"
	}
}

func isFlonumKind(k ir.ValueKind) bool { return k == ir.VF32 || k == ir.VF64 }
