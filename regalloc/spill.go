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
package regalloc

import "ccgo/ir"

// insertSpillCode rewrites every block so a spilled vreg never appears as
// a raw operand: each read is preceded by an OpLoadSpilled into one of
// three reserved scratch registers (ScratchA/B/C, enough for a binary
// op's two spilled sources plus a spilled destination in the same
// instruction) and each spilled write is followed by an OpStoreSpilled,
// mirroring the move-resolver stage of falcon's
// compile/codegen/lsra_moveResolver.go (removed - see DESIGN.md) but
// working directly against frame offsets instead of falcon's SSA move
// list.
//
// A scratch substitution is materialised as a brand new fn.VRegs entry
// rather than a bare register index: codegen needs a spilled operand's
// Size/Flonum/Signed just as much as its register, and by this point in
// the pipeline those only exist hung off a *VReg. Appending is safe here
// because allocation has already finished; nothing after this pass reads
// VRegs by length.
func insertSpillCode(fn *ir.Function) {
	for _, b := range fn.Blocks {
		var out []ir.Instr
		for _, in := range b.Instrs {
			scratch := [3]int{ScratchA, ScratchB, ScratchC}
			next := 0
			scratchVReg := func(like *ir.VReg, phys int) int {
				idx := len(fn.VRegs)
				fn.VRegs = append(fn.VRegs, &ir.VReg{
					Index: idx, Size: like.Size, Flonum: like.Flonum, Signed: like.Signed,
					PhysReg: phys,
				})
				seen := false
				for _, r := range fn.UsedRegs {
					seen = seen || r == phys
				}
				if !seen {
					fn.UsedRegs = append(fn.UsedRegs, phys)
				}
				return idx
			}
			load := func(v int) int {
				if v < 0 {
					return v
				}
				vr := fn.VRegs[v]
				if !vr.Spilled {
					return v
				}
				s := scratch[next]
				next++
				shadow := scratchVReg(vr, s)
				out = append(out, ir.Instr{Op: ir.OpLoadSpilled, Dst: shadow, Imm: int64(vr.FrameOffset)})
				return shadow
			}

			switch in.Op {
			case ir.OpStore:
				in.Dst = load(in.Dst)
				in.Src1 = load(in.Src1)
			case ir.OpLoad:
				in.Src1 = load(in.Src1)
			case ir.OpMov, ir.OpUnary, ir.OpCast:
				in.Src1 = load(in.Src1)
			case ir.OpBinary, ir.OpCmp:
				in.Src1 = load(in.Src1)
				in.Src2 = load(in.Src2)
			case ir.OpCondJump:
				in.Src1 = load(in.Src1)
			case ir.OpPusharg:
				in.Src1 = load(in.Src1)
			case ir.OpCall:
				if in.Src1 >= 0 {
					in.Src1 = load(in.Src1)
				}
				for i, a := range in.Args {
					in.Args[i] = load(a)
				}
			case ir.OpReturn:
				if in.Src1 >= 0 {
					in.Src1 = load(in.Src1)
				}
			}

			storeBack, storeOff := -1, int64(0)
			if d := resultOf(in); d >= 0 && fn.VRegs[d].Spilled {
				s := scratch[next]
				next++
				shadow := scratchVReg(fn.VRegs[d], s)
				storeBack, storeOff = shadow, int64(fn.VRegs[d].FrameOffset)
				in.Dst = shadow
			}

			out = append(out, in)
			if storeBack >= 0 {
				out = append(out, ir.Instr{Op: ir.OpStoreSpilled, Src1: storeBack, Imm: storeOff})
			}
		}
		b.Instrs = out
	}
}
