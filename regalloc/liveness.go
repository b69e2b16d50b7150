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

// Package regalloc is the linear-scan register allocator of spec.md
// section 4.4, adapted from falcon's compile/codegen/lsra*.go family
// (now removed - see DESIGN.md) to this compiler's direct, non-SSA CFG
// instead of falcon's SSA value graph: live ranges are computed by a
// classic backward liveness fixpoint over utils.BitMap rather than by
// walking dominance-frontier phi placement, since this IR has no phis.
package regalloc

import (
	"ccgo/ir"
	"ccgo/utils"
)

// defUse computes, for one block, the set of vregs it defines and the set
// it uses before any local definition (the two per-block sets a liveness
// fixpoint needs).
func defUse(n int, b *ir.BasicBlock) (def, use *utils.BitMap) {
	def = utils.NewBitMap(n)
	use = utils.NewBitMap(n)
	touch := func(v int) {
		if v >= 0 && !def.IsSet(v) {
			use.Set(v)
		}
	}
	for _, in := range b.Instrs {
		for _, v := range operandsOf(in) {
			touch(v)
		}
		if d := resultOf(in); d >= 0 {
			def.Set(d)
		}
	}
	return def, use
}

// operandsOf returns every vreg an instruction reads.
func operandsOf(in ir.Instr) []int {
	var vs []int
	switch in.Op {
	case ir.OpStore:
		vs = append(vs, in.Dst, in.Src1)
	case ir.OpLoad:
		vs = append(vs, in.Src1)
	case ir.OpMov, ir.OpUnary, ir.OpCast:
		vs = append(vs, in.Src1)
	case ir.OpBinary, ir.OpCmp:
		vs = append(vs, in.Src1, in.Src2)
	case ir.OpCondJump:
		vs = append(vs, in.Src1)
	case ir.OpPusharg:
		vs = append(vs, in.Src1)
	case ir.OpCall:
		if in.Src1 >= 0 {
			vs = append(vs, in.Src1)
		}
		vs = append(vs, in.Args...)
	case ir.OpReturn:
		if in.Src1 >= 0 {
			vs = append(vs, in.Src1)
		}
	case ir.OpStoreSpilled:
		vs = append(vs, in.Src1)
	}
	out := vs[:0]
	for _, v := range vs {
		if v >= 0 {
			out = append(out, v)
		}
	}
	return out
}

// resultOf returns the vreg an instruction defines, or -1.
func resultOf(in ir.Instr) int {
	switch in.Op {
	case ir.OpLoad, ir.OpMov, ir.OpLoadConst, ir.OpBinary, ir.OpUnary, ir.OpCmp,
		ir.OpBofs, ir.OpIofs, ir.OpSofs, ir.OpResult, ir.OpCast, ir.OpLoadSpilled:
		return in.Dst
	}
	return -1
}

// computeLiveness fills LiveIn/LiveOut on every block of fn by iterating
// the standard backward dataflow equations to a fixpoint:
//
//	LiveOut[b] = union(LiveIn[s] for s in succs(b))
//	LiveIn[b]  = use[b] | (LiveOut[b] \ def[b])
func computeLiveness(fn *ir.Function) {
	fn.InitLiveness()
	n := len(fn.VRegs)
	defs := make([]*utils.BitMap, len(fn.Blocks))
	uses := make([]*utils.BitMap, len(fn.Blocks))
	for i, b := range fn.Blocks {
		defs[i], uses[i] = defUse(n, b)
	}

	changed := true
	for changed {
		changed = false
		for i := len(fn.Blocks) - 1; i >= 0; i-- {
			b := fn.Blocks[i]
			out := utils.NewBitMap(n)
			for _, s := range b.Succs {
				out.Unite(fn.Blocks[s].LiveIn)
			}
			if b.LiveOut.SetFrom(out) {
				changed = true
			}
			in := out.Copy()
			in.Remove(defs[i])
			in.Unite(uses[i])
			if b.LiveIn.SetFrom(in) {
				changed = true
			}
		}
	}
}
