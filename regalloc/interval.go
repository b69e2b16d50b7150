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

// Interval is one vreg's live range, grounded on falcon's
// compile/codegen/lsra_interval.go Interval/Range/UsePoint shape but
// collapsed to a single [From, To) extent per vreg rather than a
// linked list of sub-ranges with holes: this compiler never runs a
// loop-invariant-code-motion pass that would fragment a live range, so
// the extra precision a hole-aware interval buys falcon's allocator
// is not worth the added bookkeeping here (see DESIGN.md, regalloc
// entry).
type Interval struct {
	VReg int
	From int
	To   int

	SpansCall bool // live across an OpCall; must avoid caller-saved regs

	PhysReg     int // -1 until assigned, -1 permanently if Spilled
	Spilled     bool
	FrameOffset int
}

// position names an instruction by its block index and its index within
// that block. buildIntervals itself numbers instructions with flat indices
// across the whole function body, assigned by walking blocks in index
// order - stable because blocks are never reordered after the IR builder
// runs.
type position struct {
	blockIndex int
	instrIndex int
}

func buildIntervals(fn *ir.Function) ([]*Interval, []int) {
	n := len(fn.VRegs)
	intervals := make([]*Interval, n)
	for i := range intervals {
		intervals[i] = &Interval{VReg: i, From: -1, To: -1, PhysReg: -1}
	}

	blockStart := make([]int, len(fn.Blocks))
	pos := 0
	for i, b := range fn.Blocks {
		blockStart[i] = pos
		pos += len(b.Instrs)
	}
	total := pos

	addRange := func(v, from, to int) {
		iv := intervals[v]
		if iv.From == -1 || from < iv.From {
			iv.From = from
		}
		if to > iv.To {
			iv.To = to
		}
	}

	for i := len(fn.Blocks) - 1; i >= 0; i-- {
		b := fn.Blocks[i]
		blockFrom := blockStart[i]
		blockTo := blockFrom + len(b.Instrs)

		live := map[int]bool{}
		for v := 0; v < n; v++ {
			if b.LiveOut.IsSet(v) {
				live[v] = true
				addRange(v, blockFrom, blockTo)
			}
		}

		for idx := len(b.Instrs) - 1; idx >= 0; idx-- {
			opPos := blockFrom + idx
			in := b.Instrs[idx]
			if in.Op == ir.OpCall {
				for v := range live {
					intervals[v].SpansCall = true
				}
			}
			if d := resultOf(in); d >= 0 {
				addRange(d, opPos, opPos+1)
				delete(live, d)
			}
			for _, u := range operandsOf(in) {
				addRange(u, blockFrom, opPos+1)
				live[u] = true
			}
		}
	}

	order := make([]int, 0, n)
	for i, iv := range intervals {
		if iv.From != -1 {
			order = append(order, i)
		}
	}
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && intervals[order[j]].From < intervals[order[j-1]].From; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
	_ = total
	return intervals, order
}
