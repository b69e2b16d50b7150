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

// NumAllocatable is the size of the abstract physical-register pool this
// package hands out; codegen/x86 maps indices [0, NumCallerSaved) to the
// System V caller-saved scratch registers and [NumCallerSaved,
// NumAllocatable) to callee-saved ones, following the index scheme of
// falcon's compile/codegen/register_x86.go (removed - see DESIGN.md).
// ScratchA/ScratchB/ScratchC sit outside the allocatable pool and are
// reserved for spill reload/store code; they never compete with a live
// interval. NumCallerSaved/NumCalleeSaved deliberately exclude %rax, %rdx
// and %rcx from the allocatable pool even though all three are
// caller-saved: codegen/x86 reserves them for the idiv/imul sequence, the
// function return value and the divisor stash, so regalloc never has to
// reason about a live vreg being clobbered mid-instruction by a division
// (see codegen/x86/arith.go).
const (
	NumCallerSaved = 2
	NumCalleeSaved = 2
	NumAllocatable = NumCallerSaved + NumCalleeSaved
	ScratchA       = NumAllocatable
	ScratchB       = NumAllocatable + 1
	ScratchC       = NumAllocatable + 2
)

// Allocate runs liveness analysis, builds live intervals, assigns
// physical registers (or a spill slot) to every vreg of fn, and rewrites
// the instruction stream so spilled vregs round-trip through
// OpLoadSpilled/OpStoreSpilled, per spec.md section 4.4.
func Allocate(fn *ir.Function) {
	computeLiveness(fn)
	intervals, order := buildIntervals(fn)

	type activeEntry struct {
		iv  *Interval
		reg int
	}
	var active []activeEntry
	freeCaller := make([]bool, NumCallerSaved)
	freeCallee := make([]bool, NumCalleeSaved)
	for i := range freeCaller {
		freeCaller[i] = true
	}
	for i := range freeCallee {
		freeCallee[i] = true
	}

	release := func(reg int) {
		if reg < NumCallerSaved {
			freeCaller[reg] = true
		} else {
			freeCallee[reg-NumCallerSaved] = true
		}
	}
	takeCallee := func() int {
		for i, f := range freeCallee {
			if f {
				freeCallee[i] = false
				return NumCallerSaved + i
			}
		}
		return -1
	}
	takeCaller := func() int {
		for i, f := range freeCaller {
			if f {
				freeCaller[i] = false
				return i
			}
		}
		return -1
	}

	usedRegsSet := map[int]bool{}
	frameCursor := -fn.FrameSize

	spillSlot := func(iv *Interval) {
		size := fn.VRegs[iv.VReg].Size
		if size < 8 {
			size = 8
		}
		frameCursor -= size
		iv.Spilled = true
		iv.FrameOffset = frameCursor
		iv.PhysReg = -1
	}

	for _, idx := range order {
		iv := intervals[idx]

		// expire
		kept := active[:0]
		for _, e := range active {
			if e.iv.To <= iv.From {
				release(e.reg)
			} else {
				kept = append(kept, e)
			}
		}
		active = kept

		var reg int
		if iv.SpansCall {
			reg = takeCallee()
		} else {
			reg = takeCaller()
			if reg == -1 {
				reg = takeCallee()
			}
		}

		if reg == -1 {
			// spill-the-farthest heuristic: evict whichever active
			// interval (including the candidate) has the latest end.
			worst := -1
			worstTo := iv.To
			for i, e := range active {
				if iv.SpansCall && e.reg < NumCallerSaved {
					continue // a caller-saved register would not survive the call
				}
				if e.iv.To > worstTo {
					worst, worstTo = i, e.iv.To
				}
			}
			if worst == -1 {
				spillSlot(iv)
				continue
			}
			victim := active[worst]
			spillSlot(victim.iv)
			active = append(active[:worst], active[worst+1:]...)
			iv.PhysReg = victim.reg
			usedRegsSet[victim.reg] = true
			active = append(active, activeEntry{iv: iv, reg: victim.reg})
			continue
		}

		iv.PhysReg = reg
		usedRegsSet[reg] = true
		active = append(active, activeEntry{iv: iv, reg: reg})
	}

	for _, iv := range intervals {
		vr := fn.VRegs[iv.VReg]
		vr.PhysReg = iv.PhysReg
		vr.Spilled = iv.Spilled
		vr.FrameOffset = iv.FrameOffset
	}
	for r := range usedRegsSet {
		fn.UsedRegs = append(fn.UsedRegs, r)
	}
	fn.FrameSize = -frameCursor

	insertSpillCode(fn)
}
