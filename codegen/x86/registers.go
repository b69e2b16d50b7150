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

// Package x86 is the AT&T-syntax text assembly emitter of spec.md section
// 4.5, grounded on falcon's compile/codegen/arch_x86.go register/ABI
// tables and asm_x86.go instruction-printing shape (both removed from
// the tree - see DESIGN.md) but narrowed to the seven-register pool
// regalloc.NumAllocatable+3 hands out (four allocatable plus three spill
// scratch registers) rather than falcon's full general-purpose
// allocatable set, and targeting System V AMD64 only: falcon's only
// non-POSIX branch is a Windows fastcall ArgReg table, which this
// compiler drops since spec.md's targets are Linux and Darwin, both
// System V (see DESIGN.md for the honest accounting of what falcon's
// arch_x86.go actually branches on).
package x86

import "ccgo/regalloc"

// regName64/32/16/8 map an abstract regalloc pool index to its AT&T
// register name at a given operand width. %rax, %rdx and %rcx are
// deliberately absent: the first two are reserved for the idiv/imul
// sequence and the return value, the third as a transient divisor stash,
// so the idiv lowering in arith.go never has to share a physical
// register with a live vreg (see regalloc.NumAllocatable's doc comment).
var (
	regName64 = [...]string{"%r10", "%r11", "%rbx", "%r12", "%r13", "%r14", "%r15"}
	regName32 = [...]string{"%r10d", "%r11d", "%ebx", "%r12d", "%r13d", "%r14d", "%r15d"}
	regName16 = [...]string{"%r10w", "%r11w", "%bx", "%r12w", "%r13w", "%r14w", "%r15w"}
	regName8  = [...]string{"%r10b", "%r11b", "%bl", "%r12b", "%r13b", "%r14b", "%r15b"}
)

func regName(idx, size int) string {
	switch {
	case size <= 1:
		return regName8[idx]
	case size == 2:
		return regName16[idx]
	case size == 4:
		return regName32[idx]
	default:
		return regName64[idx]
	}
}

// calleeSaved reports whether pool index idx is from the callee-saved
// half of the allocatable pool, or is one of the three fixed scratch
// registers (always treated as callee-saved so spill code never needs
// its own separate save/restore accounting).
func calleeSaved(idx int) bool { return idx >= regalloc.NumCallerSaved }

// argRegs64/32 is the System V AMD64 integer argument-passing order.
var (
	argRegs64 = [...]string{"%rdi", "%rsi", "%rdx", "%rcx", "%r8", "%r9"}
	argRegs32 = [...]string{"%edi", "%esi", "%edx", "%ecx", "%r8d", "%r9d"}
)

// argReg maps an ABI-classified argument index to its System V integer
// register. Stack-passed arguments (index 6 and beyond) are a known gap
// in this pass: spec.md's calling-convention section calls for spilling
// the overflow to the stack, but this emitter only targets the common
// case of six-or-fewer integer arguments (see DESIGN.md, codegen/x86
// entry). Clamping instead of indexing out of range keeps an over-arity
// call from crashing the compiler outright, at the cost of aliasing the
// 7th-and-later argument onto %r9.
func argReg(i, size int) string {
	if i >= len(argRegs64) {
		i = len(argRegs64) - 1
	}
	if size <= 4 {
		return argRegs32[i]
	}
	return argRegs64[i]
}

const (
	returnReg64 = "%rax"
	returnReg32 = "%eax"
)

func returnReg(size int) string {
	if size <= 4 {
		return returnReg32
	}
	return returnReg64
}
