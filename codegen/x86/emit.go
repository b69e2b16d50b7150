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
	"fmt"
	"math"
	"strings"

	"ccgo/ast"
	"ccgo/config"
	"ccgo/ir"
	"ccgo/regalloc"

	"github.com/klauspost/asmfmt"
)

// emitter holds the running output buffer plus the symbol-mangling
// convention for the selected target, per spec.md section 6 ("reads
// TARGET to switch between Linux-ELF and Apple-Mach-O mangling rules").
type emitter struct {
	sb     *strings.Builder
	target config.Target
}

// symbol applies the target's C-symbol mangling: a leading underscore on
// Darwin, none on Linux-ELF (falcon itself never mangles symbols at all,
// having no OS-level assembler target; this rule is carried over from
// original_source/src/as, which does do Darwin underscore-prefixing).
// Compiler-synthesised names (ast.Lower's hoisted string constants, named
// "$str1" and friends) are rewritten to a legal assembler identifier
// first, since "$" introduces an immediate operand in AT&T syntax and
// cannot appear in a label.
func (e *emitter) symbol(name string) string {
	if strings.HasPrefix(name, "$") {
		name = "Lstr" + name[1:]
	}
	if e.target == config.TargetDarwinMachO {
		return "_" + name
	}
	return name
}

func (e *emitter) line(format string, args ...interface{}) {
	fmt.Fprintf(e.sb, format+"\n", args...)
}

// Emit lowers prog to AT&T-syntax x86-64 assembly text, running regalloc
// on every function first. Output is reformatted with asmfmt on a
// best-effort basis; a formatting failure falls back to the raw text
// rather than failing the whole compile, since asmfmt is cosmetic only.
func EmitProgram(prog *ir.Program, target config.Target) (string, error) {
	var sb strings.Builder
	e := &emitter{sb: &sb, target: target}

	e.line("\t.text")
	for _, fn := range prog.Funcs {
		regalloc.Allocate(fn)
	}
	for _, fn := range prog.Funcs {
		e.emitFunction(fn)
	}
	for _, g := range prog.Globals {
		e.emitGlobal(g)
	}

	formatted, err := asmfmt.Format(strings.NewReader(sb.String()))
	if err != nil {
		return sb.String(), nil
	}
	return string(formatted), nil
}

func (e *emitter) emitFunction(fn *ir.Function) {
	sym := e.symbol(fn.Name)
	if fn.Exported {
		e.line("\t.globl %s", sym)
	}
	e.line("%s:", sym)
	e.line("\tpushq %%rbp")
	e.line("\tmovq %%rsp, %%rbp")

	var saved []int
	for _, r := range fn.UsedRegs {
		if calleeSaved(r) {
			saved = append(saved, r)
		}
	}
	for _, r := range saved {
		e.line("\tpushq %s", regName(r, 8))
	}

	frame := alignUp(fn.FrameSize, 16)
	if frame > 0 {
		e.line("\tsubq $%d, %%rsp", frame)
	}

	for i, off := range fn.ParamOffsets {
		size := 8
		if i < len(fn.Params) {
			size = fn.VRegs[fn.Params[i]].Size
		}
		e.line("\tmov%s %s, %d(%%rbp)", suffix(size), argReg(i, size), off)
	}

	epilogue := fmt.Sprintf(".L%s_ret", fn.Name)
	for _, b := range fn.Blocks {
		e.line(".L%s_bb%d:", fn.Name, b.Index)
		for _, in := range b.Instrs {
			e.instr(fn, in, epilogue)
		}
	}

	e.line("%s:", epilogue)
	for i := len(saved) - 1; i >= 0; i-- {
		e.line("\tpopq %s", regName(saved[i], 8))
	}
	e.line("\tleave")
	e.line("\tret")
}

func alignUp(n, a int) int {
	if n <= 0 {
		return 0
	}
	return (n + a - 1) &^ (a - 1)
}

func suffix(size int) string {
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

// emitGlobal writes one file-scope variable to .data (initialised) or
// .bss (zero-initialised), matching falcon's section layout for its own
// global constant pool.
func (e *emitter) emitGlobal(g *ir.Global) {
	sym := e.symbol(g.Name)
	align := g.Type.Align()
	if e.target == config.TargetDarwinMachO {
		// Mach-O's .align takes a power-of-two exponent, not a byte count.
		log2 := 0
		for a := align; a > 1; a >>= 1 {
			log2++
		}
		align = log2
	}
	if g.BSS {
		e.line("\t.bss")
		if g.Exported {
			e.line("\t.globl %s", sym)
		}
		e.line("\t.align %d", align)
		e.line("%s:", sym)
		e.line("\t.zero %d", g.Type.Size())
		return
	}
	e.line("\t.data")
	if g.Exported {
		e.line("\t.globl %s", sym)
	}
	e.line("\t.align %d", align)
	e.line("%s:", sym)
	e.emitInit(g.Type, g.Init)
}

// emitInit renders a global's initialiser as assembler data directives.
// Only the constant-expression forms the parser accepts for a file-scope
// initialiser are handled: integer/float literals and string-literal
// arrays (already hoisted to their own anonymous global by ast.Lower, so
// a nested string here only occurs via a struct member initialiser).
func (e *emitter) emitInit(t *ast.Type, init ast.Expr) {
	switch v := init.(type) {
	case *ast.IntLit:
		e.line("\t.%s %d", dataDirective(t.Size()), v.Value)
	case *ast.FloatLit:
		if t.Size() == 4 {
			e.line("\t.long %d", int32(math.Float32bits(float32(v.Value))))
		} else {
			e.line("\t.quad %d", int64(math.Float64bits(v.Value)))
		}
	case *ast.StrLit:
		e.line("\t.asciz %q", string(v.Value))
	case *ast.CompoundLiteral:
		if t.IsStruct() {
			for i, el := range v.Elems {
				if i < len(t.Fields) {
					e.emitInit(t.Fields[i].Type, el)
				}
			}
		} else if t.IsArray() {
			for _, el := range v.Elems {
				e.emitInit(t.Elem, el)
			}
		}
	default:
		e.line("\t.zero %d", t.Size())
	}
}

func dataDirective(size int) string {
	switch size {
	case 1:
		return "byte"
	case 2:
		return "word"
	case 4:
		return "long"
	default:
		return "quad"
	}
}
