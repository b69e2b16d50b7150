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

// Package diag holds the compiler's typed diagnostics: the eight error
// kinds of spec.md section 7, accumulated per translation unit instead of
// reported through panics. Generalises falcon's bare-string syntaxError
// into a structured, multi-error accumulator so a translation unit can
// report more than one lex/parse/type/semantic error before aborting.
package diag

import "fmt"

type Kind int

const (
	LexError Kind = iota
	ParseError
	TypeError
	SemanticError
	IRError
	AssemblyError
	EmitError
	IOError
)

func (k Kind) String() string {
	switch k {
	case LexError:
		return "lex-error"
	case ParseError:
		return "parse-error"
	case TypeError:
		return "type-error"
	case SemanticError:
		return "semantic-error"
	case IRError:
		return "ir-error"
	case AssemblyError:
		return "assembly-error"
	case EmitError:
		return "emit-error"
	case IOError:
		return "io-error"
	default:
		return "unknown-error"
	}
}

// Diagnostic is one reported error: source position plus a short message.
type Diagnostic struct {
	Kind Kind
	File string
	Line int
	Col  int
	Msg  string
}

func (d *Diagnostic) Error() string {
	if d.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %s", d.File, d.Line, d.Col, d.Kind, d.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", d.File, d.Kind, d.Msg)
}

// Bag accumulates diagnostics for one translation unit. Lex/parse/type/
// semantic stages keep walking and reporting into the same Bag so a user
// sees every error in one pass; the driver checks Bag.Empty() after each
// stage and aborts before the next one if it is not.
type Bag struct {
	File  string
	items []*Diagnostic
}

func NewBag(file string) *Bag {
	return &Bag{File: file}
}

func (b *Bag) Report(kind Kind, line, col int, format string, args ...interface{}) {
	b.items = append(b.items, &Diagnostic{
		Kind: kind,
		File: b.File,
		Line: line,
		Col:  col,
		Msg:  fmt.Sprintf(format, args...),
	})
}

func (b *Bag) Empty() bool { return len(b.items) == 0 }

func (b *Bag) Items() []*Diagnostic { return b.items }

// Err renders the accumulated diagnostics as a single error, or nil when
// the bag is empty. The driver does: if err := bag.Err(); err != nil { abort }.
func (b *Bag) Err() error {
	if b.Empty() {
		return nil
	}
	msg := ""
	for i, d := range b.items {
		if i > 0 {
			msg += "\n"
		}
		msg += d.Error()
	}
	return fmt.Errorf("%s", msg)
}
