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
package ast

import (
	"fmt"
	"strings"
)

// TypeKind is the variant discriminator for the Type sum type of
// spec.md section 3: fixnum, flonum, pointer, array, struct, function,
// void, qualified.
type TypeKind int

const (
	KFixnum TypeKind = iota
	KFlonum
	KPointer
	KArray
	KStruct
	KFunction
	KVoid
	KQualified
)

type Qualifier int

const (
	QConst Qualifier = 1 << iota
	QVolatile
)

// Member is one field of a struct/union type. BitWidth is >0 for bit-fields
// (spec.md section 4.3 "Bit-fields"); BitOffset is the shift within the
// storage unit.
type Member struct {
	Name      string
	Type      *Type
	Offset    int // byte offset of the storage unit within the struct
	BitWidth  int // 0 when not a bit-field
	BitOffset int
}

// Type is the uniquely-interned variant of spec.md section 3. Structurally
// identical types are pointer-equal (the "Type canonicalisation" testable
// property of section 8), mirroring falcon's TInt/TLong/... singletons in
// ast/type.go but generalised to recursive pointer/array/struct/function
// shapes via a structural interning table.
type Type struct {
	Kind     TypeKind
	Width    int  // fixnum: 1, 2, 4, 8 bytes
	Signed   bool // fixnum
	IsDouble bool // flonum: true = double, false = float

	Elem   *Type // pointer/array/qualified target
	Count  int   // array element count, -1 when unknown (incomplete)
	Tag    string
	Fields []Member
	IsUnion bool

	Ret     *Type // function
	Params  []*Type
	VaArgs  bool

	Qualifiers Qualifier // qualified
}

// PointerSize is configured once per compilation from the selected target
// (8 for x86-64, 4 for WebAssembly 32), per spec.md section 3.
var PointerSize = 8

// Predefined fixnum/flonum/void singletons, interned once at package init
// the way falcon interns TInt/TLong/TBool et al.
var (
	TChar    = &Type{Kind: KFixnum, Width: 1, Signed: true}
	TUChar   = &Type{Kind: KFixnum, Width: 1, Signed: false}
	TShort   = &Type{Kind: KFixnum, Width: 2, Signed: true}
	TUShort  = &Type{Kind: KFixnum, Width: 2, Signed: false}
	TInt     = &Type{Kind: KFixnum, Width: 4, Signed: true}
	TUInt    = &Type{Kind: KFixnum, Width: 4, Signed: false}
	TLong    = &Type{Kind: KFixnum, Width: 8, Signed: true}
	TULong   = &Type{Kind: KFixnum, Width: 8, Signed: false}
	TFloat   = &Type{Kind: KFlonum, Width: 4, IsDouble: false}
	TDouble  = &Type{Kind: KFlonum, Width: 8, IsDouble: true}
	TVoid    = &Type{Kind: KVoid}
)

// interner holds structural types (pointer/array/struct/function/qualified)
// keyed by a canonical string so identical declarator text always yields
// the same *Type pointer.
type interner struct {
	table map[string]*Type
}

var global_types = &interner{table: make(map[string]*Type)}

func (in *interner) intern(key string, make_ func() *Type) *Type {
	if t, ok := in.table[key]; ok {
		return t
	}
	t := make_()
	in.table[key] = t
	return t
}

func PointerTo(elem *Type) *Type {
	key := "ptr:" + elem.mangle()
	return global_types.intern(key, func() *Type {
		return &Type{Kind: KPointer, Elem: elem, Width: PointerSize, Signed: false}
	})
}

func ArrayOf(elem *Type, count int) *Type {
	key := fmt.Sprintf("arr:%d:%s", count, elem.mangle())
	return global_types.intern(key, func() *Type {
		return &Type{Kind: KArray, Elem: elem, Count: count}
	})
}

func FunctionType(ret *Type, params []*Type, vaArgs bool) *Type {
	var sb strings.Builder
	sb.WriteString("fn:")
	sb.WriteString(ret.mangle())
	for _, p := range params {
		sb.WriteString(",")
		sb.WriteString(p.mangle())
	}
	if vaArgs {
		sb.WriteString(",...")
	}
	return global_types.intern(sb.String(), func() *Type {
		return &Type{Kind: KFunction, Ret: ret, Params: params, VaArgs: vaArgs}
	})
}

func Qualify(inner *Type, q Qualifier) *Type {
	if q == 0 {
		return inner
	}
	key := fmt.Sprintf("q%d:%s", q, inner.mangle())
	return global_types.intern(key, func() *Type {
		return &Type{Kind: KQualified, Elem: inner, Qualifiers: q}
	})
}

// StructType interns by (tag, scope) per spec.md section 4.2; callers pass
// a scope-qualified tag so two `struct Point` in different scopes (or two
// anonymous structs) never collide. The struct body (Fields/size/align) is
// filled in later by CompleteStruct, in place on the interned pointer; a
// forward-declared tag returns the same incomplete *Type pointer
// so later completion is visible to every reference already resolved.
func StructType(scopeQualifiedTag string, isUnion bool) *Type {
	key := "struct:" + scopeQualifiedTag
	if isUnion {
		key = "union:" + scopeQualifiedTag
	}
	return global_types.intern(key, func() *Type {
		return &Type{Kind: KStruct, Tag: scopeQualifiedTag, IsUnion: isUnion}
	})
}

// CompleteStruct fills in the member list and computes size/alignment
// in place, so every interned reference to t observes the same layout.
func CompleteStruct(t *Type, fields []Member) {
	t.Fields = fields
	t.Width = t.computeAggregateSize()
}

func (t *Type) mangle() string {
	switch t.Kind {
	case KFixnum:
		return fmt.Sprintf("i%d%v", t.Width, t.Signed)
	case KFlonum:
		return fmt.Sprintf("f%d", t.Width)
	case KVoid:
		return "void"
	case KPointer:
		return "p:" + t.Elem.mangle()
	case KArray:
		return fmt.Sprintf("a%d:%s", t.Count, t.Elem.mangle())
	case KStruct:
		return "s:" + t.Tag
	case KQualified:
		return fmt.Sprintf("q%d:%s", t.Qualifiers, t.Elem.mangle())
	case KFunction:
		return "fn"
	}
	return "?"
}

func (t *Type) String() string {
	switch t.Kind {
	case KFixnum:
		names := map[[2]int]string{
			{1, 1}: "char", {1, 0}: "unsigned char",
			{2, 1}: "short", {2, 0}: "unsigned short",
			{4, 1}: "int", {4, 0}: "unsigned int",
			{8, 1}: "long", {8, 0}: "unsigned long",
		}
		s := 0
		if t.Signed {
			s = 1
		}
		return names[[2]int{t.Width, s}]
	case KFlonum:
		if t.IsDouble {
			return "double"
		}
		return "float"
	case KVoid:
		return "void"
	case KPointer:
		return t.Elem.String() + "*"
	case KArray:
		return fmt.Sprintf("%s[%d]", t.Elem.String(), t.Count)
	case KStruct:
		if t.IsUnion {
			return "union " + t.Tag
		}
		return "struct " + t.Tag
	case KFunction:
		parts := make([]string, len(t.Params))
		for i, p := range t.Params {
			parts[i] = p.String()
		}
		return fmt.Sprintf("%s(%s)", t.Ret.String(), strings.Join(parts, ","))
	case KQualified:
		prefix := ""
		if t.Qualifiers&QConst != 0 {
			prefix += "const "
		}
		if t.Qualifiers&QVolatile != 0 {
			prefix += "volatile "
		}
		return prefix + t.Elem.String()
	}
	return "?"
}

// Unqualified strips a qualified wrapper, the way most type-directed
// decisions (arithmetic conversion, size/align) need to.
func (t *Type) Unqualified() *Type {
	if t.Kind == KQualified {
		return t.Elem.Unqualified()
	}
	return t
}

func (t *Type) IsFixnum() bool  { return t.Unqualified().Kind == KFixnum }
func (t *Type) IsFlonum() bool  { return t.Unqualified().Kind == KFlonum }
func (t *Type) IsPointer() bool { return t.Unqualified().Kind == KPointer }
func (t *Type) IsArray() bool   { return t.Unqualified().Kind == KArray }
func (t *Type) IsStruct() bool  { return t.Unqualified().Kind == KStruct }
func (t *Type) IsFunction() bool { return t.Unqualified().Kind == KFunction }
func (t *Type) IsVoid() bool    { return t.Unqualified().Kind == KVoid }

// IsScalar is true for fixnum/flonum/pointer types: the ones that fit in a
// single vreg and participate in arithmetic/comparison.
func (t *Type) IsScalar() bool {
	u := t.Unqualified()
	return u.Kind == KFixnum || u.Kind == KFlonum || u.Kind == KPointer
}

// Size returns the type's size in bytes (spec.md section 3, "derived
// invariants").
func (t *Type) Size() int {
	u := t.Unqualified()
	switch u.Kind {
	case KFixnum, KFlonum:
		return u.Width
	case KPointer:
		return PointerSize
	case KArray:
		return u.Elem.Size() * u.Count
	case KStruct:
		return u.Width
	case KFunction:
		return PointerSize
	case KVoid:
		return 0
	}
	return 0
}

// Align returns the type's required alignment in bytes.
func (t *Type) Align() int {
	u := t.Unqualified()
	switch u.Kind {
	case KFixnum, KFlonum:
		return u.Width
	case KPointer, KFunction:
		return PointerSize
	case KArray:
		return u.Elem.Align()
	case KStruct:
		best := 1
		for _, f := range u.Fields {
			if a := f.Type.Align(); a > best {
				best = a
			}
		}
		return best
	}
	return 1
}

// computeAggregateSize lays out fields in declaration order with natural
// alignment padding, rounding the total up to the struct's own alignment -
// the usual C struct layout algorithm. Union size is the widest member.
func (t *Type) computeAggregateSize() int {
	if t.IsUnion {
		widest := 0
		for i := range t.Fields {
			t.Fields[i].Offset = 0
			if s := t.Fields[i].Type.Size(); s > widest {
				widest = s
			}
		}
		return widest
	}
	offset := 0
	for i := range t.Fields {
		a := t.Fields[i].Type.Align()
		offset = align(offset, a)
		t.Fields[i].Offset = offset
		offset += t.Fields[i].Type.Size()
	}
	align_ := 1
	for _, f := range t.Fields {
		if a := f.Type.Align(); a > align_ {
			align_ = a
		}
	}
	return align(offset, align_)
}

func align(n, a int) int {
	if a <= 1 {
		return n
	}
	return (n + a - 1) &^ (a - 1)
}

// Field looks up a struct/union member by name.
func (t *Type) Field(name string) (Member, bool) {
	u := t.Unqualified()
	for _, f := range u.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Member{}, false
}

// Decay implements array-to-pointer and function-to-pointer decay, applied
// to function parameters at parse time (spec.md section 4.2) and to array
// lvalues used as rvalues.
func (t *Type) Decay() *Type {
	u := t.Unqualified()
	if u.Kind == KArray {
		return PointerTo(u.Elem)
	}
	if u.Kind == KFunction {
		return PointerTo(u)
	}
	return t
}
