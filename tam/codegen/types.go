// Package codegen lowers an already type-checked program into a TAM image
// using tam/asm. There is no lexer or parser here: callers hand it an AST
// built directly out of the node types below, each already carrying its
// resolved type and word size, the way a prior type-checking pass would
// leave them. No implicit conversions remain to perform at this layer —
// an Int expression used where a Float is expected is a caller bug, not
// something this package coerces.
package codegen

import "fmt"

// Type is a resolved value type with a known word size on the TAM stack.
type Type interface {
	WordSize() int
	String() string
}

// scalarKind distinguishes the four scalar types without needing a
// separate Go type per kind.
type scalarKind int

const (
	scalarInt scalarKind = iota
	scalarFloat
	scalarBool
	scalarString
)

// Scalar is one of the four built-in one-word value types.
type Scalar struct{ kind scalarKind }

var (
	IntType    = Scalar{scalarInt}
	FloatType  = Scalar{scalarFloat}
	BoolType   = Scalar{scalarBool}
	StringType = Scalar{scalarString}
)

func (s Scalar) WordSize() int { return 1 }

func (s Scalar) String() string {
	switch s.kind {
	case scalarInt:
		return "int"
	case scalarFloat:
		return "float"
	case scalarBool:
		return "bool"
	case scalarString:
		return "string"
	default:
		return "?"
	}
}

// IsFloat reports whether arithmetic on this scalar should use the float
// primitive family (addF/subF/...) instead of the int family.
func (s Scalar) IsFloat() bool { return s.kind == scalarFloat }

// VectorType is a fixed-length, homogeneously-typed one-dimensional array.
type VectorType struct {
	Elem   Type
	Length int
}

func (v VectorType) WordSize() int { return v.Elem.WordSize() * v.Length }
func (v VectorType) String() string {
	return fmt.Sprintf("vector[%d] of %s", v.Length, v.Elem)
}

// MatrixType is a fixed-size, row-major two-dimensional array.
type MatrixType struct {
	Elem Type
	Rows int
	Cols int
}

func (m MatrixType) WordSize() int { return m.Elem.WordSize() * m.Rows * m.Cols }
func (m MatrixType) String() string {
	return fmt.Sprintf("matrix[%d,%d] of %s", m.Rows, m.Cols, m.Elem)
}

// RecordField is one named, typed slot of a RecordType, in declaration
// (and therefore storage) order.
type RecordField struct {
	Name string
	Type Type
}

// RecordType is a fixed layout of named fields, stored contiguously in
// declaration order; FieldOffset walks that layout to find one field's
// word offset and type.
type RecordType struct {
	Fields []RecordField
}

func (r RecordType) WordSize() int {
	size := 0
	for _, f := range r.Fields {
		size += f.Type.WordSize()
	}
	return size
}

func (r RecordType) String() string {
	return fmt.Sprintf("record with %d fields", len(r.Fields))
}

// FieldOffset returns the word offset of name relative to the record's own
// base address, and its type. ok is false if no field has that name.
func (r RecordType) FieldOffset(name string) (offset int, ft Type, ok bool) {
	off := 0
	for _, f := range r.Fields {
		if f.Name == name {
			return off, f.Type, true
		}
		off += f.Type.WordSize()
	}
	return 0, nil, false
}
