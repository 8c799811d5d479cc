package plan

import "strings"

// TypeKind is the logical kind of a value type.
type TypeKind uint8

const (
	TypeVoid TypeKind = iota
	TypeBool
	TypeInt8
	TypeInt16
	TypeChar
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeString
	TypeArray
	TypeObject
	TypeVariable
	TypeWildcard
)

var kindNames = [...]string{
	TypeVoid:     "void",
	TypeBool:     "bool",
	TypeInt8:     "int8",
	TypeInt16:    "int16",
	TypeChar:     "char",
	TypeInt32:    "int32",
	TypeInt64:    "int64",
	TypeFloat32:  "float32",
	TypeFloat64:  "float64",
	TypeString:   "string",
	TypeArray:    "array",
	TypeObject:   "object",
	TypeVariable: "variable",
	TypeWildcard: "wildcard",
}

func (k TypeKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Type describes the logical type of a value site as seen by the analysis
// layer. Types are immutable after construction.
type Type struct {
	Elem  *Type   // array element
	Bound *Type   // wildcard bound
	Name  string  // object or variable name, e.g. "calc.Counter"
	Args  []*Type // generic arguments
	Kind  TypeKind
	Lower bool // wildcard bound is a lower bound
}

// Predeclared scalar types.
var (
	Void    = &Type{Kind: TypeVoid}
	Bool    = &Type{Kind: TypeBool}
	Int8    = &Type{Kind: TypeInt8}
	Int16   = &Type{Kind: TypeInt16}
	Char    = &Type{Kind: TypeChar}
	Int32   = &Type{Kind: TypeInt32}
	Int64   = &Type{Kind: TypeInt64}
	Float32 = &Type{Kind: TypeFloat32}
	Float64 = &Type{Kind: TypeFloat64}
	String  = &Type{Kind: TypeString}
)

// ErrorType is the logical type of an error crossing in an envelope.
var ErrorType = Object("error")

// ArrayOf returns an array type of elem.
func ArrayOf(elem *Type) *Type {
	return &Type{Kind: TypeArray, Elem: elem}
}

// Object returns a named object type with optional generic arguments.
func Object(name string, args ...*Type) *Type {
	return &Type{Kind: TypeObject, Name: name, Args: args}
}

// Var returns a type variable.
func Var(name string) *Type {
	return &Type{Kind: TypeVariable, Name: name}
}

// Wildcard returns an unbounded wildcard.
func Wildcard() *Type {
	return &Type{Kind: TypeWildcard}
}

// Extends returns a wildcard with an upper bound.
func Extends(bound *Type) *Type {
	return &Type{Kind: TypeWildcard, Bound: bound}
}

// Super returns a wildcard with a lower bound.
func Super(bound *Type) *Type {
	return &Type{Kind: TypeWildcard, Bound: bound, Lower: true}
}

// IsPrimitive reports whether t is a fixed-width scalar.
func (t *Type) IsPrimitive() bool {
	return t.Kind >= TypeBool && t.Kind <= TypeFloat64
}

// IsArray reports whether t is an array.
func (t *Type) IsArray() bool {
	return t.Kind == TypeArray
}

// IsPrimitiveArray reports whether t is a one-dimensional array of scalars.
func (t *Type) IsPrimitiveArray() bool {
	return t.Kind == TypeArray && t.Elem != nil && t.Elem.IsPrimitive()
}

// Dimensions returns the number of array dimensions.
func (t *Type) Dimensions() int {
	n := 0
	for c := t; c != nil && c.Kind == TypeArray; c = c.Elem {
		n++
	}
	return n
}

// Component returns the innermost non-array element type.
func (t *Type) Component() *Type {
	c := t
	for c.Kind == TypeArray && c.Elem != nil {
		c = c.Elem
	}
	return c
}

// Width returns the encoded byte width of a scalar, 0 otherwise.
func (t *Type) Width() int {
	switch t.Kind {
	case TypeBool, TypeInt8:
		return 1
	case TypeInt16, TypeChar:
		return 2
	case TypeInt32, TypeFloat32:
		return 4
	case TypeInt64, TypeFloat64:
		return 8
	}
	return 0
}

// Erased drops generic arguments and replaces type variables and wildcards
// by their bound (or object).
func (t *Type) Erased() *Type {
	switch t.Kind {
	case TypeArray:
		return ArrayOf(t.Elem.Erased())
	case TypeObject:
		if len(t.Args) == 0 {
			return t
		}
		return Object(t.Name)
	case TypeVariable:
		return Object("object")
	case TypeWildcard:
		if t.Bound != nil && !t.Lower {
			return t.Bound.Erased()
		}
		return Object("object")
	}
	return t
}

// String renders t in a compact, language-neutral notation.
func (t *Type) String() string {
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t *Type) write(b *strings.Builder) {
	switch t.Kind {
	case TypeArray:
		t.Elem.write(b)
		b.WriteString("[]")
	case TypeObject:
		b.WriteString(t.Name)
		if len(t.Args) > 0 {
			b.WriteByte('<')
			for i, a := range t.Args {
				if i > 0 {
					b.WriteString(", ")
				}
				a.write(b)
			}
			b.WriteByte('>')
		}
	case TypeVariable:
		b.WriteString(t.Name)
	case TypeWildcard:
		b.WriteByte('?')
		if t.Bound != nil {
			if t.Lower {
				b.WriteString(" super ")
			} else {
				b.WriteString(" extends ")
			}
			t.Bound.write(b)
		}
	default:
		b.WriteString(t.Kind.String())
	}
}
