package plan

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MarshallerName derives the lookup name of the marshaller serving t under
// the given annotations. The name depends only on the erased-and-argument
// structure of t and the annotation set, so equal inputs always map to the
// same marshaller instance:
//
//	Object("geo.Point")                      -> "pointMarshaller"
//	Object("List", Extends(Object("Shape"))) -> "listOfExtendsShapeMarshaller"
//	Object("Point"), "@geo.Packed"           -> "pointWithPackedMarshaller"
func MarshallerName(t *Type, annotations []string) string {
	var b strings.Builder
	writeTypeName(&b, t)
	for _, a := range normalizeAnnotations(annotations) {
		b.WriteString("With")
		b.WriteString(upperFirst(a))
	}
	b.WriteString("Marshaller")
	return lowerFirst(b.String())
}

func writeTypeName(b *strings.Builder, t *Type) {
	switch t.Kind {
	case TypeArray:
		writeTypeName(b, t.Elem)
		b.WriteString("Array")
	case TypeObject:
		b.WriteString(upperFirst(simpleName(t.Name)))
		for i, a := range t.Args {
			if i == 0 {
				b.WriteString("Of")
			} else {
				b.WriteString("And")
			}
			writeTypeName(b, a)
		}
	case TypeVariable:
		b.WriteString(upperFirst(t.Name))
	case TypeWildcard:
		switch {
		case t.Bound == nil:
			b.WriteString("Wildcard")
		case t.Lower:
			b.WriteString("Super")
			writeTypeName(b, t.Bound)
		default:
			b.WriteString("Extends")
			writeTypeName(b, t.Bound)
		}
	default:
		b.WriteString(upperFirst(t.Kind.String()))
	}
}

// normalizeAnnotations reduces annotation names to sorted, unique simple
// names so their order at the declaration site does not matter.
func normalizeAnnotations(annotations []string) []string {
	if len(annotations) == 0 {
		return nil
	}
	out := make([]string, 0, len(annotations))
	for _, a := range annotations {
		a = simpleName(strings.TrimPrefix(a, "@"))
		if a != "" {
			out = append(out, a)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func simpleName(name string) string {
	if i := strings.LastIndexAny(name, "./$"); i >= 0 {
		return name[i+1:]
	}
	return name
}

func upperFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}

func lowerFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToLower(r)) + s[n:]
}
