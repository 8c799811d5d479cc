package main

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/wippyai/nativebridge/handle"
	"github.com/wippyai/nativebridge/plan"
)

type scalarParser struct {
	parse func(s string) (any, error)
	typ   reflect.Type
}

func intParser[T int8 | int16 | int32 | int64](bits int) scalarParser {
	return scalarParser{
		typ: reflect.TypeFor[T](),
		parse: func(s string) (any, error) {
			v, err := strconv.ParseInt(s, 0, bits)
			return T(v), err
		},
	}
}

var scalars = map[plan.TypeKind]scalarParser{
	plan.TypeBool: {typ: reflect.TypeFor[bool](), parse: func(s string) (any, error) {
		return strconv.ParseBool(s)
	}},
	plan.TypeInt8:  intParser[int8](8),
	plan.TypeInt16: intParser[int16](16),
	plan.TypeInt32: intParser[int32](32),
	plan.TypeInt64: intParser[int64](64),
	plan.TypeChar: {typ: reflect.TypeFor[uint16](), parse: func(s string) (any, error) {
		r := []rune(s)
		if len(r) != 1 || r[0] > 0xFFFF {
			return nil, fmt.Errorf("%q is not a single 16-bit character", s)
		}
		return uint16(r[0]), nil
	}},
	plan.TypeFloat32: {typ: reflect.TypeFor[float32](), parse: func(s string) (any, error) {
		v, err := strconv.ParseFloat(s, 32)
		return float32(v), err
	}},
	plan.TypeFloat64: {typ: reflect.TypeFor[float64](), parse: func(s string) (any, error) {
		return strconv.ParseFloat(s, 64)
	}},
	plan.TypeString: {typ: reflect.TypeFor[string](), parse: func(s string) (any, error) {
		return s, nil
	}},
}

// parseArgs converts command-line fields to call arguments. An output-only
// array takes its length instead of its content.
func parseArgs(m *plan.Method, fields []string) ([]any, error) {
	if len(fields) != len(m.Params) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", m.Name, len(m.Params), len(fields))
	}
	args := make([]any, len(fields))
	for i, p := range m.Params {
		v, err := parseParam(strings.TrimSpace(fields[i]), p.Plan)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", p.Name, err)
		}
		args[i] = v
	}
	return args, nil
}

func parseParam(s string, p *plan.Plan) (any, error) {
	if p.Kind != plan.KindValue {
		return nil, fmt.Errorf("%s parameters cannot be given on the command line", p.Kind)
	}
	t := p.Type
	if !t.IsArray() {
		return parseScalar(s, t)
	}
	if !t.IsPrimitiveArray() {
		return nil, fmt.Errorf("unsupported array type %s", t)
	}
	elem := scalars[t.Elem.Kind]
	sliceType := reflect.SliceOf(elem.typ)
	if t.Elem.Kind == plan.TypeInt8 {
		sliceType = reflect.TypeFor[[]byte]()
	}

	if p.HasOut() && !p.HasIn() {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("output buffer length %q", s)
		}
		return reflect.MakeSlice(sliceType, n, n).Interface(), nil
	}
	if s == "" {
		return reflect.MakeSlice(sliceType, 0, 0).Interface(), nil
	}
	parts := strings.Split(s, ",")
	out := reflect.MakeSlice(sliceType, len(parts), len(parts))
	for i, part := range parts {
		v, err := parseScalar(strings.TrimSpace(part), t.Elem)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out.Index(i).Set(reflect.ValueOf(v).Convert(sliceType.Elem()))
	}
	return out.Interface(), nil
}

func parseScalar(s string, t *plan.Type) (any, error) {
	sp, ok := scalars[t.Kind]
	if !ok {
		return nil, fmt.Errorf("unsupported type %s", t)
	}
	v, err := sp.parse(s)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func parseReceiver(m *plan.Method, s string) (handle.Handle, error) {
	if !m.Receiver {
		if s != "" {
			return 0, fmt.Errorf("%s has no receiver", m.Name)
		}
		return 0, nil
	}
	if s == "" {
		return 0, fmt.Errorf("%s needs a receiver handle (-recv)", m.Name)
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("receiver handle %q: %w", s, err)
	}
	return handle.Handle(v), nil
}

func describePlan(p *plan.Plan) string {
	s := p.Type.String()
	switch p.Kind {
	case plan.KindReference, plan.KindPeerReference:
		s = "&" + s
	case plan.KindCustom:
		s += " (custom)"
	}
	switch {
	case p.HasIn() && p.HasOut():
		s += " inout"
	case p.HasOut():
		s += " out"
	}
	return s
}

// formatResult renders a result followed by the output arrays.
func formatResult(m *plan.Method, args []any, result any) string {
	var b strings.Builder
	switch r := result.(type) {
	case nil:
		b.WriteString("ok")
	case *handle.Remote:
		fmt.Fprintf(&b, "%s (use -recv %d)", r, uint64(r.Handle))
	default:
		fmt.Fprintf(&b, "%+v", r)
	}
	for _, i := range m.OutParams() {
		switch v := args[i].(type) {
		case []byte:
			fmt.Fprintf(&b, "\n%s = %q", m.Params[i].Name, v)
		default:
			fmt.Fprintf(&b, "\n%s = %v", m.Params[i].Name, v)
		}
	}
	return b.String()
}
