package runtime

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/plan"
)

// Func implements one method. recv is the resolved receiver object, nil
// for methods without one. Output array arguments are updated in place
// through args.
type Func func(ctx context.Context, recv any, args []any) (any, error)

// Invoker is implemented by receivers of methods declared with custom
// dispatch; the receiver serves the call itself.
type Invoker interface {
	Invoke(ctx context.Context, m *plan.Method, args []any) (any, error)
}

// Binding maps the methods of a service to implementations.
type Binding struct {
	svc   *plan.Service
	funcs map[uint32]Func
	mu    sync.RWMutex
}

// NewBinding creates a binding with no implementations.
func NewBinding(svc *plan.Service) *Binding {
	return &Binding{svc: svc, funcs: make(map[uint32]Func)}
}

// Service returns the bound service.
func (b *Binding) Service() *plan.Service {
	return b.svc
}

// Handle binds fn to the method called name.
func (b *Binding) Handle(name string, fn Func) error {
	m, ok := b.svc.Method(name)
	if !ok {
		return errors.NotFound(errors.PhaseDispatch, "method", name)
	}
	if fn == nil {
		return errors.InvalidInput(errors.PhaseDispatch, "nil implementation for "+name)
	}
	b.mu.Lock()
	b.funcs[m.ID] = fn
	b.mu.Unlock()
	return nil
}

func (b *Binding) lookup(m *plan.Method) (Func, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	fn, ok := b.funcs[m.ID]
	return fn, ok
}

// Bind binds every method of svc by reflection. Methods without a
// receiver are served by the exported method of impl with the same name,
// in PascalCase (GetValue serves "get-value", "getValue" and "GetValue").
// Methods with a receiver are served by the matching method of the
// resolved receiver object, and custom dispatch methods by its Invoker.
//
// A Go method may take a leading context.Context, then one parameter per
// plan parameter, and return (result, error), (result), (error) or
// nothing.
func Bind(svc *plan.Service, impl any) (*Binding, error) {
	b := NewBinding(svc)
	for _, m := range svc.Methods() {
		switch {
		case m.CustomDispatch:
			b.funcs[m.ID] = customDispatch(m)
		case m.Receiver:
			b.funcs[m.ID] = receiverDispatch(m)
		default:
			if impl == nil {
				return nil, errors.NotFound(errors.PhaseDispatch, "implementation", m.Name)
			}
			fn, ok := methodByName(reflect.ValueOf(impl), m.Name)
			if !ok {
				return nil, errors.Registration(errors.PhaseDispatch, svc.Name, m.Name,
					errors.NotFound(errors.PhaseDispatch, "method", m.Name))
			}
			if err := checkSignature(fn.Type(), m); err != nil {
				return nil, err
			}
			b.funcs[m.ID] = func(ctx context.Context, _ any, args []any) (any, error) {
				return callReflect(ctx, fn, m, args)
			}
		}
	}
	return b, nil
}

func customDispatch(m *plan.Method) Func {
	return func(ctx context.Context, recv any, args []any) (any, error) {
		inv, ok := recv.(Invoker)
		if !ok {
			return nil, errors.New(errors.PhaseDispatch, errors.KindUnsupported).
				Path(m.Name).
				GoType(fmt.Sprintf("%T", recv)).
				Detail("receiver does not implement Invoker").
				Build()
		}
		return inv.Invoke(ctx, m, args)
	}
}

func receiverDispatch(m *plan.Method) Func {
	return func(ctx context.Context, recv any, args []any) (any, error) {
		fn, ok := methodByName(reflect.ValueOf(recv), m.Name)
		if !ok {
			return nil, errors.New(errors.PhaseDispatch, errors.KindNotFound).
				Path(m.Name).
				GoType(fmt.Sprintf("%T", recv)).
				Detail("receiver has no method for %s", m.Name).
				Build()
		}
		if err := checkSignature(fn.Type(), m); err != nil {
			return nil, err
		}
		return callReflect(ctx, fn, m, args)
	}
}

func methodByName(rv reflect.Value, name string) (reflect.Value, bool) {
	if !rv.IsValid() {
		return reflect.Value{}, false
	}
	rt := rv.Type()
	for i := 0; i < rt.NumMethod(); i++ {
		gm := rt.Method(i)
		if gm.Name == name || toKebabCase(gm.Name) == name || strings.EqualFold(gm.Name, name) {
			return rv.Method(i), true
		}
	}
	return reflect.Value{}, false
}

var (
	contextType         = reflect.TypeFor[context.Context]()
	errorType           = reflect.TypeFor[error]()
	stringsType         = reflect.TypeFor[[]string]()
	nullableStringsType = reflect.TypeFor[[]*string]()
)

func checkSignature(ft reflect.Type, m *plan.Method) error {
	fail := func(detail string) error {
		return errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
			Path(m.Name).
			GoType(ft.String()).
			Detail("%s", detail).
			Build()
	}
	in := ft.NumIn()
	if in > 0 && ft.In(0) == contextType {
		in--
	}
	if ft.IsVariadic() || in != len(m.Params) {
		return fail(fmt.Sprintf("want %d parameters", len(m.Params)))
	}
	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) != errorType && m.Result == nil {
			return fail("void method returns a value")
		}
	case 2:
		if ft.Out(1) != errorType {
			return fail("second result must be error")
		}
	default:
		return fail("too many results")
	}
	return nil
}

func callReflect(ctx context.Context, fn reflect.Value, m *plan.Method, args []any) (any, error) {
	ft := fn.Type()
	in := make([]reflect.Value, 0, ft.NumIn())
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		in = append(in, reflect.ValueOf(ctx))
	}
	for i, a := range args {
		pt := ft.In(len(in))
		v, err := argValue(a, pt)
		if err != nil {
			return nil, errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
				Path(m.Name, m.Params[i].Name).
				GoType(fmt.Sprintf("%T", a)).
				Detail("cannot pass as %s", pt).
				Build()
		}
		in = append(in, v)
	}

	out := fn.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if ft.Out(0) == errorType {
			return nil, asError(out[0])
		}
		return out[0].Interface(), nil
	}
	return out[0].Interface(), asError(out[1])
}

// argValue adapts a decoded argument to a parameter type. String arrays
// decode as []*string only when they carry nulls, so []string also feeds
// []*string parameters.
func argValue(a any, pt reflect.Type) (reflect.Value, error) {
	if a == nil {
		return reflect.Zero(pt), nil
	}
	av := reflect.ValueOf(a)
	switch {
	case av.Type().AssignableTo(pt):
		return av, nil
	case numeric(av.Kind()) && numeric(pt.Kind()):
		return av.Convert(pt), nil
	case av.Kind() == reflect.Slice && pt.Kind() == reflect.Slice &&
		av.Type().Elem().Kind() == pt.Elem().Kind() && numericOrBool(pt.Elem().Kind()):
		if av.IsNil() {
			return reflect.Zero(pt), nil
		}
		// same layout; the implementation writes into the caller's array
		return reflect.SliceAt(pt.Elem(), av.UnsafePointer(), av.Len()).Convert(pt), nil
	case av.Type() == stringsType && pt == nullableStringsType:
		ss := a.([]string)
		if ss == nil {
			return reflect.Zero(pt), nil
		}
		out := make([]*string, len(ss))
		for i := range ss {
			out[i] = &ss[i]
		}
		return reflect.ValueOf(out), nil
	}
	return reflect.Value{}, fmt.Errorf("%s is not %s", av.Type(), pt)
}

func numeric(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}

func numericOrBool(k reflect.Kind) bool {
	return k == reflect.Bool || numeric(k)
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

// toKebabCase converts PascalCase to kebab-case.
// Handles acronyms: GetHTTPURL -> get-http-url
func toKebabCase(s string) string {
	if len(s) == 0 {
		return ""
	}

	runes := []rune(s)
	var result strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if unicode.IsUpper(r) {
			acronymEnd := i + 1
			for acronymEnd < len(runes) && unicode.IsUpper(runes[acronymEnd]) {
				acronymEnd++
			}

			if acronymEnd > i+1 {
				// Last uppercase before lowercase starts next word, not part of acronym
				if acronymEnd < len(runes) && unicode.IsLower(runes[acronymEnd]) {
					acronymEnd--
				}
			}

			if i > 0 {
				result.WriteByte('-')
			}

			for j := i; j < acronymEnd; j++ {
				result.WriteRune(unicode.ToLower(runes[j]))
			}
			i = acronymEnd - 1
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
