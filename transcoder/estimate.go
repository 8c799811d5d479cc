package transcoder

import (
	"reflect"
	"sync/atomic"

	"github.com/wippyai/nativebridge/plan"
	"github.com/wippyai/nativebridge/transcoder/internal/coerce"
)

// Fallback sizes for values whose size is not computed.
const (
	DefaultCustomFallback = 128
	DefaultTypedFallback  = 16
)

// Estimator predicts encoded sizes so a call can pick a pooled fixed
// region instead of allocating. Estimates are hints: an underestimate
// costs one reallocation, never correctness.
type Estimator struct {
	marshallers *Marshallers
	misses      atomic.Uint64
	hits        atomic.Uint64

	// CustomFallback is charged per element of arrays whose elements are
	// arrays or objects, and of custom arrays with no inferred size.
	CustomFallback int
	// TypedFallback is charged for an object passed by value.
	TypedFallback int
}

// NewEstimator creates an estimator with the default fallbacks.
func NewEstimator(marshallers *Marshallers) *Estimator {
	return &Estimator{
		marshallers:    marshallers,
		CustomFallback: DefaultCustomFallback,
		TypedFallback:  DefaultTypedFallback,
	}
}

// Estimate sums the estimated sizes of values under plans.
func (e *Estimator) Estimate(plans []*plan.Plan, values []any) int {
	size := 0
	for i, p := range plans {
		var v any
		if i < len(values) {
			v = values[i]
		}
		size += e.term(p, v)
	}
	return size
}

// Request estimates the size of a request for m.
func (e *Estimator) Request(m *plan.Method, args []any) int {
	size := 4
	if m.Receiver {
		size += 8
	}
	for i, param := range m.Params {
		var v any
		if i < len(args) {
			v = args[i]
		}
		p := param.Plan
		if p.Kind != plan.KindValue || !p.Directional() {
			size += e.term(p, v)
			continue
		}
		size += 4
		if !p.HasIn() {
			continue
		}
		n := sliceLen(v)
		cnt := n
		if p.In != nil && len(args) == len(m.Params) {
			if _, c, err := transferRange("", m, p.In, args, n, nil, []string{m.Name}); err == nil {
				cnt = c
			}
		}
		size += 8 + cnt*p.Type.Elem.Width()
	}
	return size
}

// Reply estimates the size of the reply to m once result is known.
func (e *Estimator) Reply(m *plan.Method, args []any, result any) int {
	size := 0
	if m.Result != nil {
		size += e.term(m.Result, result)
	}
	for _, i := range m.OutParams() {
		p := m.Params[i].Plan
		var v any
		if i < len(args) {
			v = args[i]
		}
		if p.Kind == plan.KindCustom {
			size++
			if um, ok := e.updateMarshaller(p); ok {
				if n := um.InferUpdateSize(v); n > 0 {
					size += n
				}
			}
			continue
		}
		size += 1 + 8
		if p.Out.LengthParam != "" {
			// the declared length is trusted here and validated on encode
			if j, ok := m.ParamIndex(p.Out.LengthParam); ok && j < len(args) {
				if n, ok := coerce.Int(args[j], 32); ok && n > 0 {
					size += int(n) * p.Type.Elem.Width()
				}
			}
			continue
		}
		size += sliceLen(v) * p.Type.Elem.Width()
	}
	return size
}

func (e *Estimator) updateMarshaller(p *plan.Plan) (UpdateMarshaller, bool) {
	m, ok := e.marshallers.Lookup(p.MarshallerName)
	if !ok {
		return nil, false
	}
	um, ok := m.(UpdateMarshaller)
	return um, ok
}

func (e *Estimator) term(p *plan.Plan, v any) int {
	switch p.Kind {
	case plan.KindReference, plan.KindPeerReference:
		if p.Type.IsArray() {
			return 4 + sliceLen(v)*8
		}
		return 8
	case plan.KindCustom:
		if m, ok := e.marshallers.Lookup(p.MarshallerName); ok {
			if n := m.InferSize(v); n > 0 {
				return n
			}
		}
		if p.Type.IsArray() {
			return 4 + sliceLen(v)*e.CustomFallback
		}
		return 0
	}
	return e.valueTerm(p.Type, v)
}

func (e *Estimator) valueTerm(t *plan.Type, v any) int {
	switch t.Kind {
	case plan.TypeString:
		return 4 + stringLen(v)
	case plan.TypeArray:
		switch {
		case t.Elem.IsPrimitive():
			return 4 + sliceLen(v)*t.Elem.Width()
		case t.Elem.Kind == plan.TypeString:
			size := 4
			if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice {
				for i := 0; i < rv.Len(); i++ {
					size += 4 + stringLen(rv.Index(i).Interface())
				}
			}
			return size
		default:
			return 4 + sliceLen(v)*e.CustomFallback
		}
	case plan.TypeObject, plan.TypeVariable, plan.TypeWildcard:
		return 1 + e.TypedFallback
	}
	return t.Width()
}

// Observe records whether an estimate held. Callers report an output that
// had to reallocate as a miss.
func (e *Estimator) Observe(reallocated bool) {
	if reallocated {
		e.misses.Add(1)
	} else {
		e.hits.Add(1)
	}
}

// Misses returns the number of observed underestimates.
func (e *Estimator) Misses() uint64 {
	return e.misses.Load()
}

// Hits returns the number of observed estimates that held.
func (e *Estimator) Hits() uint64 {
	return e.hits.Load()
}

func sliceLen(v any) int {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		return rv.Len()
	}
	return 0
}

func stringLen(v any) int {
	switch s := v.(type) {
	case string:
		return len(s)
	case *string:
		if s != nil {
			return len(*s)
		}
		return 0
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.Len()
	}
	return 0
}
