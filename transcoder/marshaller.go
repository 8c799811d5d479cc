package transcoder

import (
	"sync"

	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/plan"
	"github.com/wippyai/nativebridge/wire"
)

// Marshaller encodes values of one logical type for custom plans.
type Marshaller interface {
	Write(out *wire.Output, v any) error
	Read(in *wire.Input) (any, error)
	// InferSize returns the encoded size of v, or a negative value when
	// it cannot be computed cheaply.
	InferSize(v any) int
}

// UpdateMarshaller additionally supports in-place update of an object the
// receiver mutates, for custom plans with an output direction.
type UpdateMarshaller interface {
	Marshaller
	WriteUpdate(out *wire.Output, v any) error
	ReadUpdate(in *wire.Input, v any) error
	InferUpdateSize(v any) int
}

// Funcs adapts plain functions to Marshaller. A nil SizeFunc reports an
// unknown size.
type Funcs struct {
	WriteFunc func(out *wire.Output, v any) error
	ReadFunc  func(in *wire.Input) (any, error)
	SizeFunc  func(v any) int
}

func (f *Funcs) Write(out *wire.Output, v any) error { return f.WriteFunc(out, v) }

func (f *Funcs) Read(in *wire.Input) (any, error) { return f.ReadFunc(in) }

func (f *Funcs) InferSize(v any) int {
	if f.SizeFunc == nil {
		return -1
	}
	return f.SizeFunc(v)
}

// Marshallers is a name-keyed registry of marshallers. The name of the
// marshaller for a type and annotation set is plan.MarshallerName, so every
// custom plan over the same type and annotations shares one instance.
type Marshallers struct {
	byName map[string]Marshaller
	mu     sync.RWMutex
}

// NewMarshallers creates an empty registry.
func NewMarshallers() *Marshallers {
	return &Marshallers{byName: make(map[string]Marshaller)}
}

// Register binds m to the marshaller name derived from t and annotations
// and returns that name.
func (r *Marshallers) Register(t *plan.Type, m Marshaller, annotations ...string) (string, error) {
	name := plan.MarshallerName(t, annotations)
	return name, r.RegisterNamed(name, m)
}

// RegisterNamed binds m to name. Rebinding a name to a different instance
// is an error.
func (r *Marshallers) RegisterNamed(name string, m Marshaller) error {
	if m == nil {
		return errors.InvalidInput(errors.PhasePlan, "nil marshaller for "+name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byName[name]; ok && existing != m {
		return errors.Registration(errors.PhasePlan, "marshaller", name,
			errors.InvalidInput(errors.PhasePlan, "name already bound"))
	}
	r.byName[name] = m
	return nil
}

// Lookup returns the marshaller registered under name.
func (r *Marshallers) Lookup(name string) (Marshaller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byName[name]
	return m, ok
}

func (r *Marshallers) forPlan(phase errors.Phase, p *plan.Plan) (Marshaller, error) {
	if m, ok := r.Lookup(p.MarshallerName); ok {
		return m, nil
	}
	return nil, errors.NotFound(phase, "marshaller", p.MarshallerName)
}
