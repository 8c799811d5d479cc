package plan

import (
	"slices"
	"sort"

	"github.com/wippyai/nativebridge/errors"
)

// ReleaseMethodID is reserved for handle release messages. Its body is an
// int32 count followed by that many handles.
const ReleaseMethodID uint32 = 0xFFFFFFFF

// Error categories every method may raise without declaring them.
const (
	ErrorsProtocol     = "protocol"
	ErrorsIsolateDeath = "isolate-death"
)

// Param is a named method parameter.
type Param struct {
	Plan *Plan
	Name string
}

// Method is the marshalling signature of one bridged operation.
type Method struct {
	Result     *Plan // nil for void
	paramIndex map[string]int
	Name       string
	Params     []Param
	Errors     []string

	ID             uint32
	Receiver       bool
	Idempotent     bool
	CustomDispatch bool
}

// MethodOption configures a method.
type MethodOption func(*Method)

// WithReceiver makes the first wire argument a handle to the object the
// method is invoked on.
func WithReceiver() MethodOption {
	return func(m *Method) { m.Receiver = true }
}

// Idempotent marks the method's result as cacheable per receiver.
func Idempotent() MethodOption {
	return func(m *Method) { m.Idempotent = true }
}

// CustomDispatch routes the call through the receiver's dispatch factory.
func CustomDispatch() MethodOption {
	return func(m *Method) { m.CustomDispatch = true }
}

// Raises declares the error categories the method may raise.
func Raises(categories ...string) MethodOption {
	return func(m *Method) { m.Errors = append(m.Errors, categories...) }
}

// NewMethod builds and validates a method signature.
func NewMethod(id uint32, name string, params []Param, result *Plan, opts ...MethodOption) (*Method, error) {
	m := &Method{
		ID:         id,
		Name:       name,
		Params:     params,
		Result:     result,
		paramIndex: make(map[string]int, len(params)),
	}
	for _, o := range opts {
		o(m)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// MustMethod is NewMethod that panics on an invalid signature. It is meant
// for package-level service tables.
func MustMethod(id uint32, name string, params []Param, result *Plan, opts ...MethodOption) *Method {
	m, err := NewMethod(id, name, params, result, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Method) fail(path []string, detail string, args ...any) error {
	return errors.New(errors.PhasePlan, errors.KindInvalidInput).
		Path(append([]string{m.Name}, path...)...).
		Detail(detail, args...).
		Build()
}

func (m *Method) validate() error {
	if m.ID == ReleaseMethodID {
		return m.fail(nil, "method id 0x%x is reserved", m.ID)
	}
	for i, p := range m.Params {
		if p.Name == "" {
			return m.fail(nil, "parameter %d has no name", i)
		}
		if _, dup := m.paramIndex[p.Name]; dup {
			return m.fail([]string{p.Name}, "duplicate parameter")
		}
		m.paramIndex[p.Name] = i
		if err := p.Plan.Validate(); err != nil {
			return errors.Wrap(errors.PhasePlan, errors.KindInvalidInput, err, m.Name+"."+p.Name)
		}
	}
	for _, p := range m.Params {
		if p.Plan.Type.Kind == TypeVoid {
			return m.fail([]string{p.Name}, "void parameter")
		}
		for _, t := range []*Transfer{p.Plan.In, p.Plan.Out} {
			if t == nil {
				continue
			}
			for _, ref := range []string{t.OffsetParam, t.LengthParam} {
				if ref == "" {
					continue
				}
				i, ok := m.paramIndex[ref]
				if !ok {
					return m.fail([]string{p.Name}, "transfer refers to unknown parameter %q", ref)
				}
				q := m.Params[i].Plan
				if q.Kind != KindValue || q.Type.Kind != TypeInt32 {
					return m.fail([]string{p.Name}, "transfer parameter %q must be an int32 value", ref)
				}
			}
			if t.TrimToResult && (m.Result == nil || m.Result.Kind != KindValue || m.Result.Type.Kind != TypeInt32) {
				return m.fail([]string{p.Name}, "trim-to-result requires an int32 result")
			}
		}
	}
	if m.Result != nil {
		if err := m.Result.Validate(); err != nil {
			return errors.Wrap(errors.PhasePlan, errors.KindInvalidInput, err, m.Name+".result")
		}
		if m.Result.Directional() {
			return m.fail([]string{"result"}, "results carry no direction")
		}
		if m.Result.Type.Kind == TypeVoid {
			m.Result = nil
		}
	}
	if m.Idempotent {
		if m.Result == nil {
			return m.fail(nil, "idempotent method must return a value")
		}
		if len(m.OutParams()) > 0 {
			return m.fail(nil, "idempotent method cannot have output parameters")
		}
	}
	if m.CustomDispatch && !m.Receiver {
		return m.fail(nil, "custom dispatch requires a receiver")
	}
	return nil
}

// ParamIndex returns the position of the named parameter.
func (m *Method) ParamIndex(name string) (int, bool) {
	i, ok := m.paramIndex[name]
	return i, ok
}

// OutParams returns the positions of parameters copied back after the call.
func (m *Method) OutParams() []int {
	var out []int
	for i, p := range m.Params {
		if p.Plan.HasOut() {
			out = append(out, i)
		}
	}
	return out
}

// CheckErrors verifies that every category in raisable is declared on the
// method or is one of the implicit categories.
func (m *Method) CheckErrors(raisable ...string) error {
	var missing []string
	for _, c := range raisable {
		if c == ErrorsProtocol || c == ErrorsIsolateDeath || slices.Contains(m.Errors, c) {
			continue
		}
		missing = append(missing, c)
	}
	if len(missing) == 0 {
		return nil
	}
	return m.fail(nil, "undeclared error categories %v", missing)
}

// Service is an immutable table of methods keyed by id.
type Service struct {
	byID   map[uint32]*Method
	byName map[string]*Method
	Name   string
}

// NewService builds a service from methods with unique ids and names.
func NewService(name string, methods ...*Method) (*Service, error) {
	s := &Service{
		Name:   name,
		byID:   make(map[uint32]*Method, len(methods)),
		byName: make(map[string]*Method, len(methods)),
	}
	for _, m := range methods {
		if m == nil {
			return nil, errors.InvalidInput(errors.PhasePlan, "nil method in service "+name)
		}
		if _, dup := s.byID[m.ID]; dup {
			return nil, errors.New(errors.PhasePlan, errors.KindRegistration).
				Path(name, m.Name).
				Detail("duplicate method id %d", m.ID).
				Build()
		}
		if _, dup := s.byName[m.Name]; dup {
			return nil, errors.New(errors.PhasePlan, errors.KindRegistration).
				Path(name, m.Name).
				Detail("duplicate method name").
				Build()
		}
		s.byID[m.ID] = m
		s.byName[m.Name] = m
	}
	return s, nil
}

// Lookup returns the method with the given id.
func (s *Service) Lookup(id uint32) (*Method, error) {
	if m, ok := s.byID[id]; ok {
		return m, nil
	}
	return nil, errors.UnknownMethod(s.Name, id)
}

// Method returns the method with the given name.
func (s *Service) Method(name string) (*Method, bool) {
	m, ok := s.byName[name]
	return m, ok
}

// Methods returns all methods ordered by id.
func (s *Service) Methods() []*Method {
	out := make([]*Method, 0, len(s.byID))
	for _, m := range s.byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
