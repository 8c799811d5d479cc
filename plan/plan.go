package plan

import (
	"github.com/wippyai/nativebridge/errors"
)

// Kind selects how a value crosses the boundary.
type Kind uint8

const (
	// KindValue copies the value: scalars inline, strings and arrays
	// length-prefixed.
	KindValue Kind = iota
	// KindReference sends a handle to an object owned by one of the two
	// isolates taking part in the call.
	KindReference
	// KindPeerReference sends a handle wrapped in an opaque peer object. The
	// receiver never materializes the pointed-to object.
	KindPeerReference
	// KindCustom delegates to a named Marshaller.
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindReference:
		return "reference"
	case KindPeerReference:
		return "peer-reference"
	case KindCustom:
		return "custom"
	}
	return "unknown"
}

// Transfer describes one direction of an array parameter. Empty parameter
// names select the whole array.
type Transfer struct {
	OffsetParam  string
	LengthParam  string
	TrimToResult bool
}

// Plan describes how one value site (parameter, result or array element)
// is encoded. Plans are built once per method signature and never mutated.
type Plan struct {
	Type *Type

	// In and Out are nil for a plain value (input only, whole content).
	In  *Transfer
	Out *Transfer

	// Reference plans.
	DispatchFactory   string
	SameDirection     bool
	UseCustomAccessor bool

	// Custom plans.
	MarshallerName string
	Annotations    []string

	Kind Kind
}

// Option configures a plan under construction.
type Option func(*Plan)

// In sets the input transfer of an array plan.
func In(t Transfer) Option {
	return func(p *Plan) { p.In = &t }
}

// Out sets the output transfer of an array plan.
func Out(t Transfer) Option {
	return func(p *Plan) { p.Out = &t }
}

// SameDirection marks a referenced object as local to the sender.
func SameDirection() Option {
	return func(p *Plan) { p.SameDirection = true }
}

// CustomAccessor routes handle access through the named dispatch factory.
func CustomAccessor(factory string) Option {
	return func(p *Plan) {
		p.UseCustomAccessor = true
		p.DispatchFactory = factory
	}
}

// Dispatch names the factory that builds proxies for received references.
func Dispatch(factory string) Option {
	return func(p *Plan) { p.DispatchFactory = factory }
}

// Value returns a by-value plan.
func Value(t *Type, opts ...Option) *Plan {
	return build(&Plan{Kind: KindValue, Type: t}, opts)
}

// Reference returns a by-reference plan.
func Reference(t *Type, opts ...Option) *Plan {
	return build(&Plan{Kind: KindReference, Type: t}, opts)
}

// PeerReference returns a raw peer-reference plan.
func PeerReference(t *Type, opts ...Option) *Plan {
	return build(&Plan{Kind: KindPeerReference, Type: t}, opts)
}

// Custom returns a plan delegating to the marshaller selected by t and the
// annotations.
func Custom(t *Type, annotations []string, opts ...Option) *Plan {
	p := &Plan{
		Kind:        KindCustom,
		Type:        t,
		Annotations: normalizeAnnotations(annotations),
	}
	if t != nil {
		p.MarshallerName = MarshallerName(t, annotations)
	}
	return build(p, opts)
}

func build(p *Plan, opts []Option) *Plan {
	for _, o := range opts {
		o(p)
	}
	return p
}

// HasIn reports whether the caller's content travels to the receiver.
func (p *Plan) HasIn() bool {
	return p.In != nil || p.Out == nil
}

// HasOut reports whether the receiver's content is copied back.
func (p *Plan) HasOut() bool {
	return p.Out != nil
}

// Directional reports whether the plan carries explicit direction data.
func (p *Plan) Directional() bool {
	return p.In != nil || p.Out != nil
}

// Validate checks the plan invariants.
func (p *Plan) Validate() error {
	if p == nil || p.Type == nil {
		return errors.InvalidInput(errors.PhasePlan, "plan has no type")
	}
	typeName := p.Type.String()

	fail := func(detail string) error {
		return errors.New(errors.PhasePlan, errors.KindInvalidInput).
			PlanType(typeName).
			Detail("%s plan: %s", p.Kind, detail).
			Build()
	}

	if p.In != nil && p.In.TrimToResult {
		return fail("trim-to-result is only valid for output transfers")
	}

	switch p.Kind {
	case KindValue:
		if p.MarshallerName != "" || len(p.Annotations) > 0 {
			return fail("marshaller fields on a value plan")
		}
		if p.SameDirection || p.UseCustomAccessor || p.DispatchFactory != "" {
			return fail("reference fields on a value plan")
		}
		if p.Directional() && !p.Type.IsPrimitiveArray() {
			return fail("direction requires a primitive array")
		}
	case KindReference, KindPeerReference:
		if p.MarshallerName != "" || len(p.Annotations) > 0 {
			return fail("marshaller fields on a reference plan")
		}
		if p.Directional() {
			return fail("references carry no direction")
		}
		if c := p.Type.Component(); c.Kind != TypeObject && c.Kind != TypeVariable && c.Kind != TypeWildcard {
			return fail("referenced type must be an object")
		}
		if p.Kind == KindPeerReference && (p.UseCustomAccessor || p.DispatchFactory != "") {
			return fail("peer references never dispatch")
		}
		if p.UseCustomAccessor && p.DispatchFactory == "" {
			return fail("custom accessor without a dispatch factory")
		}
	case KindCustom:
		if p.MarshallerName == "" {
			return fail("missing marshaller name")
		}
		if p.SameDirection || p.UseCustomAccessor || p.DispatchFactory != "" {
			return fail("reference fields on a custom plan")
		}
		for _, t := range []*Transfer{p.In, p.Out} {
			if t != nil && (t.OffsetParam != "" || t.LengthParam != "" || t.TrimToResult) {
				return fail("custom values transfer whole")
			}
		}
	default:
		return fail("unknown kind")
	}
	return nil
}
