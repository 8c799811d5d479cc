package transcoder

import (
	"reflect"
	"strconv"
	"sync"
	"unicode/utf8"

	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/handle"
	"github.com/wippyai/nativebridge/plan"
	"github.com/wippyai/nativebridge/transcoder/internal/coerce"
	"github.com/wippyai/nativebridge/wire"
)

// Dispatch builds and unwraps proxies for references whose plans name a
// dispatch factory.
type Dispatch interface {
	// Proxy wraps a handle received from isolate peer.
	Proxy(peer uint16, h handle.Handle) (any, error)
	// Handle extracts the handle carried by v.
	Handle(v any) (handle.Handle, error)
}

var (
	anyType    = reflect.TypeFor[any]()
	stringType = reflect.TypeFor[string]()
	remoteType = reflect.TypeFor[*handle.Remote]()
	peerType   = reflect.TypeFor[*handle.Peer]()
)

// Codec encodes and decodes values according to their plans. References
// are registered in and resolved against the local handle registry.
type Codec struct {
	handles     *handle.Registry
	marshallers *Marshallers
	bindings    map[string]reflect.Type
	dispatches  map[string]Dispatch
	mu          sync.RWMutex
}

// NewCodec creates a codec over the local handle registry and marshaller
// registry.
func NewCodec(handles *handle.Registry, marshallers *Marshallers) *Codec {
	return &Codec{
		handles:     handles,
		marshallers: marshallers,
		bindings:    make(map[string]reflect.Type),
		dispatches:  make(map[string]Dispatch),
	}
}

// Handles returns the local handle registry.
func (c *Codec) Handles() *handle.Registry {
	return c.handles
}

// Marshallers returns the marshaller registry.
func (c *Codec) Marshallers() *Marshallers {
	return c.marshallers
}

// Bind associates a plan object type name with a Go type. Resolved
// references are checked against it and reference arrays decode to
// slices of it.
func (c *Codec) Bind(name string, t reflect.Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings[name] = t
}

// BindType is Bind for a type parameter.
func BindType[T any](c *Codec, name string) {
	c.Bind(name, reflect.TypeFor[T]())
}

func (c *Codec) binding(name string) reflect.Type {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bindings[name]
}

// RegisterDispatch registers a dispatch factory under name.
func (c *Codec) RegisterDispatch(name string, d Dispatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.dispatches[name]; ok {
		return errors.Registration(errors.PhasePlan, "dispatch", name,
			errors.InvalidInput(errors.PhasePlan, "name already bound"))
	}
	c.dispatches[name] = d
	return nil
}

func (c *Codec) dispatch(phase errors.Phase, name string) (Dispatch, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if d, ok := c.dispatches[name]; ok {
		return d, nil
	}
	return nil, errors.NotFound(phase, "dispatch factory", name)
}

// goType returns the Go type a decoded value of t has.
func (c *Codec) goType(t *plan.Type) reflect.Type {
	switch t.Kind {
	case plan.TypeBool:
		return reflect.TypeFor[bool]()
	case plan.TypeInt8:
		return reflect.TypeFor[int8]()
	case plan.TypeInt16:
		return reflect.TypeFor[int16]()
	case plan.TypeChar:
		return reflect.TypeFor[uint16]()
	case plan.TypeInt32:
		return reflect.TypeFor[int32]()
	case plan.TypeInt64:
		return reflect.TypeFor[int64]()
	case plan.TypeFloat32:
		return reflect.TypeFor[float32]()
	case plan.TypeFloat64:
		return reflect.TypeFor[float64]()
	case plan.TypeString:
		return stringType
	case plan.TypeArray:
		if ops, ok := scalarTable[t.Elem.Kind]; ok {
			return ops.goType
		}
		return reflect.SliceOf(c.goType(t.Elem))
	}
	return anyType
}

// refType returns the Go type a decoded reference of p has.
func (c *Codec) refType(p *plan.Plan, t *plan.Type) reflect.Type {
	if t.Kind == plan.TypeArray {
		return reflect.SliceOf(c.refType(p, t.Elem))
	}
	switch {
	case p.Kind == plan.KindPeerReference:
		return peerType
	case p.SameDirection && p.DispatchFactory == "":
		return remoteType
	case p.SameDirection:
		return anyType
	}
	if bound := c.binding(t.Name); bound != nil {
		return bound
	}
	return anyType
}

func at(path []string, elem string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, elem)
}

func index(path []string, i int) []string {
	return at(path, "["+strconv.Itoa(i)+"]")
}

func mismatch(phase errors.Phase, path []string, v any, t *plan.Type) error {
	return errors.TypeMismatch(phase, path, coerce.TypeName(v), t.String())
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	}
	return false
}

// Encode writes v according to p.
func (c *Codec) Encode(out *wire.Output, p *plan.Plan, v any) error {
	return c.encode(out, p, v, nil)
}

func (c *Codec) encode(out *wire.Output, p *plan.Plan, v any, path []string) error {
	switch p.Kind {
	case plan.KindValue:
		return c.encodeValue(out, p.Type, v, path)
	case plan.KindReference:
		return c.encodeReference(out, p, p.Type, v, path)
	case plan.KindPeerReference:
		return c.encodeReference(out, p, p.Type, v, path)
	case plan.KindCustom:
		m, err := c.marshallers.forPlan(errors.PhaseEncode, p)
		if err != nil {
			return err
		}
		if err := m.Write(out, v); err != nil {
			return errors.New(errors.PhaseEncode, errors.KindInvalidData).
				Path(path...).
				PlanType(p.Type.String()).
				Detail("marshaller %s", p.MarshallerName).
				Cause(err).
				Build()
		}
		return nil
	}
	return errors.Unsupported(errors.PhaseEncode, "plan kind "+p.Kind.String())
}

func (c *Codec) encodeValue(out *wire.Output, t *plan.Type, v any, path []string) error {
	ok := true
	switch t.Kind {
	case plan.TypeBool:
		var b bool
		if b, ok = coerce.Bool(v); ok {
			out.WriteBool(b)
		}
	case plan.TypeInt8:
		var x int64
		if x, ok = coerce.Int(v, 8); ok {
			out.WriteInt8(int8(x))
		}
	case plan.TypeInt16:
		var x int64
		if x, ok = coerce.Int(v, 16); ok {
			out.WriteInt16(int16(x))
		}
	case plan.TypeChar:
		var ch uint16
		if ch, ok = coerce.Char(v); ok {
			out.WriteChar(ch)
		}
	case plan.TypeInt32:
		var x int64
		if x, ok = coerce.Int(v, 32); ok {
			out.WriteInt32(int32(x))
		}
	case plan.TypeInt64:
		var x int64
		if x, ok = coerce.Int(v, 64); ok {
			out.WriteInt64(x)
		}
	case plan.TypeFloat32:
		var f float64
		if f, ok = coerce.Float(v); ok {
			out.WriteFloat32(float32(f))
		}
	case plan.TypeFloat64:
		var f float64
		if f, ok = coerce.Float(v); ok {
			out.WriteFloat64(f)
		}
	case plan.TypeString:
		return encodeString(out, v, path)
	case plan.TypeArray:
		return c.encodeArray(out, t, v, path)
	case plan.TypeObject, plan.TypeVariable, plan.TypeWildcard:
		if err := out.WriteTypedValue(v); err != nil {
			return errors.New(errors.PhaseEncode, errors.KindUnsupported).
				Path(path...).
				GoType(coerce.TypeName(v)).
				PlanType(t.String()).
				Detail("objects passed by value must be typed values").
				Build()
		}
	case plan.TypeVoid:
	default:
		return errors.Unsupported(errors.PhaseEncode, "type kind "+t.Kind.String())
	}
	if !ok {
		return mismatch(errors.PhaseEncode, path, v, t)
	}
	return nil
}

func encodeString(out *wire.Output, v any, path []string) error {
	var s string
	switch x := v.(type) {
	case nil:
		out.WriteNull()
		return nil
	case string:
		s = x
	case *string:
		if x == nil {
			out.WriteNull()
			return nil
		}
		s = *x
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.String {
			return mismatch(errors.PhaseEncode, path, v, plan.String)
		}
		s = rv.String()
	}
	if !utf8.ValidString(s) {
		return errors.InvalidUTF8(errors.PhaseEncode, path, []byte(s))
	}
	out.WriteString(s)
	return nil
}

func (c *Codec) encodeArray(out *wire.Output, t *plan.Type, v any, path []string) error {
	if ops, ok := scalarTable[t.Elem.Kind]; ok {
		view, ok := primitiveView(ops, v)
		if !ok {
			return mismatch(errors.PhaseEncode, path, v, t)
		}
		if view == nil {
			out.WriteNull()
			return nil
		}
		n := ops.length(view)
		out.WriteLength(n)
		ops.write(out, view, 0, n)
		return nil
	}

	if isNil(v) {
		out.WriteNull()
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return mismatch(errors.PhaseEncode, path, v, t)
	}
	n := rv.Len()
	out.WriteLength(n)
	for i := 0; i < n; i++ {
		if err := c.encodeValue(out, t.Elem, rv.Index(i).Interface(), index(path, i)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Codec) encodeReference(out *wire.Output, p *plan.Plan, t *plan.Type, v any, path []string) error {
	if t.Kind == plan.TypeArray {
		if isNil(v) {
			out.WriteNull()
			return nil
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice {
			return mismatch(errors.PhaseEncode, path, v, t)
		}
		n := rv.Len()
		out.WriteLength(n)
		for i := 0; i < n; i++ {
			if err := c.encodeReference(out, p, t.Elem, rv.Index(i).Interface(), index(path, i)); err != nil {
				return err
			}
		}
		return nil
	}

	h, err := c.referenceHandle(p, t, v, path)
	if err != nil {
		return err
	}
	out.WriteUint64(uint64(h))
	return nil
}

func (c *Codec) referenceHandle(p *plan.Plan, t *plan.Type, v any, path []string) (handle.Handle, error) {
	if isNil(v) {
		return 0, nil
	}
	switch {
	case p.UseCustomAccessor:
		d, err := c.dispatch(errors.PhaseEncode, p.DispatchFactory)
		if err != nil {
			return 0, err
		}
		return d.Handle(v)
	case p.Kind == plan.KindReference && p.SameDirection:
		h, err := c.handles.Create(v)
		if err != nil {
			return 0, errors.New(errors.PhaseEncode, errors.KindInvalidData).
				Path(path...).
				PlanType(t.String()).
				Cause(err).
				Build()
		}
		return h, nil
	}
	if holder, ok := v.(handle.Holder); ok {
		return holder.BridgeHandle(), nil
	}
	return 0, errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
		Path(path...).
		GoType(coerce.TypeName(v)).
		PlanType(t.String()).
		Detail("value is not a reference held from the receiver").
		Build()
}

// Decode reads a value written according to p by isolate peer.
func (c *Codec) Decode(in *wire.Input, p *plan.Plan, peer uint16) (any, error) {
	return c.decode(in, p, peer, nil)
}

func (c *Codec) decode(in *wire.Input, p *plan.Plan, peer uint16, path []string) (any, error) {
	switch p.Kind {
	case plan.KindValue:
		return c.decodeValue(in, p.Type, path)
	case plan.KindReference, plan.KindPeerReference:
		return c.decodeReference(in, p, p.Type, peer, path)
	case plan.KindCustom:
		m, err := c.marshallers.forPlan(errors.PhaseDecode, p)
		if err != nil {
			return nil, err
		}
		v, err := m.Read(in)
		if err != nil {
			return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Path(path...).
				PlanType(p.Type.String()).
				Detail("marshaller %s", p.MarshallerName).
				Cause(err).
				Build()
		}
		return v, nil
	}
	return nil, errors.Unsupported(errors.PhaseDecode, "plan kind "+p.Kind.String())
}

func (c *Codec) decodeValue(in *wire.Input, t *plan.Type, path []string) (any, error) {
	switch t.Kind {
	case plan.TypeBool:
		return in.ReadBool()
	case plan.TypeInt8:
		return in.ReadInt8()
	case plan.TypeInt16:
		return in.ReadInt16()
	case plan.TypeChar:
		return in.ReadChar()
	case plan.TypeInt32:
		return in.ReadInt32()
	case plan.TypeInt64:
		return in.ReadInt64()
	case plan.TypeFloat32:
		return in.ReadFloat32()
	case plan.TypeFloat64:
		return in.ReadFloat64()
	case plan.TypeString:
		s, err := in.ReadNullableString()
		if err != nil || s == nil {
			return nil, err
		}
		return *s, nil
	case plan.TypeArray:
		return c.decodeArray(in, t, path)
	case plan.TypeObject, plan.TypeVariable, plan.TypeWildcard:
		return in.ReadTypedValue()
	case plan.TypeVoid:
		return nil, nil
	}
	return nil, errors.Unsupported(errors.PhaseDecode, "type kind "+t.Kind.String())
}

func (c *Codec) decodeArray(in *wire.Input, t *plan.Type, path []string) (any, error) {
	n, err := in.ReadLength()
	if err != nil {
		return nil, err
	}
	if n == wire.Null {
		return reflect.Zero(c.goType(t)).Interface(), nil
	}

	if ops, ok := scalarTable[t.Elem.Kind]; ok {
		if n*ops.width > in.Remaining() {
			return nil, errors.OutOfBounds(errors.PhaseDecode, path, in.Position()+n*ops.width, in.Position()+in.Remaining())
		}
		s := ops.alloc(n)
		if err := ops.read(in, s, 0, n); err != nil {
			return nil, err
		}
		return s, nil
	}

	// every element takes at least one byte
	if n > in.Remaining() {
		return nil, errors.OutOfBounds(errors.PhaseDecode, path, in.Position()+n, in.Position()+in.Remaining())
	}
	vals := make([]any, n)
	elem := c.goType(t.Elem)
	fits := true
	for i := range vals {
		e, err := c.decodeValue(in, t.Elem, index(path, i))
		if err != nil {
			return nil, err
		}
		vals[i] = e
		switch {
		case e == nil:
			fits = fits && t.Elem.Kind != plan.TypeString
		case !reflect.TypeOf(e).AssignableTo(elem):
			fits = false
		}
	}
	if !fits {
		// null strings cannot live in a []string
		if t.Elem.Kind == plan.TypeString {
			return nullableStrings(vals), nil
		}
		return vals, nil
	}
	sv := reflect.MakeSlice(c.goType(t), n, n)
	for i, e := range vals {
		if e != nil {
			sv.Index(i).Set(reflect.ValueOf(e))
		}
	}
	return sv.Interface(), nil
}

func nullableStrings(vals []any) []*string {
	out := make([]*string, len(vals))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[i] = &s
		}
	}
	return out
}

func (c *Codec) decodeReference(in *wire.Input, p *plan.Plan, t *plan.Type, peer uint16, path []string) (any, error) {
	if t.Kind == plan.TypeArray {
		n, err := in.ReadLength()
		if err != nil {
			return nil, err
		}
		st := c.refType(p, t)
		if n == wire.Null {
			return reflect.Zero(st).Interface(), nil
		}
		if n*8 > in.Remaining() {
			return nil, errors.OutOfBounds(errors.PhaseDecode, path, in.Position()+n*8, in.Position()+in.Remaining())
		}
		sv := reflect.MakeSlice(st, n, n)
		for i := 0; i < n; i++ {
			e, err := c.decodeReference(in, p, t.Elem, peer, index(path, i))
			if err != nil {
				return nil, err
			}
			if e != nil {
				ev := reflect.ValueOf(e)
				if !ev.Type().AssignableTo(st.Elem()) {
					return nil, errors.TypeMismatch(errors.PhaseResolve, index(path, i), ev.Type().String(), st.Elem().String())
				}
				sv.Index(i).Set(ev)
			}
		}
		return sv.Interface(), nil
	}

	raw, err := in.ReadUint64()
	if err != nil {
		return nil, err
	}
	h := handle.Handle(raw)
	if h.IsNull() {
		return nil, nil
	}

	switch {
	case p.Kind == plan.KindPeerReference:
		return &handle.Peer{Handle: h, Via: peer}, nil
	case p.SameDirection && p.DispatchFactory != "":
		d, err := c.dispatch(errors.PhaseDecode, p.DispatchFactory)
		if err != nil {
			return nil, err
		}
		return d.Proxy(peer, h)
	case p.SameDirection:
		return &handle.Remote{Handle: h, Isolate: peer}, nil
	}

	v, err := c.handles.Resolve(h, c.binding(t.Name))
	if err != nil {
		if be, ok := err.(*errors.Error); ok {
			be.Path = path
			be.PlanType = t.String()
		}
		return nil, err
	}
	return v, nil
}
