package envelope

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/plan"
	"github.com/wippyai/nativebridge/transcoder"
	"github.com/wippyai/nativebridge/wire"
)

// Factory rebuilds a registered error type from its envelope. cause is
// the already rebuilt cause, or nil.
type Factory func(t *Throwable, cause error) error

// Propertied errors contribute structured properties to their envelope.
// Values that are not typed values travel as their fmt.Sprint form.
type Propertied interface {
	ErrorProperties() map[string]any
}

// StackTracer errors contribute a stack to their envelope.
type StackTracer interface {
	StackTrace() []string
}

// ForeignError is an error raised across the bridge whose type is not
// registered locally.
type ForeignError struct {
	Cause      error
	Properties map[string]any
	Type       string
	Message    string
	Stack      []string
}

func (e *ForeignError) Error() string {
	return e.Message
}

func (e *ForeignError) Unwrap() error {
	return e.Cause
}

func (e *ForeignError) ErrorProperties() map[string]any {
	return e.Properties
}

func (e *ForeignError) StackTrace() []string {
	return e.Stack
}

var bridgeErrorType = TypeName(reflect.TypeFor[*errors.Error]())

// Codec wraps errors into envelopes and rebuilds them on the other side.
type Codec struct {
	marshaller transcoder.Marshaller
	factories  map[string]Factory
	sentinels  map[string]error
	mu         sync.RWMutex
}

// NewCodec creates a codec that encodes through the error marshaller
// registered in marshallers, registering the built-in one when none is.
func NewCodec(marshallers *transcoder.Marshallers) (*Codec, error) {
	name := plan.MarshallerName(plan.ErrorType, nil)
	m, ok := marshallers.Lookup(name)
	if !ok {
		m = throwableMarshaller{}
		if err := marshallers.RegisterNamed(name, m); err != nil {
			return nil, err
		}
	}
	return &Codec{
		marshaller: m,
		factories:  make(map[string]Factory),
		sentinels:  make(map[string]error),
	}, nil
}

// TypeName returns the envelope type name of t, e.g. "*fs.PathError" as
// "*io/fs.PathError".
func TypeName(t reflect.Type) string {
	if t == nil {
		return ""
	}
	var b strings.Builder
	for t.Kind() == reflect.Pointer && t.Name() == "" {
		b.WriteByte('*')
		t = t.Elem()
	}
	if t.PkgPath() != "" {
		b.WriteString(t.PkgPath())
		b.WriteByte('.')
		b.WriteString(t.Name())
	} else {
		b.WriteString(t.String())
	}
	return b.String()
}

// Register binds a factory to an envelope type name.
func (c *Codec) Register(typeName string, f Factory) error {
	if typeName == "" || f == nil {
		return errors.InvalidInput(errors.PhaseEnvelope, "error factory needs a type name and a function")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.factories[typeName]; ok {
		return errors.Registration(errors.PhaseEnvelope, "error type", typeName,
			errors.InvalidInput(errors.PhaseEnvelope, "already registered"))
	}
	c.factories[typeName] = f
	return nil
}

// RegisterType registers build as the factory for error type E.
func RegisterType[E error](c *Codec, build func(t *Throwable, cause error) E) error {
	return c.Register(TypeName(reflect.TypeFor[E]()), func(t *Throwable, cause error) error {
		return build(t, cause)
	})
}

// RegisterSentinel makes envelopes of err rebuild as err itself so
// errors.Is keeps matching across the bridge.
func (c *Codec) RegisterSentinel(err error) error {
	if err == nil {
		return errors.InvalidInput(errors.PhaseEnvelope, "nil sentinel")
	}
	key := sentinelKey(TypeName(reflect.TypeOf(err)), err.Error())
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.sentinels[key]; ok && existing != err {
		return errors.Registration(errors.PhaseEnvelope, "sentinel", err.Error(),
			errors.InvalidInput(errors.PhaseEnvelope, "another sentinel has the same type and message"))
	}
	c.sentinels[key] = err
	return nil
}

func sentinelKey(typeName, message string) string {
	return typeName + "\x00" + message
}

// Capture converts err and its cause chain into a Throwable.
func (c *Codec) Capture(err error) *Throwable {
	return capture(err, 0)
}

func capture(err error, depth int) *Throwable {
	if err == nil || depth == MaxCauseDepth {
		return nil
	}
	switch e := err.(type) {
	case *Throwable:
		return e
	case *ForeignError:
		return &Throwable{
			Type:       e.Type,
			Message:    e.Message,
			Properties: e.Properties,
			Stack:      e.Stack,
			Cause:      capture(e.Cause, depth+1),
		}
	case *errors.Error:
		props := map[string]any{
			"phase": string(e.Phase),
			"kind":  string(e.Kind),
		}
		if len(e.Path) > 0 {
			props["path"] = strings.Join(e.Path, ".")
		}
		for k, v := range map[string]string{"goType": e.GoType, "planType": e.PlanType, "detail": e.Detail} {
			if v != "" {
				props[k] = v
			}
		}
		return &Throwable{
			Type:       bridgeErrorType,
			Message:    e.Error(),
			Properties: props,
			Cause:      capture(e.Cause, depth+1),
		}
	}

	t := &Throwable{
		Type:    TypeName(reflect.TypeOf(err)),
		Message: err.Error(),
		Cause:   capture(stderrors.Unwrap(err), depth+1),
	}
	if p, ok := err.(Propertied); ok {
		t.Properties = typedProperties(p.ErrorProperties())
	}
	if s, ok := err.(StackTracer); ok {
		t.Stack = s.StackTrace()
	}
	return t
}

func typedProperties(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch x := v.(type) {
		case int:
			v = int64(x)
		case []string:
			arr := make([]any, len(x))
			for i, s := range x {
				arr[i] = s
			}
			v = arr
		}
		if !wire.IsTypedValue(v) {
			v = fmt.Sprint(v)
		}
		out[k] = v
	}
	return out
}

// Wrap encodes err into a standalone envelope.
func (c *Codec) Wrap(err error) ([]byte, error) {
	t := c.Capture(err)
	out := wire.NewOutput(c.marshaller.InferSize(t))
	if err := c.marshaller.Write(out, t); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// WrapTo encodes err into out.
func (c *Codec) WrapTo(out *wire.Output, err error) error {
	return c.marshaller.Write(out, c.Capture(err))
}

// Decode reads an envelope without rebuilding it.
func (c *Codec) Decode(data []byte) (*Throwable, error) {
	in := wire.NewInput(data)
	v, err := c.marshaller.Read(in)
	if err != nil {
		return nil, errors.New(errors.PhaseEnvelope, errors.KindInvalidData).
			Detail("malformed error envelope").
			Cause(err).
			Build()
	}
	if in.Remaining() != 0 {
		return nil, errors.InvalidData(errors.PhaseEnvelope, nil, "trailing bytes after error envelope")
	}
	t, ok := v.(*Throwable)
	if !ok || t == nil {
		return nil, errors.InvalidData(errors.PhaseEnvelope, nil, "empty error envelope")
	}
	return t, nil
}

// Unwrap decodes an envelope and rebuilds the error it carries. A
// malformed envelope yields an envelope-phase protocol error.
func (c *Codec) Unwrap(data []byte) error {
	t, err := c.Decode(data)
	if err != nil {
		return err
	}
	return c.Rebuild(t)
}

// Rebuild reconstructs an error from t: registered sentinels first, then
// registered factories, then bridge errors, then ForeignError.
func (c *Codec) Rebuild(t *Throwable) error {
	if t == nil {
		return nil
	}
	cause := c.Rebuild(t.Cause)

	c.mu.RLock()
	sentinel, isSentinel := c.sentinels[sentinelKey(t.Type, t.Message)]
	factory, hasFactory := c.factories[t.Type]
	c.mu.RUnlock()

	switch {
	case isSentinel:
		return sentinel
	case hasFactory:
		if err := factory(t, cause); err != nil {
			return err
		}
	case t.Type == bridgeErrorType:
		return rebuildBridgeError(t, cause)
	}
	return &ForeignError{
		Type:       t.Type,
		Message:    t.Message,
		Properties: t.Properties,
		Stack:      t.Stack,
		Cause:      cause,
	}
}

func rebuildBridgeError(t *Throwable, cause error) *errors.Error {
	str := func(k string) string {
		s, _ := t.Properties[k].(string)
		return s
	}
	e := &errors.Error{
		Phase:    errors.Phase(str("phase")),
		Kind:     errors.Kind(str("kind")),
		GoType:   str("goType"),
		PlanType: str("planType"),
		Detail:   str("detail"),
		Cause:    cause,
	}
	if p := str("path"); p != "" {
		e.Path = strings.Split(p, ".")
	}
	return e
}
