package envelope

import (
	"fmt"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/wire"
)

// MaxCauseDepth bounds the cause chain carried by one envelope.
const MaxCauseDepth = 32

// Throwable is the transportable form of an error.
type Throwable struct {
	Cause      *Throwable
	Properties map[string]any // typed values, see wire.IsTypedValue
	Type       string
	Message    string
	Stack      []string
}

// Error lets a Throwable stand in for the error it describes.
func (t *Throwable) Error() string {
	return t.Message
}

// PanicError is a recovered panic raised by a user method.
type PanicError struct {
	Value any
	Stack []string
}

// Recovered wraps a value returned by recover together with the current
// goroutine stack. It must be called from the deferred function.
func Recovered(v any) *PanicError {
	return &PanicError{Value: v, Stack: splitStack(debug.Stack())}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// StackTrace returns the stack captured at recovery.
func (e *PanicError) StackTrace() []string {
	return e.Stack
}

// Unwrap exposes a panicked error value.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

func splitStack(b []byte) []string {
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return lines
}

// throwableMarshaller writes a Throwable as
//
//	[type | null][message][property count]([key][typed value])...[frame count][frame]...[cause]
//
// where a null type terminates the cause chain.
type throwableMarshaller struct{}

func (throwableMarshaller) Write(out *wire.Output, v any) error {
	var t *Throwable
	switch x := v.(type) {
	case nil:
	case *Throwable:
		t = x
	default:
		return errors.TypeMismatch(errors.PhaseEnvelope, nil, fmt.Sprintf("%T", v), "error")
	}
	for depth := 0; t != nil; depth++ {
		if depth == MaxCauseDepth {
			break
		}
		out.WriteString(t.Type)
		out.WriteString(t.Message)

		keys := make([]string, 0, len(t.Properties))
		for k := range t.Properties {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		out.WriteLength(len(keys))
		for _, k := range keys {
			out.WriteString(k)
			if err := out.WriteTypedValue(t.Properties[k]); err != nil {
				return errors.New(errors.PhaseEnvelope, errors.KindUnsupported).
					Path("properties", k).
					Cause(err).
					Build()
			}
		}

		out.WriteLength(len(t.Stack))
		for _, frame := range t.Stack {
			out.WriteString(frame)
		}
		t = t.Cause
	}
	out.WriteNull()
	return nil
}

func (throwableMarshaller) Read(in *wire.Input) (any, error) {
	var head *Throwable
	link := &head
	for depth := 0; ; depth++ {
		typ, err := in.ReadNullableString()
		if err != nil {
			return nil, err
		}
		if typ == nil {
			break
		}
		if depth == MaxCauseDepth {
			return nil, errors.InvalidData(errors.PhaseEnvelope, nil, "cause chain too deep")
		}
		t := &Throwable{Type: *typ}
		if t.Message, err = in.ReadString(); err != nil {
			return nil, err
		}

		n, err := in.ReadLength()
		if err != nil {
			return nil, err
		}
		if n > 0 {
			t.Properties = make(map[string]any, n)
		}
		for i := 0; i < n; i++ {
			k, err := in.ReadString()
			if err != nil {
				return nil, err
			}
			if t.Properties[k], err = in.ReadTypedValue(); err != nil {
				return nil, err
			}
		}

		if n, err = in.ReadLength(); err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			frame, err := in.ReadString()
			if err != nil {
				return nil, err
			}
			t.Stack = append(t.Stack, frame)
		}

		*link = t
		link = &t.Cause
	}
	if head == nil {
		return nil, nil
	}
	return head, nil
}

func (throwableMarshaller) InferSize(v any) int {
	t, _ := v.(*Throwable)
	size := 4
	for ; t != nil; t = t.Cause {
		size += 8 + len(t.Type) + len(t.Message) + 8
		for k := range t.Properties {
			size += 4 + len(k) + 16
		}
		for _, frame := range t.Stack {
			size += 4 + len(frame)
		}
	}
	return size
}
