package envelope

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/plan"
	"github.com/wippyai/nativebridge/transcoder"
)

var errQuota = stderrors.New("quota exceeded")

type validationError struct {
	Field string
	Code  int
}

func (e *validationError) Error() string {
	return fmt.Sprintf("invalid %s (%d)", e.Field, e.Code)
}

func (e *validationError) ErrorProperties() map[string]any {
	return map[string]any{"field": e.Field, "code": e.Code}
}

func newCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(transcoder.NewMarshallers())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func through(t *testing.T, c *Codec, err error) error {
	t.Helper()
	data, werr := c.Wrap(err)
	if werr != nil {
		t.Fatalf("Wrap: %v", werr)
	}
	return c.Unwrap(data)
}

func TestNewCodec_RegistersErrorMarshaller(t *testing.T) {
	ms := transcoder.NewMarshallers()
	if _, err := NewCodec(ms); err != nil {
		t.Fatal(err)
	}
	if _, ok := ms.Lookup("errorMarshaller"); !ok {
		t.Fatal("error marshaller not registered")
	}
	if plan.MarshallerName(plan.ErrorType, nil) != "errorMarshaller" {
		t.Fatal("unexpected error marshaller name")
	}
	// a second codec reuses the registered marshaller
	if _, err := NewCodec(ms); err != nil {
		t.Fatal(err)
	}
}

func TestEnvelope_Sentinel(t *testing.T) {
	c := newCodec(t)
	if err := c.RegisterSentinel(errQuota); err != nil {
		t.Fatal(err)
	}
	if err := c.RegisterSentinel(stderrors.New("quota exceeded")); err == nil {
		t.Fatal("conflicting sentinel accepted")
	}

	got := through(t, c, fmt.Errorf("store: %w", errQuota))
	if !stderrors.Is(got, errQuota) {
		t.Fatalf("errors.Is lost across the bridge: %v", got)
	}
	if got.Error() != "store: quota exceeded" {
		t.Fatalf("message = %q", got.Error())
	}
}

func TestEnvelope_RegisteredType(t *testing.T) {
	c := newCodec(t)
	err := RegisterType(c, func(t *Throwable, _ error) *validationError {
		code, _ := t.Properties["code"].(int64)
		field, _ := t.Properties["field"].(string)
		return &validationError{Field: field, Code: int(code)}
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := RegisterType(c, func(*Throwable, error) *validationError { return nil }); err == nil {
		t.Fatal("duplicate factory accepted")
	}

	got := through(t, c, &validationError{Field: "name", Code: 7})
	var ve *validationError
	if !stderrors.As(got, &ve) {
		t.Fatalf("rebuilt %T, want *validationError", got)
	}
	if diff := cmp.Diff(&validationError{Field: "name", Code: 7}, ve); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestEnvelope_ForeignFallback(t *testing.T) {
	c := newCodec(t)
	orig := fmt.Errorf("open config: %w", &fs.PathError{Op: "open", Path: "/etc/x", Err: fs.ErrNotExist})

	got := through(t, c, orig)
	if got.Error() != orig.Error() {
		t.Fatalf("message = %q, want %q", got.Error(), orig.Error())
	}
	var fe *ForeignError
	if !stderrors.As(got, &fe) {
		t.Fatalf("rebuilt %T, want *ForeignError", got)
	}
	if fe.Type != "*fmt.wrapError" {
		t.Fatalf("type = %q", fe.Type)
	}
	var cause *ForeignError
	if !stderrors.As(fe.Cause, &cause) || cause.Type != "*io/fs.PathError" {
		t.Fatalf("cause = %#v", fe.Cause)
	}

	// forwarding a foreign error keeps its original type
	again := through(t, newCodec(t), got)
	if !stderrors.As(again, &fe) || fe.Type != "*fmt.wrapError" {
		t.Fatalf("re-forwarded %#v", again)
	}
}

func TestEnvelope_BridgeError(t *testing.T) {
	c := newCodec(t)
	orig := errors.New(errors.PhaseDispatch, errors.KindNotFound).
		Path("accounts", "get").
		Detail("no account 42").
		Build()

	got := through(t, c, orig)
	if !stderrors.Is(got, &errors.Error{Phase: errors.PhaseDispatch, Kind: errors.KindNotFound}) {
		t.Fatalf("phase/kind lost: %v", got)
	}
	if got.Error() != orig.Error() {
		t.Fatalf("message = %q, want %q", got.Error(), orig.Error())
	}
}

func TestEnvelope_PanicCarriesStack(t *testing.T) {
	c := newCodec(t)
	var perr error
	func() {
		defer func() {
			perr = Recovered(recover())
		}()
		panic("boom")
	}()

	got := through(t, c, perr)
	var fe *ForeignError
	if !stderrors.As(got, &fe) {
		t.Fatalf("rebuilt %T", got)
	}
	if fe.Message != "panic: boom" || len(fe.Stack) == 0 {
		t.Fatalf("panic envelope = %+v", fe)
	}
}

func TestEnvelope_Properties(t *testing.T) {
	c := newCodec(t)
	th := c.Capture(&validationError{Field: "f", Code: 3})
	want := map[string]any{"field": "f", "code": int64(3)}
	if diff := cmp.Diff(want, th.Properties); diff != "" {
		t.Fatalf("properties (-want +got):\n%s", diff)
	}
}

func TestUnwrap_Malformed(t *testing.T) {
	c := newCodec(t)
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"null only", []byte{0xff, 0xff, 0xff, 0xff}},
		{"truncated", []byte{0, 0, 0, 9, 'x'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Unwrap(tt.data)
			var be *errors.Error
			if !stderrors.As(err, &be) || be.Phase != errors.PhaseEnvelope {
				t.Fatalf("error = %v, want envelope phase", err)
			}
		})
	}

	data, _ := c.Wrap(errQuota)
	if err := c.Unwrap(append(data, 0)); !errors.IsProtocol(err) {
		t.Fatalf("trailing byte error = %v", err)
	}
}

func TestCapture_DepthBounded(t *testing.T) {
	c := newCodec(t)
	var err error = stderrors.New("root")
	for i := 0; i < MaxCauseDepth*2; i++ {
		err = fmt.Errorf("layer %d: %w", i, err)
	}
	n := 0
	for th := c.Capture(err); th != nil; th = th.Cause {
		n++
	}
	if n != MaxCauseDepth {
		t.Fatalf("captured %d levels, want %d", n, MaxCauseDepth)
	}
	if _, werr := c.Wrap(err); werr != nil {
		t.Fatal(werr)
	}
}
