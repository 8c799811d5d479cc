package transcoder

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	bridgeerrors "github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/handle"
	"github.com/wippyai/nativebridge/plan"
	"github.com/wippyai/nativebridge/wire"
)

var (
	sumMethod = plan.MustMethod(1, "sum",
		[]plan.Param{{Name: "values", Plan: plan.Value(plan.ArrayOf(plan.Int32))}},
		plan.Value(plan.Int32))

	readMethod = plan.MustMethod(2, "read",
		[]plan.Param{
			{Name: "buf", Plan: plan.Value(plan.ArrayOf(plan.Int8),
				plan.Out(plan.Transfer{OffsetParam: "off", TrimToResult: true}))},
			{Name: "off", Plan: plan.Value(plan.Int32)},
			{Name: "max", Plan: plan.Value(plan.Int32)},
		},
		plan.Value(plan.Int32))

	scaleMethod = plan.MustMethod(3, "scale",
		[]plan.Param{
			{Name: "data", Plan: plan.Value(plan.ArrayOf(plan.Float64),
				plan.In(plan.Transfer{OffsetParam: "off", LengthParam: "n"}),
				plan.Out(plan.Transfer{OffsetParam: "off", LengthParam: "n"}))},
			{Name: "off", Plan: plan.Value(plan.Int32)},
			{Name: "n", Plan: plan.Value(plan.Int32)},
		},
		nil)

	getMethod = plan.MustMethod(4, "get", nil, plan.Value(plan.Int64), plan.WithReceiver())

	testService = must(plan.NewService("test", sumMethod, readMethod, scaleMethod, getMethod))
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func TestRequest_SumWireLayout(t *testing.T) {
	c := newCodec(1)
	out := wire.NewOutput(0)
	if err := c.EncodeRequest(out, sumMethod, 0, []any{[]int32{1, 2, 3}}); err != nil {
		t.Fatal(err)
	}
	want := []byte{
		0, 0, 0, 1, // method id
		0, 0, 0, 3,
		0, 0, 0, 1,
		0, 0, 0, 2,
		0, 0, 0, 3,
	}
	if diff := cmp.Diff(want, out.Bytes()); diff != "" {
		t.Fatalf("request (-want +got):\n%s", diff)
	}

	est := NewEstimator(c.Marshallers())
	if got := est.Request(sumMethod, []any{[]int32{1, 2, 3}}); got != len(want) {
		t.Fatalf("Request estimate = %d, want %d", got, len(want))
	}

	req, err := newCodec(2).DecodeRequest(wire.NewInput(out.Bytes()), testService, 1)
	if err != nil {
		t.Fatal(err)
	}
	if req.Method != sumMethod {
		t.Fatalf("decoded method %s", req.Method.Name)
	}
	if diff := cmp.Diff([]any{[]int32{1, 2, 3}}, req.Args); diff != "" {
		t.Fatalf("args (-want +got):\n%s", diff)
	}
}

func TestCall_OutputTrimmedToResult(t *testing.T) {
	caller := newCodec(1)
	callee := newCodec(2)

	buf := bytes.Repeat([]byte{0xAA}, 10)
	args := []any{buf, 2, 5}

	out := wire.NewOutput(0)
	if err := caller.EncodeRequest(out, readMethod, 0, args); err != nil {
		t.Fatal(err)
	}
	// out-only: only the length travels
	if out.Len() != 4+4+4+4 {
		t.Fatalf("request length = %d, want 16", out.Len())
	}

	req, err := callee.DecodeRequest(wire.NewInput(out.Bytes()), testService, 1)
	if err != nil {
		t.Fatal(err)
	}
	got := req.Args[0].([]byte)
	if len(got) != 10 {
		t.Fatalf("receiver array length = %d, want 10", len(got))
	}
	copy(got[2:], []byte{1, 2, 3})
	result := int32(3)

	reply := wire.NewOutput(0)
	if err := callee.EncodeReply(reply, readMethod, req.Args, result); err != nil {
		t.Fatal(err)
	}
	// the whole array is charged until the result is known to the writer
	if e := NewEstimator(callee.Marshallers()).Reply(readMethod, req.Args, result); e != 4+1+8+10 {
		t.Fatalf("Reply estimate = %d, want %d", e, 4+1+8+10)
	}
	if reply.Len() != 4+1+4+4+3 {
		t.Fatalf("reply length = %d", reply.Len())
	}

	res, err := caller.DecodeReply(wire.NewInput(reply.Bytes()), readMethod, args, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res != int32(3) {
		t.Fatalf("result = %v, want 3", res)
	}
	want := []byte{0xAA, 0xAA, 1, 2, 3, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}
	if diff := cmp.Diff(want, buf); diff != "" {
		t.Fatalf("caller buffer (-want +got):\n%s", diff)
	}
}

func TestCall_OutOnlyLimit(t *testing.T) {
	c := newCodec(1)
	out := wire.NewOutput(0)
	if err := c.EncodeRequest(out, readMethod, 0, []any{make([]byte, 16), 0, 16}); err != nil {
		t.Fatal(err)
	}
	limits := wire.Limits{MaxOutBytes: 8}
	_, err := newCodec(2).DecodeRequest(wire.NewInput(out.Bytes()).WithLimits(limits), testService, 1)
	if !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseDecode, Kind: bridgeerrors.KindOverflow}) {
		t.Fatalf("error = %v, want decode/overflow", err)
	}
	limits.MaxOutBytes = 16
	req, err := newCodec(2).DecodeRequest(wire.NewInput(out.Bytes()).WithLimits(limits), testService, 1)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(req.Args[0].([]byte)); n != 16 {
		t.Fatalf("receiver array length = %d, want 16", n)
	}
}

func TestCall_InOutRange(t *testing.T) {
	caller := newCodec(1)
	callee := newCodec(2)

	data := []float64{1, 2, 3, 4, 5}
	args := []any{data, int32(1), int32(3)}

	out := wire.NewOutput(0)
	if err := caller.EncodeRequest(out, scaleMethod, 0, args); err != nil {
		t.Fatal(err)
	}
	req, err := callee.DecodeRequest(wire.NewInput(out.Bytes()), testService, 1)
	if err != nil {
		t.Fatal(err)
	}
	recv := req.Args[0].([]float64)
	if diff := cmp.Diff([]float64{0, 2, 3, 4, 0}, recv); diff != "" {
		t.Fatalf("receiver saw (-want +got):\n%s", diff)
	}
	for i := range recv {
		recv[i] *= 10
	}

	reply := wire.NewOutput(0)
	if err := callee.EncodeReply(reply, scaleMethod, req.Args, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := caller.DecodeReply(wire.NewInput(reply.Bytes()), scaleMethod, args, 2); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{1, 20, 30, 40, 5}, data); diff != "" {
		t.Fatalf("caller data (-want +got):\n%s", diff)
	}
}

func TestCall_RangeOutsideArray(t *testing.T) {
	c := newCodec(1)
	err := c.EncodeRequest(wire.NewOutput(0), scaleMethod, 0, []any{[]float64{1, 2}, 1, 5})
	if !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseEncode, Kind: bridgeerrors.KindOutOfBounds}) {
		t.Fatalf("error = %v, want encode out_of_bounds", err)
	}
}

func TestCall_NullDirectionalArray(t *testing.T) {
	caller := newCodec(1)
	callee := newCodec(2)
	args := []any{nil, 0, 4}

	out := wire.NewOutput(0)
	if err := caller.EncodeRequest(out, readMethod, 0, args); err != nil {
		t.Fatal(err)
	}
	req, err := callee.DecodeRequest(wire.NewInput(out.Bytes()), testService, 1)
	if err != nil {
		t.Fatal(err)
	}
	if req.Args[0].([]byte) != nil {
		t.Fatal("null array arrived non-nil")
	}
	reply := wire.NewOutput(0)
	if err := callee.EncodeReply(reply, readMethod, req.Args, int32(-1)); err != nil {
		t.Fatal(err)
	}
	res, err := caller.DecodeReply(wire.NewInput(reply.Bytes()), readMethod, args, 2)
	if err != nil || res != int32(-1) {
		t.Fatalf("DecodeReply = %v, %v", res, err)
	}
}

func TestRequest_ReceiverAndRelease(t *testing.T) {
	c := newCodec(1)
	recv := handle.Make(2, 11)

	out := wire.NewOutput(0)
	if err := c.EncodeRequest(out, getMethod, recv, nil); err != nil {
		t.Fatal(err)
	}
	req, err := c.DecodeRequest(wire.NewInput(out.Bytes()), testService, 2)
	if err != nil {
		t.Fatal(err)
	}
	if req.Receiver != recv {
		t.Fatalf("receiver = %v, want %v", req.Receiver, recv)
	}
	if err := c.EncodeRequest(wire.NewOutput(0), getMethod, 0, nil); err == nil {
		t.Fatal("missing receiver accepted")
	}

	out = wire.NewOutput(0)
	EncodeRelease(out, []handle.Handle{recv, handle.Make(2, 12)})
	req, err = c.DecodeRequest(wire.NewInput(out.Bytes()), testService, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !req.IsRelease() || len(req.Release) != 2 || req.Release[0] != recv {
		t.Fatalf("release request = %+v", req)
	}
}

func TestRequest_DecodeErrors(t *testing.T) {
	c := newCodec(1)
	tests := []struct {
		name string
		data []byte
		kind bridgeerrors.Kind
	}{
		{"unknown method", []byte{0, 0, 0, 99}, bridgeerrors.KindUnknownMethod},
		{"truncated", []byte{0, 0, 0, 1, 0, 0, 0, 3, 0, 0}, bridgeerrors.KindOutOfBounds},
		{"trailing bytes", []byte{0, 0, 0, 1, 0, 0, 0, 0, 9}, bridgeerrors.KindInvalidData},
		// out-only buffer of 5M bytes declared in four
		{"out array too large", []byte{0, 0, 0, 2, 0, 0x4c, 0x4b, 0x40, 0, 0, 0, 0, 0, 0, 0, 0}, bridgeerrors.KindOverflow},
		{"empty", nil, bridgeerrors.KindOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.DecodeRequest(wire.NewInput(tt.data), testService, 2)
			var be *bridgeerrors.Error
			if !errors.As(err, &be) || be.Kind != tt.kind {
				t.Fatalf("error = %v, want %s", err, tt.kind)
			}
			if !bridgeerrors.IsProtocol(err) {
				t.Fatal("decode failures are protocol errors")
			}
		})
	}
}

func TestCall_CustomUpdate(t *testing.T) {
	boxType := plan.Object("Box")
	m := plan.MustMethod(5, "bump",
		[]plan.Param{{Name: "b", Plan: plan.Custom(boxType, nil, plan.In(plan.Transfer{}), plan.Out(plan.Transfer{}))}},
		nil)
	svc := must(plan.NewService("custom", m))

	marshallers := NewMarshallers()
	if _, err := marshallers.Register(boxType, boxMarshaller{}); err != nil {
		t.Fatal(err)
	}
	caller := NewCodec(handle.NewRegistry(1), marshallers)
	callee := NewCodec(handle.NewRegistry(2), marshallers)

	b := &box{V: 1}
	args := []any{b}
	out := wire.NewOutput(0)
	if err := caller.EncodeRequest(out, m, 0, args); err != nil {
		t.Fatal(err)
	}
	req, err := callee.DecodeRequest(wire.NewInput(out.Bytes()), svc, 1)
	if err != nil {
		t.Fatal(err)
	}
	req.Args[0].(*box).V = 41

	reply := wire.NewOutput(0)
	if err := callee.EncodeReply(reply, m, req.Args, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := caller.DecodeReply(wire.NewInput(reply.Bytes()), m, args, 2); err != nil {
		t.Fatal(err)
	}
	if b.V != 41 {
		t.Fatalf("box not updated in place: %d", b.V)
	}
}

type box struct{ V int32 }

type boxMarshaller struct{ size int }

func (boxMarshaller) Write(out *wire.Output, v any) error {
	out.WriteInt32(v.(*box).V)
	return nil
}

func (boxMarshaller) Read(in *wire.Input) (any, error) {
	v, err := in.ReadInt32()
	return &box{V: v}, err
}

func (m boxMarshaller) InferSize(any) int {
	if m.size != 0 {
		return m.size
	}
	return 4
}

func (m boxMarshaller) WriteUpdate(out *wire.Output, v any) error { return m.Write(out, v) }

func (boxMarshaller) ReadUpdate(in *wire.Input, v any) error {
	x, err := in.ReadInt32()
	v.(*box).V = x
	return err
}

func (boxMarshaller) InferUpdateSize(any) int { return 4 }

func TestEstimator_Terms(t *testing.T) {
	marshallers := NewMarshallers()
	unknown := plan.Object("Unknown")
	if _, err := marshallers.Register(plan.Object("Box"), boxMarshaller{}); err != nil {
		t.Fatal(err)
	}
	if _, err := marshallers.Register(unknown, boxMarshaller{size: -1}); err != nil {
		t.Fatal(err)
	}
	if _, err := marshallers.Register(plan.ArrayOf(unknown), boxMarshaller{size: -1}); err != nil {
		t.Fatal(err)
	}
	est := NewEstimator(marshallers)

	tests := []struct {
		name string
		plan *plan.Plan
		v    any
		want int
	}{
		{"int64", plan.Value(plan.Int64), int64(1), 8},
		{"utf8 string", plan.Value(plan.String), "héllo", 4 + 6},
		{"null string", plan.Value(plan.String), nil, 4},
		{"string array", plan.Value(plan.ArrayOf(plan.String)), []string{"ab", ""}, 4 + 6 + 4},
		{"matrix", plan.Value(plan.ArrayOf(plan.ArrayOf(plan.Int32))), [][]int32{{1}, {2}}, 4 + 2*DefaultCustomFallback},
		{"typed object", plan.Value(plan.Object("any")), "x", 1 + DefaultTypedFallback},
		{"reference", plan.Reference(plan.Object("Counter")), &counter{}, 8},
		{"reference array", plan.Reference(plan.ArrayOf(plan.Object("Counter"))), []*counter{nil, nil, nil}, 4 + 3*8},
		{"custom", plan.Custom(plan.Object("Box"), nil), &box{}, 4},
		{"custom without size", plan.Custom(unknown, nil), &box{}, 0},
		{"custom array without size", plan.Custom(plan.ArrayOf(unknown), nil), []*box{{}, {}}, 4 + 2*DefaultCustomFallback},
		{"unregistered custom array", plan.Custom(plan.ArrayOf(plan.Object("Gone")), nil), []*box{{}}, 4 + DefaultCustomFallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := est.Estimate([]*plan.Plan{tt.plan}, []any{tt.v}); got != tt.want {
				t.Fatalf("Estimate = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEstimator_DirectionalRequest(t *testing.T) {
	est := NewEstimator(NewMarshallers())
	data := []float64{1, 2, 3, 4, 5}

	// in-range only: length, offset, count and three elements
	if got := est.Request(scaleMethod, []any{data, 1, 3}); got != 4+(4+8+3*8)+4+4 {
		t.Fatalf("Request = %d", got)
	}
	if got := est.Reply(scaleMethod, []any{data, 1, 3}, nil); got != 1+8+3*8 {
		t.Fatalf("Reply = %d", got)
	}

	c := newCodec(1)
	out := wire.NewOutput(0)
	args := []any{data, 1, 3}
	if err := c.EncodeRequest(out, scaleMethod, 0, args); err != nil {
		t.Fatal(err)
	}
	if got := est.Request(scaleMethod, args); got != out.Len() {
		t.Fatalf("estimate %d, encoded %d", got, out.Len())
	}
}

func TestEstimator_Observe(t *testing.T) {
	est := NewEstimator(NewMarshallers())
	est.Observe(false)
	est.Observe(false)
	est.Observe(true)
	if est.Hits() != 2 || est.Misses() != 1 {
		t.Fatalf("hits=%d misses=%d", est.Hits(), est.Misses())
	}
}
