package transcoder

import (
	"reflect"

	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/handle"
	"github.com/wippyai/nativebridge/plan"
	"github.com/wippyai/nativebridge/transcoder/internal/coerce"
	"github.com/wippyai/nativebridge/wire"
)

// Request is a decoded call as seen by the receiver.
type Request struct {
	Method   *plan.Method
	Args     []any
	Release  []handle.Handle // set for release messages
	ID       uint32
	Receiver handle.Handle
}

// IsRelease reports whether r is a handle release message.
func (r *Request) IsRelease() bool {
	return r.ID == plan.ReleaseMethodID
}

// EncodeRequest writes a call to m:
//
//	[method id u32][receiver handle u64, if m.Receiver][arguments...]
//
// Directional array arguments are written as
//
//	[array length | null][offset][count][elements...]
//
// where offset, count and elements are present only for input transfers.
func (c *Codec) EncodeRequest(out *wire.Output, m *plan.Method, receiver handle.Handle, args []any) error {
	if len(args) != len(m.Params) {
		return errors.New(errors.PhaseEncode, errors.KindInvalidInput).
			Path(m.Name).
			Detail("expected %d arguments, got %d", len(m.Params), len(args)).
			Build()
	}
	out.WriteUint32(m.ID)
	if m.Receiver {
		if receiver.IsNull() {
			return errors.NilPointer(errors.PhaseEncode, []string{m.Name, "receiver"}, "handle")
		}
		out.WriteUint64(uint64(receiver))
	}
	for i, param := range m.Params {
		path := []string{m.Name, param.Name}
		p := param.Plan
		var err error
		if p.Kind == plan.KindValue && p.Directional() {
			err = c.encodeDirectional(out, m, p, args, args[i], path)
		} else {
			err = c.encode(out, p, args[i], path)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Codec) encodeDirectional(out *wire.Output, m *plan.Method, p *plan.Plan, args []any, v any, path []string) error {
	ops := scalarTable[p.Type.Elem.Kind]
	view, ok := primitiveView(ops, v)
	if !ok {
		return mismatch(errors.PhaseEncode, path, v, p.Type)
	}
	if view == nil {
		out.WriteNull()
		return nil
	}
	n := ops.length(view)
	out.WriteLength(n)
	if !p.HasIn() {
		return nil
	}
	in := p.In
	if in == nil {
		in = &plan.Transfer{}
	}
	off, cnt, err := transferRange(errors.PhaseEncode, m, in, args, n, nil, path)
	if err != nil {
		return err
	}
	out.WriteLength(off)
	out.WriteLength(cnt)
	ops.write(out, view, off, cnt)
	return nil
}

// transferRange resolves the offset and count of a transfer against the
// live argument values and the result.
func transferRange(phase errors.Phase, m *plan.Method, t *plan.Transfer, args []any, arrayLen int, result any, path []string) (off, cnt int, err error) {
	intArg := func(name string) (int, error) {
		i, _ := m.ParamIndex(name)
		x, ok := coerce.Int(args[i], 32)
		if !ok {
			return 0, mismatch(phase, at(path[:1], name), args[i], plan.Int32)
		}
		return int(x), nil
	}

	if t.OffsetParam != "" {
		if off, err = intArg(t.OffsetParam); err != nil {
			return 0, 0, err
		}
	}
	switch {
	case t.LengthParam != "":
		if cnt, err = intArg(t.LengthParam); err != nil {
			return 0, 0, err
		}
	case t.TrimToResult:
		r, _ := coerce.Int(result, 32)
		cnt = max(0, min(int(r), arrayLen-off))
	default:
		cnt = arrayLen - off
	}
	if off < 0 || cnt < 0 || off+cnt > arrayLen {
		return 0, 0, errors.New(phase, errors.KindOutOfBounds).
			Path(path...).
			Detail("range [%d, %d) outside array of length %d", off, off+cnt, arrayLen).
			Build()
	}
	return off, cnt, nil
}

// DecodeRequest reads a call written by EncodeRequest from isolate peer and
// resolves its method in svc.
func (c *Codec) DecodeRequest(in *wire.Input, svc *plan.Service, peer uint16) (*Request, error) {
	id, err := in.ReadUint32()
	if err != nil {
		return nil, err
	}
	if id == plan.ReleaseMethodID {
		hs, err := decodeRelease(in)
		if err != nil {
			return nil, err
		}
		return &Request{ID: id, Release: hs}, nil
	}

	m, err := svc.Lookup(id)
	if err != nil {
		return nil, err
	}
	req := &Request{ID: id, Method: m, Args: make([]any, len(m.Params))}
	if m.Receiver {
		raw, err := in.ReadUint64()
		if err != nil {
			return nil, err
		}
		req.Receiver = handle.Handle(raw)
	}
	for i, param := range m.Params {
		path := []string{m.Name, param.Name}
		p := param.Plan
		var v any
		if p.Kind == plan.KindValue && p.Directional() {
			v, err = c.decodeDirectional(in, p, path)
		} else {
			v, err = c.decode(in, p, peer, path)
		}
		if err != nil {
			return nil, err
		}
		req.Args[i] = v
	}
	if in.Remaining() != 0 {
		return nil, errors.InvalidData(errors.PhaseDecode, []string{m.Name}, "trailing bytes after arguments")
	}
	return req, nil
}

func (c *Codec) decodeDirectional(in *wire.Input, p *plan.Plan, path []string) (any, error) {
	ops := scalarTable[p.Type.Elem.Kind]
	n, err := in.ReadLength()
	if err != nil {
		return nil, err
	}
	if n == wire.Null {
		return reflect.Zero(ops.goType).Interface(), nil
	}
	if !p.HasIn() && n*ops.width > in.Limits().MaxOutBytes {
		return nil, errors.New(errors.PhaseDecode, errors.KindOverflow).
			Path(path...).
			Detail("out array of %d bytes exceeds limit %d", n*ops.width, in.Limits().MaxOutBytes).
			Value(n).
			Build()
	}
	s := ops.alloc(n)
	if !p.HasIn() {
		return s, nil
	}
	if err := readRange(in, ops, s, path); err != nil {
		return nil, err
	}
	return s, nil
}

// readRange reads [offset][count][elements] into s.
func readRange(in *wire.Input, ops *scalarOps, s any, path []string) error {
	off, err := in.ReadInt32()
	if err != nil {
		return err
	}
	cnt, err := in.ReadInt32()
	if err != nil {
		return err
	}
	n := ops.length(s)
	if off < 0 || cnt < 0 || int(off)+int(cnt) > n {
		return errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
			Path(path...).
			Detail("range [%d, %d) outside array of length %d", off, int(off)+int(cnt), n).
			Build()
	}
	return ops.read(in, s, int(off), int(cnt))
}

// EncodeRelease writes a release message for hs.
func EncodeRelease(out *wire.Output, hs []handle.Handle) {
	out.WriteUint32(plan.ReleaseMethodID)
	out.WriteLength(len(hs))
	for _, h := range hs {
		out.WriteUint64(uint64(h))
	}
}

func decodeRelease(in *wire.Input) ([]handle.Handle, error) {
	n, err := in.ReadLength()
	if err != nil {
		return nil, err
	}
	if n == wire.Null || n*8 > in.Remaining() {
		return nil, errors.InvalidData(errors.PhaseDecode, []string{"release"}, "bad handle count")
	}
	hs := make([]handle.Handle, n)
	for i := range hs {
		raw, err := in.ReadUint64()
		if err != nil {
			return nil, err
		}
		hs[i] = handle.Handle(raw)
	}
	return hs, nil
}

// EncodeReply writes the result of a successful call followed by every
// output parameter:
//
//	[result][present u8][offset][count][elements...]...
//
// Custom output parameters carry the marshaller's update encoding after
// the presence byte.
func (c *Codec) EncodeReply(out *wire.Output, m *plan.Method, args []any, result any) error {
	if m.Result != nil {
		if err := c.encode(out, m.Result, result, []string{m.Name, "result"}); err != nil {
			return err
		}
	}
	for _, i := range m.OutParams() {
		param := m.Params[i]
		path := []string{m.Name, param.Name}
		p := param.Plan
		v := args[i]

		if p.Kind == plan.KindCustom {
			um, err := c.updateMarshaller(errors.PhaseEncode, p)
			if err != nil {
				return err
			}
			if isNil(v) {
				out.WriteBool(false)
				continue
			}
			out.WriteBool(true)
			if err := um.WriteUpdate(out, v); err != nil {
				return errors.New(errors.PhaseEncode, errors.KindInvalidData).Path(path...).Cause(err).Build()
			}
			continue
		}

		ops := scalarTable[p.Type.Elem.Kind]
		view, ok := primitiveView(ops, v)
		if !ok {
			return mismatch(errors.PhaseEncode, path, v, p.Type)
		}
		if view == nil {
			out.WriteBool(false)
			continue
		}
		off, cnt, err := transferRange(errors.PhaseEncode, m, p.Out, args, ops.length(view), result, path)
		if err != nil {
			return err
		}
		out.WriteBool(true)
		out.WriteLength(off)
		out.WriteLength(cnt)
		ops.write(out, view, off, cnt)
	}
	return nil
}

// DecodeReply reads a reply written by EncodeReply, copies output
// parameters back into the caller's args and returns the result.
func (c *Codec) DecodeReply(in *wire.Input, m *plan.Method, args []any, peer uint16) (any, error) {
	var result any
	if m.Result != nil {
		var err error
		if result, err = c.decode(in, m.Result, peer, []string{m.Name, "result"}); err != nil {
			return nil, err
		}
	}
	for _, i := range m.OutParams() {
		param := m.Params[i]
		path := []string{m.Name, param.Name}
		p := param.Plan

		present, err := in.ReadBool()
		if err != nil {
			return nil, err
		}
		if !present {
			continue
		}

		if p.Kind == plan.KindCustom {
			um, err := c.updateMarshaller(errors.PhaseDecode, p)
			if err != nil {
				return nil, err
			}
			if isNil(args[i]) {
				return nil, errors.InvalidData(errors.PhaseDecode, path, "update for a nil argument")
			}
			if err := um.ReadUpdate(in, args[i]); err != nil {
				return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).Path(path...).Cause(err).Build()
			}
			continue
		}

		ops := scalarTable[p.Type.Elem.Kind]
		view, ok := primitiveView(ops, args[i])
		if !ok || view == nil {
			return nil, errors.InvalidData(errors.PhaseDecode, path, "output for a nil or mistyped argument")
		}
		if err := readRange(in, ops, view, path); err != nil {
			return nil, err
		}
	}
	if in.Remaining() != 0 {
		return nil, errors.InvalidData(errors.PhaseDecode, []string{m.Name}, "trailing bytes after reply")
	}
	return result, nil
}

func (c *Codec) updateMarshaller(phase errors.Phase, p *plan.Plan) (UpdateMarshaller, error) {
	m, err := c.marshallers.forPlan(phase, p)
	if err != nil {
		return nil, err
	}
	um, ok := m.(UpdateMarshaller)
	if !ok {
		return nil, errors.Unsupported(phase, "marshaller "+p.MarshallerName+" cannot update in place")
	}
	return um, nil
}
