package runtime

import (
	"bytes"
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/nativebridge/envelope"
	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/transcoder"
	"github.com/wippyai/nativebridge/transport"
	"github.com/wippyai/nativebridge/wire"
)

// Dispatcher serves one peer's requests against a binding. It implements
// transport.Handler.
type Dispatcher struct {
	rt      *Runtime
	binding *Binding
	peer    uint16
}

// Dispatcher returns a handler serving b to the isolate whose handles
// carry tag peer.
func (r *Runtime) Dispatcher(peer uint16, b *Binding) *Dispatcher {
	return &Dispatcher{rt: r, binding: b, peer: peer}
}

var _ transport.Handler = (*Dispatcher)(nil)

// Dispatch decodes a request, runs the bound implementation and encodes
// its reply. Any failure, including a panic in the implementation,
// becomes an error envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte) transport.Reply {
	in := wire.NewInput(data).WithLimits(d.rt.config.Limits)
	req, err := d.rt.codec.DecodeRequest(in, d.binding.svc, d.peer)
	if err != nil {
		return d.fail(err)
	}
	if req.IsRelease() {
		for _, h := range req.Release {
			d.rt.handles.Release(h)
		}
		return transport.Reply{}
	}

	result, err := d.invoke(ctx, req)
	if err != nil {
		return d.fail(err)
	}

	m := req.Method
	out := d.rt.pool.Acquire(d.rt.estimator.Reply(m, req.Args, result))
	defer out.Release()
	if err := d.rt.codec.EncodeReply(out, m, req.Args, result); err != nil {
		return d.fail(err)
	}
	d.rt.estimator.Observe(out.Reallocated())
	return transport.Reply{Payload: bytes.Clone(out.Bytes())}
}

func (d *Dispatcher) invoke(ctx context.Context, req *transcoder.Request) (result any, err error) {
	m := req.Method
	defer func() {
		if r := recover(); r != nil {
			p := envelope.Recovered(r)
			Logger().Error("method panicked",
				zap.String("method", m.Name),
				zap.Any("panic", r))
			result, err = nil, p
		}
	}()

	var recv any
	if m.Receiver {
		if recv, err = d.rt.handles.Resolve(req.Receiver, nil); err != nil {
			return nil, err
		}
	}
	fn, ok := d.binding.lookup(m)
	if !ok {
		return nil, errors.NotFound(errors.PhaseDispatch, "implementation", m.Name)
	}
	return fn(ctx, recv, req.Args)
}

func (d *Dispatcher) fail(err error) transport.Reply {
	payload, werr := d.rt.errors.Wrap(err)
	if werr != nil {
		Logger().Error("cannot wrap error", zap.Error(err), zap.NamedError("wrap", werr))
		payload, _ = d.rt.errors.Wrap(errors.Wrap(errors.PhaseEnvelope, errors.KindUnsupported, werr, err.Error()))
	}
	return transport.Reply{Payload: payload, Failed: true}
}
