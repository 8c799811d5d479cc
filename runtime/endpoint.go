package runtime

import (
	"context"
	stderrors "errors"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/handle"
	"github.com/wippyai/nativebridge/isolate"
	"github.com/wippyai/nativebridge/plan"
	"github.com/wippyai/nativebridge/transcoder"
	"github.com/wippyai/nativebridge/transport"
	"github.com/wippyai/nativebridge/wire"
)

type cacheKey struct {
	method   uint32
	receiver handle.Handle
}

// Endpoint calls methods implemented by one peer isolate.
type Endpoint struct {
	rt    *Runtime
	iso   *isolate.Isolate
	tr    transport.Transport
	cache sync.Map // cacheKey -> result
}

func newEndpoint(rt *Runtime, iso *isolate.Isolate, tr transport.Transport) *Endpoint {
	e := &Endpoint{rt: rt, iso: iso, tr: tr}
	iso.OnDeath(func(*errors.IsolateDeathError) {
		e.cache.Clear()
	})
	return e
}

// Isolate returns the peer isolate.
func (e *Endpoint) Isolate() *isolate.Isolate {
	return e.iso
}

// Call invokes m on the peer. receiver is the peer handle the method runs
// on, or 0 for a method without one. Output array arguments are updated
// in place.
//
// Results of idempotent methods are cached per receiver; a cached call
// never reaches the isolate. Errors are either a rebuilt user error, a
// protocol error (*errors.Error), a canceled transport error or the
// isolate's death error.
func (e *Endpoint) Call(ctx context.Context, m *plan.Method, receiver handle.Handle, args ...any) (any, error) {
	key := cacheKey{method: m.ID, receiver: receiver}
	if m.Idempotent {
		if v, ok := e.cache.Load(key); ok {
			e.rt.cacheHits.Add(1)
			return v, nil
		}
	}
	e.rt.calls.Add(1)

	result, err := e.call(ctx, m, receiver, args)
	if err != nil {
		e.rt.failures.Add(1)
		return nil, err
	}
	if m.Idempotent {
		// concurrent first calls race; every caller returns the stored value
		v, _ := e.cache.LoadOrStore(key, result)
		return v, nil
	}
	return result, nil
}

func (e *Endpoint) call(ctx context.Context, m *plan.Method, receiver handle.Handle, args []any) (any, error) {
	ctx, s, err := isolate.Enter(ctx, e.iso)
	if err != nil {
		return nil, err
	}
	defer s.Leave()

	if ce := Logger().Check(zap.DebugLevel, "call"); ce != nil {
		ce.Write(
			zap.String("isolate", e.iso.Name()),
			zap.String("method", m.Name),
			zap.Int("depth", s.Depth()))
	}

	if err := s.Marshal(); err != nil {
		return nil, err
	}
	out := e.rt.pool.Acquire(e.rt.estimator.Request(m, args))
	defer out.Release()
	if err := e.rt.codec.EncodeRequest(out, m, receiver, args); err != nil {
		return nil, err
	}
	e.rt.estimator.Observe(out.Reallocated())

	if err := s.Send(); err != nil {
		return nil, err
	}
	reply, err := e.tr.RoundTrip(ctx, out.Bytes())
	if err != nil {
		return nil, e.transportFailure(ctx, err)
	}
	if err := s.Receive(); err != nil {
		return nil, err
	}

	if reply.Failed {
		t, err := e.rt.errors.Decode(reply.Payload)
		if err != nil {
			return nil, err
		}
		return nil, e.rt.errors.Rebuild(t)
	}
	in := wire.NewInput(reply.Payload).WithLimits(e.rt.config.Limits)
	return e.rt.codec.DecodeReply(in, m, args, e.iso.ID())
}

// transportFailure classifies a failed round trip. A context that ended
// first makes it a cancellation; anything else kills the isolate.
func (e *Endpoint) transportFailure(ctx context.Context, err error) error {
	if ctx.Err() != nil && !stderrors.Is(err, transport.ErrPeerGone) {
		if stderrors.Is(err, &errors.Error{Phase: errors.PhaseTransport, Kind: errors.KindCanceled}) {
			return err
		}
		return transport.Canceled(ctx)
	}
	return e.iso.Die(err)
}

// Release tells the peer that this side no longer holds hs. Cached
// results for those receivers are dropped.
func (e *Endpoint) Release(ctx context.Context, hs ...handle.Handle) error {
	if len(hs) == 0 {
		return nil
	}
	e.cache.Range(func(k, _ any) bool {
		for _, h := range hs {
			if k.(cacheKey).receiver == h {
				e.cache.Delete(k)
				break
			}
		}
		return true
	})

	ctx, s, err := isolate.Enter(ctx, e.iso)
	if err != nil {
		return err
	}
	defer s.Leave()
	if err := s.Marshal(); err != nil {
		return err
	}
	out := e.rt.pool.Acquire(4 + 4 + 8*len(hs))
	defer out.Release()
	transcoder.EncodeRelease(out, hs)

	if err := s.Send(); err != nil {
		return err
	}
	reply, err := e.tr.RoundTrip(ctx, out.Bytes())
	if err != nil {
		return e.transportFailure(ctx, err)
	}
	if err := s.Receive(); err != nil {
		return err
	}
	if reply.Failed {
		return e.rt.errors.Unwrap(reply.Payload)
	}
	return nil
}

// ReleaseRemote releases the peer object behind r.
func (e *Endpoint) ReleaseRemote(ctx context.Context, r *handle.Remote) error {
	if r == nil || r.Handle.IsNull() {
		return nil
	}
	if r.Isolate != e.iso.ID() {
		return errors.ForeignHandle(uint64(r.Handle), r.Isolate, e.iso.ID())
	}
	return e.Release(ctx, r.Handle)
}
