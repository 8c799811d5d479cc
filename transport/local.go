package transport

import (
	"context"
	"sync/atomic"
)

// Local serves requests in process by calling a Handler directly. It is
// the transport between two runtimes in one address space and the one
// tests use to simulate a crashing peer.
type Local struct {
	handler Handler
	killed  atomic.Bool
}

// NewLocal creates a transport dispatching to h.
func NewLocal(h Handler) *Local {
	return &Local{handler: h}
}

// RoundTrip dispatches req. A peer killed while the request is being
// served loses the reply.
func (l *Local) RoundTrip(ctx context.Context, req []byte) (Reply, error) {
	if l.killed.Load() {
		return Reply{}, ErrPeerGone
	}
	if ctx.Err() != nil {
		return Reply{}, Canceled(ctx)
	}
	reply := l.handler.Dispatch(ctx, req)
	if l.killed.Load() {
		return Reply{}, ErrPeerGone
	}
	return reply, nil
}

// Kill makes every later round trip fail as if the peer had crashed.
func (l *Local) Kill() {
	l.killed.Store(true)
}

// Close kills the transport.
func (l *Local) Close() error {
	l.Kill()
	return nil
}
