package transport

import (
	"context"

	"github.com/wippyai/nativebridge/errors"
)

// Status prefixes a framed reply.
const (
	StatusOK     byte = 0
	StatusFailed byte = 1
)

// ErrPeerGone is returned once the peer can no longer answer. Match it
// with errors.Is.
var ErrPeerGone = &errors.Error{Phase: errors.PhaseTransport, Kind: errors.KindClosed, Detail: "peer gone"}

// Reply is the answer to one request. When Failed is set Payload holds an
// error envelope instead of a reply.
type Reply struct {
	Payload []byte
	Failed  bool
}

// Transport moves one request to the peer and returns its reply. An error
// means no reply was obtained; the caller treats it as the death of the
// peer unless the context was canceled.
type Transport interface {
	RoundTrip(ctx context.Context, req []byte) (Reply, error)
	Close() error
}

// Handler serves requests on the receiving side.
type Handler interface {
	Dispatch(ctx context.Context, req []byte) Reply
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req []byte) Reply

func (f HandlerFunc) Dispatch(ctx context.Context, req []byte) Reply {
	return f(ctx, req)
}

// Frame prepends the status byte to the payload.
func Frame(r Reply) []byte {
	b := make([]byte, 1+len(r.Payload))
	if r.Failed {
		b[0] = StatusFailed
	}
	copy(b[1:], r.Payload)
	return b
}

// Unframe splits a framed reply.
func Unframe(b []byte) (Reply, error) {
	if len(b) == 0 {
		return Reply{}, errors.InvalidData(errors.PhaseTransport, nil, "empty reply frame")
	}
	switch b[0] {
	case StatusOK:
		return Reply{Payload: b[1:]}, nil
	case StatusFailed:
		return Reply{Payload: b[1:], Failed: true}, nil
	}
	return Reply{}, errors.New(errors.PhaseTransport, errors.KindInvalidData).
		Detail("unknown reply status %d", b[0]).
		Value(b[0]).
		Build()
}

// Canceled reports a round trip abandoned because ctx ended.
func Canceled(ctx context.Context) error {
	return errors.New(errors.PhaseTransport, errors.KindCanceled).
		Cause(context.Cause(ctx)).
		Build()
}
