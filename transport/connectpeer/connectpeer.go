package connectpeer

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/transport"
)

const (
	ServiceName   = "nativebridge.v1.Peer"
	CallProcedure = "/" + ServiceName + "/Call"
)

// NewHandler returns the mount path and HTTP handler serving h.
func NewHandler(h transport.Handler, opts ...connect.HandlerOption) (string, http.Handler) {
	call := connect.NewUnaryHandler(CallProcedure,
		func(ctx context.Context, req *connect.Request[wrapperspb.BytesValue]) (*connect.Response[wrapperspb.BytesValue], error) {
			reply := h.Dispatch(ctx, req.Msg.GetValue())
			return connect.NewResponse(wrapperspb.Bytes(transport.Frame(reply))), nil
		}, opts...)
	return "/" + ServiceName + "/", call
}

// Client is a transport calling a peer over Connect.
type Client struct {
	call   *connect.Client[wrapperspb.BytesValue, wrapperspb.BytesValue]
	closed atomic.Bool
}

var _ transport.Transport = (*Client)(nil)

// NewClient creates a transport to the peer served at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	url := strings.TrimRight(baseURL, "/") + CallProcedure
	return &Client{call: connect.NewClient[wrapperspb.BytesValue, wrapperspb.BytesValue](httpClient, url, opts...)}
}

func (c *Client) RoundTrip(ctx context.Context, req []byte) (transport.Reply, error) {
	if c.closed.Load() {
		return transport.Reply{}, transport.ErrPeerGone
	}
	resp, err := c.call.CallUnary(ctx, connect.NewRequest(wrapperspb.Bytes(req)))
	if err != nil {
		switch connect.CodeOf(err) {
		case connect.CodeCanceled, connect.CodeDeadlineExceeded:
			return transport.Reply{}, transport.Canceled(ctx)
		}
		return transport.Reply{}, errors.Wrap(errors.PhaseTransport, errors.KindClosed, err, "connect peer")
	}
	return transport.Unframe(resp.Msg.GetValue())
}

// Close stops the client; the HTTP client stays with its owner.
func (c *Client) Close() error {
	c.closed.Store(true)
	return nil
}
