package grpcpeer

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/transport"
)

const (
	ServiceName = "nativebridge.v1.Peer"
	CallMethod  = "/" + ServiceName + "/Call"
)

// PeerServer is the server API of the peer service.
type PeerServer interface {
	Call(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PeerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Call", Handler: callHandler},
	},
	Metadata: "nativebridge/v1/peer.proto",
}

func callHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerServer).Call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CallMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PeerServer).Call(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

type server struct {
	h transport.Handler
}

func (s *server) Call(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return wrapperspb.Bytes(transport.Frame(s.h.Dispatch(ctx, req.GetValue()))), nil
}

// Register serves h on s.
func Register(s grpc.ServiceRegistrar, h transport.Handler) {
	s.RegisterService(&serviceDesc, &server{h: h})
}

// Client is a transport calling a peer over gRPC.
type Client struct {
	conn  *grpc.ClientConn
	owned bool
}

var _ transport.Transport = (*Client)(nil)

// New creates a transport over an existing connection. Close leaves conn
// open.
func New(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Dial creates a transport to target. Without options the connection is
// plaintext.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseTransport, errors.KindInvalidInput, err, "grpc target "+target)
	}
	return &Client{conn: conn, owned: true}, nil
}

func (c *Client) RoundTrip(ctx context.Context, req []byte) (transport.Reply, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.conn.Invoke(ctx, CallMethod, wrapperspb.Bytes(req), out); err != nil {
		switch status.Code(err) {
		case codes.Canceled, codes.DeadlineExceeded:
			return transport.Reply{}, transport.Canceled(ctx)
		}
		return transport.Reply{}, errors.Wrap(errors.PhaseTransport, errors.KindClosed, err, "grpc peer")
	}
	return transport.Unframe(out.GetValue())
}

// Close closes the connection when the client dialed it.
func (c *Client) Close() error {
	if !c.owned {
		return nil
	}
	return c.conn.Close()
}
