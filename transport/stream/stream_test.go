package stream

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/transport"
)

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	for _, p := range [][]byte{nil, []byte("abc")} {
		if err := WriteFrame(&buf, p); err != nil {
			t.Fatal(err)
		}
	}
	for _, want := range []string{"", "abc"} {
		got, err := ReadFrame(&buf, 0)
		if err != nil || string(got) != want {
			t.Fatalf("ReadFrame = %q, %v", got, err)
		}
	}
	if _, err := ReadFrame(&buf, 0); err != io.EOF {
		t.Fatalf("end of stream = %v, want io.EOF", err)
	}
}

func TestReadFrame_Limits(t *testing.T) {
	var buf bytes.Buffer
	WriteFrame(&buf, make([]byte, 100))
	if _, err := ReadFrame(&buf, 10); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseTransport, Kind: errors.KindOutOfBounds}) {
		t.Fatalf("oversized frame error = %v", err)
	}

	truncated := bytes.NewReader([]byte{0, 0, 0, 5, 'a'})
	if _, err := ReadFrame(truncated, 0); err != io.ErrUnexpectedEOF {
		t.Fatalf("truncated frame error = %v", err)
	}
}

func serve(t *testing.T, h transport.Handler) *Conn {
	t.Helper()
	client, server := net.Pipe()
	go Serve(context.Background(), server, h)
	c := New(client)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConn_RoundTrip(t *testing.T) {
	c := serve(t, transport.HandlerFunc(func(_ context.Context, req []byte) transport.Reply {
		if string(req) == "fail" {
			return transport.Reply{Payload: []byte("envelope"), Failed: true}
		}
		return transport.Reply{Payload: append([]byte("re:"), req...)}
	}))

	r, err := c.RoundTrip(context.Background(), []byte("x"))
	if err != nil || r.Failed || string(r.Payload) != "re:x" {
		t.Fatalf("RoundTrip = %+v, %v", r, err)
	}
	r, err = c.RoundTrip(context.Background(), []byte("fail"))
	if err != nil || !r.Failed || string(r.Payload) != "envelope" {
		t.Fatalf("failed reply = %+v, %v", r, err)
	}
}

func TestConn_PeerGone(t *testing.T) {
	client, server := net.Pipe()
	c := New(client)
	defer c.Close()
	server.Close()

	if _, err := c.RoundTrip(context.Background(), []byte("x")); err == nil {
		t.Fatal("round trip to a closed peer succeeded")
	}
	if _, err := c.RoundTrip(context.Background(), []byte("x")); !stderrors.Is(err, transport.ErrPeerGone) {
		t.Fatalf("second round trip = %v, want peer gone", err)
	}
}

func TestConn_CancelClosesStream(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	c := serve(t, transport.HandlerFunc(func(context.Context, []byte) transport.Reply {
		<-release
		return transport.Reply{}
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.RoundTrip(ctx, []byte("slow"))
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseTransport, Kind: errors.KindCanceled}) {
		t.Fatalf("error = %v, want canceled", err)
	}
	if _, err := c.RoundTrip(context.Background(), nil); !stderrors.Is(err, transport.ErrPeerGone) {
		t.Fatalf("round trip after cancel = %v, want peer gone", err)
	}
}

type cancelOnRead struct {
	net.Conn
	cancel context.CancelFunc
}

func (c cancelOnRead) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	c.cancel()
	return n, err
}

func TestConn_CancelRacingReply(t *testing.T) {
	echo := transport.HandlerFunc(func(_ context.Context, req []byte) transport.Reply {
		return transport.Reply{Payload: req}
	})
	for i := 0; i < 50; i++ {
		client, server := net.Pipe()
		go Serve(context.Background(), server, echo)
		ctx, cancel := context.WithCancel(context.Background())
		c := New(cancelOnRead{Conn: client, cancel: cancel})

		r, err := c.RoundTrip(ctx, []byte("payload"))
		next, nextErr := c.RoundTrip(context.Background(), []byte("again"))
		switch {
		case err == nil:
			if string(r.Payload) != "payload" {
				t.Fatalf("reply = %q", r.Payload)
			}
			if nextErr != nil || string(next.Payload) != "again" {
				t.Fatalf("stream unusable after a delivered reply: %v", nextErr)
			}
		case stderrors.Is(err, &errors.Error{Phase: errors.PhaseTransport, Kind: errors.KindCanceled}):
			if !stderrors.Is(nextErr, transport.ErrPeerGone) {
				t.Fatalf("round trip after cancel = %v, want peer gone", nextErr)
			}
		default:
			t.Fatalf("error = %v", err)
		}
		cancel()
		c.Close()
	}
}

func TestServeListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- ServeListener(ctx, ln, transport.HandlerFunc(func(_ context.Context, req []byte) transport.Reply {
			return transport.Reply{Payload: req}
		}))
	}()

	c, err := Dial(ctx, "tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	r, err := c.RoundTrip(ctx, []byte("ping"))
	if err != nil || string(r.Payload) != "ping" {
		t.Fatalf("RoundTrip = %+v, %v", r, err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("ServeListener = %v", err)
	}
}
