package stream

import (
	"context"
	"io"
	"net"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/transport"
)

// Conn is a transport over a reliable byte stream. Requests are
// serialized: one round trip owns the stream at a time.
type Conn struct {
	rw       io.ReadWriteCloser
	cmd      *exec.Cmd
	mu       sync.Mutex
	closed   atomic.Bool
	maxFrame int
}

var _ transport.Transport = (*Conn)(nil)

// New creates a transport over rw.
func New(rw io.ReadWriteCloser) *Conn {
	return &Conn{rw: rw, maxFrame: DefaultMaxFrame}
}

// WithMaxFrame sets the largest reply frame accepted.
func (c *Conn) WithMaxFrame(n int) *Conn {
	if n > 0 {
		c.maxFrame = n
	}
	return c
}

// Dial connects to a peer serving on network/address.
func Dial(ctx context.Context, network, address string) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseTransport, errors.KindClosed, err, "dial "+address)
	}
	return New(nc), nil
}

type pipes struct {
	io.ReadCloser
	io.WriteCloser
}

func (p pipes) Close() error {
	werr := p.WriteCloser.Close()
	rerr := p.ReadCloser.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// Spawn starts a child process that serves requests on its stdin and
// stdout. Its stderr is inherited from cmd.
func Spawn(cmd *exec.Cmd) (*Conn, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInstantiation, err, "stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInstantiation, err, "stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Instantiation(err)
	}
	Logger().Debug("spawned peer", zap.String("path", cmd.Path), zap.Int("pid", cmd.Process.Pid))
	c := New(pipes{ReadCloser: stdout, WriteCloser: stdin})
	c.cmd = cmd
	return c, nil
}

// RoundTrip writes req and reads the framed reply. A context that ends
// mid-exchange closes the stream, since the reply can no longer be
// matched; the next round trip reports the peer gone.
func (c *Conn) RoundTrip(ctx context.Context, req []byte) (transport.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return transport.Reply{}, transport.ErrPeerGone
	}
	if ctx.Err() != nil {
		return transport.Reply{}, transport.Canceled(ctx)
	}

	// whichever of the exchange and the cancellation settles first decides
	// the outcome; a reply is only returned over a stream left open
	var settled atomic.Bool
	stop := context.AfterFunc(ctx, func() {
		if settled.CompareAndSwap(false, true) {
			c.closed.Store(true)
			c.rw.Close()
		}
	})
	defer stop()

	frame, err := c.exchange(req)
	if !settled.CompareAndSwap(false, true) {
		return transport.Reply{}, transport.Canceled(ctx)
	}
	if err != nil {
		c.closed.Store(true)
		Logger().Debug("stream round trip failed", zap.Error(err))
		return transport.Reply{}, errors.Wrap(errors.PhaseTransport, errors.KindClosed, err, "peer stream")
	}
	return transport.Unframe(frame)
}

func (c *Conn) exchange(req []byte) ([]byte, error) {
	if err := WriteFrame(c.rw, req); err != nil {
		return nil, err
	}
	return ReadFrame(c.rw, c.maxFrame)
}

// Close closes the stream. A spawned child gets a grace period to exit on
// end of input before it is killed.
func (c *Conn) Close() error {
	c.closed.Store(true)
	err := c.rw.Close()
	if c.cmd == nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		c.cmd.Process.Kill()
		<-done
	}
	return err
}
