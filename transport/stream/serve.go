package stream

import (
	"context"
	stderrors "errors"
	"io"
	"net"

	"go.uber.org/zap"

	"github.com/wippyai/nativebridge/transport"
)

// Serve answers framed requests on rw until the stream ends. A clean end
// of stream returns nil.
func Serve(ctx context.Context, rw io.ReadWriter, h transport.Handler) error {
	for {
		req, err := ReadFrame(rw, DefaultMaxFrame)
		if err != nil {
			if stderrors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		reply := h.Dispatch(ctx, req)
		if err := WriteFrame(rw, transport.Frame(reply)); err != nil {
			return err
		}
	}
}

// ServeListener accepts connections on ln and serves each with h until
// ctx ends or ln is closed.
func ServeListener(ctx context.Context, ln net.Listener, h transport.Handler) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go func() {
			defer nc.Close()
			if err := Serve(ctx, nc, h); err != nil {
				Logger().Warn("connection failed",
					zap.String("remote", nc.RemoteAddr().String()),
					zap.Error(err))
			}
		}()
	}
}
