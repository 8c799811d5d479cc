package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/wippyai/nativebridge/config"
	"github.com/wippyai/nativebridge/engine"
	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/internal/demo"
	"github.com/wippyai/nativebridge/isolate"
	"github.com/wippyai/nativebridge/runtime"
	"github.com/wippyai/nativebridge/transport"
	"github.com/wippyai/nativebridge/transport/connectpeer"
	"github.com/wippyai/nativebridge/transport/grpcpeer"
	"github.com/wippyai/nativebridge/transport/stream"
)

type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

// servePeer serves the demo service on the configured transport until ctx
// ends or the caller hangs up.
func servePeer(ctx context.Context, cfg *config.Config) error {
	srv := cfg.Runtime()
	srv.Tag = cfg.Handles.PeerTag
	rt, err := runtime.New(srv)
	if err != nil {
		return err
	}
	defer rt.Close()
	b, err := demo.Bind(rt, rt.Name())
	if err != nil {
		return err
	}
	h := rt.Dispatcher(cfg.Handles.IsolateTag, b)
	log := runtime.Logger().With(zap.String("transport", cfg.Peer.Transport), zap.String("addr", cfg.Peer.Address))

	switch cfg.Peer.Transport {
	case config.TransportStdio:
		return stream.Serve(ctx, stdio{}, h)

	case config.TransportTCP:
		ln, err := listen(cfg)
		if err != nil {
			return err
		}
		log.Info("serving")
		return stream.ServeListener(ctx, ln, h)

	case config.TransportGRPC:
		ln, err := listen(cfg)
		if err != nil {
			return err
		}
		s := grpc.NewServer()
		grpcpeer.Register(s, h)
		go func() {
			<-ctx.Done()
			s.GracefulStop()
		}()
		log.Info("serving")
		return s.Serve(ln)

	case config.TransportConnect:
		mux := http.NewServeMux()
		mux.Handle(connectpeer.NewHandler(h))
		hs := &http.Server{Addr: cfg.Peer.Address, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			<-ctx.Done()
			hs.Shutdown(context.Background())
		}()
		log.Info("serving")
		if err := hs.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	}
	return errors.New(errors.PhaseConfig, errors.KindUnsupported).
		Detail("cannot serve over %q", cfg.Peer.Transport).
		Build()
}

func listen(cfg *config.Config) (net.Listener, error) {
	ln, err := net.Listen("tcp", cfg.Peer.Address)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseTransport, errors.KindClosed, err, "listen "+cfg.Peer.Address)
	}
	return ln, nil
}

// peer is a connected demo endpoint.
type peer struct {
	rt      *runtime.Runtime
	ep      *runtime.Endpoint
	closers []func()
}

func (p *peer) Close() {
	p.rt.Close()
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

// dialPeer connects to the demo service. The wasm transport runs it in
// process inside a sandboxed guest; stdio spawns the configured command,
// or this binary in serve mode.
func dialPeer(ctx context.Context, cfg *config.Config) (*peer, error) {
	rt, err := runtime.New(cfg.Runtime())
	if err != nil {
		return nil, err
	}
	if err := demo.Register(rt); err != nil {
		return nil, err
	}
	p := &peer{rt: rt}

	tr, err := p.transport(ctx, cfg)
	if err != nil {
		p.Close()
		return nil, err
	}
	iso := isolate.New(cfg.Handles.PeerTag, cfg.Peer.Transport+"-peer")
	iso.OnDeath(func(d *errors.IsolateDeathError) {
		runtime.Logger().Warn("peer died", zap.Error(d))
	})
	p.ep = rt.Connect(iso, tr)
	return p, nil
}

func (p *peer) transport(ctx context.Context, cfg *config.Config) (transport.Transport, error) {
	switch cfg.Peer.Transport {
	case config.TransportStdio:
		argv := cfg.Peer.Command
		if len(argv) == 0 {
			self, err := os.Executable()
			if err != nil {
				return nil, err
			}
			argv = []string{self, "-serve", "-transport", config.TransportStdio}
			if cfg.Path != "" {
				argv = append(argv, "-config", cfg.Path)
			}
		}
		cmd := exec.Command(argv[0], argv[1:]...)
		cmd.Stderr = os.Stderr
		c, err := stream.Spawn(cmd)
		if err != nil {
			return nil, err
		}
		return c.WithMaxFrame(cfg.Peer.MaxFrame), nil

	case config.TransportTCP:
		dctx, cancel := context.WithTimeout(ctx, cfg.Peer.Timeout.Duration)
		defer cancel()
		c, err := stream.Dial(dctx, "tcp", cfg.Peer.Address)
		if err != nil {
			return nil, err
		}
		return c.WithMaxFrame(cfg.Peer.MaxFrame), nil

	case config.TransportGRPC:
		return grpcpeer.Dial(cfg.Peer.Address)

	case config.TransportConnect:
		client := &http.Client{Timeout: cfg.Peer.Timeout.Duration}
		return connectpeer.NewClient(client, "http://"+cfg.Peer.Address), nil

	case config.TransportWasm:
		e, err := engine.NewWazeroEngineWithConfig(ctx, cfg.Engine())
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, func() { e.Close(context.Background()) })

		srv := cfg.Runtime()
		srv.Tag = cfg.Handles.PeerTag
		guest, err := runtime.New(srv)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, func() { guest.Close() })
		b, err := demo.Bind(guest, "wasm")
		if err != nil {
			return nil, err
		}
		return e.Spawn(ctx, "demo", guest.Dispatcher(cfg.Handles.IsolateTag, b))
	}
	return nil, errors.New(errors.PhaseConfig, errors.KindUnsupported).
		Detail("unknown transport %q", cfg.Peer.Transport).
		Build()
}
