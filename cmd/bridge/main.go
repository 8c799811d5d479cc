package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/nativebridge/config"
	"github.com/wippyai/nativebridge/engine"
	"github.com/wippyai/nativebridge/internal/demo"
	"github.com/wippyai/nativebridge/isolate"
	"github.com/wippyai/nativebridge/plan"
	"github.com/wippyai/nativebridge/runtime"
	"github.com/wippyai/nativebridge/transport/stream"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to bridge.toml")
		transportF  = flag.String("transport", "", "Peer transport: stdio, tcp, grpc, connect or wasm")
		address     = flag.String("addr", "", "Peer address")
		serve       = flag.Bool("serve", false, "Serve the demo service as a peer")
		method      = flag.String("call", "", "Method to call")
		args        = flag.String("args", "", "Arguments separated by ';' (arrays use ',')")
		receiver    = flag.String("recv", "", "Receiver handle for methods with a receiver")
		list        = flag.Bool("list", false, "List methods and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	cfg, err := loadConfig(*configFile, *transportF, *address)
	if err != nil {
		fatal(err)
	}
	logger, err := cfg.Logger()
	if err != nil {
		fatal(err)
	}
	defer logger.Sync()
	setLoggers(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *serve:
		err = servePeer(ctx, cfg)
	case *list:
		listMethods()
	case *interactive:
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fatal(fmt.Errorf("interactive mode needs a terminal"))
		}
		err = runInteractive(ctx, cfg)
	case *method != "":
		err = callOnce(ctx, cfg, *method, *args, *receiver)
	default:
		fmt.Fprintln(os.Stderr, "Usage: bridge -serve [-transport t] [-addr a]")
		fmt.Fprintln(os.Stderr, "       bridge -call <method> [-args 'a;b'] [-recv handle]")
		fmt.Fprintln(os.Stderr, "       bridge -list")
		fmt.Fprintln(os.Stderr, "       bridge -i  (interactive mode)")
		os.Exit(1)
	}
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func loadConfig(path, transport, address string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if transport != "" {
		cfg.Peer.Transport = transport
	}
	if address != "" {
		cfg.Peer.Address = address
	}
	return cfg, cfg.Validate()
}

func setLoggers(l *zap.Logger) {
	runtime.SetLogger(l.Named("runtime"))
	isolate.SetLogger(l.Named("isolate"))
	engine.SetLogger(l.Named("engine"))
	stream.SetLogger(l.Named("stream"))
}

func listMethods() {
	for _, m := range demo.Definition().Methods() {
		fmt.Println(formatMethod(m, false))
	}
}

func formatMethod(m *plan.Method, styled bool) string {
	params := make([]string, 0, len(m.Params)+1)
	if m.Receiver {
		params = append(params, "recv: handle")
	}
	for _, p := range m.Params {
		params = append(params, p.Name+": "+describePlan(p.Plan))
	}
	result := ""
	if m.Result != nil {
		result = " -> " + describePlan(m.Result)
	}
	name := m.Name
	if styled {
		name = funcStyle.Render(name)
	}
	var flags []string
	if m.Idempotent {
		flags = append(flags, "idempotent")
	}
	if len(m.Errors) > 0 {
		flags = append(flags, "raises "+strings.Join(m.Errors, ","))
	}
	s := fmt.Sprintf("%s(%s)%s", name, strings.Join(params, ", "), result)
	if len(flags) > 0 {
		s += " [" + strings.Join(flags, "; ") + "]"
	}
	return s
}

func callOnce(ctx context.Context, cfg *config.Config, name, rawArgs, rawRecv string) error {
	m, ok := demo.Definition().Method(name)
	if !ok {
		return fmt.Errorf("unknown method %q", name)
	}
	var fields []string
	if rawArgs != "" {
		fields = strings.Split(rawArgs, ";")
	}
	args, err := parseArgs(m, fields)
	if err != nil {
		return err
	}
	recv, err := parseReceiver(m, rawRecv)
	if err != nil {
		return err
	}

	c, err := dialPeer(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	result, err := c.ep.Call(ctx, m, recv, args...)
	if err != nil {
		return fmt.Errorf("call %s: %w", name, err)
	}
	fmt.Println(formatResult(m, args, result))
	return nil
}
