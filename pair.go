package nativebridge

import (
	"github.com/wippyai/nativebridge/isolate"
	"github.com/wippyai/nativebridge/runtime"
	"github.com/wippyai/nativebridge/transport"
)

// Pair is two runtimes joined by an in-process transport.
type Pair struct {
	Caller   *runtime.Runtime
	Callee   *runtime.Runtime
	Link     *transport.Local
	Endpoint *runtime.Endpoint
}

// NewLocalPair creates a callee serving the binding returned by bind and
// a caller connected to it. A callee without a tag gets the caller's tag
// plus one.
func NewLocalPair(caller, callee runtime.Config, bind func(*runtime.Runtime) (*runtime.Binding, error)) (*Pair, error) {
	if caller.Tag == 0 {
		caller.Tag = runtime.DefaultTag
	}
	if callee.Tag == 0 {
		callee.Tag = caller.Tag + 1
	}
	if callee.Name == "" {
		callee.Name = "callee"
	}
	c, err := runtime.New(caller)
	if err != nil {
		return nil, err
	}
	s, err := runtime.New(callee)
	if err != nil {
		c.Close()
		return nil, err
	}
	b, err := bind(s)
	if err != nil {
		c.Close()
		s.Close()
		return nil, err
	}
	link := transport.NewLocal(s.Dispatcher(c.Tag(), b))
	return &Pair{
		Caller:   c,
		Callee:   s,
		Link:     link,
		Endpoint: c.Connect(isolate.New(s.Tag(), s.Name()), link),
	}, nil
}

// Close closes both runtimes.
func (p *Pair) Close() error {
	err := p.Caller.Close()
	if cerr := p.Callee.Close(); err == nil {
		err = cerr
	}
	return err
}
