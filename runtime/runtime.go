package runtime

import (
	"sync"
	"sync/atomic"

	"github.com/wippyai/nativebridge/envelope"
	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/handle"
	"github.com/wippyai/nativebridge/isolate"
	"github.com/wippyai/nativebridge/transcoder"
	"github.com/wippyai/nativebridge/transport"
	"github.com/wippyai/nativebridge/wire"
)

// DefaultTag is the handle tag of a runtime configured without one.
const DefaultTag uint16 = 1

// Config configures a Runtime. Zero values select defaults.
type Config struct {
	Name           string
	Limits         wire.Limits
	RegionSize     int
	CustomFallback int
	TypedFallback  int
	Tag            uint16
}

// Runtime is the local side of the bridge: it owns the handle registry
// for objects this isolate exposes, the marshaller and error registries,
// and the buffer pool shared by every endpoint and dispatcher.
type Runtime struct {
	handles     *handle.Registry
	marshallers *transcoder.Marshallers
	codec       *transcoder.Codec
	estimator   *transcoder.Estimator
	errors      *envelope.Codec
	pool        *wire.Pool
	endpoints   []*Endpoint
	config      Config
	mu          sync.Mutex
	calls       atomic.Uint64
	cacheHits   atomic.Uint64
	failures    atomic.Uint64
	closed      atomic.Bool
}

// New creates a runtime.
func New(cfg Config) (*Runtime, error) {
	if cfg.Tag == 0 {
		cfg.Tag = DefaultTag
	}
	if cfg.Name == "" {
		cfg.Name = "local"
	}
	if cfg.Limits == (wire.Limits{}) {
		cfg.Limits = wire.DefaultLimits()
	}
	if cfg.RegionSize < 0 || cfg.CustomFallback < 0 || cfg.TypedFallback < 0 {
		return nil, errors.InvalidInput(errors.PhaseConfig, "sizes must not be negative")
	}

	marshallers := transcoder.NewMarshallers()
	handles := handle.NewRegistry(cfg.Tag)
	envelopes, err := envelope.NewCodec(marshallers)
	if err != nil {
		return nil, err
	}
	est := transcoder.NewEstimator(marshallers)
	if cfg.CustomFallback > 0 {
		est.CustomFallback = cfg.CustomFallback
	}
	if cfg.TypedFallback > 0 {
		est.TypedFallback = cfg.TypedFallback
	}

	return &Runtime{
		handles:     handles,
		marshallers: marshallers,
		codec:       transcoder.NewCodec(handles, marshallers),
		estimator:   est,
		errors:      envelopes,
		pool:        wire.NewPool(cfg.RegionSize),
		config:      cfg,
	}, nil
}

// Name returns the runtime name.
func (r *Runtime) Name() string {
	return r.config.Name
}

// Tag returns the handle tag of objects this runtime exposes.
func (r *Runtime) Tag() uint16 {
	return r.config.Tag
}

// Handles returns the registry of objects exposed to peers.
func (r *Runtime) Handles() *handle.Registry {
	return r.handles
}

// Marshallers returns the custom marshaller registry.
func (r *Runtime) Marshallers() *transcoder.Marshallers {
	return r.marshallers
}

// Codec returns the value codec.
func (r *Runtime) Codec() *transcoder.Codec {
	return r.codec
}

// Errors returns the error envelope codec, where error types and
// sentinels are registered.
func (r *Runtime) Errors() *envelope.Codec {
	return r.errors
}

// Estimator returns the buffer size estimator.
func (r *Runtime) Estimator() *transcoder.Estimator {
	return r.estimator
}

// Connect returns an endpoint calling into iso over tr. iso.ID() must be
// the tag the peer mints its handles with.
func (r *Runtime) Connect(iso *isolate.Isolate, tr transport.Transport) *Endpoint {
	e := newEndpoint(r, iso, tr)
	r.mu.Lock()
	r.endpoints = append(r.endpoints, e)
	r.mu.Unlock()
	return e
}

// Close closes every endpoint transport and releases all exposed
// objects.
func (r *Runtime) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.mu.Lock()
	endpoints := r.endpoints
	r.endpoints = nil
	r.mu.Unlock()

	var first error
	for _, e := range endpoints {
		if err := e.tr.Close(); err != nil && first == nil {
			first = err
		}
	}
	if err := r.handles.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// Stats is a snapshot of runtime counters.
type Stats struct {
	Calls          uint64
	CacheHits      uint64
	Failures       uint64
	EstimateHits   uint64
	EstimateMisses uint64
	Handles        int
}

// Stats returns the runtime counters.
func (r *Runtime) Stats() Stats {
	return Stats{
		Calls:          r.calls.Load(),
		CacheHits:      r.cacheHits.Load(),
		Failures:       r.failures.Load(),
		EstimateHits:   r.estimator.Hits(),
		EstimateMisses: r.estimator.Misses(),
		Handles:        r.handles.Len(),
	}
}
