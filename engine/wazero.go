package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/transport"
)

// WazeroEngine hosts native isolates as wazero module instances.
type WazeroEngine struct {
	runtime    wazero.Runtime
	instances  sync.Map // module name -> *WazeroInstance
	trampoline *WazeroModule
	trampMu    sync.Mutex
	seq        atomic.Uint64
	wasi       bool
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages caps guest memory in 64KB pages. 0 or anything above
	// MaxMemoryPages means MaxMemoryPages (2GB).
	MemoryLimitPages uint32

	// EnableWASI provides WASI preview1 to guests that import it.
	EnableWASI bool
}

// NewWazeroEngine creates a new wazero-based engine
func NewWazeroEngine(ctx context.Context) (*WazeroEngine, error) {
	return NewWazeroEngineWithConfig(ctx, nil)
}

// NewWazeroEngineWithConfig creates a new engine with custom configuration
func NewWazeroEngineWithConfig(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	pages := uint32(MaxMemoryPages)
	if cfg != nil && cfg.MemoryLimitPages > 0 && cfg.MemoryLimitPages < pages {
		pages = cfg.MemoryLimitPages
	}
	runtimeCfg := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(pages).
		WithCloseOnContextDone(true)

	e := &WazeroEngine{runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg)}
	_, err := e.runtime.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().
		WithFunc(e.dispatch).
		Export(DispatchImport).
		Instantiate(ctx)
	if err != nil {
		e.runtime.Close(ctx)
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInstantiation, err, "host module "+HostModule)
	}
	if cfg != nil && cfg.EnableWASI {
		if err := e.initWASI(ctx); err != nil {
			e.runtime.Close(ctx)
			return nil, err
		}
		e.wasi = true
	}
	return e, nil
}

// dispatch serves nativebridge.dispatch for the calling instance. The
// reply is written after the request; a failure traps the guest.
func (e *WazeroEngine) dispatch(ctx context.Context, m api.Module, ptr, n uint32) uint64 {
	v, ok := e.instances.Load(m.Name())
	if !ok {
		panic(errors.NotFound(errors.PhaseDispatch, "instance", m.Name()))
	}
	inst := v.(*WazeroInstance)
	mem := guestMemory{mem: m.Memory()}

	req, err := mem.Read(ptr, n)
	if err != nil {
		panic(err)
	}
	reply := inst.handler.Dispatch(ctx, bytes.Clone(req))

	at := align8(ptr + n)
	if err := mem.Write(at, reply.Payload); err != nil {
		panic(err)
	}
	return packReply(at, reply)
}

// LoadModule compiles a guest. It must export memory and
// call(ptr, len i32) i64; it may export cabi_realloc or alloc to place
// requests, otherwise requests are written at offset 0.
func (e *WazeroEngine) LoadModule(ctx context.Context, wasmBytes []byte) (*WazeroModule, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "compile guest")
	}
	if err := checkExports(compiled); err != nil {
		compiled.Close(ctx)
		return nil, err
	}
	return &WazeroModule{engine: e, compiled: compiled}, nil
}

func checkExports(compiled wazero.CompiledModule) error {
	call, ok := compiled.ExportedFunctions()[CallExport]
	if !ok {
		return errors.NotFound(errors.PhaseLoad, "export", CallExport)
	}
	i32, i64 := api.ValueTypeI32, api.ValueTypeI64
	if !slices.Equal(call.ParamTypes(), []api.ValueType{i32, i32}) ||
		!slices.Equal(call.ResultTypes(), []api.ValueType{i64}) {
		return errors.New(errors.PhaseLoad, errors.KindTypeMismatch).
			Detail("export %q must be (i32, i32) -> i64", CallExport).
			Build()
	}
	if _, ok := compiled.ExportedMemories()[MemoryExport]; !ok {
		return errors.NotFound(errors.PhaseLoad, "export", MemoryExport)
	}
	return nil
}

// Trampoline returns the built-in guest that forwards each call to the
// handler its instance was created with.
func (e *WazeroEngine) Trampoline(ctx context.Context) (*WazeroModule, error) {
	e.trampMu.Lock()
	defer e.trampMu.Unlock()
	if e.trampoline != nil {
		return e.trampoline, nil
	}
	m, err := e.LoadModule(ctx, trampoline)
	if err != nil {
		return nil, err
	}
	e.trampoline = m
	return m, nil
}

// Spawn instantiates the trampoline guest serving h.
func (e *WazeroEngine) Spawn(ctx context.Context, name string, h transport.Handler) (*WazeroInstance, error) {
	m, err := e.Trampoline(ctx)
	if err != nil {
		return nil, err
	}
	return m.Instantiate(ctx, name, h)
}

// Close closes every instance and the wazero runtime.
func (e *WazeroEngine) Close(ctx context.Context) error {
	e.instances.Range(func(_, v any) bool {
		v.(*WazeroInstance).killed.Store(true)
		return true
	})
	return e.runtime.Close(ctx)
}

// WazeroModule is a compiled guest
type WazeroModule struct {
	engine   *WazeroEngine
	compiled wazero.CompiledModule
}

// Instantiate creates an isolate instance named name. h serves the
// guest's dispatch imports and may be nil for guests that do not import
// it. An empty name is replaced by a generated one.
func (m *WazeroModule) Instantiate(ctx context.Context, name string, h transport.Handler) (*WazeroInstance, error) {
	e := m.engine
	if name == "" {
		name = fmt.Sprintf("isolate-%d", e.seq.Add(1))
	}
	if h == nil {
		h = transport.HandlerFunc(func(context.Context, []byte) transport.Reply {
			panic(errors.NotInitialized(errors.PhaseDispatch, "dispatch handler"))
		})
	}
	inst := &WazeroInstance{engine: e, handler: h, name: name, stack: make([]uint64, 2)}
	if _, dup := e.instances.LoadOrStore(name, inst); dup {
		return nil, errors.New(errors.PhaseLoad, errors.KindRegistration).
			Detail("instance %q already exists", name).
			Build()
	}

	modCfg := wazero.NewModuleConfig().WithName(name).WithStartFunctions(reactorInit)
	if e.wasi {
		modCfg = modCfg.WithStdout(os.Stderr).WithStderr(os.Stderr)
	}
	mod, err := e.runtime.InstantiateModule(ctx, m.compiled, modCfg)
	if err != nil {
		e.instances.Delete(name)
		return nil, errors.Instantiation(err)
	}
	inst.mod = mod
	inst.call = mod.ExportedFunction(CallExport)
	inst.mem = guestMemory{mem: mod.ExportedMemory(MemoryExport)}
	inst.alloc = newGuestAllocator(mod)
	Logger().Debug("isolate instantiated", zap.String("name", name), zap.Bool("allocator", inst.alloc != nil))
	return inst, nil
}

// WazeroInstance is a native isolate. It implements transport.Transport:
// requests and replies cross through guest linear memory and the reply
// discriminant is the sign bit of the i64 the guest returns. Round trips
// are serialized and must not re-enter the same instance.
type WazeroInstance struct {
	engine  *WazeroEngine
	mod     api.Module
	call    api.Function
	alloc   *guestAllocator
	handler transport.Handler
	mem     guestMemory
	name    string
	stack   []uint64
	mu      sync.Mutex
	killed  atomic.Bool
}

var _ transport.Transport = (*WazeroInstance)(nil)

// Name returns the instance module name.
func (i *WazeroInstance) Name() string {
	return i.name
}

// MemorySize returns the guest memory size in bytes.
func (i *WazeroInstance) MemorySize() uint32 {
	return i.mem.Size()
}

// Alive reports whether the guest can still serve calls.
func (i *WazeroInstance) Alive() bool {
	return !i.killed.Load() && !i.mod.IsClosed()
}

func (i *WazeroInstance) RoundTrip(ctx context.Context, req []byte) (transport.Reply, error) {
	if !i.Alive() {
		return transport.Reply{}, transport.ErrPeerGone
	}
	if ctx.Err() != nil {
		return transport.Reply{}, transport.Canceled(ctx)
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	ptr, err := i.place(ctx, req)
	if err != nil {
		return transport.Reply{}, i.fail(ctx, err)
	}
	i.stack[0], i.stack[1] = uint64(ptr), uint64(len(req))
	if err := i.call.CallWithStack(ctx, i.stack); err != nil {
		return transport.Reply{}, i.fail(ctx, err)
	}
	at, n, failed := Unpack(i.stack[0])
	payload, err := i.mem.Read(at, n)
	if err != nil {
		return transport.Reply{}, i.fail(ctx, err)
	}
	return transport.Reply{Payload: bytes.Clone(payload), Failed: failed}, nil
}

func (i *WazeroInstance) place(ctx context.Context, req []byte) (uint32, error) {
	var ptr uint32
	if i.alloc != nil {
		p, err := i.alloc.Alloc(ctx, uint32(len(req)), 8)
		if err != nil {
			return 0, err
		}
		ptr = p
	}
	if err := i.mem.Write(ptr, req); err != nil {
		return 0, err
	}
	return ptr, nil
}

// fail kills the instance. A context that ended first closed the module
// on its own and is reported as a cancellation.
func (i *WazeroInstance) fail(ctx context.Context, err error) error {
	i.Kill()
	if ctx.Err() != nil {
		return transport.Canceled(ctx)
	}
	Logger().Warn("guest failed", zap.String("isolate", i.name), zap.Error(err))
	return errors.Wrap(errors.PhaseTransport, errors.KindClosed, err, "guest "+i.name)
}

// Kill closes the guest. A call in flight is interrupted and every later
// round trip returns transport.ErrPeerGone.
func (i *WazeroInstance) Kill() {
	if i.killed.Swap(true) {
		return
	}
	if err := i.mod.CloseWithExitCode(context.Background(), 1); err != nil {
		Logger().Debug("close guest", zap.String("isolate", i.name), zap.Error(err))
	}
}

// Close kills the instance and forgets it.
func (i *WazeroInstance) Close() error {
	i.Kill()
	i.engine.instances.Delete(i.name)
	return nil
}
