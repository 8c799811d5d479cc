package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/nativebridge/envelope"
	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/handle"
	"github.com/wippyai/nativebridge/isolate"
	"github.com/wippyai/nativebridge/plan"
	"github.com/wippyai/nativebridge/transport"
)

var (
	mSum = plan.MustMethod(1, "sum",
		[]plan.Param{{Name: "values", Plan: plan.Value(plan.ArrayOf(plan.Int32))}},
		plan.Value(plan.Int32))
	mFill = plan.MustMethod(2, "fill",
		[]plan.Param{{Name: "buf", Plan: plan.Value(plan.ArrayOf(plan.Int8), plan.Out(plan.Transfer{TrimToResult: true}))}},
		plan.Value(plan.Int32))
	mNewCounter = plan.MustMethod(3, "new-counter",
		[]plan.Param{{Name: "start", Plan: plan.Value(plan.Int64)}},
		plan.Reference(plan.Object("Counter"), plan.SameDirection()))
	mIncrement = plan.MustMethod(4, "increment", nil, plan.Value(plan.Int64), plan.WithReceiver())
	mVersion   = plan.MustMethod(5, "version", nil, plan.Value(plan.String), plan.Idempotent())
	mFail      = plan.MustMethod(6, "fail",
		[]plan.Param{{Name: "mode", Plan: plan.Value(plan.String)}},
		nil, plan.Raises("quota", "limit"))
	mCrash = plan.MustMethod(7, "crash", nil, nil)

	calcService = mustService(plan.NewService("calc", mSum, mFill, mNewCounter, mIncrement, mVersion, mFail, mCrash))
)

func mustService(s *plan.Service, err error) *plan.Service {
	if err != nil {
		panic(err)
	}
	return s
}

var errQuota = stderrors.New("quota exceeded")

type limitError struct {
	Limit int
}

func (e *limitError) Error() string {
	return fmt.Sprintf("limit %d reached", e.Limit)
}

func (e *limitError) ErrorProperties() map[string]any {
	return map[string]any{"limit": e.Limit}
}

type counter struct {
	n int64
}

func (c *counter) Increment() int64 {
	c.n++
	return c.n
}

type calculator struct {
	kill     func()
	versions atomic.Int32
}

func (c *calculator) Sum(values []int32) int32 {
	var s int32
	for _, v := range values {
		s += v
	}
	return s
}

func (c *calculator) Fill(buf []byte) int32 {
	return int32(copy(buf, "hello"))
}

func (c *calculator) NewCounter(start int64) *counter {
	return &counter{n: start}
}

func (c *calculator) Version(ctx context.Context) (string, error) {
	c.versions.Add(1)
	return "v1", nil
}

func (c *calculator) Fail(mode string) error {
	switch mode {
	case "quota":
		return fmt.Errorf("reserve: %w", errQuota)
	case "limit":
		return &limitError{Limit: 3}
	case "panic":
		panic("kaboom")
	}
	return nil
}

func (c *calculator) Crash() {
	c.kill()
}

type pair struct {
	caller *Runtime
	callee *Runtime
	impl   *calculator
	iso    *isolate.Isolate
	link   *transport.Local
	ep     *Endpoint
}

func newPair(t *testing.T) *pair {
	t.Helper()
	callee, err := New(Config{Name: "callee", Tag: 2})
	if err != nil {
		t.Fatal(err)
	}
	caller, err := New(Config{Name: "caller", Tag: 1})
	if err != nil {
		t.Fatal(err)
	}
	impl := &calculator{}
	b, err := Bind(calcService, impl)
	if err != nil {
		t.Fatal(err)
	}
	link := transport.NewLocal(callee.Dispatcher(caller.Tag(), b))
	impl.kill = link.Kill

	iso := isolate.New(callee.Tag(), callee.Name())
	p := &pair{caller: caller, callee: callee, impl: impl, iso: iso, link: link}
	p.ep = caller.Connect(iso, link)
	t.Cleanup(func() {
		caller.Close()
		callee.Close()
	})
	return p
}

func TestCall_Sum(t *testing.T) {
	p := newPair(t)
	got, err := p.ep.Call(context.Background(), mSum, 0, []int32{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if got != int32(6) {
		t.Fatalf("sum = %v, want 6", got)
	}
	if st := p.caller.Stats(); st.Calls != 1 || st.EstimateHits != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestCall_FillTrimmedToResult(t *testing.T) {
	p := newPair(t)
	buf := make([]byte, 8)
	got, err := p.ep.Call(context.Background(), mFill, 0, buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != int32(5) {
		t.Fatalf("fill = %v, want 5", got)
	}
	if diff := cmp.Diff([]byte("hello\x00\x00\x00"), buf); diff != "" {
		t.Fatalf("buffer (-want +got):\n%s", diff)
	}
}

func TestCall_ReferencesAndRelease(t *testing.T) {
	p := newPair(t)
	ctx := context.Background()

	v, err := p.ep.Call(ctx, mNewCounter, 0, int64(10))
	if err != nil {
		t.Fatal(err)
	}
	remote, ok := v.(*handle.Remote)
	if !ok || remote.Isolate != p.callee.Tag() {
		t.Fatalf("new-counter returned %#v", v)
	}
	if p.callee.Handles().Len() != 1 {
		t.Fatalf("callee holds %d handles", p.callee.Handles().Len())
	}

	for want := int64(11); want <= 12; want++ {
		got, err := p.ep.Call(ctx, mIncrement, remote.Handle)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("increment = %v, want %d", got, want)
		}
	}

	if err := p.ep.ReleaseRemote(ctx, remote); err != nil {
		t.Fatal(err)
	}
	if p.callee.Handles().Len() != 0 {
		t.Fatal("release did not drop the callee entry")
	}
	_, err = p.ep.Call(ctx, mIncrement, remote.Handle)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseResolve, Kind: errors.KindInvalidHandle}) {
		t.Fatalf("call on released handle: %v", err)
	}
	if !p.iso.Alive() {
		t.Fatal("protocol error killed the isolate")
	}
}

func TestCall_IdempotentCacheConcurrent(t *testing.T) {
	p := newPair(t)
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	results := make([]any, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.ep.Call(ctx, mVersion, 0)
		}(i)
	}
	wg.Wait()
	for i := range results {
		if errs[i] != nil || results[i] != "v1" {
			t.Fatalf("call %d = %v, %v", i, results[i], errs[i])
		}
	}

	served := p.impl.versions.Load()
	if served < 1 || served > n {
		t.Fatalf("served %d times", served)
	}
	if _, err := p.ep.Call(ctx, mVersion, 0); err != nil {
		t.Fatal(err)
	}
	if p.impl.versions.Load() != served {
		t.Fatal("cached call reached the isolate")
	}
	if p.caller.Stats().CacheHits == 0 {
		t.Fatal("no cache hit recorded")
	}
}

func TestCall_ErrorFidelity(t *testing.T) {
	p := newPair(t)
	ctx := context.Background()
	if err := p.caller.Errors().RegisterSentinel(errQuota); err != nil {
		t.Fatal(err)
	}
	err := envelope.RegisterType(p.caller.Errors(), func(t *envelope.Throwable, _ error) *limitError {
		n, _ := t.Properties["limit"].(int64)
		return &limitError{Limit: int(n)}
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = p.ep.Call(ctx, mFail, 0, "quota")
	if !stderrors.Is(err, errQuota) || err.Error() != "reserve: quota exceeded" {
		t.Fatalf("sentinel error = %v", err)
	}

	_, err = p.ep.Call(ctx, mFail, 0, "limit")
	var le *limitError
	if !stderrors.As(err, &le) || le.Limit != 3 {
		t.Fatalf("typed error = %#v", err)
	}

	_, err = p.ep.Call(ctx, mFail, 0, "panic")
	var fe *envelope.ForeignError
	if !stderrors.As(err, &fe) || fe.Message != "panic: kaboom" || len(fe.Stack) == 0 {
		t.Fatalf("panic error = %#v", err)
	}

	if _, err := p.ep.Call(ctx, mFail, 0, "none"); err != nil {
		t.Fatalf("successful void call: %v", err)
	}
	if !p.iso.Alive() {
		t.Fatal("user errors must not kill the isolate")
	}
}

func TestCall_DeathMidCall(t *testing.T) {
	p := newPair(t)
	ctx := context.Background()

	var deaths atomic.Int32
	p.iso.OnDeath(func(*errors.IsolateDeathError) {
		deaths.Add(1)
		panic("handler panics are contained")
	})

	_, err := p.ep.Call(ctx, mCrash, 0)
	if !errors.IsIsolateDeath(err) {
		t.Fatalf("error = %v, want isolate death", err)
	}
	st := p.iso.Stats()
	if st.Entered != 1 || st.Left != 1 || st.Active != 0 {
		t.Fatalf("session stats = %+v, want one enter and one leave", st)
	}

	before := p.impl.versions.Load()
	_, err = p.ep.Call(ctx, mVersion, 0)
	if !stderrors.Is(err, errors.ErrIsolateDeath) {
		t.Fatalf("call after death = %v", err)
	}
	if p.impl.versions.Load() != before {
		t.Fatal("call after death reached the isolate")
	}
	if deaths.Load() != 1 {
		t.Fatalf("death handler ran %d times", deaths.Load())
	}
	if p.iso.Stats().Entered != 1 {
		t.Fatal("entered a dead isolate")
	}
}

func TestCall_CanceledIsNotDeath(t *testing.T) {
	p := newPair(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ep.Call(ctx, mSum, 0, []int32{1})
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseTransport, Kind: errors.KindCanceled}) {
		t.Fatalf("error = %v, want canceled", err)
	}
	if !p.iso.Alive() {
		t.Fatal("cancellation killed the isolate")
	}
	if st := p.iso.Stats(); st.Active != 0 {
		t.Fatalf("session left open: %+v", st)
	}
}

func TestCall_ProtocolErrors(t *testing.T) {
	p := newPair(t)
	ctx := context.Background()

	_, err := p.ep.Call(ctx, mSum, 0, "not an array")
	if !errors.IsProtocol(err) {
		t.Fatalf("encode error = %v", err)
	}
	_, err = p.ep.Call(ctx, mSum, 0)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseEncode, Kind: errors.KindInvalidInput}) {
		t.Fatalf("arity error = %v", err)
	}

	unknown := plan.MustMethod(99, "unknown", nil, nil)
	_, err = p.ep.Call(ctx, unknown, 0)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseDispatch, Kind: errors.KindUnknownMethod}) {
		t.Fatalf("unknown method error = %v", err)
	}
	if p.iso.Stats().Active != 0 {
		t.Fatal("session left open after a protocol error")
	}
}

func TestRuntime_CloseKillsTransports(t *testing.T) {
	p := newPair(t)
	if err := p.caller.Close(); err != nil {
		t.Fatal(err)
	}
	_, err := p.ep.Call(context.Background(), mSum, 0, []int32{1})
	if !errors.IsIsolateDeath(err) {
		t.Fatalf("call after close = %v", err)
	}
}
