package handle

import (
	"errors"
	"reflect"
	"runtime"
	"sync"
	"testing"
	"time"

	bridgeerrors "github.com/wippyai/nativebridge/errors"
)

type counter struct {
	label   string
	n       int
	dropped bool
}

func (c *counter) Drop() { c.dropped = true }

// recorder keeps event types only, so it never holds observed objects.
type recorder struct {
	mu     sync.Mutex
	events []EventType
}

func (r *recorder) OnHandleEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e.Type)
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EventType(nil), r.events...)
}

func TestHandle_Layout(t *testing.T) {
	h := Make(7, 42)
	if h.Tag() != 7 || h.Seq() != 42 {
		t.Fatalf("Make(7, 42) = tag %d seq %d", h.Tag(), h.Seq())
	}
	if h.IsNull() || !Handle(0).IsNull() {
		t.Fatal("IsNull mismatch")
	}
	if Make(0xFFFF, 1<<50).Seq() != 0 {
		t.Fatal("sequence must be masked to 48 bits")
	}
}

func TestRegistry_CreateResolveRelease(t *testing.T) {
	r := NewRegistry(3)
	rec := &recorder{}
	r.Subscribe(rec)

	c := &counter{n: 5}
	h, err := r.Create(c)
	if err != nil {
		t.Fatal(err)
	}
	if h.Tag() != 3 {
		t.Fatalf("tag = %d, want 3", h.Tag())
	}

	again, err := r.Create(c)
	if err != nil || again != h {
		t.Fatalf("second Create = %v, %v; want %v", again, err, h)
	}

	v, err := r.Resolve(h, reflect.TypeFor[*counter]())
	if err != nil || v != c {
		t.Fatalf("Resolve = %v, %v", v, err)
	}

	if _, err := r.Resolve(h, reflect.TypeFor[*recorder]()); !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseResolve, Kind: bridgeerrors.KindTypeMismatch}) {
		t.Fatalf("wrong-type Resolve error = %v", err)
	}

	if !r.Release(h) {
		t.Fatal("Release returned false")
	}
	if !c.dropped {
		t.Fatal("Dropper not called")
	}
	if r.Release(h) {
		t.Fatal("second Release returned true")
	}
	if _, err := r.Resolve(h, nil); !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseResolve, Kind: bridgeerrors.KindInvalidHandle}) {
		t.Fatalf("released Resolve error = %v", err)
	}

	fresh, err := r.Create(c)
	if err != nil {
		t.Fatal(err)
	}
	if fresh == h {
		t.Fatal("handles must never be reused")
	}

	want := []EventType{EventCreated, EventReleased, EventCreated}
	if got := rec.types(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestRegistry_ForeignAndNull(t *testing.T) {
	a := NewRegistry(1)
	b := NewRegistry(2)

	h, err := a.Create(&counter{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Resolve(h, nil); !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseResolve, Kind: bridgeerrors.KindForeignHandle}) {
		t.Fatalf("foreign Resolve error = %v", err)
	}
	if v, err := a.Resolve(0, nil); v != nil || err != nil {
		t.Fatalf("null Resolve = %v, %v", v, err)
	}
	if a.Release(0) || b.Release(h) {
		t.Fatal("null or foreign Release must be a no-op")
	}
}

func TestRegistry_RejectsValuesWithoutIdentity(t *testing.T) {
	r := NewRegistry(1)
	tests := []struct {
		name string
		obj  any
	}{
		{"nil", nil},
		{"nil pointer", (*counter)(nil)},
		{"struct", counter{}},
		{"int", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Create(tt.obj); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRegistry_Weak(t *testing.T) {
	r := NewRegistry(1)
	rec := &recorder{}
	r.Subscribe(rec)

	c := &counter{label: "weak", n: 1}
	h, err := CreateWeak(r, c)
	if err != nil {
		t.Fatal(err)
	}
	if again, _ := CreateWeak(r, c); again != h {
		t.Fatal("weak registration of the same object must reuse the handle")
	}
	if v, err := r.Resolve(h, nil); err != nil || v != c {
		t.Fatalf("Resolve = %v, %v", v, err)
	}
	runtime.KeepAlive(c)

	c = nil
	deadline := time.Now().Add(5 * time.Second)
	for r.Len() > 0 && time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	if r.Len() != 0 {
		t.Fatal("weak entry not collected")
	}
	if _, err := r.Resolve(h, nil); err == nil {
		t.Fatal("collected handle must not resolve")
	}
	types := rec.types()
	if types[len(types)-1] != EventCollected {
		t.Fatalf("last event = %v, want collected", types[len(types)-1])
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry(9)
	const workers = 16
	const perWorker = 200

	var wg sync.WaitGroup
	seen := make([][]Handle, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				c := &counter{n: i}
				h, err := r.Create(c)
				if err != nil {
					t.Error(err)
					return
				}
				v, err := r.Resolve(h, nil)
				if err != nil || v != c {
					t.Errorf("Resolve(%v) = %v, %v", h, v, err)
					return
				}
				seen[w] = append(seen[w], h)
				if i%2 == 0 {
					r.Release(h)
				}
			}
		}(w)
	}
	wg.Wait()

	unique := make(map[Handle]bool)
	for _, hs := range seen {
		for _, h := range hs {
			if unique[h] {
				t.Fatalf("handle %v minted twice", h)
			}
			unique[h] = true
		}
	}
	if r.Len() != workers*perWorker/2 {
		t.Fatalf("Len = %d, want %d", r.Len(), workers*perWorker/2)
	}
}

func TestRegistry_Close(t *testing.T) {
	r := NewRegistry(1)
	c := &counter{}
	if _, err := r.Create(c); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if r.Len() != 0 || !c.dropped {
		t.Fatal("Close must release all entries")
	}
	if _, err := r.Create(&counter{}); !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseEncode, Kind: bridgeerrors.KindClosed}) {
		t.Fatalf("Create after Close error = %v", err)
	}
}

func TestRemoteAndPeer(t *testing.T) {
	var _ Holder = (*Remote)(nil)
	var _ Holder = (*Peer)(nil)

	p := &Peer{Handle: Make(4, 1), Via: 2}
	if p.Owner() != 4 {
		t.Fatalf("Owner = %d, want 4", p.Owner())
	}
	var nilRemote *Remote
	if nilRemote.BridgeHandle() != 0 {
		t.Fatal("nil Remote must map to the null handle")
	}
}
