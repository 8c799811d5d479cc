package isolate

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/nativebridge/errors"
)

// DeathHandler observes the death of an isolate. It runs once, before the
// death error reaches any caller of Die, and cannot change the outcome. A
// handler must not call Die itself.
type DeathHandler func(*errors.IsolateDeathError)

// Isolate is the caller-side view of a peer: its identity, liveness and
// session bookkeeping. It does not move bytes; a transport does.
type Isolate struct {
	death    *errors.IsolateDeathError
	name     string
	handlers []DeathHandler
	handled  chan struct{} // closed once the handlers have run
	entered  atomic.Uint64
	left     atomic.Uint64
	active   atomic.Int64
	mu       sync.Mutex
	dead     atomic.Bool
	id       uint16
}

// New creates a live isolate. id is the handle tag the peer mints with.
func New(id uint16, name string) *Isolate {
	return &Isolate{id: id, name: name}
}

// ID returns the isolate tag.
func (i *Isolate) ID() uint16 {
	return i.id
}

// Name returns the isolate name.
func (i *Isolate) Name() string {
	return i.name
}

// Alive reports whether the isolate still accepts calls.
func (i *Isolate) Alive() bool {
	return !i.dead.Load()
}

// OnDeath registers a handler run when the isolate dies. If it is already
// dead the handler runs immediately.
func (i *Isolate) OnDeath(h DeathHandler) {
	i.mu.Lock()
	if i.death != nil {
		death := i.death
		i.mu.Unlock()
		runHandler(h, death)
		return
	}
	i.handlers = append(i.handlers, h)
	i.mu.Unlock()
}

// Die marks the isolate dead and runs the death handlers. Only the first
// call has an effect; every call returns the same death error, and none
// returns before the handlers have finished.
func (i *Isolate) Die(cause error) *errors.IsolateDeathError {
	i.mu.Lock()
	if i.death != nil {
		death, handled := i.death, i.handled
		i.mu.Unlock()
		<-handled
		return death
	}
	i.death = &errors.IsolateDeathError{Cause: cause, Isolate: i.name, ID: i.id}
	handled := make(chan struct{})
	i.handled = handled
	i.dead.Store(true)
	handlers := i.handlers
	i.handlers = nil
	death := i.death
	i.mu.Unlock()
	defer close(handled)

	Logger().Warn("isolate died",
		zap.String("isolate", i.name),
		zap.Uint16("id", i.id),
		zap.Error(cause))

	for _, h := range handlers {
		runHandler(h, death)
	}
	return death
}

// Death returns the death error, or nil while the isolate is alive.
func (i *Isolate) Death() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.death == nil {
		return nil
	}
	return i.death
}

func runHandler(h DeathHandler, death *errors.IsolateDeathError) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("death handler panicked", zap.Any("panic", r))
		}
	}()
	h(death)
}

// Stats is a snapshot of session counters.
type Stats struct {
	Entered uint64
	Left    uint64
	Active  int64
}

// Stats returns the session counters.
func (i *Isolate) Stats() Stats {
	return Stats{
		Entered: i.entered.Load(),
		Left:    i.left.Load(),
		Active:  i.active.Load(),
	}
}
