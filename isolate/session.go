package isolate

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/wippyai/nativebridge/errors"
)

// State is a session lifecycle state.
type State uint32

const (
	StateEntered State = iota
	StateMarshalling
	StateInFlight
	StateUnmarshalling
	StateLeft
)

func (s State) String() string {
	switch s {
	case StateEntered:
		return "entered"
	case StateMarshalling:
		return "marshalling"
	case StateInFlight:
		return "in-flight"
	case StateUnmarshalling:
		return "unmarshalling"
	case StateLeft:
		return "left"
	}
	return "unknown"
}

type sessionKey struct {
	iso *Isolate
}

// Session scopes one call into an isolate. It moves forward through
// Entered, Marshalling, InFlight, Unmarshalling and Left; Leave may be
// called from any state and takes effect once.
//
// A session belongs to the goroutine that entered it. A call made while
// another session on the same isolate is in flight in the same context
// (a callback re-entering the bridge) opens a nested session.
type Session struct {
	iso    *Isolate
	parent *Session
	leave  sync.Once
	state  atomic.Uint32
	depth  int
}

// Enter opens a session on iso. The returned context carries the session
// so nested calls can find their parent. Entering a dead isolate fails
// with its death error.
func Enter(ctx context.Context, iso *Isolate) (context.Context, *Session, error) {
	if !iso.Alive() {
		return ctx, nil, iso.Death()
	}
	s := &Session{iso: iso}
	if parent, ok := ctx.Value(sessionKey{iso}).(*Session); ok && parent.State() != StateLeft {
		s.parent = parent
		s.depth = parent.depth + 1
	}
	iso.entered.Add(1)
	iso.active.Add(1)
	return context.WithValue(ctx, sessionKey{iso}, s), s, nil
}

// FromContext returns the innermost open session on iso carried by ctx.
func FromContext(ctx context.Context, iso *Isolate) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{iso}).(*Session)
	if !ok || s.State() == StateLeft {
		return nil, false
	}
	return s, true
}

// Isolate returns the isolate the session is open on.
func (s *Session) Isolate() *Isolate {
	return s.iso
}

// Parent returns the enclosing session of a nested call, or nil.
func (s *Session) Parent() *Session {
	return s.parent
}

// Depth returns the nesting depth, 0 for an outermost session.
func (s *Session) Depth() int {
	return s.depth
}

// State returns the current state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) advance(from, to State) error {
	if s.state.CompareAndSwap(uint32(from), uint32(to)) {
		return nil
	}
	return errors.New(errors.PhaseSession, errors.KindInvalidInput).
		Detail("session on %s: cannot move from %s to %s", s.iso.name, s.State(), to).
		Build()
}

// Marshal moves the session from Entered to Marshalling.
func (s *Session) Marshal() error {
	return s.advance(StateEntered, StateMarshalling)
}

// Send moves the session from Marshalling to InFlight. It fails with the
// death error when the isolate died since Enter.
func (s *Session) Send() error {
	if err := s.iso.Death(); err != nil {
		return err
	}
	return s.advance(StateMarshalling, StateInFlight)
}

// Receive moves the session from InFlight to Unmarshalling.
func (s *Session) Receive() error {
	return s.advance(StateInFlight, StateUnmarshalling)
}

// Leave closes the session. It is safe to call more than once and from any
// state; only the first call counts.
func (s *Session) Leave() {
	s.leave.Do(func() {
		s.state.Store(uint32(StateLeft))
		s.iso.active.Add(-1)
		s.iso.left.Add(1)
	})
}
