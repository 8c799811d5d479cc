// Package isolate tracks the liveness of peer isolates and scopes each
// call in a Session.
//
// A caller enters a session before encoding and leaves it exactly once on
// every exit path:
//
//	ctx, s, err := isolate.Enter(ctx, iso)
//	if err != nil {
//	    return err // isolate already dead
//	}
//	defer s.Leave()
//	s.Marshal()
//	s.Send()
//	s.Receive()
//
// When a transport reports that the peer is gone, the caller calls Die.
// The first call records the death, runs the registered DeathHandlers and
// makes every later Enter or Send fail with the same
// *errors.IsolateDeathError. Death is terminal.
package isolate
