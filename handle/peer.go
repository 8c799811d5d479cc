package handle

import "fmt"

// Remote stands for an object owned by the isolate identified by Isolate.
// It is what a receiver gets for a reference the sender registered on its
// own side. Passing a Remote back to its owner resolves to the original
// object there.
type Remote struct {
	Handle  Handle
	Isolate uint16
}

func (r *Remote) BridgeHandle() Handle {
	if r == nil {
		return 0
	}
	return r.Handle
}

func (r *Remote) String() string {
	return fmt.Sprintf("remote(%s@%d)", r.Handle, r.Isolate)
}

// Peer wraps a raw handle received through a peer-reference plan. The
// receiver never dereferences it; it can only be passed on. Via is the
// isolate it was received from, Owner the isolate that minted it.
type Peer struct {
	Handle Handle
	Via    uint16
}

func (p *Peer) BridgeHandle() Handle {
	if p == nil {
		return 0
	}
	return p.Handle
}

// Owner returns the tag of the isolate holding the referenced object.
func (p *Peer) Owner() uint16 {
	return p.Handle.Tag()
}

func (p *Peer) String() string {
	return fmt.Sprintf("peer(%s via %d)", p.Handle, p.Via)
}
