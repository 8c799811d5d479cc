package handle

import "fmt"

// Handle identifies an object held by one isolate's registry. The high 16
// bits carry the tag of the minting isolate, the low 48 bits a sequence
// number that is never reused. Zero is the null reference.
type Handle uint64

const (
	seqBits = 48
	seqMask = 1<<seqBits - 1
)

// Make composes a handle from an isolate tag and a sequence number.
func Make(tag uint16, seq uint64) Handle {
	return Handle(uint64(tag)<<seqBits | seq&seqMask)
}

// Tag returns the tag of the isolate that minted h.
func (h Handle) Tag() uint16 {
	return uint16(h >> seqBits)
}

// Seq returns the sequence part of h.
func (h Handle) Seq() uint64 {
	return uint64(h) & seqMask
}

// IsNull reports whether h is the null reference.
func (h Handle) IsNull() bool {
	return h == 0
}

func (h Handle) String() string {
	return fmt.Sprintf("%d:%d", h.Tag(), h.Seq())
}

// EventType is a registry lifecycle event.
type EventType uint8

const (
	EventCreated EventType = iota
	EventReleased
	EventCollected
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventReleased:
		return "released"
	case EventCollected:
		return "collected"
	}
	return "unknown"
}

// Event describes a registry lifecycle change. Value is nil for collected
// weak entries.
type Event struct {
	Value  any
	Handle Handle
	Type   EventType
}

// Observer receives registry lifecycle events.
type Observer interface {
	OnHandleEvent(Event)
}

// Dropper is implemented by objects that want to know when the last
// handle to them is released.
type Dropper interface {
	Drop()
}

// Holder is implemented by values that stand for an object owned by
// another isolate.
type Holder interface {
	BridgeHandle() Handle
}
