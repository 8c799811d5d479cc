// Package handle maps opaque 64-bit handles to objects owned by an isolate.
//
// A reference that crosses the boundary is never a raw address: the owner
// registers the object and sends its Handle. The peer sees a Remote (or a
// Peer for peer-reference plans) and can only pass it back.
//
// Handle layout:
//
//	63            48 47                                   0
//	┌───────────────┬──────────────────────────────────────┐
//	│  isolate tag  │         sequence (never reused)      │
//	└───────────────┴──────────────────────────────────────┘
//
// A handle minted by a different registry fails resolution with a
// foreign-handle error instead of aliasing a local object. Released and
// collected handles fail with invalid-handle.
//
// Entries are strong (Create) or weak (CreateWeak). A weak entry does not
// keep its object alive; after collection the entry is dropped and the
// EventCollected observer event fires.
//
// # Thread Safety
//
// Registry is safe for concurrent use. Observers are called synchronously
// outside the registry lock.
package handle
