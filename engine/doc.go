// Package engine hosts native isolates on wazero.
//
// A native isolate is a guest module instance. Request and reply buffers
// live in its linear memory, so a call crosses the boundary the way a
// native call would:
//
//	host                                guest
//	────                                ─────
//	write request at ptr     ───────►   call(ptr, len) i64
//	                                        │
//	read reply at offset     ◄───────   packed reply
//
// The packed i64 carries the reply offset in bits 32-62, its length in
// bits 0-31 and the failure flag in bit 63: when set, the reply holds an
// error envelope.
//
// # Guests
//
// LoadModule accepts any guest exporting memory and call. A guest that
// exports cabi_realloc or alloc chooses where requests are placed;
// otherwise they are written at offset 0 and memory grows as needed.
//
// The built-in trampoline guest (Spawn) forwards every call to the
// nativebridge.dispatch host import, which runs the transport.Handler the
// instance was created with against the guest's memory. It lets a Go
// service run as a sandboxed isolate with the same lifecycle as a native
// one.
//
// # Death
//
// A trap, a host dispatch failure or Kill closes the instance. The round
// trip in flight fails and every later one returns transport.ErrPeerGone.
// Engines run with close-on-context-done: a canceled context interrupts
// the guest and is reported as a cancellation.
package engine
