package engine

import "github.com/wippyai/nativebridge/transport"

const (
	// HostModule is the import module guests link the dispatcher from.
	HostModule = "nativebridge"
	// DispatchImport is dispatch(ptr, len i32) i64.
	DispatchImport = "dispatch"

	// CallExport is call(ptr, len i32) i64, the guest entry point.
	CallExport   = "call"
	MemoryExport = "memory"

	CabiRealloc = "cabi_realloc"
	simpleAlloc = "alloc"

	// MaxMemoryPages keeps every guest offset below bit 31 so it fits the
	// packed reply.
	MaxMemoryPages = 32768

	pageSize   = 65536
	failedBit  = uint64(1) << 63
	offsetMask = uint64(1)<<31 - 1
)

// Pack encodes a reply located at ptr into the i64 a guest returns: bit 63
// is the failure flag, bits 32-62 the offset and bits 0-31 the length.
func Pack(ptr, n uint32, failed bool) uint64 {
	v := uint64(ptr)&offsetMask<<32 | uint64(n)
	if failed {
		v |= failedBit
	}
	return v
}

// Unpack splits a packed reply.
func Unpack(v uint64) (ptr, n uint32, failed bool) {
	return uint32(v >> 32 & offsetMask), uint32(v), v&failedBit != 0
}

func packReply(ptr uint32, r transport.Reply) uint64 {
	return Pack(ptr, uint32(len(r.Payload)), r.Failed)
}

func align8(n uint32) uint32 {
	return (n + 7) &^ 7
}
