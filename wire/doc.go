// Package wire implements the byte encoding shared by both sides of a call.
//
// Output appends values, Input consumes them at the same encoding:
//
//	Value           Encoding
//	──────────────────────────────────────────────────
//	bool            1 byte (0 or 1)
//	int8            1 byte
//	int16, char     2 bytes, big-endian
//	int32, float32  4 bytes, big-endian
//	int64, float64  8 bytes, big-endian
//	string          int32 byte length + UTF-8 bytes
//	primitive array int32 element count + raw elements
//	nil string/array int32 -1
//
// # Fixed Regions
//
// Callers size a call with an estimate and take an Output from a Pool. When
// the estimate fits the pool's region size the Output writes into a reused
// region and allocates nothing. Estimates are hints: a write that overflows
// the region moves the output to the heap (Reallocated reports it), so an
// underestimate costs a copy and never corrupts data.
//
//	out := pool.Acquire(estimate)
//	defer out.Release()
//	out.WriteUint32(methodID)
//	wire.WriteSlice(out, []int32{1, 2, 3})
//
// # Decoding
//
// Input never reads past its buffer. Every overrun, invalid length, invalid
// UTF-8 sequence or unknown tag is reported as a decode-phase *errors.Error.
//
// # Thread Safety
//
// Output and Input are not safe for concurrent use. Pool is.
package wire
