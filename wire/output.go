package wire

import (
	"encoding/binary"
	"math"
)

// Null is the length sentinel for nil strings and arrays.
const Null = -1

// Output appends big-endian encoded values to a byte buffer.
//
// An Output is either backed by a fixed region (NewFixedOutput, Pool.Acquire)
// or by a heap buffer (NewOutput). A write that does not fit a fixed region
// moves the contents to the heap and marks the output as reallocated; it
// never fails and never truncates.
type Output struct {
	buf         []byte
	pool        *Pool
	region      *[]byte
	fixed       bool
	reallocated bool
}

// NewOutput creates a heap-backed output with the given initial capacity.
func NewOutput(capacity int) *Output {
	if capacity < 0 {
		capacity = 0
	}
	return &Output{buf: make([]byte, 0, capacity)}
}

// NewFixedOutput creates an output writing into region. The region is used
// as-is until it is full.
func NewFixedOutput(region []byte) *Output {
	return &Output{buf: region[:0], fixed: true}
}

// Bytes returns the written bytes. For a fixed output the slice aliases the
// region and is only valid until Release.
func (o *Output) Bytes() []byte {
	return o.buf
}

// Len returns the number of bytes written.
func (o *Output) Len() int {
	return len(o.buf)
}

// Position returns the offset of the next write.
func (o *Output) Position() int {
	return len(o.buf)
}

// Fixed reports whether the output still writes into its fixed region.
func (o *Output) Fixed() bool {
	return o.fixed
}

// Reallocated reports whether a write overflowed the fixed region and the
// output moved to the heap.
func (o *Output) Reallocated() bool {
	return o.reallocated
}

// Reset discards written bytes, keeping the current backing storage.
func (o *Output) Reset() {
	o.buf = o.buf[:0]
}

// Release returns a pooled region. The output and any slice obtained from
// Bytes must not be used afterwards.
func (o *Output) Release() {
	if o.pool != nil && o.region != nil {
		o.pool.put(o.region)
	}
	o.pool = nil
	o.region = nil
	o.buf = nil
	o.fixed = false
}

func (o *Output) grow(n int) {
	if len(o.buf)+n <= cap(o.buf) {
		return
	}
	if o.fixed {
		o.fixed = false
		o.reallocated = true
	}
	next := 2 * cap(o.buf)
	if need := len(o.buf) + n; next < need {
		next = need
	}
	buf := make([]byte, len(o.buf), next)
	copy(buf, o.buf)
	o.buf = buf
}

// WriteBool writes a boolean as one byte (0 or 1).
func (o *Output) WriteBool(v bool) {
	var b byte
	if v {
		b = 1
	}
	o.WriteUint8(b)
}

// WriteUint8 writes one byte.
func (o *Output) WriteUint8(v uint8) {
	o.grow(1)
	o.buf = append(o.buf, v)
}

// WriteInt8 writes a signed byte.
func (o *Output) WriteInt8(v int8) {
	o.WriteUint8(uint8(v))
}

// WriteInt16 writes a 16-bit signed integer.
func (o *Output) WriteInt16(v int16) {
	o.grow(2)
	o.buf = binary.BigEndian.AppendUint16(o.buf, uint16(v))
}

// WriteChar writes a 16-bit code unit.
func (o *Output) WriteChar(v uint16) {
	o.grow(2)
	o.buf = binary.BigEndian.AppendUint16(o.buf, v)
}

// WriteInt32 writes a 32-bit signed integer.
func (o *Output) WriteInt32(v int32) {
	o.grow(4)
	o.buf = binary.BigEndian.AppendUint32(o.buf, uint32(v))
}

// WriteUint32 writes a 32-bit unsigned integer.
func (o *Output) WriteUint32(v uint32) {
	o.grow(4)
	o.buf = binary.BigEndian.AppendUint32(o.buf, v)
}

// WriteInt64 writes a 64-bit signed integer.
func (o *Output) WriteInt64(v int64) {
	o.grow(8)
	o.buf = binary.BigEndian.AppendUint64(o.buf, uint64(v))
}

// WriteUint64 writes a 64-bit unsigned integer.
func (o *Output) WriteUint64(v uint64) {
	o.grow(8)
	o.buf = binary.BigEndian.AppendUint64(o.buf, v)
}

// WriteFloat32 writes the IEEE 754 bits of v.
func (o *Output) WriteFloat32(v float32) {
	o.WriteUint32(math.Float32bits(v))
}

// WriteFloat64 writes the IEEE 754 bits of v.
func (o *Output) WriteFloat64(v float64) {
	o.WriteUint64(math.Float64bits(v))
}

// WriteBytes writes raw bytes without a length prefix.
func (o *Output) WriteBytes(b []byte) {
	o.grow(len(b))
	o.buf = append(o.buf, b...)
}

// WriteLength writes an element count or the Null sentinel.
func (o *Output) WriteLength(n int) {
	o.WriteInt32(int32(n))
}

// WriteNull writes the Null length sentinel.
func (o *Output) WriteNull() {
	o.WriteInt32(Null)
}

// WriteString writes a length-prefixed UTF-8 string.
func (o *Output) WriteString(s string) {
	o.WriteInt32(int32(len(s)))
	o.grow(len(s))
	o.buf = append(o.buf, s...)
}

// WriteNullableString writes s, or the Null sentinel when s is nil.
func (o *Output) WriteNullableString(s *string) {
	if s == nil {
		o.WriteNull()
		return
	}
	o.WriteString(*s)
}

// PatchInt32 overwrites four bytes at pos, used to back-fill counts.
func (o *Output) PatchInt32(pos int, v int32) {
	binary.BigEndian.PutUint32(o.buf[pos:pos+4], uint32(v))
}
