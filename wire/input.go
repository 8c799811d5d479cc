package wire

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/wippyai/nativebridge/errors"
)

// Safety limits applied to declared lengths while decoding.
const (
	DefaultMaxStringSize  = 1 << 26 // 64 MB
	DefaultMaxArrayLength = 1 << 24 // 16M elements
	DefaultMaxOutBytes    = 1 << 22 // 4 MB
)

// Limits bounds the lengths an Input accepts.
type Limits struct {
	MaxStringSize  int
	MaxArrayLength int
	// MaxOutBytes bounds arrays a receiver allocates from a declared
	// length alone, with no elements on the wire.
	MaxOutBytes int
}

// DefaultLimits returns the package default limits.
func DefaultLimits() Limits {
	return Limits{
		MaxStringSize:  DefaultMaxStringSize,
		MaxArrayLength: DefaultMaxArrayLength,
		MaxOutBytes:    DefaultMaxOutBytes,
	}
}

// Input reads big-endian encoded values from a byte buffer.
// Reading past the end is a protocol error, never a silent truncation.
type Input struct {
	buf    []byte
	pos    int
	limits Limits
}

// NewInput creates an input over buf with default limits.
func NewInput(buf []byte) *Input {
	return &Input{buf: buf, limits: DefaultLimits()}
}

// WithLimits replaces the decode limits and returns the input.
func (in *Input) WithLimits(l Limits) *Input {
	if l.MaxStringSize > 0 {
		in.limits.MaxStringSize = l.MaxStringSize
	}
	if l.MaxArrayLength > 0 {
		in.limits.MaxArrayLength = l.MaxArrayLength
	}
	if l.MaxOutBytes > 0 {
		in.limits.MaxOutBytes = l.MaxOutBytes
	}
	return in
}

// Position returns the offset of the next read.
func (in *Input) Position() int {
	return in.pos
}

// Remaining returns the number of unread bytes.
func (in *Input) Remaining() int {
	return len(in.buf) - in.pos
}

// Limits returns the active decode limits.
func (in *Input) Limits() Limits {
	return in.limits
}

func (in *Input) need(n int) error {
	if n < 0 || in.pos+n > len(in.buf) {
		return errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
			Detail("read of %d bytes at offset %d past end of buffer (length %d)", n, in.pos, len(in.buf)).
			Value(in.pos + n).
			Build()
	}
	return nil
}

// Skip advances past n bytes.
func (in *Input) Skip(n int) error {
	if err := in.need(n); err != nil {
		return err
	}
	in.pos += n
	return nil
}

// ReadUint8 reads one byte.
func (in *Input) ReadUint8() (uint8, error) {
	if err := in.need(1); err != nil {
		return 0, err
	}
	b := in.buf[in.pos]
	in.pos++
	return b, nil
}

// ReadInt8 reads a signed byte.
func (in *Input) ReadInt8() (int8, error) {
	b, err := in.ReadUint8()
	return int8(b), err
}

// ReadBool reads a boolean. Any byte other than 0 or 1 is invalid.
func (in *Input) ReadBool() (bool, error) {
	b, err := in.ReadUint8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, errors.InvalidData(errors.PhaseDecode, nil, "boolean byte out of range")
}

// ReadInt16 reads a 16-bit signed integer.
func (in *Input) ReadInt16() (int16, error) {
	v, err := in.ReadChar()
	return int16(v), err
}

// ReadChar reads a 16-bit code unit.
func (in *Input) ReadChar() (uint16, error) {
	if err := in.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(in.buf[in.pos:])
	in.pos += 2
	return v, nil
}

// ReadInt32 reads a 32-bit signed integer.
func (in *Input) ReadInt32() (int32, error) {
	v, err := in.ReadUint32()
	return int32(v), err
}

// ReadUint32 reads a 32-bit unsigned integer.
func (in *Input) ReadUint32() (uint32, error) {
	if err := in.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(in.buf[in.pos:])
	in.pos += 4
	return v, nil
}

// ReadInt64 reads a 64-bit signed integer.
func (in *Input) ReadInt64() (int64, error) {
	v, err := in.ReadUint64()
	return int64(v), err
}

// ReadUint64 reads a 64-bit unsigned integer.
func (in *Input) ReadUint64() (uint64, error) {
	if err := in.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(in.buf[in.pos:])
	in.pos += 8
	return v, nil
}

// ReadFloat32 reads an IEEE 754 single.
func (in *Input) ReadFloat32() (float32, error) {
	v, err := in.ReadUint32()
	return math.Float32frombits(v), err
}

// ReadFloat64 reads an IEEE 754 double.
func (in *Input) ReadFloat64() (float64, error) {
	v, err := in.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadBytes reads exactly n raw bytes into a new slice.
func (in *Input) ReadBytes(n int) ([]byte, error) {
	if err := in.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, in.buf[in.pos:in.pos+n])
	in.pos += n
	return out, nil
}

// ReadLength reads an element count. It returns Null for the nil sentinel
// and rejects other negative values and counts above the array limit.
func (in *Input) ReadLength() (int, error) {
	n, err := in.ReadInt32()
	if err != nil {
		return 0, err
	}
	if n == Null {
		return Null, nil
	}
	if n < 0 {
		return 0, errors.InvalidData(errors.PhaseDecode, nil, "negative length")
	}
	if int(n) > in.limits.MaxArrayLength {
		return 0, errors.New(errors.PhaseDecode, errors.KindOverflow).
			Detail("length %d exceeds limit %d", n, in.limits.MaxArrayLength).
			Value(n).
			Build()
	}
	return int(n), nil
}

// ReadString reads a length-prefixed UTF-8 string. A null string decodes
// as the empty string; use ReadNullableString to tell them apart.
func (in *Input) ReadString() (string, error) {
	s, err := in.ReadNullableString()
	if err != nil || s == nil {
		return "", err
	}
	return *s, nil
}

// ReadNullableString reads a string, returning nil for the Null sentinel.
func (in *Input) ReadNullableString() (*string, error) {
	n, err := in.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n == Null {
		return nil, nil
	}
	if n < 0 {
		return nil, errors.InvalidData(errors.PhaseDecode, nil, "negative string length")
	}
	if int(n) > in.limits.MaxStringSize {
		return nil, errors.New(errors.PhaseDecode, errors.KindOverflow).
			Detail("string size %d exceeds limit %d", n, in.limits.MaxStringSize).
			Value(n).
			Build()
	}
	if err := in.need(int(n)); err != nil {
		return nil, err
	}
	data := in.buf[in.pos : in.pos+int(n)]
	if !utf8.Valid(data) {
		return nil, errors.InvalidUTF8(errors.PhaseDecode, nil, data)
	}
	s := string(data)
	in.pos += int(n)
	return &s, nil
}
