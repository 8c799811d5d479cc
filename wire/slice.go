package wire

import (
	"reflect"
	"unsafe"

	"github.com/wippyai/nativebridge/errors"
)

// Scalar is the set of element types encoded as raw primitive arrays.
type Scalar interface {
	~bool | ~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~int64 | ~float32 | ~float64
}

// Width returns the encoded size of one element of T.
func Width[T Scalar]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// WriteSlice writes a length-prefixed primitive array. A nil slice is
// written as the Null sentinel; an empty non-nil slice as length 0.
func WriteSlice[T Scalar](o *Output, s []T) {
	if s == nil {
		o.WriteNull()
		return
	}
	o.WriteLength(len(s))
	WriteElements(o, s)
}

// WriteElements writes the elements of s without a length prefix.
func WriteElements[T Scalar](o *Output, s []T) {
	if len(s) == 0 {
		return
	}
	p := unsafe.Pointer(unsafe.SliceData(s))
	n := len(s)
	o.grow(n * Width[T]())
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Bool:
		for _, v := range unsafe.Slice((*bool)(p), n) {
			o.WriteBool(v)
		}
	case reflect.Int8, reflect.Uint8:
		o.WriteBytes(unsafe.Slice((*byte)(p), n))
	case reflect.Int16, reflect.Uint16:
		for _, v := range unsafe.Slice((*uint16)(p), n) {
			o.WriteChar(v)
		}
	case reflect.Int32:
		for _, v := range unsafe.Slice((*uint32)(p), n) {
			o.WriteUint32(v)
		}
	case reflect.Float32:
		for _, v := range unsafe.Slice((*float32)(p), n) {
			o.WriteFloat32(v)
		}
	case reflect.Int64:
		for _, v := range unsafe.Slice((*uint64)(p), n) {
			o.WriteUint64(v)
		}
	case reflect.Float64:
		for _, v := range unsafe.Slice((*float64)(p), n) {
			o.WriteFloat64(v)
		}
	}
}

// ReadSlice reads a length-prefixed primitive array. The Null sentinel
// decodes as a nil slice.
func ReadSlice[T Scalar](in *Input) ([]T, error) {
	n, err := in.ReadLength()
	if err != nil {
		return nil, err
	}
	if n == Null {
		return nil, nil
	}
	if err := in.need(n * Width[T]()); err != nil {
		return nil, err
	}
	out := make([]T, n)
	if err := ReadElements(in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadElements fills dst with len(dst) elements.
func ReadElements[T Scalar](in *Input, dst []T) error {
	if len(dst) == 0 {
		return nil
	}
	n := len(dst)
	if err := in.need(n * Width[T]()); err != nil {
		return err
	}
	p := unsafe.Pointer(unsafe.SliceData(dst))
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Bool:
		d := unsafe.Slice((*bool)(p), n)
		for i := range d {
			v, err := in.ReadBool()
			if err != nil {
				return err
			}
			d[i] = v
		}
	case reflect.Int8, reflect.Uint8:
		copy(unsafe.Slice((*byte)(p), n), in.buf[in.pos:in.pos+n])
		in.pos += n
	case reflect.Int16, reflect.Uint16:
		d := unsafe.Slice((*uint16)(p), n)
		for i := range d {
			d[i], _ = in.ReadChar()
		}
	case reflect.Int32:
		d := unsafe.Slice((*uint32)(p), n)
		for i := range d {
			d[i], _ = in.ReadUint32()
		}
	case reflect.Float32:
		d := unsafe.Slice((*float32)(p), n)
		for i := range d {
			d[i], _ = in.ReadFloat32()
		}
	case reflect.Int64:
		d := unsafe.Slice((*uint64)(p), n)
		for i := range d {
			d[i], _ = in.ReadUint64()
		}
	case reflect.Float64:
		d := unsafe.Slice((*float64)(p), n)
		for i := range d {
			d[i], _ = in.ReadFloat64()
		}
	default:
		return errors.Unsupported(errors.PhaseDecode, "element type "+reflect.TypeFor[T]().String())
	}
	return nil
}
