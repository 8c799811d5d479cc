package wire

import (
	"fmt"

	"github.com/wippyai/nativebridge/errors"
)

// Tags for self-describing values.
const (
	TagNull    byte = 0
	TagBool    byte = 1
	TagInt8    byte = 2
	TagInt16   byte = 3
	TagChar    byte = 4
	TagInt32   byte = 5
	TagInt64   byte = 6
	TagFloat32 byte = 7
	TagFloat64 byte = 8
	TagString  byte = 9
	TagArray   byte = 10
)

// MaxTypedDepth bounds the nesting of typed arrays.
const MaxTypedDepth = 64

// IsTypedValue reports whether v can be written by WriteTypedValue.
func IsTypedValue(v any) bool {
	switch v := v.(type) {
	case nil, bool, int8, int16, uint16, int32, int64, float32, float64, string:
		return true
	case []any:
		for _, e := range v {
			if !IsTypedValue(e) {
				return false
			}
		}
		return true
	}
	return false
}

// WriteTypedValue writes a tag byte followed by the value.
func (o *Output) WriteTypedValue(v any) error {
	return o.writeTypedValue(v, 0)
}

func (o *Output) writeTypedValue(v any, depth int) error {
	switch v := v.(type) {
	case nil:
		o.WriteUint8(TagNull)
	case bool:
		o.WriteUint8(TagBool)
		o.WriteBool(v)
	case int8:
		o.WriteUint8(TagInt8)
		o.WriteInt8(v)
	case int16:
		o.WriteUint8(TagInt16)
		o.WriteInt16(v)
	case uint16:
		o.WriteUint8(TagChar)
		o.WriteChar(v)
	case int32:
		o.WriteUint8(TagInt32)
		o.WriteInt32(v)
	case int64:
		o.WriteUint8(TagInt64)
		o.WriteInt64(v)
	case float32:
		o.WriteUint8(TagFloat32)
		o.WriteFloat32(v)
	case float64:
		o.WriteUint8(TagFloat64)
		o.WriteFloat64(v)
	case string:
		o.WriteUint8(TagString)
		o.WriteString(v)
	case []any:
		if depth == MaxTypedDepth {
			return errors.New(errors.PhaseEncode, errors.KindOverflow).
				Detail("typed arrays nested deeper than %d", MaxTypedDepth).
				Build()
		}
		o.WriteUint8(TagArray)
		o.WriteLength(len(v))
		for _, e := range v {
			if err := o.writeTypedValue(e, depth+1); err != nil {
				return err
			}
		}
	default:
		return errors.New(errors.PhaseEncode, errors.KindUnsupported).
			GoType(fmt.Sprintf("%T", v)).
			Detail("not a typed value").
			Build()
	}
	return nil
}

// ReadTypedValue reads a value written by WriteTypedValue.
func (in *Input) ReadTypedValue() (any, error) {
	return in.readTypedValue(0)
}

func (in *Input) readTypedValue(depth int) (any, error) {
	tag, err := in.ReadUint8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case TagNull:
		return nil, nil
	case TagBool:
		return in.ReadBool()
	case TagInt8:
		return in.ReadInt8()
	case TagInt16:
		return in.ReadInt16()
	case TagChar:
		return in.ReadChar()
	case TagInt32:
		return in.ReadInt32()
	case TagInt64:
		return in.ReadInt64()
	case TagFloat32:
		return in.ReadFloat32()
	case TagFloat64:
		return in.ReadFloat64()
	case TagString:
		return in.ReadString()
	case TagArray:
		n, err := in.ReadLength()
		if err != nil {
			return nil, err
		}
		if n == Null {
			return []any(nil), nil
		}
		if depth == MaxTypedDepth {
			return nil, errors.New(errors.PhaseDecode, errors.KindOverflow).
				Detail("typed arrays nested deeper than %d", MaxTypedDepth).
				Build()
		}
		// every element carries at least its tag byte
		if n > in.Remaining() {
			return nil, errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
				Detail("array of %d values exceeds %d remaining bytes", n, in.Remaining()).
				Value(n).
				Build()
		}
		out := make([]any, n)
		for i := range out {
			if out[i], err = in.readTypedValue(depth + 1); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
		Detail("unknown value tag %d", tag).
		Value(tag).
		Build()
}
