// Package coerce converts loosely typed Go numbers to the fixed-width
// scalars of the wire format. Named types (type code int32) are accepted
// by kind.
package coerce

import (
	"math"
	"reflect"
)

// Int converts value to a signed integer that fits in bits.
func Int(value any, bits int) (int64, bool) {
	lo := int64(-1) << (bits - 1)
	hi := int64(1)<<(bits-1) - 1
	if bits == 64 {
		lo, hi = math.MinInt64, math.MaxInt64
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		x := v.Int()
		if x >= lo && x <= hi {
			return x, true
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := v.Uint()
		if u <= uint64(hi) {
			return int64(u), true
		}
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		// float64(hi) rounds up to 2^(bits-1) at 64 bits; -lo is exact
		if f >= float64(lo) && f < -float64(lo) && f == math.Trunc(f) {
			return int64(f), true
		}
	}
	return 0, false
}

// Float converts any numeric value to float64.
func Float(value any) (float64, bool) {
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	}
	return 0, false
}

// Char converts a rune or code unit to a 16-bit code unit.
func Char(value any) (uint16, bool) {
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		x := v.Int()
		if x >= 0 && x <= math.MaxUint16 {
			return uint16(x), true
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := v.Uint()
		if u <= math.MaxUint16 {
			return uint16(u), true
		}
	}
	return 0, false
}

// Bool accepts bool and named bool types.
func Bool(value any) (bool, bool) {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Bool {
		return v.Bool(), true
	}
	return false, false
}

// TypeName returns "nil" for nil values, avoiding reflect.TypeOf(nil) panic.
func TypeName(value any) string {
	if value == nil {
		return "nil"
	}
	return reflect.TypeOf(value).String()
}
