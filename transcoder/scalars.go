package transcoder

import (
	"reflect"
	"slices"
	"unsafe"

	"github.com/wippyai/nativebridge/plan"
	"github.com/wippyai/nativebridge/wire"
)

// scalarOps moves one primitive element kind between Go slices and the
// wire. Slices are handled through a canonical view ([]int32 for int32
// arrays, []byte for int8 arrays, ...) that shares memory with the
// caller's slice, so named element types need no copy and output
// transfers write straight into the caller's array.
type scalarOps struct {
	accepts func(reflect.Kind) bool
	view    func(rv reflect.Value) any
	alloc   func(n int) any
	length  func(s any) int
	write   func(out *wire.Output, s any, off, n int)
	read    func(in *wire.Input, s any, off, n int) error
	goType  reflect.Type
	width   int
}

func opsFor[T wire.Scalar](kinds ...reflect.Kind) *scalarOps {
	return &scalarOps{
		width:   wire.Width[T](),
		goType:  reflect.TypeFor[[]T](),
		accepts: func(k reflect.Kind) bool { return slices.Contains(kinds, k) },
		view: func(rv reflect.Value) any {
			if rv.Len() == 0 {
				return []T{}
			}
			return unsafe.Slice((*T)(rv.UnsafePointer()), rv.Len())
		},
		alloc:  func(n int) any { return make([]T, n) },
		length: func(s any) int { return len(s.([]T)) },
		write: func(out *wire.Output, s any, off, n int) {
			wire.WriteElements(out, s.([]T)[off:off+n])
		},
		read: func(in *wire.Input, s any, off, n int) error {
			return wire.ReadElements(in, s.([]T)[off:off+n])
		},
	}
}

// int8 arrays surface as []byte, the Go idiom for byte buffers; []int8 is
// accepted on input.
var scalarTable = map[plan.TypeKind]*scalarOps{
	plan.TypeBool:    opsFor[bool](reflect.Bool),
	plan.TypeInt8:    opsFor[byte](reflect.Uint8, reflect.Int8),
	plan.TypeInt16:   opsFor[int16](reflect.Int16),
	plan.TypeChar:    opsFor[uint16](reflect.Uint16),
	plan.TypeInt32:   opsFor[int32](reflect.Int32),
	plan.TypeInt64:   opsFor[int64](reflect.Int64),
	plan.TypeFloat32: opsFor[float32](reflect.Float32),
	plan.TypeFloat64: opsFor[float64](reflect.Float64),
}

// primitiveView returns the canonical view of v, nil for a nil slice, and
// false when v is not a slice of the element kind.
func primitiveView(ops *scalarOps, v any) (any, bool) {
	if v == nil {
		return nil, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || !ops.accepts(rv.Type().Elem().Kind()) {
		return nil, false
	}
	if rv.IsNil() {
		return nil, true
	}
	return ops.view(rv), true
}
