package transcoder

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/wire"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("transcoder: cbor enc mode: %v", err))
	}
	cborEncMode = em
}

// CBOR is a Marshaller for arbitrary Go values of type T. Values travel as
// a length-prefixed canonical CBOR document; nil travels as the null
// length.
type CBOR[T any] struct{}

func (CBOR[T]) Write(out *wire.Output, v any) error {
	if v == nil {
		out.WriteNull()
		return nil
	}
	if _, ok := v.(T); !ok {
		return errors.TypeMismatch(errors.PhaseEncode, nil, fmt.Sprintf("%T", v), fmt.Sprintf("%T", *new(T)))
	}
	data, err := cborEncMode.Marshal(v)
	if err != nil {
		return errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "cbor marshal")
	}
	out.WriteLength(len(data))
	out.WriteBytes(data)
	return nil
}

func (CBOR[T]) Read(in *wire.Input) (any, error) {
	n, err := in.ReadLength()
	if err != nil {
		return nil, err
	}
	if n == wire.Null {
		return nil, nil
	}
	data, err := in.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	var v T
	if err := cbor.Unmarshal(data, &v); err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "cbor unmarshal")
	}
	return v, nil
}

// InferSize is unknown without encoding.
func (CBOR[T]) InferSize(any) int {
	return -1
}
