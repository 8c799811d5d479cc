// Package transcoder encodes bridged calls according to their marshalling
// plans.
//
// # Overview
//
//	┌──────────────────────────────────────────────────────────────┐
//	│ Go args ←→ [Codec + plan.Method] ←→ wire.Output / wire.Input │
//	└──────────────────────────────────────────────────────────────┘
//
// A Codec knows the local handle registry (to register references the
// caller owns and to resolve references the peer hands back), the
// marshaller registry for custom plans, Go type bindings for object type
// names and the dispatch factories that build proxies.
//
// # Requests and Replies
//
//	request  [method id u32][receiver u64?][arg]...
//	reply    [result][present u8][offset][count][elements]...
//
// Value plans over primitive arrays with an output transfer copy the
// receiver's content back into the caller's slice in place, restricted to
// the transfer's range. Slices of named element types (type code int32)
// are read and written through a canonical view without copying.
//
// # Decoded Types
//
//	Plan type         Go value
//	─────────────────────────────────────
//	bool ... float64  bool, int8, int16, uint16, int32, int64, float32, float64
//	string            string, or nil for null
//	int8[]            []byte
//	other scalar[]    []bool, []int16, []uint16, []int32, []int64, ...
//	T[][]             [][]T (null rows are nil)
//	object by value   typed value (nil, scalars, string, []any)
//	reference         bound Go type, *handle.Remote, *handle.Peer or proxy
//
// # Size Estimation
//
// Estimator predicts request and reply sizes from the plans and the live
// argument values so callers can take a pooled fixed region. Custom values
// contribute their marshaller's InferSize, or nothing when it is negative.
//
// # CBOR Marshaller
//
// CBOR[T] serves custom plans for plain Go structs with canonical CBOR:
//
//	name, _ := marshallers.Register(plan.Object("geo.Point"), transcoder.CBOR[Point]{})
package transcoder
