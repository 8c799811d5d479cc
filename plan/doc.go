// Package plan describes how values cross the isolate boundary.
//
// A Plan is computed once per value site of a bridged method (each
// parameter and the result) and is read by both the encoder and the size
// estimator. There are four kinds:
//
//	Kind            Wire form
//	──────────────────────────────────────────────────────────────
//	value           scalars inline, strings and arrays length-prefixed
//	reference       8-byte handle into one side's registry
//	peer-reference  8-byte handle wrapped in an opaque Peer
//	custom          whatever the named Marshaller writes
//
// Value plans over primitive arrays may carry In and Out transfers that
// restrict the copied range to an offset and length taken from other int32
// parameters, or trim the output to the method's int32 result.
//
// Methods group parameter plans with a result plan and flags, and a
// Service indexes methods by their wire id:
//
//	sum := plan.MustMethod(1, "sum",
//	    []plan.Param{{Name: "values", Plan: plan.Value(plan.ArrayOf(plan.Int32))}},
//	    plan.Value(plan.Int32))
//	svc, err := plan.NewService("calc", sum)
//
// Plans and services are immutable and safe for concurrent use.
package plan
