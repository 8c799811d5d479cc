// Package errors provides structured error types for the bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: value path, Go/plan type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
//		Path("sum", "param[0]").
//		GoType("string").
//		PlanType("int32[]").
//		Detail("cannot encode string as int array").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidHandle(h)
//	err := errors.OutOfBounds(errors.PhaseDecode, path, 10, 5)
//
// Three error families cross a call boundary:
//
//   - Protocol errors (*Error with a protocol phase, see IsProtocol) are fatal
//     to the current call and never recovered.
//   - User errors, raised by the invoked method, travel in an envelope and are
//     rebuilt on the caller side (package envelope).
//   - *IsolateDeathError reports that the peer is gone.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
