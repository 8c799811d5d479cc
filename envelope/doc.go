// Package envelope carries user errors across the bridge.
//
// The receiver captures any error escaping a user method, including a
// recovered panic, as a Throwable and encodes it with the error marshaller
// (registered under plan.MarshallerName(plan.ErrorType, nil)). The caller
// decodes the envelope and rebuilds an equivalent error:
//
//	registered sentinel   same error value, errors.Is keeps matching
//	registered factory    the factory's error
//	*errors.Error         phase, kind, path and detail preserved
//	anything else         *ForeignError with type, message, stack and cause
//
// Envelopes never carry isolate death; that is reported by the transport.
package envelope
