// Package nativebridge marshals calls between isolates: separately managed
// execution domains that share no objects and exchange only byte buffers.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	nativebridge/        Root package with the in-process Pair helper
//	├── wire/            Big-endian buffer codec, pooled regions, typed values
//	├── plan/            Marshalling plans, types and method signatures
//	├── transcoder/      Plan-driven encode/decode, size estimator, marshallers
//	├── handle/          Reference handle registry
//	├── isolate/         Isolate liveness and call sessions
//	├── envelope/        Error envelopes and error reconstruction
//	├── runtime/         Endpoints (caller side) and dispatchers (receiver side)
//	├── transport/       Transport contract and in-process transport
//	│   ├── stream/      Framed pipes, sockets and child processes
//	│   ├── grpcpeer/    gRPC unary transport
//	│   └── connectpeer/ Connect transport
//	├── engine/          Native isolates on wazero
//	├── config/          TOML configuration
//	└── errors/          Structured error types
//
// # Quick Start
//
//	p, err := nativebridge.NewLocalPair(runtime.Config{}, runtime.Config{},
//	    func(rt *runtime.Runtime) (*runtime.Binding, error) {
//	        return runtime.Bind(service, impl)
//	    })
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	sum, err := p.Endpoint.Call(ctx, sumMethod, 0, []int32{1, 2, 3})
//
// # Calls
//
// A call encodes its arguments under the method's plan into a buffer sized
// by the estimator, crosses the transport, and decodes the reply. Output
// arrays are copied back into the caller's slices. Objects cross as
// handles; the owner keeps them in its registry until released.
//
// Errors are one of three kinds: a reconstructed user error raised by the
// implementation, a protocol error (*errors.Error) from the bridge itself,
// or *errors.IsolateDeathError once the peer can no longer answer.
//
// # Thread Safety
//
// Runtime, Endpoint and Dispatcher are safe for concurrent use. Each call
// owns its session and buffers.
package nativebridge
