// Package runtime runs bridged calls between isolates.
//
// # Quick Start
//
//	rt, err := runtime.New(runtime.Config{Name: "host", Tag: 1})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	// Call a peer
//	peer := isolate.New(2, "worker")
//	ep := rt.Connect(peer, tr)
//	sum, err := ep.Call(ctx, sumMethod, 0, []int32{1, 2, 3})
//
//	// Serve a peer
//	b, err := runtime.Bind(service, impl)
//	handler := rt.Dispatcher(2, b)
//
// # Calls
//
// Endpoint.Call runs one call inside an isolate session:
//
//	cache lookup (idempotent methods only)
//	Enter → estimate → encode into a pooled region → RoundTrip
//	      → decode reply or rebuild error → Leave
//
// Leave runs exactly once whatever the outcome. A failed round trip kills
// the isolate, runs its death handlers and returns the death error; later
// calls fail fast without touching the transport. A round trip abandoned
// because the context ended returns a canceled transport error and leaves
// the isolate alive.
//
// # Binding
//
// Bind maps plan methods to Go methods by name. Kebab-case plan names
// match PascalCase Go names (new-counter → NewCounter). Methods with a
// receiver run on the object the receiver handle resolves to; methods
// declared with custom dispatch are handed to the receiver's Invoker.
// Panics in implementations are recovered and reach the caller as errors.
//
// # Thread Safety
//
// Runtime, Endpoint and Dispatcher are safe for concurrent use. Each call
// owns its session and buffers.
package runtime
