// Package transport defines how request and reply bytes move between
// isolates.
//
// A Transport carries one request to the peer and returns a Reply whose
// Failed flag is the success/exception discriminant. Byte-stream
// transports put the discriminant in a status byte ahead of the payload
// (Frame, Unframe):
//
//	[0][reply]      success
//	[1][envelope]   user error
//
// Any error from RoundTrip means the peer could not answer. Callers treat
// it as isolate death unless their context ended first.
//
// Implementations:
//
//	Local                  in process, with Kill for crash simulation
//	transport/stream       length-framed pipes, sockets and child processes
//	transport/grpcpeer     gRPC unary calls
//	transport/connectpeer  Connect unary calls over HTTP
//	engine                 wazero guest isolate
package transport
