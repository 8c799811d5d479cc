// Package grpcpeer carries bridge calls as unary gRPC calls.
//
// The service is declared by hand over the well-known BytesValue message:
//
//	service nativebridge.v1.Peer {
//	  rpc Call(google.protobuf.BytesValue) returns (google.protobuf.BytesValue);
//	}
//
// Requests travel as-is; replies are status-framed (transport.Frame).
package grpcpeer
