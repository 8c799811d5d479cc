// Package connectpeer carries bridge calls over Connect, so a peer can be
// reached with the Connect, gRPC or gRPC-Web protocols over plain HTTP.
// It serves the same nativebridge.v1.Peer service as grpcpeer.
package connectpeer
