// Package stream carries bridge calls over reliable byte streams: pipes,
// sockets and the stdio of a child process.
//
// Every message is a frame:
//
//	[length u32][bytes]
//
// Requests are plain request bytes. Replies are status-framed
// (transport.Frame). One round trip owns the stream at a time.
package stream
