// Package config loads bridge configuration from TOML.
//
//	name = "worker"
//
//	[wire]
//	region_size = 4096
//	max_string_size = 1048576
//	max_array_length = 1048576
//	max_out_bytes = 4194304
//
//	[estimate]
//	custom_fallback = 128
//	typed_fallback = 64
//
//	[handles]
//	isolate_tag = 2
//	peer_tag = 1
//
//	[log]
//	level = "debug"
//	encoding = "json"
//	development = false
//
//	[peer]
//	transport = "grpc"   # stdio, tcp, grpc, connect or wasm
//	address = "localhost:7070"
//	command = ["bridge", "-serve"]
//	timeout = "5s"
//	max_frame = 67108864
//	memory_limit_pages = 1024
//	wasi = false
//
// Omitted values keep their defaults.
package config
