package engine

// trampoline is a guest that forwards every call to the host dispatcher:
//
//	(module
//	  (import "nativebridge" "dispatch" (func $dispatch (param i32 i32) (result i64)))
//	  (memory (export "memory") 1)
//	  (func (export "call") (param i32 i32) (result i64)
//	    local.get 0
//	    local.get 1
//	    call $dispatch))
var trampoline = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type: (i32 i32) -> i64
	0x01, 0x07, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7e,
	// import nativebridge.dispatch
	0x02, 0x19, 0x01,
	0x0c, 'n', 'a', 't', 'i', 'v', 'e', 'b', 'r', 'i', 'd', 'g', 'e',
	0x08, 'd', 'i', 's', 'p', 'a', 't', 'c', 'h',
	0x00, 0x00,
	// func
	0x03, 0x02, 0x01, 0x00,
	// memory 1
	0x05, 0x03, 0x01, 0x00, 0x01,
	// export memory, call
	0x07, 0x11, 0x02,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x04, 'c', 'a', 'l', 'l', 0x00, 0x01,
	// code
	0x0a, 0x0a, 0x01, 0x08, 0x00, 0x20, 0x00, 0x20, 0x01, 0x10, 0x00, 0x0b,
}
