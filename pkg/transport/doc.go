// Package transport provides framed message connections to devices.
//
// The transport layer handles:
//   - TCP connections, optionally wrapped in TLS
//   - Length-prefixed message framing
//   - Protocol capture of raw frames
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      CBOR Messages             │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│     TLS (optional)             │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// Conn wraps any net.Conn, so the same framing runs over net.Pipe in tests.
// Client dials devices; Server accepts connections for simulators.
package transport
