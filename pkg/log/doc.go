// Package log provides protocol capture for client sessions.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, wire, service).
// It is separate from operational logging (slog): protocol capture is a
// machine-readable trace of every frame, message and state change.
//
// # Basic Usage
//
//	// Console output via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Capture file
//	fl, _ := log.NewFileLogger("/var/log/iedclient/session.ilog")
//	cfg.ProtocolLogger = fl
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: raw frame bytes (FrameEvent)
//   - Wire: decoded requests, responses and reports (MessageEvent)
//   - Service: session and subscription state (StateChangeEvent)
//
// # File Format
//
// Capture files are a plain concatenation of CBOR-encoded events with the
// .ilog extension. Reader streams them back with optional filtering.
package log
