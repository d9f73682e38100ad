package transport

// FrameConn is a framed, bidirectional message connection.
// Implemented by Conn.
type FrameConn interface {
	// Send writes one frame.
	Send(data []byte) error

	// ReadFrame blocks until the next frame arrives.
	ReadFrame() ([]byte, error)

	// Close closes the connection.
	Close() error
}

// FrameReadWriter provides length-prefixed frame I/O.
// Implemented by Framer.
type FrameReadWriter interface {
	// ReadFrame reads a length-prefixed frame.
	ReadFrame() ([]byte, error)

	// WriteFrame writes a length-prefixed frame.
	WriteFrame(data []byte) error
}

// Compile-time interface satisfaction checks.
var (
	_ FrameConn       = (*Conn)(nil)
	_ FrameReadWriter = (*Framer)(nil)
)
