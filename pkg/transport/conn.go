package transport

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iedlink/iedlink-go/pkg/log"
)

// ErrConnectionClosed is returned by Send and ReadFrame after Close.
var ErrConnectionClosed = errors.New("connection closed")

// ConnConfig configures a framed connection.
type ConnConfig struct {
	// MaxMessageSize is the maximum frame payload (default: 1 MB).
	MaxMessageSize uint32

	// WriteTimeout bounds a single Send (0 = no timeout).
	WriteTimeout time.Duration

	// Logger receives transport layer frame events (optional).
	Logger log.Logger

	// ConnID identifies the connection in captured events. A random UUID
	// is used when empty.
	ConnID string
}

// Conn is a framed message connection over any net.Conn (TCP, TLS or an
// in-memory pipe). Send may be called concurrently; ReadFrame must be
// called from a single reader goroutine.
type Conn struct {
	conn   net.Conn
	framer *Framer
	connID string

	writeTimeout time.Duration

	closeCh   chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
}

// NewConn wraps an established net.Conn.
func NewConn(conn net.Conn, cfg ConnConfig) *Conn {
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	if cfg.ConnID == "" {
		cfg.ConnID = uuid.New().String()
	}

	fc := FramerConfig{
		MaxMessageSize: cfg.MaxMessageSize,
		Logger:         cfg.Logger,
		ConnID:         cfg.ConnID,
	}
	if addr := conn.RemoteAddr(); addr != nil {
		fc.RemoteAddr = addr.String()
	}
	framer := NewFramer(conn, fc)

	return &Conn{
		conn:         conn,
		framer:       framer,
		connID:       cfg.ConnID,
		writeTimeout: cfg.WriteTimeout,
		closeCh:      make(chan struct{}),
	}
}

// ConnID returns the connection identifier.
func (c *Conn) ConnID() string {
	return c.connID
}

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send writes one frame.
func (c *Conn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}

	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		defer func() { _ = c.conn.SetWriteDeadline(time.Time{}) }()
	}

	return c.framer.WriteFrame(data)
}

// ReadFrame blocks until the next frame arrives.
func (c *Conn) ReadFrame() ([]byte, error) {
	select {
	case <-c.closeCh:
		return nil, ErrConnectionClosed
	default:
	}

	data, err := c.framer.ReadFrame()
	if err != nil {
		select {
		case <-c.closeCh:
			return nil, ErrConnectionClosed
		default:
		}
		return nil, err
	}
	return data, nil
}

// Close closes the connection. Safe to call multiple times.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

// Done is closed when Close has been called.
func (c *Conn) Done() <-chan struct{} {
	return c.closeCh
}
