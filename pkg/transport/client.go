package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/iedlink/iedlink-go/pkg/log"
)

// ClientConfig configures the dialer.
type ClientConfig struct {
	// TLSConfig enables TLS when set.
	TLSConfig *TLSConfig

	// MaxMessageSize is the maximum message size (default: 1 MB).
	MaxMessageSize uint32

	// ConnectTimeout is the connection timeout (default: 10s). A deadline
	// on the dial context takes precedence.
	ConnectTimeout time.Duration

	// WriteTimeout bounds a single frame write (0 = no timeout).
	WriteTimeout time.Duration

	// Logger for protocol capture (optional).
	Logger log.Logger
}

// Client dials framed connections to devices.
type Client struct {
	config  ClientConfig
	tlsConf *tls.Config
}

// NewClient creates a new dialer.
func NewClient(config ClientConfig) (*Client, error) {
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}

	c := &Client{config: config}
	if config.TLSConfig != nil {
		tlsConf, err := NewClientTLSConfig(config.TLSConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		c.tlsConf = tlsConf
	}
	return c, nil
}

// Connect establishes a connection to the specified address. Dial errors
// are wrapped with %w so callers can inspect the underlying net.Error.
func (c *Client) Connect(ctx context.Context, address string, connID string) (*Conn, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	if c.tlsConf != nil {
		tlsConf := c.tlsConf.Clone()
		if tlsConf.ServerName == "" {
			if host, _, err := net.SplitHostPort(address); err == nil {
				tlsConf.ServerName = host
			}
		}
		tlsConn := tls.Client(conn, tlsConf)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("TLS handshake failed: %w", err)
		}
		conn = tlsConn
	}

	return NewConn(conn, ConnConfig{
		MaxMessageSize: c.config.MaxMessageSize,
		WriteTimeout:   c.config.WriteTimeout,
		Logger:         c.config.Logger,
		ConnID:         connID,
	}), nil
}
