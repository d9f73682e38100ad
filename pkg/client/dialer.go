package client

import (
	"context"

	"github.com/iedlink/iedlink-go/pkg/transport"
)

// Conn is a framed byte transport to a device.
type Conn interface {
	Send(data []byte) error
	ReadFrame() ([]byte, error)
	Close() error
}

// Dialer opens a Conn to a device address.
type Dialer interface {
	Dial(ctx context.Context, address string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, address string) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, address string) (Conn, error) {
	return f(ctx, address)
}

// transportDialer dials the default framed TCP/TLS transport.
type transportDialer struct {
	client *transport.Client
	connID string
}

func newTransportDialer(cfg *Config, connID string) (*transportDialer, error) {
	c, err := transport.NewClient(transport.ClientConfig{
		TLSConfig:      cfg.TLS,
		MaxMessageSize: cfg.MaxMessageSize,
		ConnectTimeout: cfg.ConnectTimeout,
		Logger:         cfg.ProtocolLogger,
	})
	if err != nil {
		return nil, err
	}
	return &transportDialer{client: c, connID: connID}, nil
}

func (d *transportDialer) Dial(ctx context.Context, address string) (Conn, error) {
	return d.client.Connect(ctx, address, d.connID)
}

// Compile-time checks.
var (
	_ Conn   = (*transport.Conn)(nil)
	_ Dialer = (*transportDialer)(nil)
)
