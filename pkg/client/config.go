package client

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/iedlink/iedlink-go/pkg/log"
	"github.com/iedlink/iedlink-go/pkg/transport"
)

// Default session settings.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultRequestTimeout = 10 * time.Second
	DefaultMaxBrowseDepth = 32
)

// Config configures a Session.
type Config struct {
	// ConnectTimeout bounds Connect when ctx has no deadline.
	ConnectTimeout time.Duration

	// RequestTimeout bounds the wait for one response.
	RequestTimeout time.Duration

	// MaxBrowseDepth caps attribute tree traversal below a data object.
	MaxBrowseDepth int

	// RequestQueueSize and ReportQueueSize size the exchange queue and the
	// report dispatcher queue. Zero takes the package defaults.
	RequestQueueSize int
	ReportQueueSize  int

	// MaxMessageSize limits frames on the default transport.
	MaxMessageSize uint32

	// TLS enables TLS on the default transport.
	TLS *transport.TLSConfig

	// Dialer replaces the default TCP transport.
	Dialer Dialer

	// Logger receives operational logs. Nil discards them.
	Logger *slog.Logger

	// ProtocolLogger receives protocol capture events. Optional.
	ProtocolLogger log.Logger
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: DefaultConnectTimeout,
		RequestTimeout: DefaultRequestTimeout,
		MaxBrowseDepth: DefaultMaxBrowseDepth,
	}
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxBrowseDepth <= 0 {
		c.MaxBrowseDepth = DefaultMaxBrowseDepth
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Endpoint is the network address of a device.
type Endpoint struct {
	Host string
	Port int
}

// String returns host:port.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// ParseEndpoint parses "host" or "host:port". The port defaults to
// transport.DefaultPort.
func ParseEndpoint(s string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		if s == "" {
			return Endpoint{}, fmt.Errorf("empty endpoint")
		}
		return Endpoint{Host: s, Port: transport.DefaultPort}, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("invalid port %q", portStr)
	}
	return Endpoint{Host: host, Port: port}, nil
}
