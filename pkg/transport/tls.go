package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// DefaultPort is the well-known port of the device access protocol.
const DefaultPort = 102

// TLSConfig holds optional TLS settings. Devices in the field often run
// plain TCP; TLS is used when a TLSConfig is supplied.
type TLSConfig struct {
	// CAFile is a PEM bundle of trusted CA certificates. Empty means the
	// system pool.
	CAFile string `yaml:"caFile"`

	// CertFile and KeyFile hold the local certificate for mutual TLS.
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`

	// ServerName is the expected name in the peer certificate.
	ServerName string `yaml:"serverName"`

	// InsecureSkipVerify disables certificate verification.
	// Only for testing - never use in production!
	InsecureSkipVerify bool `yaml:"insecureSkipVerify"`

	// Certificate and RootCAs take precedence over the file fields. They
	// are used by tests and embedders that hold material in memory.
	Certificate *tls.Certificate `yaml:"-"`
	RootCAs     *x509.CertPool   `yaml:"-"`
}

// NewClientTLSConfig builds a client tls.Config.
func NewClientTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	roots, err := cfg.rootCAs()
	if err != nil {
		return nil, err
	}
	tlsConfig.RootCAs = roots

	cert, err := cfg.certificate()
	if err != nil {
		return nil, err
	}
	if cert != nil {
		tlsConfig.Certificates = []tls.Certificate{*cert}
	}

	return tlsConfig, nil
}

// NewServerTLSConfig builds a server tls.Config. A certificate is required.
func NewServerTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}
	cert, err := cfg.certificate()
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, fmt.Errorf("server certificate is required")
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{*cert},
	}, nil
}

func (cfg *TLSConfig) rootCAs() (*x509.CertPool, error) {
	if cfg.RootCAs != nil {
		return cfg.RootCAs, nil
	}
	if cfg.CAFile == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
	}
	return pool, nil
}

func (cfg *TLSConfig) certificate() (*tls.Certificate, error) {
	if cfg.Certificate != nil {
		return cfg.Certificate, nil
	}
	if cfg.CertFile == "" && cfg.KeyFile == "" {
		return nil, nil
	}
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, fmt.Errorf("certFile and keyFile must be set together")
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	return &cert, nil
}
