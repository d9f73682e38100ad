package forward

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ValkeyConfig configures a Valkey (or Redis) sink.
type ValkeyConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	UseTLS   bool   `yaml:"tls"`

	// KeyPrefix namespaces channels and keys (default "iedlink").
	KeyPrefix string `yaml:"keyPrefix"`

	// KeyTTL expires the last-report keys (0 = never).
	KeyTTL time.Duration `yaml:"keyTTL"`
}

// DefaultValkeyPrefix is used when KeyPrefix is empty.
const DefaultValkeyPrefix = "iedlink"

// ValkeySink publishes each report on <prefix>:<reportId> and stores the
// latest one under <prefix>:last:<reportId>.
type ValkeySink struct {
	config ValkeyConfig
	client *redis.Client
}

// NewValkeySink connects and pings the server.
func NewValkeySink(ctx context.Context, cfg ValkeyConfig) (*ValkeySink, error) {
	if cfg.Address == "" {
		return nil, errors.New("valkey: address is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultValkeyPrefix
	}

	opts := &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("valkey: connect to %s: %w", cfg.Address, err)
	}
	return &ValkeySink{config: cfg, client: client}, nil
}

// Name returns "valkey:<address>".
func (s *ValkeySink) Name() string {
	return "valkey:" + s.config.Address
}

// Channel returns the pub/sub channel of a report ID.
func (s *ValkeySink) Channel(reportID string) string {
	return s.config.KeyPrefix + ":" + reportID
}

// LastKey returns the key holding the latest report of a report ID.
func (s *ValkeySink) LastKey(reportID string) string {
	return s.config.KeyPrefix + ":last:" + reportID
}

// Publish stores and publishes the message in one transaction.
func (s *ValkeySink) Publish(ctx context.Context, msg *Message) error {
	data, err := msg.Marshal()
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.LastKey(msg.ReportID), data, s.config.KeyTTL)
	pipe.Publish(ctx, s.Channel(msg.ReportID), data)
	_, err = pipe.Exec(ctx)
	return err
}

// Close closes the client.
func (s *ValkeySink) Close() error {
	return s.client.Close()
}
