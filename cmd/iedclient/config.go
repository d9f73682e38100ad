package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iedlink/iedlink-go/pkg/connection"
	"github.com/iedlink/iedlink-go/pkg/forward"
	"github.com/iedlink/iedlink-go/pkg/model"
	"github.com/iedlink/iedlink-go/pkg/report"
	"github.com/iedlink/iedlink-go/pkg/transport"
)

// FileConfig is the optional YAML configuration file. Command line flags
// override the values it sets.
type FileConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	LogLevel       string        `yaml:"logLevel"`
	ProtocolLog    string        `yaml:"protocolLog"`

	TLS *transport.TLSConfig `yaml:"tls"`

	// Connect controls retries of the initial connection.
	Connect ConnectConfig `yaml:"connect"`

	// Reports lists RCBs to enable after connecting.
	Reports []ReportConfig `yaml:"reports"`

	Forward ForwardConfig `yaml:"forward"`
}

// ConnectConfig controls connection retries.
type ConnectConfig struct {
	// Attempts is the number of connection attempts (0 = 1).
	Attempts int                      `yaml:"attempts"`
	Backoff  connection.BackoffConfig `yaml:"backoff"`
}

// ReportConfig describes one RCB to enable.
type ReportConfig struct {
	RCB             string        `yaml:"rcb"`
	Triggers        string        `yaml:"triggers"`
	IntegrityPeriod time.Duration `yaml:"integrityPeriod"`
	GI              bool          `yaml:"gi"`
}

// ForwardConfig lists the report sinks.
type ForwardConfig struct {
	QueueSize  int                      `yaml:"queueSize"`
	Workers    int                      `yaml:"workers"`
	MaxRetries int                      `yaml:"maxRetries"`
	Backoff    connection.BackoffConfig `yaml:"backoff"`

	MQTT   []forward.MQTTConfig   `yaml:"mqtt"`
	Kafka  []forward.KafkaConfig  `yaml:"kafka"`
	Valkey []forward.ValkeyConfig `yaml:"valkey"`
}

// Enabled reports whether any sink is configured.
func (f *ForwardConfig) Enabled() bool {
	return len(f.MQTT)+len(f.Kafka)+len(f.Valkey) > 0
}

// LoadConfig reads and validates a configuration file.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates YAML configuration. Unknown keys are
// rejected.
func ParseConfig(data []byte) (*FileConfig, error) {
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks references and option names.
func (c *FileConfig) Validate() error {
	if c.LogLevel != "" {
		if _, err := parseLevel(c.LogLevel); err != nil {
			return err
		}
	}
	for i, r := range c.Reports {
		if err := model.ObjectReference(r.RCB).Validate(); err != nil {
			return fmt.Errorf("reports[%d]: %w", i, err)
		}
		if _, err := r.TriggerOptions(); err != nil {
			return fmt.Errorf("reports[%d]: %w", i, err)
		}
		if r.IntegrityPeriod < 0 {
			return fmt.Errorf("reports[%d]: negative integrity period", i)
		}
	}
	return nil
}

// TriggerOptions parses the trigger list. Empty means DataChange|GI.
func (r *ReportConfig) TriggerOptions() (report.TriggerOptions, error) {
	if r.Triggers == "" {
		return report.TriggerDataChange | report.TriggerGI, nil
	}
	return report.ParseTriggerOptions(r.Triggers)
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q (use: debug, info, warn, error)", s)
	}
}
