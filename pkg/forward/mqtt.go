package forward

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig configures an MQTT sink.
type MQTTConfig struct {
	// Broker is the broker URL (tcp://host:1883 or ssl://host:8883).
	Broker string `yaml:"broker"`

	ClientID string `yaml:"clientId"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// RootTopic prefixes the report topic: <root>/<reportId>.
	RootTopic string `yaml:"rootTopic"`

	QoS    byte `yaml:"qos"`
	Retain bool `yaml:"retain"`

	// ConnectTimeout bounds the initial connection (default 5s).
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
}

// DefaultMQTTRootTopic is used when RootTopic is empty.
const DefaultMQTTRootTopic = "iedlink/reports"

// MQTTSink publishes each report to <root>/<reportId>.
type MQTTSink struct {
	config MQTTConfig
	client pahomqtt.Client
}

// NewMQTTSink connects to the broker. The client reconnects on its own
// after the initial connection.
func NewMQTTSink(cfg MQTTConfig) (*MQTTSink, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: broker is required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt: invalid QoS %d", cfg.QoS)
	}
	if cfg.RootTopic == "" {
		cfg.RootTopic = DefaultMQTTRootTopic
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "iedlink"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	if strings.HasPrefix(cfg.Broker, "ssl://") || strings.HasPrefix(cfg.Broker, "tls://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetKeepAlive(30 * time.Second)

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt: connect to %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", cfg.Broker, err)
	}
	return &MQTTSink{config: cfg, client: client}, nil
}

// Name returns "mqtt:<broker>".
func (s *MQTTSink) Name() string {
	return "mqtt:" + s.config.Broker
}

// Topic returns the topic a report ID is published on.
func (s *MQTTSink) Topic(reportID string) string {
	return mqttTopic(s.config.RootTopic, reportID)
}

func mqttTopic(root, reportID string) string {
	// '+' and '#' are wildcards and '/' would split the level.
	id := strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(reportID)
	return strings.TrimSuffix(root, "/") + "/" + id
}

// Publish sends the message and waits for the broker acknowledgement
// implied by the QoS.
func (s *MQTTSink) Publish(ctx context.Context, msg *Message) error {
	data, err := msg.Marshal()
	if err != nil {
		return err
	}
	token := s.client.Publish(s.Topic(msg.ReportID), s.config.QoS, s.config.Retain, data)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}
