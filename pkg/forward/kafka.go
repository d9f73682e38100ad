package forward

import (
	"context"
	"crypto/tls"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// KafkaConfig configures a Kafka sink.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`

	// Username enables SASL/PLAIN.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	UseTLS   bool   `yaml:"tls"`

	// RequiredAcks: -1 all replicas, 0 none, 1 leader (default).
	RequiredAcks int `yaml:"requiredAcks"`

	// MaxAttempts is the writer's own retry limit (default 3).
	MaxAttempts int `yaml:"maxAttempts"`

	AutoCreateTopic bool `yaml:"autoCreateTopic"`
}

// KafkaSink writes each report as one message keyed by report ID, so all
// reports of one RCB land on the same partition in order.
type KafkaSink struct {
	config KafkaConfig
	writer *kafka.Writer
}

// NewKafkaSink creates the writer. Connections are opened on the first
// publish.
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	if cfg.RequiredAcks == 0 {
		cfg.RequiredAcks = int(kafka.RequireOne)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}

	transport := &kafka.Transport{DialTimeout: 10 * time.Second}
	if cfg.UseTLS {
		transport.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.Username != "" {
		transport.SASL = plain.Mechanism{Username: cfg.Username, Password: cfg.Password}
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		Transport:              transport,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		MaxAttempts:            cfg.MaxAttempts,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: cfg.AutoCreateTopic,
	}
	return &KafkaSink{config: cfg, writer: writer}, nil
}

// Name returns "kafka:<topic>".
func (s *KafkaSink) Name() string {
	return "kafka:" + s.config.Topic
}

// Publish writes the message synchronously.
func (s *KafkaSink) Publish(ctx context.Context, msg *Message) error {
	data, err := msg.Marshal()
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafkaMessage(msg, data))
}

func kafkaMessage(msg *Message, data []byte) kafka.Message {
	return kafka.Message{
		Key:   []byte(msg.ReportID),
		Value: data,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "rcb", Value: []byte(msg.RCB)},
		},
	}
}

// Close flushes pending messages and closes the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
