package forward

import "context"

// Sink publishes report messages to an external system.
type Sink interface {
	// Name identifies the sink in logs.
	Name() string

	// Publish sends one message. It must honor ctx.
	Publish(ctx context.Context, msg *Message) error

	// Close releases the connection.
	Close() error
}
