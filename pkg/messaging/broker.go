package messaging

import (
	"context"
)

// Publisher sends a message to a named channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// Broker defines the interface for message brokers
type Broker interface {
	Publisher
	Close() error
}

// NopBroker discards every message. It is used when no broker is configured.
type NopBroker struct{}

func (NopBroker) Publish(context.Context, string, interface{}) error { return nil }

func (NopBroker) Close() error { return nil }
