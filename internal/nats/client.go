// Package nats provides a client for NATS JetStream pub/sub messaging.
package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/blockedby/chansearch/internal/events"
)

// Handler processes one delivered message. A non-nil error naks it for
// redelivery.
type Handler func(subject string, data []byte) error

// Client wraps nats connection and jetstream context.
type Client struct {
	Conn *nats.Conn
	js   jetstream.JetStream
}

// New creates a new nats client with jetstream support.
func New(_ context.Context, natsURL, name string) (*Client, error) {
	conn, err := nats.Connect(natsURL, nats.Name(name), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Client{Conn: conn, js: js}, nil
}

// EnsureStream creates a stream if it doesn't exist.
func (c *Client) EnsureStream(ctx context.Context, name string, subjects []string) error {
	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     name,
		Subjects: subjects,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", name, err)
	}
	return nil
}

// EnsureEventStream creates the stream carrying all domain events.
func (c *Client) EnsureEventStream(ctx context.Context) error {
	return c.EnsureStream(ctx, events.StreamName, events.Subjects())
}

// Publish publishes a JSON-encoded message to a subject and waits for the
// stream acknowledgement.
func (c *Client) Publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = c.js.Publish(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}

	return nil
}

// Subscribe creates a durable consumer on the given subjects and starts
// consuming. Call Stop on the result to end delivery.
func (c *Client) Subscribe(ctx context.Context, stream, consumer string, subjects []string, handler Handler) (jetstream.ConsumeContext, error) {
	cons, err := c.js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		Durable:        consumer,
		FilterSubjects: subjects,
		AckPolicy:      jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		if err := handler(msg.Subject(), msg.Data()); err != nil {
			// negative acknowledgement - will be redelivered
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", consumer, err)
	}
	return cc, nil
}

// Close drains and closes the nats connection.
func (c *Client) Close() {
	if err := c.Conn.Drain(); err != nil {
		c.Conn.Close()
	}
}

// IsConnected returns true if connected to nats.
func (c *Client) IsConnected() bool {
	return c.Conn.IsConnected()
}
