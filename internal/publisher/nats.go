// Package publisher sends domain events to the NATS event stream.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/blockedby/chansearch/internal/events"
)

// NATSClient interface to allow mocking
type NATSClient interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher implements events.Publisher
type NATSPublisher struct {
	js NATSClient
}

var _ events.Publisher = (*NATSPublisher)(nil)

// NewNATSPublisher creates a new publisher
func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{js: conn}
}

// PublishChannelDiscovered publishes a channel discovery event
func (p *NATSPublisher) PublishChannelDiscovered(_ context.Context, event events.ChannelDiscovered) error {
	return p.publish(events.SubjectChannelDiscovered, event)
}

// PublishMessageCollected publishes a collected message event
func (p *NATSPublisher) PublishMessageCollected(_ context.Context, event events.MessageCollected) error {
	return p.publish(events.SubjectMessageCollected, event)
}

func (p *NATSPublisher) publish(subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.js.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	return nil
}
