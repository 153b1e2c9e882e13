// Package events defines the domain events emitted by ingestion and the
// crawler, and fans them out to any number of publishers.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/blockedby/chansearch/internal/models"
)

// Subjects and stream used on the message bus.
const (
	StreamName               = "CHANSEARCH"
	SubjectChannelDiscovered = "channels.discovered"
	SubjectMessageCollected  = "messages.collected"
)

// Subjects lists every subject carried by StreamName.
func Subjects() []string {
	return []string{SubjectChannelDiscovered, SubjectMessageCollected}
}

// ChannelDiscovered is emitted when a new channel row is inserted.
type ChannelDiscovered struct {
	EventID         uuid.UUID `json:"event_id"`
	ChannelID       int64     `json:"channel_id"`
	Handle          string    `json:"handle"`
	Title           string    `json:"title,omitempty"`
	Description     string    `json:"description,omitempty"`
	Category        string    `json:"category"`
	MemberCount     int       `json:"member_count"`
	Status          string    `json:"status"`
	SourceMessageID int64     `json:"source_message_id,omitempty"`
	DiscoveredAt    time.Time `json:"discovered_at"`
}

// NewChannelDiscovered builds the event for a stored channel.
func NewChannelDiscovered(ch *models.Channel, sourceMessageID int64) ChannelDiscovered {
	return ChannelDiscovered{
		EventID:         uuid.New(),
		ChannelID:       ch.ID,
		Handle:          ch.Handle,
		Title:           ch.Title,
		Description:     ch.Description,
		Category:        ch.Category,
		MemberCount:     ch.MemberCount,
		Status:          string(ch.Status),
		SourceMessageID: sourceMessageID,
		DiscoveredAt:    ch.DiscoveredAt,
	}
}

// MessageCollected is emitted when the crawler stores a channel post.
type MessageCollected struct {
	EventID          uuid.UUID        `json:"event_id"`
	MessageID        int64            `json:"message_id"`
	ChannelID        int64            `json:"channel_id"`
	Handle           string           `json:"handle"`
	SourceMessageID  int64            `json:"source_message_id"`
	StorageMessageID *int64           `json:"storage_message_id,omitempty"`
	Content          string           `json:"content"`
	MediaKind        models.MediaKind `json:"media_kind"`
	CollectedAt      time.Time        `json:"collected_at"`
}

// NewMessageCollected builds the event for a stored message.
func NewMessageCollected(m *models.Message, handle string) MessageCollected {
	return MessageCollected{
		EventID:          uuid.New(),
		MessageID:        m.ID,
		ChannelID:        m.ChannelID,
		Handle:           handle,
		SourceMessageID:  m.SourceMessageID,
		StorageMessageID: m.StorageMessageID,
		Content:          m.Content,
		MediaKind:        m.MediaKind,
		CollectedAt:      m.CollectedAt,
	}
}

// Publisher receives domain events.
type Publisher interface {
	PublishChannelDiscovered(ctx context.Context, ev ChannelDiscovered) error
	PublishMessageCollected(ctx context.Context, ev MessageCollected) error
}

// Fanout delivers every event to all publishers and joins their errors.
type Fanout []Publisher

// PublishChannelDiscovered implements Publisher.
func (f Fanout) PublishChannelDiscovered(ctx context.Context, ev ChannelDiscovered) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.PublishChannelDiscovered(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishMessageCollected implements Publisher.
func (f Fanout) PublishMessageCollected(ctx context.Context, ev MessageCollected) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.PublishMessageCollected(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

// PublishChannelDiscovered implements Publisher.
func (Nop) PublishChannelDiscovered(context.Context, ChannelDiscovered) error { return nil }

// PublishMessageCollected implements Publisher.
func (Nop) PublishMessageCollected(context.Context, MessageCollected) error { return nil }
