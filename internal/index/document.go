// Package index mirrors domain events into a Meilisearch index.
package index

import (
	"fmt"

	"github.com/blockedby/chansearch/internal/events"
	"github.com/blockedby/chansearch/internal/models"
)

// Document kinds.
const (
	KindChannel = "channel"
	KindMessage = "message"
)

// Document is one indexed record. Channels and posts share an index.
type Document struct {
	ID              string `json:"id"`
	Kind            string `json:"kind"`
	ChannelID       int64  `json:"channel_id"`
	Handle          string `json:"handle"`
	Title           string `json:"title,omitempty"`
	Category        string `json:"category,omitempty"`
	Content         string `json:"content"`
	MediaKind       string `json:"media_kind"`
	MemberCount     int    `json:"member_count,omitempty"`
	SourceMessageID int64  `json:"source_message_id,omitempty"`
	CreatedAt       int64  `json:"created_at"`
}

// ChannelDocument converts a discovery event.
func ChannelDocument(ev events.ChannelDiscovered) Document {
	content := ev.Title
	if ev.Description != "" {
		content += "\n" + ev.Description
	}
	return Document{
		ID:          "channel-" + ev.Handle,
		Kind:        KindChannel,
		ChannelID:   ev.ChannelID,
		Handle:      ev.Handle,
		Title:       ev.Title,
		Category:    ev.Category,
		Content:     content,
		MediaKind:   string(models.MediaChannel),
		MemberCount: ev.MemberCount,
		CreatedAt:   ev.DiscoveredAt.Unix(),
	}
}

// MessageDocument converts a collected message event.
func MessageDocument(ev events.MessageCollected) Document {
	return Document{
		ID:              fmt.Sprintf("message-%d-%d", ev.ChannelID, ev.SourceMessageID),
		Kind:            KindMessage,
		ChannelID:       ev.ChannelID,
		Handle:          ev.Handle,
		Content:         ev.Content,
		MediaKind:       string(ev.MediaKind),
		SourceMessageID: ev.SourceMessageID,
		CreatedAt:       ev.CollectedAt.Unix(),
	}
}
