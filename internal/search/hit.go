package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/blockedby/chansearch/internal/models"
	"github.com/blockedby/chansearch/internal/repository"
)

// Markers that identify channel metadata inside message content.
const (
	MetadataTag   = "#频道元信息"
	ChannelTag    = "#channel"
	legacyMarker  = "分类:"
	categoryLabel = "category:"
	membersLabel  = "members:"
)

// HitKind tags the variant held by a Hit.
type HitKind int

// Hit kinds.
const (
	HitChannel HitKind = iota + 1
	HitMessage
)

func (k HitKind) String() string {
	switch k {
	case HitChannel:
		return "channel"
	case HitMessage:
		return "message"
	}
	return "unknown"
}

// ChannelHit is a channel row surfaced as a search result.
type ChannelHit struct {
	ChannelID    int64     `json:"channel_id"`
	Handle       string    `json:"handle"`
	Title        string    `json:"title,omitempty"`
	Category     string    `json:"category,omitempty"`
	MemberCount  int       `json:"member_count"`
	DiscoveredAt time.Time `json:"discovered_at"`
	Content      string    `json:"content"`
}

// MessageHit is a stored message surfaced as a search result.
type MessageHit struct {
	ID               int64            `json:"id"`
	ChannelID        int64            `json:"channel_id"`
	Handle           string           `json:"handle,omitempty"`
	SourceMessageID  int64            `json:"source_message_id"`
	StorageMessageID *int64           `json:"storage_message_id,omitempty"`
	Content          string           `json:"content"`
	MediaKind        models.MediaKind `json:"media_kind"`
	PublishedAt      time.Time        `json:"published_at"`
	CollectedAt      time.Time        `json:"collected_at"`
}

// Hit is either a ChannelHit or a MessageHit, selected by Kind.
type Hit struct {
	Kind    HitKind     `json:"kind"`
	Channel *ChannelHit `json:"channel,omitempty"`
	Message *MessageHit `json:"message,omitempty"`
}

// NewChannelHit reshapes a channel row into a hit with synthetic content.
func NewChannelHit(ch models.Channel) Hit {
	return Hit{Kind: HitChannel, Channel: &ChannelHit{
		ChannelID:    ch.ID,
		Handle:       ch.Handle,
		Title:        ch.Title,
		Category:     ch.Category,
		MemberCount:  ch.MemberCount,
		DiscoveredAt: ch.DiscoveredAt,
		Content:      ChannelContent(ch),
	}}
}

// NewMessageHit wraps a message row.
func NewMessageHit(row repository.MessageRow) Hit {
	return Hit{Kind: HitMessage, Message: &MessageHit{
		ID:               row.ID,
		ChannelID:        row.ChannelID,
		Handle:           row.Handle,
		SourceMessageID:  row.SourceMessageID,
		StorageMessageID: row.StorageMessageID,
		Content:          row.Content,
		MediaKind:        row.MediaKind,
		PublishedAt:      row.PublishedAt,
		CollectedAt:      row.CollectedAt,
	}}
}

// ChannelContent builds the metadata card text of a channel. Absent fields
// are omitted.
func ChannelContent(ch models.Channel) string {
	var parts []string
	if ch.Title != "" {
		parts = append(parts, ch.Title)
	}
	if ch.Handle != "" {
		parts = append(parts, "@"+ch.Handle)
	}
	if ch.Category != "" {
		parts = append(parts, categoryLabel+ch.Category)
	}
	if ch.MemberCount > 0 {
		parts = append(parts, fmt.Sprintf("%s%d", membersLabel, ch.MemberCount))
	}
	parts = append(parts, MetadataTag, ChannelTag)
	return strings.Join(parts, " ")
}

// IsMetadataContent reports whether message content is a channel card.
func IsMetadataContent(content string) bool {
	return strings.Contains(content, MetadataTag) || strings.Contains(content, legacyMarker)
}

// Handle returns the channel handle of the hit.
func (h Hit) Handle() string {
	switch h.Kind {
	case HitChannel:
		return h.Channel.Handle
	case HitMessage:
		return h.Message.Handle
	}
	return ""
}

// Content returns the searchable text of the hit.
func (h Hit) Content() string {
	switch h.Kind {
	case HitChannel:
		return h.Channel.Content
	case HitMessage:
		return h.Message.Content
	}
	return ""
}

// MediaKind returns the media kind, MediaChannel for channel hits.
func (h Hit) MediaKind() models.MediaKind {
	if h.Kind == HitMessage {
		return h.Message.MediaKind
	}
	return models.MediaChannel
}

// Time returns the timestamp used for ordering and date filters.
func (h Hit) Time() time.Time {
	switch h.Kind {
	case HitChannel:
		return h.Channel.DiscoveredAt
	case HitMessage:
		if !h.Message.CollectedAt.IsZero() {
			return h.Message.CollectedAt
		}
		return h.Message.PublishedAt
	}
	return time.Time{}
}

// ID returns the row id of the hit in its own table.
func (h Hit) ID() int64 {
	switch h.Kind {
	case HitChannel:
		return h.Channel.ChannelID
	case HitMessage:
		return h.Message.ID
	}
	return 0
}

// SourceMessageID returns the source message id, 0 for channel hits.
func (h Hit) SourceMessageID() int64 {
	if h.Kind == HitMessage {
		return h.Message.SourceMessageID
	}
	return 0
}

// IsMetadata reports whether the hit describes a channel rather than a post.
func (h Hit) IsMetadata() bool {
	return h.Kind == HitChannel || IsMetadataContent(h.Content())
}
