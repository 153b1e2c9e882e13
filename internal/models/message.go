package models

import "time"

// MediaKind represents the kind of content a message carries.
type MediaKind string

// MediaKind constants. MediaChannel marks a channel's own metadata card.
const (
	MediaText      MediaKind = "text"
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaDocument  MediaKind = "document"
	MediaAudio     MediaKind = "audio"
	MediaVoice     MediaKind = "voice"
	MediaSticker   MediaKind = "sticker"
	MediaAnimation MediaKind = "animation"
	MediaChannel   MediaKind = "channel"
)

// Message is an indexed piece of content attributed to a channel.
type Message struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ChannelID        int64     `gorm:"index:idx_messages_channel_source;not null" json:"channel_id"`
	SourceMessageID  int64     `gorm:"index:idx_messages_channel_source" json:"source_message_id"`
	StorageMessageID *int64    `json:"storage_message_id,omitempty"`
	Content          string    `gorm:"not null" json:"content"`
	MediaKind        MediaKind `gorm:"index;size:16;not null;default:'text'" json:"media_kind"`
	MediaURL         string    `json:"media_url,omitempty"`
	Author           string    `json:"author,omitempty"`
	PublishedAt      time.Time `json:"published_at"`
	CollectedAt      time.Time `gorm:"index;not null" json:"collected_at"`
}

// TableName overrides the table name.
func (Message) TableName() string {
	return "messages"
}
