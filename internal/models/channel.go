// Package models defines the persisted data types shared across the application.
package models

import "time"

// ChannelStatus represents the lifecycle state of a discovered channel.
type ChannelStatus string

// ChannelStatus constants define the possible lifecycle states of a channel.
const (
	ChannelStatusPending ChannelStatus = "pending"
	ChannelStatusActive  ChannelStatus = "active"
	ChannelStatusFailed  ChannelStatus = "failed"
	ChannelStatusBanned  ChannelStatus = "banned"
)

// Valid reports whether s is a known channel status.
func (s ChannelStatus) Valid() bool {
	switch s {
	case ChannelStatusPending, ChannelStatusActive, ChannelStatusFailed, ChannelStatusBanned:
		return true
	}
	return false
}

// DefaultCategory is assigned when no category is known.
const DefaultCategory = "uncategorized"

// Channel is a discovered Telegram channel or group.
type Channel struct {
	ID           int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Handle       string        `gorm:"uniqueIndex;size:64;not null" json:"handle"`
	NumericID    *int64        `gorm:"index" json:"numeric_id,omitempty"`
	Title        string        `json:"title,omitempty"`
	Description  string        `json:"description,omitempty"`
	AvatarRef    string        `json:"avatar_ref,omitempty"`
	Category     string        `gorm:"index;not null;default:'uncategorized'" json:"category"`
	MemberCount  int           `gorm:"not null;default:0" json:"member_count"`
	Verified     bool          `gorm:"not null;default:false" json:"verified"`
	CrawlEnabled bool          `gorm:"not null" json:"crawl_enabled"`
	Status       ChannelStatus `gorm:"index;size:16;not null;default:'pending'" json:"status"`
	DiscoveredBy string        `json:"discovered_by,omitempty"`
	DiscoveredAt time.Time     `gorm:"index;not null" json:"discovered_at"`
	VerifiedAt   *time.Time    `json:"verified_at,omitempty"`
	LastCrawled  *time.Time    `json:"last_crawled_at,omitempty"`
	Notes        string        `json:"notes,omitempty"`
}

// TableName overrides the table name.
func (Channel) TableName() string {
	return "channels"
}

// ChannelPatch lists the channel fields that may change after creation.
// Nil fields are left untouched.
type ChannelPatch struct {
	NumericID    *int64
	Title        *string
	Description  *string
	AvatarRef    *string
	Category     *string
	MemberCount  *int
	Verified     *bool
	CrawlEnabled *bool
	Status       *ChannelStatus
	VerifiedAt   *time.Time
	LastCrawled  *time.Time
	Notes        *string
}

// IsEmpty reports whether the patch carries no changes.
func (p ChannelPatch) IsEmpty() bool {
	return len(p.Columns()) == 0
}

// Columns returns the column/value map for the non-nil fields.
func (p ChannelPatch) Columns() map[string]any {
	cols := make(map[string]any)
	if p.NumericID != nil {
		cols["numeric_id"] = *p.NumericID
	}
	if p.Title != nil {
		cols["title"] = *p.Title
	}
	if p.Description != nil {
		cols["description"] = *p.Description
	}
	if p.AvatarRef != nil {
		cols["avatar_ref"] = *p.AvatarRef
	}
	if p.Category != nil {
		cols["category"] = *p.Category
	}
	if p.MemberCount != nil {
		cols["member_count"] = *p.MemberCount
	}
	if p.Verified != nil {
		cols["verified"] = *p.Verified
	}
	if p.CrawlEnabled != nil {
		cols["crawl_enabled"] = *p.CrawlEnabled
	}
	if p.Status != nil {
		cols["status"] = *p.Status
	}
	if p.VerifiedAt != nil {
		cols["verified_at"] = *p.VerifiedAt
	}
	if p.LastCrawled != nil {
		cols["last_crawled"] = *p.LastCrawled
	}
	if p.Notes != nil {
		cols["notes"] = *p.Notes
	}
	return cols
}
