package telegram

import (
	"time"

	"github.com/blockedby/chansearch/internal/models"
)

// Message represents a parsed channel post
type Message struct {
	ID        int              // message id (unique within channel)
	ChannelID int64            // channel id
	Text      string           // text or caption
	Date      time.Time        // message creation timestamp
	MediaKind models.MediaKind // kind of attached media, text when none
	Views     int              // view count
}

// Empty reports whether the post carries neither text nor media.
func (m Message) Empty() bool {
	return m.Text == "" && m.MediaKind == models.MediaText
}

// Channel represents a telegram channel info
type Channel struct {
	ID           int64  // channel id
	AccessHash   int64  // access hash for api calls
	Username     string // channel username (without @)
	Title        string // channel title
	About        string // channel description
	Participants int    // member count, 0 when hidden
}

// CrawlStats tracks statistics during one channel crawl
type CrawlStats struct {
	Fetched      int // posts returned by telegram
	Stored       int // posts saved to the database
	Forwarded    int // posts mirrored into the storage channel
	SkippedEmpty int // posts without text or media
	Errors       int // error count
}

// channelIDOffset is the prefix the Bot API adds to channel ids (-100...).
const channelIDOffset = 1_000_000_000_000

// BareChannelID converts a Bot API chat id such as -1001234567890 to the
// MTProto channel id 1234567890. Positive ids are returned unchanged.
func BareChannelID(botAPIID int64) int64 {
	if botAPIID >= 0 {
		return botAPIID
	}
	return -botAPIID - channelIDOffset
}
