package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/blockedby/chansearch/internal/models"
)

// MessageRow is a message together with its owning channel's handle.
type MessageRow struct {
	models.Message
	Handle string
}

// MessageFilter narrows message searches. Zero values mean "no filter".
type MessageFilter struct {
	Keywords  []string
	ChannelID *int64
	MediaKind models.MediaKind
	Limit     int
	Offset    int
}

// MessagesRepository handles the messages table.
type MessagesRepository struct {
	db *gorm.DB
}

// NewMessagesRepository creates a new messages repository.
func NewMessagesRepository(db *gorm.DB) *MessagesRepository {
	return &MessagesRepository{db: db}
}

// Add appends a message and returns its new id.
func (r *MessagesRepository) Add(ctx context.Context, m *models.Message) (int64, error) {
	if m.MediaKind == "" {
		m.MediaKind = models.MediaText
	}
	if m.CollectedAt.IsZero() {
		m.CollectedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return 0, fmt.Errorf("add message: %w", err)
	}
	return m.ID, nil
}

// Search returns messages whose content contains any keyword, newest first.
func (r *MessagesRepository) Search(ctx context.Context, f MessageFilter) ([]MessageRow, error) {
	q := r.filtered(ctx, f).
		Select("messages.*, channels.handle AS handle").
		Joins("LEFT JOIN channels ON channels.id = messages.channel_id").
		Order("messages.collected_at DESC").Order("messages.id DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var rows []MessageRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	return rows, nil
}

// SearchCount counts the rows Search would return without limit/offset.
func (r *MessagesRepository) SearchCount(ctx context.Context, f MessageFilter) (int64, error) {
	var n int64
	if err := r.filtered(ctx, f).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

func (r *MessagesRepository) filtered(ctx context.Context, f MessageFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.Message{})
	if cond, args := likeAny([]string{"messages.content"}, f.Keywords); cond != "" {
		q = q.Where(cond, args...)
	}
	if f.ChannelID != nil {
		q = q.Where("messages.channel_id = ?", *f.ChannelID)
	}
	if f.MediaKind != "" {
		q = q.Where("messages.media_kind = ?", f.MediaKind)
	}
	return q
}

// Count returns the number of messages, optionally for one channel.
func (r *MessagesRepository) Count(ctx context.Context, channelID *int64) (int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Message{})
	if channelID != nil {
		q = q.Where("channel_id = ?", *channelID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// CountByMediaKind returns the number of messages per media kind.
func (r *MessagesRepository) CountByMediaKind(ctx context.Context) (map[models.MediaKind]int64, error) {
	var rows []groupCount
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Select("media_kind AS name, COUNT(*) AS total").
		Group("media_kind").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count messages by media kind: %w", err)
	}
	out := make(map[models.MediaKind]int64, len(rows))
	for _, row := range rows {
		out[models.MediaKind(row.Name)] = row.Total
	}
	return out, nil
}

// LastSourceID returns the highest source message id stored for a channel,
// or 0 when the channel has none.
func (r *MessagesRepository) LastSourceID(ctx context.Context, channelID int64) (int64, error) {
	var m models.Message
	err := r.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("source_message_id DESC").
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get last source id: %w", err)
	}
	return m.SourceMessageID, nil
}

// likeAny builds "(LOWER(f1) LIKE ? OR LOWER(f2) LIKE ? ...)" over every
// field/keyword pair. It returns an empty condition for no keywords.
func likeAny(fields, keywords []string) (string, []any) {
	var (
		parts []string
		args  []any
	)
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		pattern := "%" + escapeLike(strings.ToLower(kw)) + "%"
		for _, field := range fields {
			parts = append(parts, "LOWER("+field+`) LIKE ? ESCAPE '\'`)
			args = append(args, pattern)
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
