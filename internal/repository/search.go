package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/blockedby/chansearch/internal/models"
)

// channelSearchFields are matched by SearchAll on the channels table.
var channelSearchFields = []string{"channels.handle", "channels.title", "channels.notes"}

// UnionResult holds the independent channel and message matches of SearchAll.
type UnionResult struct {
	Channels []models.Channel
	Messages []MessageRow
}

// UnionCount holds the match counts of SearchAllCount.
type UnionCount struct {
	Channels int64 `json:"channels"`
	Messages int64 `json:"messages"`
	Total    int64 `json:"total"`
}

// SearchRepository runs keyword searches across channels and messages.
type SearchRepository struct {
	db       *gorm.DB
	channels *ChannelsRepository
	messages *MessagesRepository
}

// NewSearchRepository creates a new search repository.
func NewSearchRepository(db *gorm.DB) *SearchRepository {
	return &SearchRepository{db: db, channels: NewChannelsRepository(db), messages: NewMessagesRepository(db)}
}

// GetChannelByHandle resolves a channel filter.
func (r *SearchRepository) GetChannelByHandle(ctx context.Context, handle string) (*models.Channel, error) {
	return r.channels.GetByHandle(ctx, handle)
}

// ActiveChannels returns every active channel.
func (r *SearchRepository) ActiveChannels(ctx context.Context) ([]models.Channel, error) {
	return r.channels.List(ctx, ChannelFilter{Status: models.ChannelStatusActive})
}

// SearchMessages delegates to the messages table search.
func (r *SearchRepository) SearchMessages(ctx context.Context, f MessageFilter) ([]MessageRow, error) {
	return r.messages.Search(ctx, f)
}

// SearchMessagesCount delegates to the messages table count.
func (r *SearchRepository) SearchMessagesCount(ctx context.Context, f MessageFilter) (int64, error) {
	return r.messages.SearchCount(ctx, f)
}

// SearchAll matches keywords against channels and messages independently.
// limit and offset apply to each table separately.
func (r *SearchRepository) SearchAll(ctx context.Context, keywords []string, limit, offset int) (*UnionResult, error) {
	q := r.channelQuery(ctx, keywords).Order("channels.discovered_at DESC").Order("channels.id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}

	var channels []models.Channel
	if err := q.Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("search channels: %w", err)
	}

	messages, err := r.messages.Search(ctx, MessageFilter{Keywords: keywords, Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}

	return &UnionResult{Channels: channels, Messages: messages}, nil
}

// SearchAllCount counts what SearchAll would match without limit/offset.
func (r *SearchRepository) SearchAllCount(ctx context.Context, keywords []string) (UnionCount, error) {
	var out UnionCount
	if err := r.channelQuery(ctx, keywords).Count(&out.Channels).Error; err != nil {
		return UnionCount{}, fmt.Errorf("count channels: %w", err)
	}

	n, err := r.messages.SearchCount(ctx, MessageFilter{Keywords: keywords})
	if err != nil {
		return UnionCount{}, err
	}
	out.Messages = n
	out.Total = out.Channels + out.Messages
	return out, nil
}

func (r *SearchRepository) channelQuery(ctx context.Context, keywords []string) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.Channel{})
	if cond, args := likeAny(channelSearchFields, keywords); cond != "" {
		q = q.Where(cond, args...)
	}
	return q
}
