package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/blockedby/chansearch/internal/models"
)

// ChannelActivity is a channel with its stored message count.
type ChannelActivity struct {
	Handle       string `json:"handle"`
	Title        string `json:"title"`
	Category     string `json:"category"`
	MessageCount int64  `json:"message_count"`
}

// Overview contains aggregated counts for reports and the admin API.
type Overview struct {
	TotalChannels   int64                      `json:"total_channels"`
	ActiveChannels  int64                      `json:"active_channels"`
	PendingChannels int64                      `json:"pending_channels"`
	FailedChannels  int64                      `json:"failed_channels"`
	BannedChannels  int64                      `json:"banned_channels"`
	TotalMessages   int64                      `json:"total_messages"`
	ByMediaKind     map[models.MediaKind]int64 `json:"by_media_kind"`
}

// StatsRepository provides aggregated statistics.
type StatsRepository struct {
	db       *gorm.DB
	channels *ChannelsRepository
	messages *MessagesRepository
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(db *gorm.DB) *StatsRepository {
	return &StatsRepository{
		db:       db,
		channels: NewChannelsRepository(db),
		messages: NewMessagesRepository(db),
	}
}

// GetOverview retrieves channel counts by status and message counts by kind.
func (r *StatsRepository) GetOverview(ctx context.Context) (*Overview, error) {
	var rows []groupCount
	err := r.db.WithContext(ctx).Model(&models.Channel{}).
		Select("status AS name, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("get channel stats: %w", err)
	}

	o := &Overview{}
	for _, row := range rows {
		o.TotalChannels += row.Total
		switch models.ChannelStatus(row.Name) {
		case models.ChannelStatusActive:
			o.ActiveChannels = row.Total
		case models.ChannelStatusPending:
			o.PendingChannels = row.Total
		case models.ChannelStatusFailed:
			o.FailedChannels = row.Total
		case models.ChannelStatusBanned:
			o.BannedChannels = row.Total
		}
	}

	if o.TotalMessages, err = r.messages.Count(ctx, nil); err != nil {
		return nil, err
	}
	if o.ByMediaKind, err = r.messages.CountByMediaKind(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

// CountByCategory returns the number of channels per category.
func (r *StatsRepository) CountByCategory(ctx context.Context) (map[string]int64, error) {
	return r.channels.CountByCategory(ctx)
}

// TopChannels returns active channels ranked by stored message count.
func (r *StatsRepository) TopChannels(ctx context.Context, limit int) ([]ChannelActivity, error) {
	var out []ChannelActivity
	err := r.db.WithContext(ctx).
		Table("channels").
		Select("channels.handle, channels.title, channels.category, COUNT(messages.id) AS message_count").
		Joins("JOIN messages ON messages.channel_id = channels.id").
		Where("channels.status = ?", models.ChannelStatusActive).
		Group("channels.id, channels.handle, channels.title, channels.category").
		Order("message_count DESC").Order("channels.handle ASC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("top channels: %w", err)
	}
	return out, nil
}
