// Package repository implements the persistence layer on top of GORM.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/blockedby/chansearch/internal/models"
)

// ErrAlreadyExists is returned when a channel with the same handle is present.
var ErrAlreadyExists = errors.New("already exists")

// NormalizeHandle strips a leading @ and case-folds a channel handle.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}

// ChannelFilter narrows ListChannels. Zero values mean "no filter".
type ChannelFilter struct {
	Status   models.ChannelStatus
	Category string
	Limit    int
	Offset   int
}

// ChannelsRepository handles the channels table.
type ChannelsRepository struct {
	db *gorm.DB
}

// NewChannelsRepository creates a new channels repository.
func NewChannelsRepository(db *gorm.DB) *ChannelsRepository {
	return &ChannelsRepository{db: db}
}

// Add inserts ch and returns its new id. A duplicate handle yields
// (0, ErrAlreadyExists) and leaves the existing row untouched.
func (r *ChannelsRepository) Add(ctx context.Context, ch *models.Channel) (int64, error) {
	ch.Handle = NormalizeHandle(ch.Handle)
	if ch.Handle == "" {
		return 0, fmt.Errorf("add channel: empty handle")
	}
	if ch.Category == "" {
		ch.Category = models.DefaultCategory
	}
	if ch.Status == "" {
		ch.Status = models.ChannelStatusPending
	}
	if ch.DiscoveredAt.IsZero() {
		ch.DiscoveredAt = time.Now().UTC()
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "handle"}}, DoNothing: true}).
		Create(ch)
	if res.Error != nil {
		return 0, fmt.Errorf("add channel %s: %w", ch.Handle, res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, ErrAlreadyExists
	}
	return ch.ID, nil
}

// GetByHandle returns the channel with the given handle, or nil if none exists.
func (r *ChannelsRepository) GetByHandle(ctx context.Context, handle string) (*models.Channel, error) {
	var ch models.Channel
	err := r.db.WithContext(ctx).Where("handle = ?", NormalizeHandle(handle)).Take(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get channel by handle: %w", err)
	}
	return &ch, nil
}

// GetByID returns the channel with the given id, or nil if none exists.
func (r *ChannelsRepository) GetByID(ctx context.Context, id int64) (*models.Channel, error) {
	var ch models.Channel
	err := r.db.WithContext(ctx).Take(&ch, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get channel by id: %w", err)
	}
	return &ch, nil
}

// List returns channels newest first.
func (r *ChannelsRepository) List(ctx context.Context, f ChannelFilter) ([]models.Channel, error) {
	q := r.db.WithContext(ctx).Model(&models.Channel{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	q = q.Order("discovered_at DESC").Order("id DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var out []models.Channel
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return out, nil
}

// Update applies patch to the channel with the given id.
func (r *ChannelsRepository) Update(ctx context.Context, id int64, patch models.ChannelPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&models.Channel{}).Where("id = ?", id).Updates(patch.Columns()).Error
	if err != nil {
		return fmt.Errorf("update channel %d: %w", id, err)
	}
	return nil
}

// UpdateByHandle applies patch to the channel with the given handle.
func (r *ChannelsRepository) UpdateByHandle(ctx context.Context, handle string, patch models.ChannelPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	h := NormalizeHandle(handle)
	err := r.db.WithContext(ctx).Model(&models.Channel{}).Where("handle = ?", h).Updates(patch.Columns()).Error
	if err != nil {
		return fmt.Errorf("update channel %s: %w", h, err)
	}
	return nil
}

// Delete removes a channel together with its messages.
func (r *ChannelsRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("channel_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return fmt.Errorf("delete channel messages: %w", err)
		}
		if err := tx.Delete(&models.Channel{}, id).Error; err != nil {
			return fmt.Errorf("delete channel: %w", err)
		}
		return nil
	})
}

// Count returns the number of channels, optionally restricted to one status.
func (r *ChannelsRepository) Count(ctx context.Context, status models.ChannelStatus) (int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Channel{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count channels: %w", err)
	}
	return n, nil
}

type groupCount struct {
	Name  string
	Total int64
}

// CountByCategory returns the number of channels per category.
func (r *ChannelsRepository) CountByCategory(ctx context.Context) (map[string]int64, error) {
	var rows []groupCount
	err := r.db.WithContext(ctx).Model(&models.Channel{}).
		Select("category AS name, COUNT(*) AS total").
		Group("category").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count channels by category: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Name] = row.Total
	}
	return out, nil
}

// Pending returns up to limit pending channels, oldest first.
func (r *ChannelsRepository) Pending(ctx context.Context, limit int) ([]models.Channel, error) {
	var out []models.Channel
	err := r.db.WithContext(ctx).
		Where("status = ?", models.ChannelStatusPending).
		Order("discovered_at ASC").Order("id ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list pending channels: %w", err)
	}
	return out, nil
}

// Crawlable returns active channels with crawling enabled.
func (r *ChannelsRepository) Crawlable(ctx context.Context) ([]models.Channel, error) {
	var out []models.Channel
	err := r.db.WithContext(ctx).
		Where("status = ? AND crawl_enabled = ?", models.ChannelStatusActive, true).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list crawlable channels: %w", err)
	}
	return out, nil
}

// CountVerifiedSince returns how many channels were verified at or after t.
func (r *ChannelsRepository) CountVerifiedSince(ctx context.Context, t time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Channel{}).
		Where("verified_at IS NOT NULL AND verified_at >= ?", t).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count verified channels: %w", err)
	}
	return n, nil
}
