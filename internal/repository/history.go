package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/blockedby/chansearch/internal/models"
)

// QueryCount is a normalised query and how often it was searched.
type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// HistoryRepository appends and aggregates search history.
type HistoryRepository struct {
	db *gorm.DB
}

// NewHistoryRepository creates a new search history repository.
func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Record appends one executed search.
func (r *HistoryRepository) Record(ctx context.Context, userID int64, query string, resultCount int) error {
	h := models.SearchHistory{
		UserID:      userID,
		Query:       strings.TrimSpace(query),
		ResultCount: resultCount,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&h).Error; err != nil {
		return fmt.Errorf("record search: %w", err)
	}
	return nil
}

// Popular returns the most frequent queries, case-insensitively grouped.
func (r *HistoryRepository) Popular(ctx context.Context, limit int) ([]QueryCount, error) {
	var out []QueryCount
	err := r.db.WithContext(ctx).Model(&models.SearchHistory{}).
		Select("LOWER(query) AS query, COUNT(*) AS count").
		Group("LOWER(query)").
		Order("count DESC").Order("query ASC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("popular queries: %w", err)
	}
	return out, nil
}
