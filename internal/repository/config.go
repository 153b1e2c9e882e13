package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/blockedby/chansearch/internal/models"
)

// CrawlerEnabledKey stores whether the background crawler should run.
const CrawlerEnabledKey = "crawler_enabled"

// ConfigRepository is a flat key-value settings store.
type ConfigRepository struct {
	db *gorm.DB
}

// NewConfigRepository creates a new config repository.
func NewConfigRepository(db *gorm.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// GetFlag returns the stored value for key, or def when unset.
func (r *ConfigRepository) GetFlag(ctx context.Context, key, def string) (string, error) {
	var e models.ConfigEntry
	err := r.db.WithContext(ctx).Where("key = ?", key).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return def, nil
	}
	if err != nil {
		return "", fmt.Errorf("get config %s: %w", key, err)
	}
	return e.Value, nil
}

// SetFlag stores value under key, replacing any previous value.
func (r *ConfigRepository) SetFlag(ctx context.Context, key, value string) error {
	e := models.ConfigEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e).Error
	if err != nil {
		return fmt.Errorf("set config %s: %w", key, err)
	}
	return nil
}

// GetBool reads a boolean flag encoded as "true"/"false".
func (r *ConfigRepository) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	v, err := r.GetFlag(ctx, key, boolString(def))
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

// SetBool stores a boolean flag as "true"/"false".
func (r *ConfigRepository) SetBool(ctx context.Context, key string, value bool) error {
	return r.SetFlag(ctx, key, boolString(value))
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
