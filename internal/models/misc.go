package models

import "time"

// SearchHistory is an append-only record of one executed search.
type SearchHistory struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	UserID      int64     `gorm:"index"`
	Query       string    `gorm:"not null"`
	ResultCount int       `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"index;not null"`
}

// TableName overrides the table name.
func (SearchHistory) TableName() string {
	return "search_history"
}

// ConfigEntry is a flat key-value setting.
type ConfigEntry struct {
	Key       string `gorm:"primaryKey;size:128"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName overrides the table name.
func (ConfigEntry) TableName() string {
	return "config"
}

// All lists every model managed by AutoMigrate.
func All() []any {
	return []any{
		&Channel{},
		&Message{},
		&ProcessingLedger{},
		&LedgerHandle{},
		&SearchHistory{},
		&ConfigEntry{},
	}
}
