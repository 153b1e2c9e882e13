package models

import "time"

// LedgerStatus is the state of a source message's enrichment run.
type LedgerStatus string

// LedgerStatus constants.
const (
	LedgerProcessing LedgerStatus = "processing"
	LedgerCompleted  LedgerStatus = "completed"
)

// ProcessingLedger tracks resumable enrichment of one source message.
// Text and LinkURLs keep enough of the message to re-run it after a restart.
type ProcessingLedger struct {
	ID              int64        `gorm:"primaryKey;autoIncrement"`
	SourceMessageID int64        `gorm:"uniqueIndex;not null"`
	TotalCount      int          `gorm:"not null;default:0"`
	Status          LedgerStatus `gorm:"index;size:16;not null;default:'processing'"`
	Text            string
	LinkURLs        []string `gorm:"serializer:json"`
	StartedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// TableName overrides the table name.
func (ProcessingLedger) TableName() string {
	return "processing_ledgers"
}

// LedgerHandle records one handle already handled for a ledger entry.
type LedgerHandle struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	LedgerID  int64     `gorm:"uniqueIndex:idx_ledger_handle;not null"`
	Handle    string    `gorm:"uniqueIndex:idx_ledger_handle;size:64;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName overrides the table name.
func (LedgerHandle) TableName() string {
	return "ledger_handles"
}
