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

// ErrLedgerNotFound is returned when a ledger operation targets an unknown
// source message.
var ErrLedgerNotFound = errors.New("ledger entry not found")

// LedgerRepository tracks resumable per-message enrichment progress.
type LedgerRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewLedgerRepository creates a new ledger repository.
func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// GetStatus returns the ledger entry for a source message, or nil if none exists.
func (r *LedgerRepository) GetStatus(ctx context.Context, sourceMessageID int64) (*models.ProcessingLedger, error) {
	var l models.ProcessingLedger
	err := r.db.WithContext(ctx).Where("source_message_id = ?", sourceMessageID).Take(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger: %w", err)
	}
	return &l, nil
}

// Init starts (or restarts) tracking for a source message. An existing entry
// is overwritten and its processed set cleared.
func (r *LedgerRepository) Init(ctx context.Context, sourceMessageID int64, total int, text string, linkURLs []string) error {
	now := r.now()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.ProcessingLedger
		err := tx.Where("source_message_id = ?", sourceMessageID).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			entry := models.ProcessingLedger{
				SourceMessageID: sourceMessageID,
				TotalCount:      total,
				Status:          models.LedgerProcessing,
				Text:            text,
				LinkURLs:        linkURLs,
				StartedAt:       now,
				UpdatedAt:       now,
			}
			if err := tx.Create(&entry).Error; err != nil {
				return fmt.Errorf("create ledger: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("get ledger: %w", err)
		}

		existing.TotalCount = total
		existing.Status = models.LedgerProcessing
		existing.Text = text
		existing.LinkURLs = linkURLs
		existing.StartedAt = now
		existing.UpdatedAt = now
		existing.CompletedAt = nil
		if err := tx.Save(&existing).Error; err != nil {
			return fmt.Errorf("reset ledger: %w", err)
		}
		if err := tx.Where("ledger_id = ?", existing.ID).Delete(&models.LedgerHandle{}).Error; err != nil {
			return fmt.Errorf("clear ledger handles: %w", err)
		}
		return nil
	})
}

// MarkProcessed adds handle to the processed set. Adding a handle twice is a no-op.
func (r *LedgerRepository) MarkProcessed(ctx context.Context, sourceMessageID int64, handle string) error {
	now := r.now()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var l models.ProcessingLedger
		err := tx.Select("id").Where("source_message_id = ?", sourceMessageID).Take(&l).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrLedgerNotFound
		}
		if err != nil {
			return fmt.Errorf("get ledger: %w", err)
		}

		h := models.LedgerHandle{LedgerID: l.ID, Handle: NormalizeHandle(handle), CreatedAt: now}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ledger_id"}, {Name: "handle"}},
			DoNothing: true,
		}).Create(&h).Error
		if err != nil {
			return fmt.Errorf("mark handle processed: %w", err)
		}

		if err := tx.Model(&models.ProcessingLedger{}).Where("id = ?", l.ID).Update("updated_at", now).Error; err != nil {
			return fmt.Errorf("touch ledger: %w", err)
		}
		return nil
	})
}

// Processed returns the set of handles already handled for a source message.
func (r *LedgerRepository) Processed(ctx context.Context, sourceMessageID int64) (map[string]struct{}, error) {
	var handles []string
	err := r.db.WithContext(ctx).Model(&models.LedgerHandle{}).
		Joins("JOIN processing_ledgers ON processing_ledgers.id = ledger_handles.ledger_id").
		Where("processing_ledgers.source_message_id = ?", sourceMessageID).
		Pluck("ledger_handles.handle", &handles).Error
	if err != nil {
		return nil, fmt.Errorf("get processed handles: %w", err)
	}
	out := make(map[string]struct{}, len(handles))
	for _, h := range handles {
		out[h] = struct{}{}
	}
	return out, nil
}

// Complete marks a source message as fully processed.
func (r *LedgerRepository) Complete(ctx context.Context, sourceMessageID int64) error {
	now := r.now()
	res := r.db.WithContext(ctx).Model(&models.ProcessingLedger{}).
		Where("source_message_id = ?", sourceMessageID).
		Updates(map[string]any{
			"status":       models.LedgerCompleted,
			"completed_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return fmt.Errorf("complete ledger: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrLedgerNotFound
	}
	return nil
}

// ListIncomplete returns entries still in processing, oldest first.
func (r *LedgerRepository) ListIncomplete(ctx context.Context) ([]models.ProcessingLedger, error) {
	var out []models.ProcessingLedger
	err := r.db.WithContext(ctx).
		Where("status = ?", models.LedgerProcessing).
		Order("started_at ASC").Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list incomplete ledgers: %w", err)
	}
	return out, nil
}
