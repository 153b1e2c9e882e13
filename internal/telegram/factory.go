package telegram

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/sessionMaker"
	"github.com/celestix/gotgproto/storage"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/blockedby/chansearch/internal/config"
)

// OpenSessionStore opens the sqlite file that holds the user session and
// peer cache, creating the sessions table so QR login can write to it.
func OpenSessionStore(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	if err := db.AutoMigrate(&storage.Session{}); err != nil {
		return nil, fmt.Errorf("migrate session store: %w", err)
	}
	return db, nil
}

// NewPersistentClient creates a telegram client that keeps its session in db.
// Auth key refreshes are written back automatically.
func NewPersistentClient(ctx context.Context, cfg *config.Config, db *gorm.DB) (*gotgproto.Client, error) {
	clientOpts := &gotgproto.ClientOpts{
		Session:          sessionMaker.SqlSession(db.Dialector),
		DisableCopyright: true,
		InMemory:         false,
	}

	// an empty phone makes gotgproto rely on the stored session
	client, err := gotgproto.NewClient(
		cfg.TGApiID,
		cfg.TGApiHash,
		gotgproto.ClientTypePhone(""),
		clientOpts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram client: %w", err)
	}

	return client, nil
}
