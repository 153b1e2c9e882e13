package api

import (
	"context"

	"github.com/blockedby/chansearch/internal/crawler"
	"github.com/blockedby/chansearch/internal/index"
	"github.com/blockedby/chansearch/internal/models"
	"github.com/blockedby/chansearch/internal/repository"
	"github.com/blockedby/chansearch/internal/search"
	"github.com/blockedby/chansearch/internal/telegram"
)

// ChannelsRepository defines the interface for channel data access.
type ChannelsRepository interface {
	List(ctx context.Context, f repository.ChannelFilter) ([]models.Channel, error)
	Count(ctx context.Context, status models.ChannelStatus) (int64, error)
	GetByHandle(ctx context.Context, handle string) (*models.Channel, error)
	GetByID(ctx context.Context, id int64) (*models.Channel, error)
	Add(ctx context.Context, ch *models.Channel) (int64, error)
	Delete(ctx context.Context, id int64) error
}

// StatsRepository defines the interface for stats data access.
type StatsRepository interface {
	GetOverview(ctx context.Context) (*repository.Overview, error)
	CountByCategory(ctx context.Context) (map[string]int64, error)
	TopChannels(ctx context.Context, limit int) ([]repository.ChannelActivity, error)
}

// Searcher runs relational searches.
type Searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Page, error)
}

// IndexSearcher queries the full-text mirror.
type IndexSearcher interface {
	Search(ctx context.Context, query, kind string, limit int64) ([]index.Document, error)
}

// Classifier assigns a category to free text.
type Classifier interface {
	Classify(texts ...string) string
	Has(name string) bool
}

// CrawlerService controls the crawl loop.
type CrawlerService interface {
	Start(ctx context.Context) (*crawler.Run, error)
	Stop(ctx context.Context) error
	Status(ctx context.Context) (crawler.Status, error)
}

// TelegramClient defines the interface for Telegram operations.
type TelegramClient interface {
	GetStatus() telegram.Status
	IsQRInProgress() bool
	StartQR(ctx context.Context, onURL func(string)) error
}

// HubBroadcaster defines the interface for WebSocket broadcasting.
type HubBroadcaster interface {
	Broadcast(message interface{})
}
