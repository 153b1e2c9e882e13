package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/blockedby/chansearch/internal/database"
	"github.com/blockedby/chansearch/internal/models"
)

// newTestDB opens a private in-memory SQLite database with the schema applied.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.New(context.Background(), "file:"+name+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db.GORM
}

func seedChannel(t *testing.T, repo *ChannelsRepository, handle string, at time.Time) int64 {
	t.Helper()
	id, err := repo.Add(context.Background(), &models.Channel{Handle: handle, DiscoveredAt: at, CrawlEnabled: true})
	require.NoError(t, err)
	return id
}

func seedMessage(t *testing.T, repo *MessagesRepository, channelID, sourceID int64, content string, kind models.MediaKind, at time.Time) int64 {
	t.Helper()
	id, err := repo.Add(context.Background(), &models.Message{
		ChannelID:       channelID,
		SourceMessageID: sourceID,
		Content:         content,
		MediaKind:       kind,
		PublishedAt:     at,
		CollectedAt:     at,
	})
	require.NoError(t, err)
	return id
}
