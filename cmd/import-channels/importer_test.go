package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/chansearch/internal/extractor"
	"github.com/blockedby/chansearch/internal/logger"
	"github.com/blockedby/chansearch/internal/models"
	"github.com/blockedby/chansearch/internal/repository"
)

type memStore struct {
	rows map[string]*models.Channel
	fail string
}

func (m *memStore) Add(_ context.Context, ch *models.Channel) (int64, error) {
	if ch.Handle == m.fail {
		return 0, errors.New("disk full")
	}
	if _, ok := m.rows[ch.Handle]; ok {
		return 0, repository.ErrAlreadyExists
	}
	m.rows[ch.Handle] = ch
	return int64(len(m.rows)), nil
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newImporter(store channelStore) *importer {
	return &importer{
		store:      store,
		extractor:  extractor.New(nil),
		classifier: extractor.NewClassifier(nil, ""),
		source:     "import:list.txt",
		now:        func() time.Time { return fixedNow },
		log:        logger.Nop(),
	}
}

const importFile = `科技新闻 https://t.me/worldnews_today
电影资源 @movie_hub_cn and t.me/joinchat/AbCdEf
helper @search_helper_bot
private t.me/c/123456789
https://t.me/worldnews_today again

@existing_one`

func TestImporter_Run(t *testing.T) {
	store := &memStore{rows: map[string]*models.Channel{"existing_one": {Handle: "existing_one"}}}

	sum, err := newImporter(store).run(context.Background(), strings.NewReader(importFile))
	require.NoError(t, err)

	assert.Equal(t, summary{Lines: 7, Found: 7, Added: 2, Existing: 1, Skipped: 4}, sum)

	news := store.rows["worldnews_today"]
	require.NotNil(t, news)
	assert.Equal(t, "新闻资讯", news.Category)
	assert.Equal(t, models.ChannelStatusPending, news.Status)
	assert.Equal(t, "import:list.txt", news.DiscoveredBy)
	assert.True(t, news.CrawlEnabled)
	assert.Equal(t, fixedNow, news.DiscoveredAt)

	movie := store.rows["movie_hub_cn"]
	require.NotNil(t, movie)
	assert.Equal(t, "影视资源", movie.Category)

	assert.NotContains(t, store.rows, "search_helper_bot")
}

func TestImporter_DryRun(t *testing.T) {
	sum, err := newImporter(nil).run(context.Background(), strings.NewReader(importFile))
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Added, "existing rows are unknown without a store")
	assert.Zero(t, sum.Existing)
}

func TestImporter_CountsFailures(t *testing.T) {
	store := &memStore{rows: map[string]*models.Channel{}, fail: "movie_hub_cn"}

	sum, err := newImporter(store).run(context.Background(), strings.NewReader("@movie_hub_cn @worldnews_today"))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Added)
}

func TestSummary_String(t *testing.T) {
	s := summary{Lines: 3, Found: 2, Added: 1, Existing: 1}
	assert.Equal(t, "lines: 3, found: 2, added: 1, existing: 1, skipped: 0, failed: 0", s.String())
}
