package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/chansearch/internal/models"
)

func TestSearchRepository_SearchAll(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	channels := NewChannelsRepository(db)
	messages := NewMessagesRepository(db)
	search := NewSearchRepository(db)
	now := time.Now().UTC()

	_, err := channels.Add(ctx, &models.Channel{Handle: "python_daily", Title: "Python Daily"})
	require.NoError(t, err)
	_, err = channels.Add(ctx, &models.Channel{Handle: "misc_stuff", Notes: "mostly PYTHON memes"})
	require.NoError(t, err)
	other := seedChannel(t, channels, "unrelated", now)
	seedMessage(t, messages, other, 1, "python release notes", models.MediaText, now)
	seedMessage(t, messages, other, 2, "nothing here", models.MediaText, now)

	res, err := search.SearchAll(ctx, []string{"Python"}, 100, 0)
	require.NoError(t, err)
	assert.Len(t, res.Channels, 2, "handle, title and notes are searched")
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "unrelated", res.Messages[0].Handle)

	count, err := search.SearchAllCount(ctx, []string{"Python"})
	require.NoError(t, err)
	assert.Equal(t, UnionCount{Channels: 2, Messages: 1, Total: 3}, count)
}

func TestSearchRepository_EmptyCounts(t *testing.T) {
	search := NewSearchRepository(newTestDB(t))

	count, err := search.SearchAllCount(context.Background(), []string{"anything"})
	require.NoError(t, err)
	assert.Equal(t, UnionCount{}, count)

	res, err := search.SearchAll(context.Background(), []string{"anything"}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Channels)
	assert.Empty(t, res.Messages)
}
