package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/chansearch/internal/models"
)

func TestStatsRepository_Overview(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	stats := NewStatsRepository(db)

	empty, err := stats.GetOverview(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalChannels)
	assert.Zero(t, empty.TotalMessages)

	channels := NewChannelsRepository(db)
	messages := NewMessagesRepository(db)
	now := time.Now().UTC()

	a := seedChannel(t, channels, "active_one", now)
	seedChannel(t, channels, "pending_one", now)
	f := seedChannel(t, channels, "failed_one", now)
	active, failed := models.ChannelStatusActive, models.ChannelStatusFailed
	require.NoError(t, channels.Update(ctx, a, models.ChannelPatch{Status: &active}))
	require.NoError(t, channels.Update(ctx, f, models.ChannelPatch{Status: &failed}))
	seedMessage(t, messages, a, 1, "x", models.MediaPhoto, now)
	seedMessage(t, messages, a, 2, "y", models.MediaText, now)

	o, err := stats.GetOverview(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, o.TotalChannels)
	assert.EqualValues(t, 1, o.ActiveChannels)
	assert.EqualValues(t, 1, o.PendingChannels)
	assert.EqualValues(t, 1, o.FailedChannels)
	assert.EqualValues(t, 2, o.TotalMessages)
	assert.EqualValues(t, 1, o.ByMediaKind[models.MediaPhoto])
}

func TestStatsRepository_TopChannels(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	stats := NewStatsRepository(db)
	channels := NewChannelsRepository(db)
	messages := NewMessagesRepository(db)
	now := time.Now().UTC()
	active := models.ChannelStatusActive

	busy := seedChannel(t, channels, "busy_chan", now)
	quiet := seedChannel(t, channels, "quiet_chan", now)
	idle := seedChannel(t, channels, "idle_chan", now)
	pending := seedChannel(t, channels, "pending_chan", now)
	for _, id := range []int64{busy, quiet, idle} {
		require.NoError(t, channels.Update(ctx, id, models.ChannelPatch{Status: &active}))
	}
	for i := int64(1); i <= 3; i++ {
		seedMessage(t, messages, busy, i, "m", models.MediaText, now)
	}
	seedMessage(t, messages, quiet, 1, "m", models.MediaText, now)
	seedMessage(t, messages, pending, 1, "m", models.MediaText, now)

	top, err := stats.TopChannels(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2, "channels without messages and non-active channels are excluded")
	assert.Equal(t, "busy_chan", top[0].Handle)
	assert.EqualValues(t, 3, top[0].MessageCount)
	assert.Equal(t, "quiet_chan", top[1].Handle)
}
