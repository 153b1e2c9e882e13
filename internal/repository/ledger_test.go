package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/chansearch/internal/models"
)

func TestLedgerRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepository(newTestDB(t))

	got, err := repo.GetStatus(ctx, 100)
	require.NoError(t, err)
	assert.Nil(t, got, "unknown message has no ledger")

	require.NoError(t, repo.Init(ctx, 100, 3, "text @abcde", []string{"https://t.me/abcde"}))

	got, err = repo.GetStatus(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.LedgerProcessing, got.Status)
	assert.Equal(t, 3, got.TotalCount)
	assert.Equal(t, "text @abcde", got.Text)
	assert.Equal(t, []string{"https://t.me/abcde"}, got.LinkURLs)

	require.NoError(t, repo.MarkProcessed(ctx, 100, "abcde"))
	require.NoError(t, repo.MarkProcessed(ctx, 100, "ABCDE"), "second mark is a no-op")
	require.NoError(t, repo.MarkProcessed(ctx, 100, "fghij"))

	set, err := repo.Processed(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"abcde": {}, "fghij": {}}, set)

	require.NoError(t, repo.Complete(ctx, 100))
	got, err = repo.GetStatus(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, models.LedgerCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestLedgerRepository_InitOverwrites(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepository(newTestDB(t))

	require.NoError(t, repo.Init(ctx, 7, 2, "a", nil))
	require.NoError(t, repo.MarkProcessed(ctx, 7, "handle1"))
	require.NoError(t, repo.Complete(ctx, 7))

	require.NoError(t, repo.Init(ctx, 7, 5, "b", nil))

	got, err := repo.GetStatus(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, models.LedgerProcessing, got.Status)
	assert.Equal(t, 5, got.TotalCount)
	assert.Nil(t, got.CompletedAt)

	set, err := repo.Processed(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestLedgerRepository_UnknownMessage(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepository(newTestDB(t))

	assert.ErrorIs(t, repo.MarkProcessed(ctx, 1, "x"), ErrLedgerNotFound)
	assert.ErrorIs(t, repo.Complete(ctx, 1), ErrLedgerNotFound)

	set, err := repo.Processed(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestLedgerRepository_ListIncomplete(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepository(newTestDB(t))
	clock := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	require.NoError(t, repo.Init(ctx, 3, 1, "", nil))
	require.NoError(t, repo.Init(ctx, 1, 1, "", nil))
	require.NoError(t, repo.Init(ctx, 2, 1, "", nil))
	require.NoError(t, repo.Complete(ctx, 1))

	list, err := repo.ListIncomplete(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.EqualValues(t, 3, list[0].SourceMessageID, "oldest first")
	assert.EqualValues(t, 2, list[1].SourceMessageID)
}
