package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryRepository_Popular(t *testing.T) {
	ctx := context.Background()
	repo := NewHistoryRepository(newTestDB(t))

	for _, q := range []string{"Python", "python ", "golang", "PYTHON", "golang", "rust"} {
		require.NoError(t, repo.Record(ctx, 42, q, 3))
	}

	top, err := repo.Popular(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, QueryCount{Query: "python", Count: 3}, top[0])
	assert.Equal(t, QueryCount{Query: "golang", Count: 2}, top[1])
}
