package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/chansearch/internal/config"
)

func TestNewQRClient(t *testing.T) {
	a, err := NewQRClient(testConfig)
	require.NoError(t, err)
	b, err := NewQRClient(testConfig)
	require.NoError(t, err)

	assert.NotNil(t, a.Client)
	assert.NotNil(t, a.Dispatcher)
	require.NotNil(t, a.Storage)
	assert.NotSame(t, a.Storage, b.Storage, "each login keeps its own session")
	assert.NotSame(t, a.Dispatcher, b.Dispatcher)
}

func TestNewQRClient_NeedsCredentials(t *testing.T) {
	for _, cfg := range []*config.Config{nil, {TGApiID: 1}, {TGApiHash: "hash"}} {
		_, err := NewQRClient(cfg)
		assert.ErrorIs(t, err, errNoCredentials)
	}
}
