package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/chansearch/internal/extractor"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "HTTP_PORT", "ADMIN_IDS", "CHANNEL_VERIFY_DELAY", "FETCH_MEMBER_COUNT", "MEILI_INDEX", "CRAWLER_ENABLED"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./data/channels.db", cfg.DatabaseURL)
	assert.Equal(t, 3100, cfg.HTTPPort)
	assert.Empty(t, cfg.AdminIDs)
	assert.Equal(t, 3*time.Second, cfg.ChannelVerifyDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.StorageSendRandomDelay)
	assert.Equal(t, 30*time.Minute, cfg.CrawlInterval)
	assert.True(t, cfg.FetchMemberCount)
	assert.False(t, cfg.CrawlerEnabled)
	assert.Equal(t, "channels", cfg.MeiliIndex)
	assert.Equal(t, 20, cfg.APIRateMaxCalls)
	assert.Equal(t, time.Minute, cfg.APIRateWindow)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("ADMIN_IDS", " 11, 22 ,")
	t.Setenv("COLLECT_CHANNEL_ID", "-1003241208550")
	t.Setenv("CRAWLER_ENABLED", "TRUE")
	t.Setenv("CHANNEL_VERIFY_DELAY", "1.5")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("HTTP_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []int64{11, 22}, cfg.AdminIDs)
	assert.Equal(t, int64(-1003241208550), cfg.CollectChannelID)
	assert.True(t, cfg.CrawlerEnabled)
	assert.Equal(t, 1500*time.Millisecond, cfg.ChannelVerifyDelay)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, 3100, cfg.HTTPPort, "malformed ints fall back to the default")
}

func TestLoad_BadAdminID(t *testing.T) {
	t.Setenv("ADMIN_IDS", "11,abc")

	_, err := Load()
	assert.ErrorContains(t, err, "ADMIN_IDS")
}

func TestConfig_IsAdmin(t *testing.T) {
	open := &Config{}
	assert.True(t, open.IsAdmin(42))

	closed := &Config{AdminIDs: []int64{7}}
	assert.True(t, closed.IsAdmin(7))
	assert.False(t, closed.IsAdmin(42))
}

func TestConfig_Validate(t *testing.T) {
	assert.ErrorIs(t, (&Config{}).Validate(), ErrMissingBotToken)
	assert.NoError(t, (&Config{BotToken: "123:abc"}).Validate())
}

func TestConfig_Switches(t *testing.T) {
	cfg := &Config{TGApiID: 1}
	assert.False(t, cfg.HasUserClient())
	cfg.TGApiHash = "hash"
	assert.True(t, cfg.HasUserClient())

	assert.False(t, cfg.LLMEnabled())
	cfg.LLMAPIKey = "sk"
	assert.True(t, cfg.LLMEnabled())
}

func TestLoadCategories_Default(t *testing.T) {
	f, err := LoadCategories("")
	require.NoError(t, err)
	assert.Len(t, f.Categories, 10)
	assert.Equal(t, extractor.OtherCategory, f.Fallback)
}

func TestLoadCategories_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categories.yaml")
	data := `
categories:
  - name: Golang
    keywords: [go, golang, gopher]
  - name: Rust
    keywords: [rust, cargo]
fallback: Misc
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	f, err := LoadCategories(path)
	require.NoError(t, err)
	assert.Len(t, f.Categories, 2)
	assert.Equal(t, "Misc", f.Fallback)

	c := f.Classifier()
	assert.Equal(t, "Golang", c.Classify("weekly gopher digest"))
	assert.Equal(t, "Misc", c.Classify("cooking"))
}

func TestParseCategories_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"empty", "categories: []", "no categories"},
		{"missing name", "categories:\n  - keywords: [a]", "missing name"},
		{"duplicate", "categories:\n  - {name: A, keywords: [a]}\n  - {name: A, keywords: [b]}", "duplicate"},
		{"no keywords", "categories:\n  - {name: A, keywords: [' ']}", "no keywords"},
		{"fallback shadows", "categories:\n  - {name: A, keywords: [a]}\nfallback: A", "shadows"},
		{"bad yaml", "categories: [", "parse categories"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCategories([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadCategories_MissingFile(t *testing.T) {
	_, err := LoadCategories(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read categories file")
}
