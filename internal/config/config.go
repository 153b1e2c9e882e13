// package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingBotToken is returned by Validate when BOT_TOKEN is unset.
var ErrMissingBotToken = errors.New("BOT_TOKEN is not set")

// Config holds all application configuration.
type Config struct {
	// bot
	BotToken         string
	AdminIDs         []int64
	CollectChannelID int64
	StorageChannelID int64
	SearchGroupID    int64

	// telegram user client
	TGApiID     int
	TGApiHash   string
	PhoneNumber string
	SessionFile string

	// crawler
	CrawlerEnabled    bool
	MaxChannelsPerDay int
	CrawlDelayMin     time.Duration
	CrawlDelayMax     time.Duration
	CrawlInterval     time.Duration

	// search
	SearchAdText    string
	SearchAdEnabled bool
	ResultsPerPage  int

	// ingestion
	ChannelVerifyDelay       time.Duration
	ChannelVerifyRandomDelay time.Duration
	StorageSendDelay         time.Duration
	StorageSendRandomDelay   time.Duration
	EnrichBatchSize          int
	EnrichCooldownMin        time.Duration
	EnrichCooldownMax        time.Duration
	APIRateMaxCalls          int
	APIRateWindow            time.Duration
	RateLimitMaxRetries      int
	AvatarDir                string
	FetchMemberCount         bool
	CategoriesFile           string

	// database
	DatabaseURL string

	// nats
	NatsURL string

	// meilisearch
	MeiliURL    string
	MeiliAPIKey string
	MeiliIndex  string

	// llm
	LLMBaseURL     string
	LLMModel       string
	LLMAPIKey      string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMTimeoutSec  int
	LLMPromptFile  string

	// server
	HTTPPort    int
	CORSOrigins []string

	// logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from the environment, after loading .env when
// one exists in the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	adminIDs, err := getEnvInt64List("ADMIN_IDS")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		BotToken:         getEnv("BOT_TOKEN", ""),
		AdminIDs:         adminIDs,
		CollectChannelID: getEnvInt64("COLLECT_CHANNEL_ID", 0),
		StorageChannelID: getEnvInt64("STORAGE_CHANNEL_ID", 0),
		SearchGroupID:    getEnvInt64("SEARCH_GROUP_ID", 0),

		TGApiID:     getEnvInt("API_ID", 0),
		TGApiHash:   getEnv("API_HASH", ""),
		PhoneNumber: getEnv("PHONE_NUMBER", ""),
		SessionFile: getEnv("SESSION_FILE", "./data/crawler_session.db"),

		CrawlerEnabled:    getEnvBool("CRAWLER_ENABLED", false),
		MaxChannelsPerDay: getEnvInt("MAX_CHANNELS_PER_DAY", 10),
		CrawlDelayMin:     getEnvSeconds("CRAWL_DELAY_MIN", 10),
		CrawlDelayMax:     getEnvSeconds("CRAWL_DELAY_MAX", 30),
		CrawlInterval:     getEnvSeconds("CRAWL_INTERVAL", 30*60),

		SearchAdText:    getEnv("SEARCH_AD_TEXT", ""),
		SearchAdEnabled: getEnvBool("SEARCH_AD_ENABLED", false),
		ResultsPerPage:  getEnvInt("RESULTS_PER_PAGE", 10),

		ChannelVerifyDelay:       getEnvSeconds("CHANNEL_VERIFY_DELAY", 3.0),
		ChannelVerifyRandomDelay: getEnvSeconds("CHANNEL_VERIFY_RANDOM_DELAY", 1.0),
		StorageSendDelay:         getEnvSeconds("STORAGE_SEND_DELAY", 2.0),
		StorageSendRandomDelay:   getEnvSeconds("STORAGE_SEND_RANDOM_DELAY", 0.5),
		EnrichBatchSize:          getEnvInt("ENRICH_BATCH_SIZE", 5),
		EnrichCooldownMin:        getEnvSeconds("ENRICH_BATCH_COOLDOWN_MIN", 20),
		EnrichCooldownMax:        getEnvSeconds("ENRICH_BATCH_COOLDOWN_MAX", 40),
		APIRateMaxCalls:          getEnvInt("API_RATE_MAX_CALLS", 20),
		APIRateWindow:            getEnvSeconds("API_RATE_WINDOW", 60),
		RateLimitMaxRetries:      getEnvInt("RATE_LIMIT_MAX_RETRIES", 0),
		AvatarDir:                getEnv("AVATAR_DIR", "./data/avatars"),
		FetchMemberCount:         getEnvBool("FETCH_MEMBER_COUNT", true),
		CategoriesFile:           getEnv("CATEGORIES_FILE", ""),

		DatabaseURL: getEnv("DATABASE_URL", "./data/channels.db"),
		NatsURL:     getEnv("NATS_URL", ""),

		MeiliURL:    getEnv("MEILI_URL", ""),
		MeiliAPIKey: getEnv("MEILI_API_KEY", ""),
		MeiliIndex:  getEnv("MEILI_INDEX", "channels"),

		LLMBaseURL:     getEnv("LLM_BASE_URL", "http://localhost:1234/v1"),
		LLMModel:       getEnv("LLM_MODEL", "local-model"),
		LLMAPIKey:      getEnv("LLM_API_KEY", ""),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 64),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.1),
		LLMTimeoutSec:  getEnvInt("LLM_TIMEOUT_SECONDS", 30),
		LLMPromptFile:  getEnv("LLM_PROMPT_FILE", ""),

		HTTPPort:    getEnvInt("HTTP_PORT", 3100),
		CORSOrigins: getEnvList("CORS_ORIGINS"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}

	return cfg, nil
}

// Validate reports configuration the bot cannot start without.
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return ErrMissingBotToken
	}
	return nil
}

// IsAdmin reports whether userID may use admin commands. An empty admin
// list admits everyone.
func (c *Config) IsAdmin(userID int64) bool {
	if len(c.AdminIDs) == 0 {
		return true
	}
	return slices.Contains(c.AdminIDs, userID)
}

// HasUserClient reports whether MTProto credentials are present.
func (c *Config) HasUserClient() bool {
	return c.TGApiID != 0 && c.TGApiHash != ""
}

// LLMEnabled reports whether the category fallback is configured.
func (c *Config) LLMEnabled() bool {
	return c.LLMAPIKey != ""
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(val))); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvSeconds reads a possibly fractional number of seconds.
func getEnvSeconds(key string, defaultSec float64) time.Duration {
	return time.Duration(getEnvFloat(key, defaultSec) * float64(time.Second))
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvInt64List parses a comma separated id list. Unlike the scalar
// helpers a malformed entry is an error.
func getEnvInt64List(key string) ([]int64, error) {
	var out []int64
	for _, part := range getEnvList(key) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s entry %q: %w", key, part, err)
		}
		out = append(out, id)
	}
	return out, nil
}
