package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/blockedby/chansearch/internal/api"
	"github.com/blockedby/chansearch/internal/bot"
	"github.com/blockedby/chansearch/internal/botapi"
	"github.com/blockedby/chansearch/internal/config"
	"github.com/blockedby/chansearch/internal/crawler"
	"github.com/blockedby/chansearch/internal/database"
	"github.com/blockedby/chansearch/internal/events"
	"github.com/blockedby/chansearch/internal/extractor"
	"github.com/blockedby/chansearch/internal/index"
	"github.com/blockedby/chansearch/internal/ingest"
	"github.com/blockedby/chansearch/internal/llm"
	"github.com/blockedby/chansearch/internal/logger"
	"github.com/blockedby/chansearch/internal/nats"
	"github.com/blockedby/chansearch/internal/publisher"
	"github.com/blockedby/chansearch/internal/ratelimit"
	"github.com/blockedby/chansearch/internal/reports"
	"github.com/blockedby/chansearch/internal/repository"
	"github.com/blockedby/chansearch/internal/search"
	"github.com/blockedby/chansearch/internal/telegram"
	"github.com/blockedby/chansearch/internal/web"
)

var version = "dev"

const (
	apiTitle       = "chansearch API"
	apiDescription = "Admin API for the Telegram channel search bot"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// 2. Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	log.Info().Str("version", version).Msg("starting chansearch bot")

	// 3. Setup context with graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Connect to database
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Str("driver", db.Driver).Msg("database ready")

	// 5. Initialize repositories
	channelsRepo := repository.NewChannelsRepository(db.GORM)
	messagesRepo := repository.NewMessagesRepository(db.GORM)
	ledgerRepo := repository.NewLedgerRepository(db.GORM)
	configRepo := repository.NewConfigRepository(db.GORM)
	historyRepo := repository.NewHistoryRepository(db.GORM)
	statsRepo := repository.NewStatsRepository(db.GORM)
	searchRepo := repository.NewSearchRepository(db.GORM)

	if cfg.CrawlerEnabled {
		seedCrawlerFlag(ctx, configRepo)
	}

	// 6. Load categories
	categories, err := config.LoadCategories(cfg.CategoriesFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.CategoriesFile).Msg("failed to load categories")
	}
	classifier := extractor.NewClassifier(categories.Categories, categories.Fallback)

	// 7. Event fan-out: websocket hub plus NATS when configured
	hub := web.NewHub()
	go hub.Run()

	pubs := events.Fanout{hub}
	if cfg.NatsURL != "" {
		nc, err := nats.New(ctx, cfg.NatsURL, "chansearch-bot")
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to nats, publishing disabled")
		} else {
			defer nc.Close()
			if err := nc.EnsureEventStream(ctx); err != nil {
				log.Warn().Err(err).Msg("failed to ensure event stream")
			}
			pubs = append(pubs, publisher.NewNATSPublisher(nc.Conn))
		}
	}

	// 8. Bot API client
	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to bot api")
	}
	log.Info().Str("username", botAPI.Self.UserName).Msg("bot authorized")

	// 9. Ingestion pipeline
	var fallback ingest.CategoryFallback
	if cfg.LLMEnabled() {
		client := llm.NewClient(llm.Config{
			BaseURL:     cfg.LLMBaseURL,
			Model:       cfg.LLMModel,
			APIKey:      cfg.LLMAPIKey,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: float32(cfg.LLMTemperature),
			Timeout:     time.Duration(cfg.LLMTimeoutSec) * time.Second,
		})
		prompt := llm.DefaultCategoryPrompt()
		if cfg.LLMPromptFile != "" {
			if prompt, err = llm.LoadPrompt(cfg.LLMPromptFile); err != nil {
				log.Fatal().Err(err).Str("file", cfg.LLMPromptFile).Msg("failed to load category prompt")
			}
		}
		fallback = llm.NewCategorizer(client, prompt)
		log.Info().Str("model", cfg.LLMModel).Msg("llm category fallback enabled")
	}

	pipeline := ingest.New(ingest.Deps{
		Channels:   channelsRepo,
		Cards:      messagesRepo,
		Ledger:     ledgerRepo,
		Lookup:     botapi.New(botAPI),
		Limiter:    ratelimit.New(cfg.APIRateMaxCalls, cfg.APIRateWindow),
		Classifier: classifier,
		Fallback:   fallback,
		Publisher:  pubs,
		Logger:     log,
	}, ingest.Options{
		BatchSize:           cfg.EnrichBatchSize,
		VerifyDelay:         cfg.ChannelVerifyDelay,
		VerifyJitter:        cfg.ChannelVerifyRandomDelay,
		CooldownMin:         cfg.EnrichCooldownMin,
		CooldownMax:         cfg.EnrichCooldownMax,
		MaxRateLimitRetries: cfg.RateLimitMaxRetries,
		AvatarDir:           cfg.AvatarDir,
		FetchMemberCount:    cfg.FetchMemberCount,
	})

	go func() {
		n, err := pipeline.ResumeIncomplete(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("resume incomplete messages")
			return
		}
		if n > 0 {
			log.Info().Int("messages", n).Msg("resumed incomplete messages")
		}
	}()

	// 10. Telegram user client and crawler
	var (
		tgClient   *telegram.Client
		crawlerMgr *crawler.Manager
	)
	if cfg.HasUserClient() {
		sessionDB, err := telegram.OpenSessionStore(cfg.SessionFile)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open telegram session store")
		}

		tgManager := telegram.NewManager(cfg, sessionDB)
		if err := tgManager.Init(ctx); err != nil {
			log.Error().Err(err).Msg("telegram manager init failed")
		}
		tgClient = telegram.NewClient(tgManager)
		defer tgClient.Close()

		c := crawler.New(crawler.Deps{
			Client:    tgClient,
			Channels:  channelsRepo,
			Messages:  messagesRepo,
			Publisher: pubs,
			Logger:    log,
		}, crawler.Options{
			MaxChannelsPerDay: cfg.MaxChannelsPerDay,
			JoinDelayMin:      cfg.CrawlDelayMin,
			JoinDelayMax:      cfg.CrawlDelayMax,
			StorageChannelID:  cfg.StorageChannelID,
			SendDelay:         cfg.StorageSendDelay,
			SendJitter:        cfg.StorageSendRandomDelay,
		})
		crawlerMgr = crawler.NewManager(c, configRepo, cfg.CrawlInterval,
			crawler.WithNotifier(hub),
			crawler.WithLogger(log),
		)
		if _, err := crawlerMgr.Resume(ctx); err != nil {
			log.Error().Err(err).Msg("failed to resume crawler")
		}
	} else {
		log.Info().Msg("API_ID/API_HASH not set, crawler disabled")
	}

	// 11. Search and reports
	engine := search.NewEngine(searchRepo,
		search.WithPageSize(cfg.ResultsPerPage),
		search.WithRecorder(historyRepo),
		search.WithLogger(log),
	)
	reporter := reports.NewGenerator(statsRepo, channelsRepo, configRepo)

	// 12. HTTP surface
	var server *web.Server
	if cfg.HTTPPort > 0 {
		deps := &api.Dependencies{
			Channels:   channelsRepo,
			Stats:      statsRepo,
			Search:     engine,
			Classifier: classifier,
			Publisher:  pubs,
			Hub:        hub,
		}
		if crawlerMgr != nil {
			deps.Crawler = crawlerMgr
			deps.Telegram = tgClient
		}
		if cfg.MeiliURL != "" {
			deps.Index = index.NewIndexer(index.NewMeili(cfg.MeiliURL, cfg.MeiliAPIKey, cfg.MeiliIndex), log)
		}

		apiServer := api.NewServer(&api.Config{
			Title:       apiTitle,
			Description: apiDescription,
			Version:     version,
		}, deps)

		server = web.NewServer(&web.Config{
			Port:        cfg.HTTPPort,
			CORSOrigins: cfg.CORSOrigins,
			Version:     version,
		}, hub)
		server.Mount("/api", apiServer.Handler())
		apiServer.MountDocsOn(server.Router(), apiTitle, apiDescription)

		log.Info().Int("port", cfg.HTTPPort).Msg("starting web server")
		go func() {
			if err := server.Start(); err != nil {
				log.Error().Err(err).Msg("server error")
				cancel()
			}
		}()
	}

	// 13. Bot update loop
	b := bot.New(bot.Deps{
		API:        botAPI,
		Search:     engine,
		Reports:    reporter,
		Ingest:     pipeline,
		Channels:   channelsRepo,
		Crawler:    botCrawler(crawlerMgr),
		Classifier: classifier,
		Publisher:  pubs,
		Logger:     log,
	}, bot.Options{
		AdminIDs:         cfg.AdminIDs,
		CollectChannelID: cfg.CollectChannelID,
		SearchGroupID:    cfg.SearchGroupID,
		StorageChannelID: cfg.StorageChannelID,
		AdText:           cfg.SearchAdText,
		AdEnabled:        cfg.SearchAdEnabled,
	})

	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("bot stopped")
	}

	// 14. Shutdown
	log.Info().Msg("shutting down services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if crawlerMgr != nil {
		if err := crawlerMgr.Shutdown(shutdownCtx); err != nil && !errors.Is(err, crawler.ErrNotRunning) {
			log.Warn().Err(err).Msg("crawler shutdown")
		}
	}
	if server != nil {
		if err := server.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("web server shutdown")
		}
	}

	log.Info().Msg("shutdown complete")
}

// seedCrawlerFlag turns the persisted crawler switch on when it has never
// been set, so CRAWLER_ENABLED only applies to a fresh database.
func seedCrawlerFlag(ctx context.Context, flags *repository.ConfigRepository) {
	current, err := flags.GetFlag(ctx, repository.CrawlerEnabledKey, "")
	if err != nil || current != "" {
		return
	}
	if err := flags.SetBool(ctx, repository.CrawlerEnabledKey, true); err != nil {
		logger.Get().Warn().Err(err).Msg("failed to seed crawler flag")
	}
}

// botCrawler keeps a nil manager a nil interface.
func botCrawler(m *crawler.Manager) bot.Crawler {
	if m == nil {
		return nil
	}
	return m
}
