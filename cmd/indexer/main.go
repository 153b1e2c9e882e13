package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/blockedby/chansearch/internal/config"
	"github.com/blockedby/chansearch/internal/events"
	"github.com/blockedby/chansearch/internal/index"
	"github.com/blockedby/chansearch/internal/logger"
	"github.com/blockedby/chansearch/internal/nats"
)

const consumerName = "indexer"

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// 2. Setup Logger
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()
	log.Info().Msg("starting indexer service")

	if cfg.NatsURL == "" || cfg.MeiliURL == "" {
		log.Fatal().Msg("NATS_URL and MEILI_URL must be set")
	}

	// 3. Setup context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// 4. Setup resources
	// NATS
	natsClient, err := nats.New(ctx, cfg.NatsURL, "chansearch-indexer")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to nats")
	}
	defer natsClient.Close()
	log.Info().Msg("connected to nats")

	if err := natsClient.EnsureEventStream(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure stream")
	}

	// Meilisearch
	meili := index.NewMeili(cfg.MeiliURL, cfg.MeiliAPIKey, cfg.MeiliIndex)
	if err := meili.Configure(); err != nil {
		log.Fatal().Err(err).Str("index", cfg.MeiliIndex).Msg("failed to configure search index")
	}
	indexer := index.NewIndexer(meili, log)
	log.Info().Str("index", cfg.MeiliIndex).Msg("search index ready")

	// 5. Consume events
	consumer, err := natsClient.Subscribe(ctx, events.StreamName, consumerName, events.Subjects(), indexer.Handle)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe")
	}
	defer consumer.Stop()
	log.Info().Strs("subjects", events.Subjects()).Msg("indexer is running")

	<-sigChan
	log.Info().Msg("received shutdown signal")
}
