package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blockedby/chansearch/internal/config"
	"github.com/blockedby/chansearch/internal/database"
	"github.com/blockedby/chansearch/internal/extractor"
	"github.com/blockedby/chansearch/internal/logger"
	"github.com/blockedby/chansearch/internal/repository"
)

func main() {
	file := flag.String("file", "", "text file with one or more channel links per line")
	dryRun := flag.Bool("dry-run", false, "parse and classify without writing to the database")
	flag.Parse()

	if *file == "" {
		fmt.Println("usage: import-channels -file <path> [-dry-run]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()

	categories, err := config.LoadCategories(cfg.CategoriesFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.CategoriesFile).Msg("failed to load categories")
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open import file")
	}
	defer f.Close()

	ctx := context.Background()
	imp := &importer{
		extractor:  extractor.New(nil),
		classifier: categories.Classifier(),
		source:     "import:" + filepath.Base(*file),
		now:        time.Now,
		log:        log,
	}

	if !*dryRun {
		db, err := database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		imp.store = repository.NewChannelsRepository(db.GORM)
	}

	sum, err := imp.run(ctx, f)
	if err != nil {
		log.Fatal().Err(err).Msg("import failed")
	}

	fmt.Println(sum)
	if *dryRun {
		fmt.Println("dry run: nothing was written")
	}
}
