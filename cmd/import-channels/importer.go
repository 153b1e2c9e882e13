package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/blockedby/chansearch/internal/extractor"
	"github.com/blockedby/chansearch/internal/logger"
	"github.com/blockedby/chansearch/internal/models"
	"github.com/blockedby/chansearch/internal/repository"
)

type channelStore interface {
	Add(ctx context.Context, ch *models.Channel) (int64, error)
}

type summary struct {
	Lines    int
	Found    int
	Added    int
	Existing int
	Skipped  int
	Failed   int
}

func (s summary) String() string {
	return fmt.Sprintf("lines: %d, found: %d, added: %d, existing: %d, skipped: %d, failed: %d",
		s.Lines, s.Found, s.Added, s.Existing, s.Skipped, s.Failed)
}

// importer inserts the public channels named in a text file. A nil store
// makes it a dry run that only counts.
type importer struct {
	store      channelStore
	extractor  *extractor.Extractor
	classifier *extractor.Classifier
	source     string
	now        func() time.Time
	log        *logger.Logger
}

func (imp *importer) run(ctx context.Context, r io.Reader) (summary, error) {
	var sum summary
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		line := scanner.Text()
		sum.Lines++

		for _, c := range imp.extractor.Extract(line) {
			sum.Found++
			if c.Kind != extractor.KindPublic || extractor.IsBotHandle(c.Handle) || seen[c.Handle] {
				sum.Skipped++
				continue
			}
			seen[c.Handle] = true

			category := imp.classifier.Classify(line)
			if imp.store == nil {
				imp.log.Info().Str("handle", c.Handle).Str("category", category).Msg("would import")
				sum.Added++
				continue
			}

			_, err := imp.store.Add(ctx, &models.Channel{
				Handle:       c.Handle,
				Category:     category,
				Status:       models.ChannelStatusPending,
				CrawlEnabled: true,
				DiscoveredBy: imp.source,
				DiscoveredAt: imp.now(),
			})
			switch {
			case errors.Is(err, repository.ErrAlreadyExists):
				sum.Existing++
			case err != nil:
				imp.log.Warn().Err(err).Str("handle", c.Handle).Msg("import channel")
				sum.Failed++
			default:
				sum.Added++
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return sum, fmt.Errorf("read import file: %w", err)
	}
	return sum, nil
}
