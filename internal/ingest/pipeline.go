// Package ingest turns messages posted to the collect channel into channel
// records: it extracts candidates, enriches them through the Bot API under
// pacing, and tracks progress in a ledger so an interrupted message resumes
// where it stopped.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/blockedby/chansearch/internal/botapi"
	"github.com/blockedby/chansearch/internal/events"
	"github.com/blockedby/chansearch/internal/extractor"
	"github.com/blockedby/chansearch/internal/logger"
	"github.com/blockedby/chansearch/internal/models"
	"github.com/blockedby/chansearch/internal/ratelimit"
	"github.com/blockedby/chansearch/internal/repository"
)

// ErrRetryLimit is returned when a call stays rate limited past MaxRateLimitRetries.
var ErrRetryLimit = errors.New("rate limit retries exhausted")

// ChannelStore is the channel persistence used by the pipeline.
type ChannelStore interface {
	GetByHandle(ctx context.Context, handle string) (*models.Channel, error)
	Add(ctx context.Context, ch *models.Channel) (int64, error)
	UpdateByHandle(ctx context.Context, handle string, patch models.ChannelPatch) error
}

// CardStore stores channel metadata cards in the messages table.
type CardStore interface {
	Add(ctx context.Context, m *models.Message) (int64, error)
}

// Ledger records per-message progress.
type Ledger interface {
	GetStatus(ctx context.Context, sourceMessageID int64) (*models.ProcessingLedger, error)
	Init(ctx context.Context, sourceMessageID int64, total int, text string, linkURLs []string) error
	MarkProcessed(ctx context.Context, sourceMessageID int64, handle string) error
	Processed(ctx context.Context, sourceMessageID int64) (map[string]struct{}, error)
	Complete(ctx context.Context, sourceMessageID int64) error
	ListIncomplete(ctx context.Context) ([]models.ProcessingLedger, error)
}

// Lookup resolves public chats through the Bot API.
type Lookup interface {
	GetChat(ctx context.Context, handle string) (*botapi.ChatInfo, error)
	MemberCount(ctx context.Context, handle string) (int, error)
	DownloadFile(ctx context.Context, fileID, dest string) error
}

// Limiter admits outbound calls.
type Limiter interface {
	Admit(ctx context.Context) (time.Duration, error)
}

// CategoryFallback picks a category when keyword scoring finds nothing.
type CategoryFallback interface {
	Categorize(ctx context.Context, text string, categories []string) (string, error)
}

// SourceMessage is one message from the collect channel.
type SourceMessage struct {
	ID       int64
	Text     string
	LinkURLs []string
}

// Result summarises one Ingest call.
type Result struct {
	Added       int  `json:"added"`
	Skipped     int  `json:"skipped"`
	Failed      int  `json:"failed"`
	Resumed     bool `json:"resumed"`
	AlreadyDone bool `json:"already_done"`
}

// Options tunes pacing and optional enrichment.
type Options struct {
	// BatchSize is the number of external calls between cooldowns. 0 disables cooldowns.
	BatchSize    int
	VerifyDelay  time.Duration
	VerifyJitter time.Duration
	CooldownMin  time.Duration
	CooldownMax  time.Duration
	// MaxRateLimitRetries bounds retry-after loops per call. 0 means unbounded.
	MaxRateLimitRetries int
	// AvatarDir receives downloaded avatars. Empty disables downloads.
	AvatarDir        string
	FetchMemberCount bool
}

// DefaultOptions returns the production pacing.
func DefaultOptions() Options {
	return Options{
		BatchSize:        5,
		VerifyDelay:      3 * time.Second,
		VerifyJitter:     time.Second,
		CooldownMin:      20 * time.Second,
		CooldownMax:      40 * time.Second,
		AvatarDir:        "./data/avatars",
		FetchMemberCount: true,
	}
}

// Deps are the collaborators of a Pipeline. Clock, Sleep, Rand, Limiter,
// Publisher, Fallback, Cards and Logger are optional. Without Cards, added
// channels are searchable through the channels table only.
type Deps struct {
	Channels   ChannelStore
	Cards      CardStore
	Ledger     Ledger
	Lookup     Lookup
	Limiter    Limiter
	Extractor  *extractor.Extractor
	Classifier *extractor.Classifier
	Fallback   CategoryFallback
	Publisher  events.Publisher
	Logger     *logger.Logger
	Clock      func() time.Time
	Sleep      ratelimit.SleepFunc
	// Rand returns a float in [0, 1).
	Rand func() float64
}

// Pipeline ingests collect-channel messages.
type Pipeline struct {
	deps  Deps
	opts  Options
	log   *logger.Logger
	locks *keyedMutex
}

// New creates a pipeline, filling unset optional dependencies with defaults.
func New(deps Deps, opts Options) *Pipeline {
	if deps.Extractor == nil {
		deps.Extractor = extractor.New(nil)
	}
	if deps.Classifier == nil {
		deps.Classifier = extractor.NewClassifier(nil, "")
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.New(0, time.Minute)
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}
	if deps.Sleep == nil {
		deps.Sleep = ratelimit.Sleep
	}
	if deps.Rand == nil {
		deps.Rand = rand.Float64
	}
	return &Pipeline{
		deps:  deps,
		opts:  opts,
		log:   logger.OrGlobal(deps.Logger).Component("ingest"),
		locks: newKeyedMutex(),
	}
}

// Candidates collects channel candidates from the text and each link URL,
// deduplicated by handle in first-seen order.
func (p *Pipeline) Candidates(msg SourceMessage) []extractor.Candidate {
	var (
		out  []extractor.Candidate
		seen = make(map[string]struct{})
	)
	collect := func(text string) {
		for _, c := range p.deps.Extractor.Extract(text) {
			if _, dup := seen[c.Handle]; dup {
				continue
			}
			seen[c.Handle] = struct{}{}
			out = append(out, c)
		}
	}
	collect(msg.Text)
	for _, u := range msg.LinkURLs {
		collect(u)
	}
	return out
}

// Ingest processes one message. A message is enriched at most once: after
// completion further calls return AlreadyDone, and an interrupted run resumes
// with the handles not yet marked processed.
func (p *Pipeline) Ingest(ctx context.Context, msg SourceMessage) (Result, error) {
	var res Result

	candidates := p.Candidates(msg)
	if len(candidates) == 0 {
		return res, nil
	}

	unlock := p.locks.Lock(msg.ID)
	defer unlock()

	log := p.log.With().Int64("source_message_id", msg.ID).Logger()

	entry, err := p.deps.Ledger.GetStatus(ctx, msg.ID)
	if err != nil {
		return res, fmt.Errorf("get ledger status: %w", err)
	}

	processed := map[string]struct{}{}
	switch {
	case entry != nil && entry.Status == models.LedgerCompleted:
		log.Debug().Msg("message already processed")
		res.AlreadyDone = true
		return res, nil
	case entry != nil:
		processed, err = p.deps.Ledger.Processed(ctx, msg.ID)
		if err != nil {
			return res, fmt.Errorf("load processed handles: %w", err)
		}
		res.Resumed = true
		log.Info().Int("done", len(processed)).Int("total", len(candidates)).Msg("resuming message")
	default:
		err := p.retry(ctx, func() error {
			return p.deps.Ledger.Init(ctx, msg.ID, len(candidates), msg.Text, msg.LinkURLs)
		})
		if err != nil {
			return res, fmt.Errorf("init ledger: %w", err)
		}
	}

	var pending []extractor.Candidate
	for _, c := range candidates {
		if _, done := processed[c.Handle]; !done {
			pending = append(pending, c)
		}
	}

	calls := 0
	for i, c := range pending {
		out, n, err := p.process(ctx, msg, c)
		calls += n
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			log.Error().Err(err).Str("handle", c.Handle).Msg("candidate failed")
			out = outcomeFailed
		}
		switch out {
		case outcomeAdded:
			res.Added++
		case outcomeSkipped:
			res.Skipped++
		case outcomeFailed:
			res.Failed++
		}

		if err := p.markProcessed(ctx, msg.ID, c.Handle); err != nil {
			return res, err
		}

		if p.opts.BatchSize > 0 && calls >= p.opts.BatchSize && i < len(pending)-1 {
			calls = 0
			d := p.between(p.opts.CooldownMin, p.opts.CooldownMax)
			log.Debug().Dur("cooldown", d).Msg("batch cooldown")
			if err := p.deps.Sleep(ctx, d); err != nil {
				return res, err
			}
		}
	}

	err = p.retry(ctx, func() error { return p.deps.Ledger.Complete(ctx, msg.ID) })
	if err != nil {
		return res, fmt.Errorf("complete ledger: %w", err)
	}

	log.Info().
		Int("added", res.Added).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("message processed")
	return res, nil
}

// ResumeIncomplete re-ingests every unfinished ledger entry, oldest first,
// and returns how many were resumed.
func (p *Pipeline) ResumeIncomplete(ctx context.Context) (int, error) {
	entries, err := p.deps.Ledger.ListIncomplete(ctx)
	if err != nil {
		return 0, fmt.Errorf("list incomplete: %w", err)
	}

	resumed := 0
	for _, e := range entries {
		msg := SourceMessage{ID: e.SourceMessageID, Text: e.Text, LinkURLs: e.LinkURLs}
		if len(p.Candidates(msg)) == 0 {
			// nothing left to extract, close the entry
			if err := p.retry(ctx, func() error { return p.deps.Ledger.Complete(ctx, e.SourceMessageID) }); err != nil {
				return resumed, fmt.Errorf("complete empty ledger: %w", err)
			}
			continue
		}
		if _, err := p.Ingest(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return resumed, ctx.Err()
			}
			p.log.Error().Err(err).Int64("source_message_id", e.SourceMessageID).Msg("resume failed")
			continue
		}
		resumed++
	}
	return resumed, nil
}

func (p *Pipeline) markProcessed(ctx context.Context, sourceMessageID int64, handle string) error {
	err := p.retry(ctx, func() error {
		return p.deps.Ledger.MarkProcessed(ctx, sourceMessageID, handle)
	})
	if err != nil {
		return fmt.Errorf("mark %s processed: %w", handle, err)
	}
	return nil
}

// retry runs a ledger write with a short exponential backoff.
func (p *Pipeline) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second
	return backoff.Retry(func() error {
		err := op()
		if errors.Is(err, repository.ErrLedgerNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, 3), ctx))
}

// between returns a random duration in [lo, hi].
func (p *Pipeline) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(p.deps.Rand()*float64(hi-lo))
}
