// Package crawler runs the background user-account crawl: it joins pending
// channels under a daily cap and mirrors new posts of joined channels into
// the storage channel while recording them for search.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/blockedby/chansearch/internal/events"
	"github.com/blockedby/chansearch/internal/logger"
	"github.com/blockedby/chansearch/internal/models"
	"github.com/blockedby/chansearch/internal/ratelimit"
	"github.com/blockedby/chansearch/internal/telegram"
)

// UserClient is the MTProto surface the crawler needs.
type UserClient interface {
	GetStatus() telegram.Status
	ResolveChannel(ctx context.Context, username string) (*telegram.Channel, error)
	JoinChannel(ctx context.Context, ch *telegram.Channel) error
	History(ctx context.Context, ch *telegram.Channel, minID int, limit int) ([]telegram.Message, error)
	ForwardToStorage(ctx context.Context, ch *telegram.Channel, msgID int, storageID int64) (int64, error)
}

// ChannelStore is the channel persistence used by the crawler.
type ChannelStore interface {
	Pending(ctx context.Context, limit int) ([]models.Channel, error)
	Crawlable(ctx context.Context) ([]models.Channel, error)
	CountVerifiedSince(ctx context.Context, t time.Time) (int64, error)
	Update(ctx context.Context, id int64, patch models.ChannelPatch) error
}

// MessageStore records crawled posts.
type MessageStore interface {
	Add(ctx context.Context, m *models.Message) (int64, error)
	LastSourceID(ctx context.Context, channelID int64) (int64, error)
}

// Options tunes one crawl cycle.
type Options struct {
	MaxChannelsPerDay int
	// JoinBatch caps the pending channels taken per cycle.
	JoinBatch        int
	JoinDelayMin     time.Duration
	JoinDelayMax     time.Duration
	HistoryLimit     int
	StorageChannelID int64
	SendDelay        time.Duration
	SendJitter       time.Duration
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{
		MaxChannelsPerDay: 10,
		JoinBatch:         5,
		JoinDelayMin:      10 * time.Second,
		JoinDelayMax:      30 * time.Second,
		HistoryLimit:      50,
		SendDelay:         2 * time.Second,
		SendJitter:        500 * time.Millisecond,
	}
}

// Deps are the collaborators of a Crawler. Publisher, Logger, Clock, Sleep
// and Rand are optional.
type Deps struct {
	Client    UserClient
	Channels  ChannelStore
	Messages  MessageStore
	Publisher events.Publisher
	Logger    *logger.Logger
	Clock     func() time.Time
	Sleep     ratelimit.SleepFunc
	// Rand returns a float in [0, 1).
	Rand func() float64
}

// CycleResult summarises one cycle.
type CycleResult struct {
	Quota      int `json:"quota"`
	Joined     int `json:"joined"`
	JoinFailed int `json:"join_failed"`
	Crawled    int `json:"crawled"`
	Stored     int `json:"stored"`
	Forwarded  int `json:"forwarded"`
	Errors     int `json:"errors"`
}

// Crawler performs crawl cycles.
type Crawler struct {
	deps Deps
	opts Options
	log  *logger.Logger

	mu       sync.Mutex
	resolved map[string]*telegram.Channel
}

// New creates a crawler, filling unset optional dependencies with defaults.
func New(deps Deps, opts Options) *Crawler {
	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = ratelimit.Sleep
	}
	if deps.Rand == nil {
		deps.Rand = rand.Float64
	}
	if opts.JoinBatch <= 0 {
		opts.JoinBatch = 5
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	return &Crawler{
		deps:     deps,
		opts:     opts,
		log:      logger.OrGlobal(deps.Logger).Component("crawler"),
		resolved: make(map[string]*telegram.Channel),
	}
}

// Ready reports whether the user client is authorized.
func (c *Crawler) Ready() bool {
	return c.deps.Client.GetStatus() == telegram.StatusReady
}

// TelegramStatus returns the user client status.
func (c *Crawler) TelegramStatus() telegram.Status {
	return c.deps.Client.GetStatus()
}

// DailyLimit returns the configured join cap.
func (c *Crawler) DailyLimit() int {
	return c.opts.MaxChannelsPerDay
}

// JoinedToday counts channels verified since local midnight.
func (c *Crawler) JoinedToday(ctx context.Context) (int64, error) {
	now := c.deps.Clock()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return c.deps.Channels.CountVerifiedSince(ctx, midnight)
}

// Cycle joins pending channels within today's quota and then crawls every
// crawlable channel.
func (c *Crawler) Cycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult

	joined, err := c.JoinedToday(ctx)
	if err != nil {
		return res, err
	}
	res.Quota = max(c.opts.MaxChannelsPerDay-int(joined), 0)

	if res.Quota == 0 {
		c.log.Info().Int64("joined_today", joined).Msg("daily join limit reached")
	} else if err := c.joinPending(ctx, min(c.opts.JoinBatch, res.Quota), &res); err != nil {
		return res, err
	}

	channels, err := c.deps.Channels.Crawlable(ctx)
	if err != nil {
		return res, err
	}
	for _, ch := range channels {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		stats, err := c.CrawlChannel(ctx, ch)
		res.Stored += stats.Stored
		res.Forwarded += stats.Forwarded
		res.Errors += stats.Errors
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return res, err
			}
			res.Errors++
			c.log.Error().Err(err).Str("handle", ch.Handle).Msg("crawl channel failed")
			continue
		}
		res.Crawled++
	}

	c.log.Info().
		Int("joined", res.Joined).
		Int("join_failed", res.JoinFailed).
		Int("crawled", res.Crawled).
		Int("stored", res.Stored).
		Msg("crawl cycle finished")
	return res, nil
}

func (c *Crawler) joinPending(ctx context.Context, limit int, res *CycleResult) error {
	pending, err := c.deps.Channels.Pending(ctx, limit)
	if err != nil {
		return err
	}

	for i, ch := range pending {
		if i > 0 {
			if err := c.deps.Sleep(ctx, c.jitter(c.opts.JoinDelayMin, c.opts.JoinDelayMax)); err != nil {
				return err
			}
		}

		joinedCh, err := c.join(ctx, ch.Handle)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if wait := telegram.FloodWaitSeconds(err); wait > 0 {
				// leave the rest pending for the next cycle
				c.log.Warn().Int("wait_seconds", wait).Str("handle", ch.Handle).Msg("join flood wait, postponing")
				return nil
			}
			res.JoinFailed++
			c.log.Warn().Err(err).Str("handle", ch.Handle).Msg("join channel failed")
			c.markFailed(ctx, ch, err)
			continue
		}

		res.Joined++
		c.markJoined(ctx, ch, joinedCh)
	}
	return nil
}

func (c *Crawler) join(ctx context.Context, handle string) (*telegram.Channel, error) {
	tch, err := c.resolve(ctx, handle)
	if err != nil {
		return nil, err
	}
	if err := c.deps.Client.JoinChannel(ctx, tch); err != nil {
		return nil, err
	}
	return tch, nil
}

func (c *Crawler) markJoined(ctx context.Context, ch models.Channel, tch *telegram.Channel) {
	now := c.deps.Clock()
	status := models.ChannelStatusActive
	verified, crawl := true, true
	patch := models.ChannelPatch{
		NumericID:    &tch.ID,
		Verified:     &verified,
		CrawlEnabled: &crawl,
		Status:       &status,
		VerifiedAt:   &now,
	}
	if tch.Title != "" {
		patch.Title = &tch.Title
	}
	if tch.About != "" && ch.Description == "" {
		patch.Description = &tch.About
	}
	if tch.Participants > 0 {
		patch.MemberCount = &tch.Participants
	}
	if err := c.deps.Channels.Update(ctx, ch.ID, patch); err != nil {
		c.log.Error().Err(err).Str("handle", ch.Handle).Msg("mark channel joined")
		return
	}
	c.log.Info().Str("handle", ch.Handle).Int64("numeric_id", tch.ID).Msg("channel joined")
}

func (c *Crawler) markFailed(ctx context.Context, ch models.Channel, cause error) {
	status := models.ChannelStatusFailed
	notes := truncate(cause.Error(), 200)
	err := c.deps.Channels.Update(ctx, ch.ID, models.ChannelPatch{Status: &status, Notes: &notes})
	if err != nil {
		c.log.Error().Err(err).Str("handle", ch.Handle).Msg("mark channel failed")
	}
}

// CrawlChannel records posts newer than the last stored one and mirrors
// each into the storage channel.
func (c *Crawler) CrawlChannel(ctx context.Context, ch models.Channel) (telegram.CrawlStats, error) {
	var stats telegram.CrawlStats
	log := c.log.With().Str("handle", ch.Handle).Logger()

	tch, err := c.resolve(ctx, ch.Handle)
	if err != nil {
		return stats, err
	}
	last, err := c.deps.Messages.LastSourceID(ctx, ch.ID)
	if err != nil {
		return stats, err
	}
	posts, err := c.deps.Client.History(ctx, tch, int(last), c.opts.HistoryLimit)
	if err != nil {
		return stats, err
	}
	stats.Fetched = len(posts)

	sent := 0
	for _, post := range posts {
		if post.Empty() {
			stats.SkippedEmpty++
			continue
		}

		msg := &models.Message{
			ChannelID:       ch.ID,
			SourceMessageID: int64(post.ID),
			Content:         post.Text,
			MediaKind:       post.MediaKind,
			PublishedAt:     post.Date.UTC(),
			CollectedAt:     c.deps.Clock().UTC(),
		}

		if c.opts.StorageChannelID != 0 {
			if sent > 0 {
				if err := c.deps.Sleep(ctx, c.opts.SendDelay+c.jitter(0, c.opts.SendJitter)); err != nil {
					return stats, err
				}
			}
			sent++
			storageID, err := c.deps.Client.ForwardToStorage(ctx, tch, post.ID, c.opts.StorageChannelID)
			if err != nil {
				if ctx.Err() != nil {
					return stats, ctx.Err()
				}
				log.Warn().Err(err).Int("source_message_id", post.ID).Msg("forward to storage failed")
			} else {
				msg.StorageMessageID = &storageID
				stats.Forwarded++
			}
		}

		if _, err := c.deps.Messages.Add(ctx, msg); err != nil {
			stats.Errors++
			log.Error().Err(err).Int("source_message_id", post.ID).Msg("store message failed")
			continue
		}
		stats.Stored++

		if err := c.deps.Publisher.PublishMessageCollected(ctx, events.NewMessageCollected(msg, ch.Handle)); err != nil {
			log.Warn().Err(err).Msg("publish message collected")
		}
	}

	now := c.deps.Clock()
	if err := c.deps.Channels.Update(ctx, ch.ID, models.ChannelPatch{LastCrawled: &now}); err != nil {
		return stats, fmt.Errorf("stamp last crawled: %w", err)
	}

	log.Debug().Int("fetched", stats.Fetched).Int("stored", stats.Stored).Msg("channel crawled")
	return stats, nil
}

// resolve looks a handle up once per process.
func (c *Crawler) resolve(ctx context.Context, handle string) (*telegram.Channel, error) {
	c.mu.Lock()
	tch, ok := c.resolved[handle]
	c.mu.Unlock()
	if ok {
		return tch, nil
	}

	tch, err := c.deps.Client.ResolveChannel(ctx, handle)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.resolved[handle] = tch
	c.mu.Unlock()
	return tch, nil
}

// jitter returns a uniform duration in [lo, hi].
func (c *Crawler) jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(c.deps.Rand()*float64(hi-lo))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
