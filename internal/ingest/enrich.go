package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blockedby/chansearch/internal/botapi"
	"github.com/blockedby/chansearch/internal/events"
	"github.com/blockedby/chansearch/internal/extractor"
	"github.com/blockedby/chansearch/internal/models"
	"github.com/blockedby/chansearch/internal/repository"
	"github.com/blockedby/chansearch/internal/search"
)

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeAdded
	outcomeFailed
)

// process handles one candidate and reports its outcome together with the
// number of external calls it made.
func (p *Pipeline) process(ctx context.Context, msg SourceMessage, c extractor.Candidate) (out outcome, calls int, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = outcomeFailed, fmt.Errorf("panic: %v", r)
		}
	}()

	log := p.log.With().Int64("source_message_id", msg.ID).Str("handle", c.Handle).Logger()

	if c.Kind != extractor.KindPublic {
		log.Debug().Str("kind", string(c.Kind)).Msg("skip unresolvable link")
		return outcomeSkipped, 0, nil
	}
	if extractor.IsBotHandle(c.Handle) {
		log.Debug().Msg("skip bot account")
		return outcomeSkipped, 0, nil
	}

	existing, err := p.deps.Channels.GetByHandle(ctx, c.Handle)
	if err != nil {
		return outcomeFailed, 0, err
	}
	if existing != nil {
		log.Debug().Msg("skip known channel")
		return outcomeSkipped, 0, nil
	}

	ch := &models.Channel{
		Handle:       c.Handle,
		Category:     p.categorize(ctx, msg.Text),
		Status:       models.ChannelStatusPending,
		DiscoveredBy: fmt.Sprintf("message:%d", msg.ID),
		DiscoveredAt: p.deps.Clock(),
		CrawlEnabled: true,
	}

	if err := p.deps.Sleep(ctx, p.between(p.opts.VerifyDelay, p.opts.VerifyDelay+p.opts.VerifyJitter)); err != nil {
		return outcomeFailed, 0, err
	}

	var info *botapi.ChatInfo
	calls++
	err = p.call(ctx, func() error {
		var lookupErr error
		info, lookupErr = p.deps.Lookup.GetChat(ctx, c.Handle)
		return lookupErr
	})
	switch {
	case errors.Is(err, botapi.ErrChatNotFound):
		log.Debug().Msg("chat does not exist")
		return outcomeSkipped, calls, nil
	case ctx.Err() != nil:
		return outcomeFailed, calls, ctx.Err()
	case err != nil:
		log.Warn().Err(err).Msg("lookup failed, storing unverified")
		info = nil
	}

	if info != nil {
		if !info.IsChannelLike() {
			log.Debug().Str("type", info.Type).Msg("skip non-channel chat")
			return outcomeSkipped, calls, nil
		}
		p.applyChatInfo(ch, info)

		path, n, ok := p.fetchAvatar(ctx, c.Handle, info.PhotoFileID)
		calls += n
		if ok {
			ch.AvatarRef = path
		}
		if p.opts.FetchMemberCount {
			calls++
			if count, ok := p.memberCount(ctx, c.Handle); ok {
				ch.MemberCount = count
			}
		}
	}
	if ctx.Err() != nil {
		return outcomeFailed, calls, ctx.Err()
	}

	added, err := p.persist(ctx, ch)
	if err != nil {
		return outcomeFailed, calls, err
	}
	if !added {
		return outcomeSkipped, calls, nil
	}

	log.Info().Str("category", ch.Category).Str("status", string(ch.Status)).Msg("channel added")
	p.writeCard(ctx, ch)
	if err := p.deps.Publisher.PublishChannelDiscovered(ctx, events.NewChannelDiscovered(ch, msg.ID)); err != nil {
		log.Warn().Err(err).Msg("publish channel event")
	}
	return outcomeAdded, calls, nil
}

func (p *Pipeline) applyChatInfo(ch *models.Channel, info *botapi.ChatInfo) {
	id := info.ID
	ch.NumericID = &id
	ch.Title = info.Title
	ch.Description = info.Description
	ch.AvatarRef = info.PhotoFileID
	ch.Verified = true
	ch.Status = models.ChannelStatusActive
}

// writeCard snapshots a new channel as a metadata card so message searches
// see it too.
func (p *Pipeline) writeCard(ctx context.Context, ch *models.Channel) {
	if p.deps.Cards == nil {
		return
	}
	now := p.deps.Clock()
	card := &models.Message{
		ChannelID:   ch.ID,
		Content:     search.ChannelContent(*ch),
		MediaKind:   models.MediaChannel,
		PublishedAt: now,
		CollectedAt: now,
	}
	if _, err := p.deps.Cards.Add(ctx, card); err != nil {
		p.log.Warn().Err(err).Str("handle", ch.Handle).Msg("store channel card")
	}
}

// persist inserts ch, or updates the row another path created meanwhile.
func (p *Pipeline) persist(ctx context.Context, ch *models.Channel) (bool, error) {
	id, err := p.deps.Channels.Add(ctx, ch)
	if err == nil {
		ch.ID = id
		return true, nil
	}
	if !errors.Is(err, repository.ErrAlreadyExists) {
		return false, err
	}

	patch := models.ChannelPatch{}
	if ch.NumericID != nil {
		patch.NumericID = ch.NumericID
	}
	if ch.Title != "" {
		patch.Title = &ch.Title
	}
	if ch.Description != "" {
		patch.Description = &ch.Description
	}
	if ch.AvatarRef != "" {
		patch.AvatarRef = &ch.AvatarRef
	}
	if ch.MemberCount > 0 {
		patch.MemberCount = &ch.MemberCount
	}
	if ch.Verified {
		patch.Verified = &ch.Verified
	}
	if err := p.deps.Channels.UpdateByHandle(ctx, ch.Handle, patch); err != nil {
		return false, err
	}
	return false, nil
}

// categorize runs the keyword classifier and asks the fallback only when no
// keyword matched. The fallback must name a known category.
func (p *Pipeline) categorize(ctx context.Context, text string) string {
	cls := p.deps.Classifier
	cat := cls.Classify(text)
	if cat != cls.Fallback() || p.deps.Fallback == nil || text == "" {
		return cat
	}
	name, err := p.deps.Fallback.Categorize(ctx, text, cls.Names())
	if err != nil {
		p.log.Warn().Err(err).Msg("category fallback failed")
		return cat
	}
	if !cls.Has(name) {
		return cat
	}
	return name
}

// memberCount is best effort: any failure leaves the count unset.
func (p *Pipeline) memberCount(ctx context.Context, handle string) (int, bool) {
	var n int
	err := p.call(ctx, func() error {
		var countErr error
		n, countErr = p.deps.Lookup.MemberCount(ctx, handle)
		return countErr
	})
	if err != nil {
		p.log.Warn().Err(err).Str("handle", handle).Msg("member count unavailable")
		return 0, false
	}
	return n, true
}

// fetchAvatar downloads the avatar once per file reference. It returns the
// local path, the number of external calls made and whether a file exists.
func (p *Pipeline) fetchAvatar(ctx context.Context, handle, fileID string) (string, int, bool) {
	if p.opts.AvatarDir == "" || fileID == "" {
		return "", 0, false
	}
	path := filepath.Join(p.opts.AvatarDir, AvatarFileName(handle, fileID))
	if _, err := os.Stat(path); err == nil {
		return path, 0, true
	}

	err := p.call(ctx, func() error {
		return p.deps.Lookup.DownloadFile(ctx, fileID, path)
	})
	if err != nil {
		p.log.Warn().Err(err).Str("handle", handle).Msg("avatar download failed")
		return "", 1, false
	}
	return path, 1, true
}

// AvatarFileName is the deterministic file name of a channel avatar.
func AvatarFileName(handle, fileID string) string {
	sum := sha256.Sum256([]byte(fileID))
	return handle + "_" + hex.EncodeToString(sum[:8]) + ".jpg"
}

// call admits fn through the limiter and repeats it after every retry-after
// signal, up to MaxRateLimitRetries when that is positive.
func (p *Pipeline) call(ctx context.Context, fn func() error) error {
	retries := 0
	for {
		if _, err := p.deps.Limiter.Admit(ctx); err != nil {
			return err
		}
		err := fn()
		wait, limited := botapi.IsRateLimited(err)
		if !limited {
			return err
		}
		retries++
		if p.opts.MaxRateLimitRetries > 0 && retries > p.opts.MaxRateLimitRetries {
			return fmt.Errorf("%w: %w", ErrRetryLimit, err)
		}
		p.log.Warn().Dur("retry_after", wait).Int("attempt", retries).Msg("rate limited")
		if err := p.deps.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}
