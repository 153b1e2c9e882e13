package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/chansearch/internal/botapi"
	"github.com/blockedby/chansearch/internal/database"
	"github.com/blockedby/chansearch/internal/events"
	"github.com/blockedby/chansearch/internal/extractor"
	"github.com/blockedby/chansearch/internal/models"
	"github.com/blockedby/chansearch/internal/repository"
)

type fakeLookup struct {
	mu        sync.Mutex
	chats     map[string]*botapi.ChatInfo
	queued    map[string][]error
	always    map[string]error
	calls     []string
	count     int
	countErr  error
	downloads int
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		chats:  map[string]*botapi.ChatInfo{},
		queued: map[string][]error{},
		always: map[string]error{},
	}
}

func (f *fakeLookup) channel(handle, title string) *fakeLookup {
	f.chats[handle] = &botapi.ChatInfo{ID: -1000 - int64(len(f.chats)), Type: botapi.ChatTypeChannel, Title: title, Username: handle}
	return f
}

func (f *fakeLookup) GetChat(_ context.Context, handle string) (*botapi.ChatInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, handle)
	if errs := f.queued[handle]; len(errs) > 0 {
		f.queued[handle] = errs[1:]
		return nil, errs[0]
	}
	if err := f.always[handle]; err != nil {
		return nil, err
	}
	info, ok := f.chats[handle]
	if !ok {
		return nil, botapi.ErrChatNotFound
	}
	cp := *info
	return &cp, nil
}

func (f *fakeLookup) MemberCount(context.Context, string) (int, error) {
	return f.count, f.countErr
}

func (f *fakeLookup) DownloadFile(_ context.Context, _ string, dest string) error {
	f.mu.Lock()
	f.downloads++
	f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, []byte("img"), 0o644)
}

func (f *fakeLookup) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeClock advances when the pipeline sleeps.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Slept(d time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.sleeps {
		if s == d {
			n++
		}
	}
	return n
}

type fixture struct {
	db       *database.DB
	channels *repository.ChannelsRepository
	ledger   *repository.LedgerRepository
	clock    *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.New(context.Background(), "file:"+name+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return &fixture{
		db:       db,
		channels: repository.NewChannelsRepository(db.GORM),
		ledger:   repository.NewLedgerRepository(db.GORM),
		clock:    newFakeClock(),
	}
}

func testOptions() Options {
	return Options{
		VerifyDelay:  3 * time.Second,
		VerifyJitter: time.Second,
		CooldownMin:  20 * time.Second,
		CooldownMax:  40 * time.Second,
	}
}

func (f *fixture) pipeline(lookup Lookup, opts Options, mutate ...func(*Deps)) *Pipeline {
	deps := Deps{
		Channels: f.channels,
		Ledger:   f.ledger,
		Lookup:   lookup,
		Clock:    f.clock.Now,
		Sleep:    f.clock.Sleep,
		Rand:     func() float64 { return 0.5 },
	}
	for _, m := range mutate {
		m(&deps)
	}
	return New(deps, opts)
}

func (f *fixture) ledgerStatus(t *testing.T, id int64) models.LedgerStatus {
	t.Helper()
	entry, err := f.ledger.GetStatus(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, entry)
	return entry.Status
}

func (f *fixture) processed(t *testing.T, id int64) map[string]struct{} {
	t.Helper()
	set, err := f.ledger.Processed(context.Background(), id)
	require.NoError(t, err)
	return set
}

func TestIngest_AddsClassifiedChannel(t *testing.T) {
	f := newFixture(t)
	lookup := newFakeLookup().channel("tech_news123", "Tech News")
	p := f.pipeline(lookup, testOptions())

	res, err := p.Ingest(context.Background(), SourceMessage{ID: 1, Text: "科技频道 @tech_news123 不错"})
	require.NoError(t, err)
	assert.Equal(t, Result{Added: 1}, res)

	ch, err := f.channels.GetByHandle(context.Background(), "tech_news123")
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, "科技数码", ch.Category)
	assert.Equal(t, "Tech News", ch.Title)
	assert.Equal(t, models.ChannelStatusActive, ch.Status)
	assert.True(t, ch.Verified)
	require.NotNil(t, ch.NumericID)
	assert.Equal(t, "message:1", ch.DiscoveredBy)

	assert.Equal(t, models.LedgerCompleted, f.ledgerStatus(t, 1))
	assert.Equal(t, 1, f.clock.Slept(3500*time.Millisecond), "one paced lookup")
}

func TestIngest_StoresChannelCard(t *testing.T) {
	f := newFixture(t)
	messages := repository.NewMessagesRepository(f.db.GORM)
	lookup := newFakeLookup().channel("tech_news123", "Tech News").channel("known_chan", "Known")
	_, err := f.channels.Add(context.Background(), &models.Channel{Handle: "known_chan", Status: models.ChannelStatusActive})
	require.NoError(t, err)
	p := f.pipeline(lookup, testOptions(), func(d *Deps) { d.Cards = messages })

	_, err = p.Ingest(context.Background(), SourceMessage{ID: 1, Text: "科技频道 @tech_news123 @known_chan"})
	require.NoError(t, err)

	ch, err := f.channels.GetByHandle(context.Background(), "tech_news123")
	require.NoError(t, err)
	require.NotNil(t, ch)

	cards, err := messages.Search(context.Background(), repository.MessageFilter{MediaKind: models.MediaChannel})
	require.NoError(t, err)
	require.Len(t, cards, 1, "only newly added channels get a card")
	assert.Equal(t, ch.ID, cards[0].ChannelID)
	assert.Equal(t, "tech_news123", cards[0].Handle)
	assert.Contains(t, cards[0].Content, "@tech_news123")
	assert.Contains(t, cards[0].Content, "category:科技数码")
	assert.Zero(t, cards[0].SourceMessageID)
}

func TestIngest_SkipsBotHandles(t *testing.T) {
	f := newFixture(t)
	lookup := newFakeLookup()
	p := f.pipeline(lookup, testOptions())

	res, err := p.Ingest(context.Background(), SourceMessage{ID: 2, Text: "@supportbot"})
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 1}, res)
	assert.Empty(t, lookup.Calls())

	n, err := f.channels.Count(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, models.LedgerCompleted, f.ledgerStatus(t, 2))
	assert.Contains(t, f.processed(t, 2), "supportbot")
}

func TestIngest_SkipsKnownChannel(t *testing.T) {
	f := newFixture(t)
	_, err := f.channels.Add(context.Background(), &models.Channel{Handle: "newsdaily"})
	require.NoError(t, err)

	lookup := newFakeLookup().channel("newsdaily", "News Daily")
	p := f.pipeline(lookup, testOptions())

	res, err := p.Ingest(context.Background(), SourceMessage{ID: 3, Text: "again @newsdaily"})
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 1}, res)
	assert.Empty(t, lookup.Calls())

	n, err := f.channels.Count(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Contains(t, f.processed(t, 3), "newsdaily")
}

func TestIngest_RetriesAfterRateLimit(t *testing.T) {
	f := newFixture(t)
	lookup := newFakeLookup().channel("slow_channel", "Slow")
	lookup.queued["slow_channel"] = []error{&botapi.RateLimitError{RetryAfter: 5 * time.Second}}
	p := f.pipeline(lookup, Options{})

	start := f.clock.Now()
	res, err := p.Ingest(context.Background(), SourceMessage{ID: 5, Text: "@slow_channel"})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Added)
	assert.Equal(t, []string{"slow_channel", "slow_channel"}, lookup.Calls())
	assert.Equal(t, 1, f.clock.Slept(5*time.Second))
	assert.GreaterOrEqual(t, f.clock.Now().Sub(start), 5*time.Second)
}

func TestIngest_RetryLimitDegrades(t *testing.T) {
	f := newFixture(t)
	lookup := newFakeLookup()
	lookup.always["throttled"] = &botapi.RateLimitError{RetryAfter: time.Second}
	opts := Options{MaxRateLimitRetries: 2}
	p := f.pipeline(lookup, opts)

	res, err := p.Ingest(context.Background(), SourceMessage{ID: 6, Text: "@throttled"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Len(t, lookup.Calls(), 3)

	ch, err := f.channels.GetByHandle(context.Background(), "throttled")
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, models.ChannelStatusPending, ch.Status)
	assert.False(t, ch.Verified)
}

func TestPipeline_CallReturnsRetryLimit(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(newFakeLookup(), Options{MaxRateLimitRetries: 1})

	calls := 0
	err := p.call(context.Background(), func() error {
		calls++
		return &botapi.RateLimitError{RetryAfter: time.Second}
	})
	assert.ErrorIs(t, err, ErrRetryLimit)
	assert.Equal(t, 2, calls)
}

func TestIngest_NotFoundAndNonChannel(t *testing.T) {
	f := newFixture(t)
	lookup := newFakeLookup()
	lookup.chats["someperson"] = &botapi.ChatInfo{ID: 5, Type: "private", Username: "someperson"}
	p := f.pipeline(lookup, Options{})

	res, err := p.Ingest(context.Background(), SourceMessage{ID: 7, Text: "@missing_one and @someperson"})
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 2}, res)

	n, err := f.channels.Count(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, f.processed(t, 7), 2)
}

func TestIngest_UnknownErrorStoresUnverified(t *testing.T) {
	f := newFixture(t)
	lookup := newFakeLookup()
	lookup.always["flaky_chan"] = errors.New("connection reset")
	p := f.pipeline(lookup, Options{})

	res, err := p.Ingest(context.Background(), SourceMessage{ID: 8, Text: "@flaky_chan"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)

	ch, err := f.channels.GetByHandle(context.Background(), "flaky_chan")
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, models.ChannelStatusPending, ch.Status)
	assert.Nil(t, ch.NumericID)
}

func TestIngest_Idempotent(t *testing.T) {
	f := newFixture(t)
	lookup := newFakeLookup().channel("first_chan", "First")
	p := f.pipeline(lookup, Options{})
	msg := SourceMessage{ID: 9, Text: "@first_chan"}

	first, err := p.Ingest(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Added)
	assert.Equal(t, models.LedgerCompleted, f.ledgerStatus(t, 9))

	second, err := p.Ingest(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, Result{AlreadyDone: true}, second)
	assert.Len(t, lookup.Calls(), 1)
	assert.Equal(t, models.LedgerCompleted, f.ledgerStatus(t, 9))
}

func TestIngest_ResumesAfterInterruption(t *testing.T) {
	f := newFixture(t)
	handles := []string{"chan_one", "chan_two", "chan_three", "chan_four", "chan_five"}
	text := "@chan_one @chan_two @chan_three @chan_four @chan_five"
	msg := SourceMessage{ID: 10, Text: text}

	first := newFakeLookup()
	for _, h := range handles {
		first.channel(h, h)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sleeps := 0
	crashing := f.pipeline(first, Options{}, func(d *Deps) {
		d.Sleep = func(ctx context.Context, _ time.Duration) error {
			sleeps++
			if sleeps == 3 {
				cancel()
			}
			return ctx.Err()
		}
	})

	_, err := crashing.Ingest(ctx, msg)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"chan_one", "chan_two"}, first.Calls())
	assert.Len(t, f.processed(t, 10), 2)
	assert.Equal(t, models.LedgerProcessing, f.ledgerStatus(t, 10))

	// a new process sees only persisted state
	second := newFakeLookup()
	for _, h := range handles {
		second.channel(h, h)
	}
	restarted := f.pipeline(second, Options{})

	res, err := restarted.Ingest(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, res.Resumed)
	assert.Equal(t, 3, res.Added)
	assert.Equal(t, []string{"chan_three", "chan_four", "chan_five"}, second.Calls())
	assert.Equal(t, models.LedgerCompleted, f.ledgerStatus(t, 10))
	assert.Len(t, f.processed(t, 10), 5)
}

func TestIngest_BatchCooldown(t *testing.T) {
	f := newFixture(t)
	lookup := newFakeLookup()
	for _, h := range []string{"batch_one", "batch_two", "batch_three", "batch_four", "batch_five"} {
		lookup.channel(h, h)
	}
	opts := testOptions()
	opts.BatchSize = 2
	p := f.pipeline(lookup, opts)

	res, err := p.Ingest(context.Background(), SourceMessage{
		ID:   11,
		Text: "@batch_one @batch_two @batch_three @batch_four @batch_five",
	})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Added)
	assert.Equal(t, 2, f.clock.Slept(30*time.Second), "cooldown after the 2nd and 4th lookups")
	assert.Equal(t, 5, f.clock.Slept(3500*time.Millisecond))
}

func TestIngest_LinkEntitiesDeduplicated(t *testing.T) {
	f := newFixture(t)
	lookup := newFakeLookup().channel("linked_chan", "Linked")
	p := f.pipeline(lookup, Options{})

	res, err := p.Ingest(context.Background(), SourceMessage{
		ID:       12,
		Text:     "see @linked_chan",
		LinkURLs: []string{"https://t.me/linked_chan", "https://t.me/linked_chan/55"},
	})
	require.NoError(t, err)
	assert.Equal(t, Result{Added: 1}, res)
	assert.Len(t, lookup.Calls(), 1)
}

func TestIngest_NoCandidatesLeavesNoLedger(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(newFakeLookup(), Options{})

	res, err := p.Ingest(context.Background(), SourceMessage{ID: 13, Text: "nothing to see @ab"})
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)

	entry, err := f.ledger.GetStatus(context.Background(), 13)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestIngest_PrivateLinksSkipped(t *testing.T) {
	f := newFixture(t)
	lookup := newFakeLookup()
	p := f.pipeline(lookup, Options{})

	res, err := p.Ingest(context.Background(), SourceMessage{ID: 14, Text: "https://t.me/c/123456 https://t.me/joinchat/AbCdEf"})
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 2}, res)
	assert.Empty(t, lookup.Calls())
}

func TestIngest_AvatarAndMemberCount(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	lookup := newFakeLookup()
	lookup.chats["pic_chan"] = &botapi.ChatInfo{ID: -7, Type: botapi.ChatTypeSupergroup, Title: "Pics", PhotoFileID: "file-a"}
	lookup.chats["cached_pic"] = &botapi.ChatInfo{ID: -8, Type: botapi.ChatTypeChannel, Title: "Cached", PhotoFileID: "file-b"}
	lookup.count = 1234

	cached := filepath.Join(dir, AvatarFileName("cached_pic", "file-b"))
	require.NoError(t, os.WriteFile(cached, []byte("old"), 0o644))

	p := f.pipeline(lookup, Options{AvatarDir: dir, FetchMemberCount: true})
	res, err := p.Ingest(context.Background(), SourceMessage{ID: 15, Text: "@pic_chan @cached_pic"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, 1, lookup.downloads)

	ch, err := f.channels.GetByHandle(context.Background(), "pic_chan")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, AvatarFileName("pic_chan", "file-a")), ch.AvatarRef)
	assert.Equal(t, 1234, ch.MemberCount)
	assert.FileExists(t, ch.AvatarRef)

	ch, err = f.channels.GetByHandle(context.Background(), "cached_pic")
	require.NoError(t, err)
	assert.Equal(t, cached, ch.AvatarRef)
}

func TestIngest_MemberCountFailureLeavesUnset(t *testing.T) {
	f := newFixture(t)
	lookup := newFakeLookup().channel("count_fail", "Count")
	lookup.countErr = errors.New("forbidden")
	p := f.pipeline(lookup, Options{FetchMemberCount: true})

	res, err := p.Ingest(context.Background(), SourceMessage{ID: 16, Text: "@count_fail"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)

	ch, err := f.channels.GetByHandle(context.Background(), "count_fail")
	require.NoError(t, err)
	assert.Zero(t, ch.MemberCount)
}

type fakeFallback struct {
	answer string
	seen   []string
}

func (f *fakeFallback) Categorize(_ context.Context, _ string, categories []string) (string, error) {
	f.seen = categories
	return f.answer, nil
}

func TestIngest_CategoryFallback(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   string
	}{
		{name: "known category", answer: "金融投资", want: "金融投资"},
		{name: "unknown answer", answer: "weather", want: extractor.OtherCategory},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			lookup := newFakeLookup().channel("quiet_chan", "Quiet")
			fb := &fakeFallback{answer: tt.answer}
			p := f.pipeline(lookup, Options{}, func(d *Deps) { d.Fallback = fb })

			_, err := p.Ingest(context.Background(), SourceMessage{ID: int64(100 + i), Text: "hello @quiet_chan"})
			require.NoError(t, err)

			ch, err := f.channels.GetByHandle(context.Background(), "quiet_chan")
			require.NoError(t, err)
			assert.Equal(t, tt.want, ch.Category)
			assert.Len(t, fb.seen, 10)
		})
	}
}

type recordingPublisher struct {
	events.Nop
	mu       sync.Mutex
	channels []events.ChannelDiscovered
}

func (r *recordingPublisher) PublishChannelDiscovered(_ context.Context, ev events.ChannelDiscovered) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = append(r.channels, ev)
	return nil
}

func TestIngest_PublishesDiscoveredChannels(t *testing.T) {
	f := newFixture(t)
	lookup := newFakeLookup().channel("event_chan", "Events")
	pub := &recordingPublisher{}
	p := f.pipeline(lookup, Options{}, func(d *Deps) { d.Publisher = pub })

	_, err := p.Ingest(context.Background(), SourceMessage{ID: 17, Text: "@event_chan @supportbot"})
	require.NoError(t, err)

	require.Len(t, pub.channels, 1)
	assert.Equal(t, "event_chan", pub.channels[0].Handle)
	assert.Equal(t, int64(17), pub.channels[0].SourceMessageID)
}

func TestIngest_ConcurrentDeliveryOfSameMessage(t *testing.T) {
	f := newFixture(t)
	lookup := newFakeLookup().channel("dup_chan", "Dup")
	p := f.pipeline(lookup, Options{})
	msg := SourceMessage{ID: 18, Text: "@dup_chan"}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []Result
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.Ingest(context.Background(), msg)
			assert.NoError(t, err)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}()
	}
	wg.Wait()

	added, done := 0, 0
	for _, r := range results {
		added += r.Added
		if r.AlreadyDone {
			done++
		}
	}
	assert.Equal(t, 1, added)
	assert.Equal(t, 3, done)
	assert.Len(t, lookup.Calls(), 1)
	assert.Zero(t, p.locks.size())
}

func TestResumeIncomplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ledger.Init(ctx, 20, 2, "@resume_one @resume_two", nil))
	require.NoError(t, f.ledger.MarkProcessed(ctx, 20, "resume_one"))
	require.NoError(t, f.ledger.Init(ctx, 21, 1, "", []string{"https://t.me/resume_three"}))

	lookup := newFakeLookup().channel("resume_one", "1").channel("resume_two", "2").channel("resume_three", "3")
	p := f.pipeline(lookup, Options{})

	n, err := p.ResumeIncomplete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"resume_two", "resume_three"}, lookup.Calls())
	assert.Equal(t, models.LedgerCompleted, f.ledgerStatus(t, 20))
	assert.Equal(t, models.LedgerCompleted, f.ledgerStatus(t, 21))

	incomplete, err := f.ledger.ListIncomplete(ctx)
	require.NoError(t, err)
	assert.Empty(t, incomplete)
}

func TestAvatarFileName(t *testing.T) {
	a := AvatarFileName("chan", "file-1")
	assert.Equal(t, a, AvatarFileName("chan", "file-1"))
	assert.NotEqual(t, a, AvatarFileName("chan", "file-2"))
	assert.True(t, strings.HasPrefix(a, "chan_"))
	assert.True(t, strings.HasSuffix(a, ".jpg"))
}
