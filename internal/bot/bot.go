// Package bot runs the Telegram Bot API front end: commands, the search
// group, and the collect channel.
package bot

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/blockedby/chansearch/internal/crawler"
	"github.com/blockedby/chansearch/internal/events"
	"github.com/blockedby/chansearch/internal/extractor"
	"github.com/blockedby/chansearch/internal/ingest"
	"github.com/blockedby/chansearch/internal/logger"
	"github.com/blockedby/chansearch/internal/models"
	"github.com/blockedby/chansearch/internal/ratelimit"
	"github.com/blockedby/chansearch/internal/search"
)

// API is the part of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Searcher runs union searches.
type Searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Page, error)
	PageSize() int
}

// Reporter renders the text reports.
type Reporter interface {
	Overview(ctx context.Context) (string, error)
	ChannelList(ctx context.Context, page, perPage int, category string) (string, int, error)
	Categories(ctx context.Context) (string, error)
	TopChannels(ctx context.Context, limit int) (string, error)
}

// Ingester processes collect-channel messages.
type Ingester interface {
	Ingest(ctx context.Context, msg ingest.SourceMessage) (ingest.Result, error)
}

// ChannelAdder stores manually added channels.
type ChannelAdder interface {
	Add(ctx context.Context, ch *models.Channel) (int64, error)
}

// Crawler controls the crawl loop.
type Crawler interface {
	Start(ctx context.Context) (*crawler.Run, error)
	Stop(ctx context.Context) error
	Status(ctx context.Context) (crawler.Status, error)
}

// Options configures chat routing and presentation.
type Options struct {
	AdminIDs         []int64
	CollectChannelID int64
	SearchGroupID    int64
	StorageChannelID int64
	AdText           string
	AdEnabled        bool
	ChannelsPerPage  int
	WarningTTL       time.Duration
}

// Deps are the collaborators of a Bot. Crawler, Publisher, Classifier,
// Logger and Sleep are optional.
type Deps struct {
	API        API
	Search     Searcher
	Reports    Reporter
	Ingest     Ingester
	Channels   ChannelAdder
	Crawler    Crawler
	Classifier *extractor.Classifier
	Publisher  events.Publisher
	Logger     *logger.Logger
	Sleep      ratelimit.SleepFunc
	Clock      func() time.Time
}

// Bot dispatches Telegram updates.
type Bot struct {
	api       API
	deps      Deps
	opts      Options
	admins    map[int64]struct{}
	commands  []Command
	extractor *extractor.Extractor
	formatter search.Formatter
	log       *logger.Logger
	startedAt time.Time
	wg        sync.WaitGroup
}

// New creates a bot and registers its commands.
func New(deps Deps, opts Options) *Bot {
	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}
	if deps.Sleep == nil {
		deps.Sleep = ratelimit.Sleep
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if opts.ChannelsPerPage <= 0 {
		opts.ChannelsPerPage = 10
	}
	if opts.WarningTTL <= 0 {
		opts.WarningTTL = defaultWarningTTL
	}

	b := &Bot{
		api:       deps.API,
		deps:      deps,
		opts:      opts,
		admins:    make(map[int64]struct{}, len(opts.AdminIDs)),
		extractor: extractor.New(nil),
		formatter: search.Formatter{StorageChannelID: opts.StorageChannelID},
		log:       logger.OrGlobal(deps.Logger).Component("bot"),
	}
	for _, id := range opts.AdminIDs {
		b.admins[id] = struct{}{}
	}
	b.registerCommands()
	return b
}

// isAdmin reports whether userID may run admin commands. With no admins
// configured everyone is an admin.
func (b *Bot) isAdmin(userID int64) bool {
	if len(b.admins) == 0 {
		return true
	}
	_, ok := b.admins[userID]
	return ok
}

// Run receives updates until ctx is cancelled, reconnecting with backoff
// when the update channel closes.
func (b *Bot) Run(ctx context.Context) error {
	b.startedAt = b.deps.Clock()
	retryDelay := reconnectMin

	for {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := b.api.GetUpdatesChan(u)
		b.log.Info().Msg("receiving updates")

		closed := b.receive(ctx, updates)
		if !closed {
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			b.log.Info().Msg("stopped receiving updates")
			return ctx.Err()
		}

		b.log.Warn().Dur("retry_in", retryDelay).Msg("update channel closed, reconnecting")
		if err := b.deps.Sleep(ctx, retryDelay); err != nil {
			b.wg.Wait()
			return err
		}
		retryDelay *= 2
		if retryDelay > reconnectMax {
			retryDelay = reconnectMax
		}
	}
}

// receive drains updates. It returns true when the channel closed and false
// when ctx was cancelled.
func (b *Bot) receive(ctx context.Context, updates tgbotapi.UpdatesChannel) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case update, ok := <-updates:
			if !ok {
				return true
			}
			b.wg.Add(1)
			go func(u tgbotapi.Update) {
				defer b.wg.Done()
				b.HandleUpdate(ctx, u)
			}(update)
		}
	}
}

// HandleUpdate routes one update.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Int("update_id", update.UpdateID).Msg("update handler panicked")
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.ChannelPost != nil:
		b.handleChannelPost(ctx, update.ChannelPost)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	if msg.Chat.ID == b.opts.CollectChannelID {
		b.handleChannelPost(ctx, msg)
		return
	}
	// backlog from before startup is only useful to the collect channel
	if !b.startedAt.IsZero() && msg.Time().Before(b.startedAt.Add(-backlogGrace)) {
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	if msg.Chat.ID == b.opts.SearchGroupID {
		b.handleSearchGroup(ctx, msg)
	}
}

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("send message")
	}
}

func (b *Bot) sendWithKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = kb
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("send message")
	}
}

func (b *Bot) editWithKeyboard(chatID int64, messageID int, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	var edit tgbotapi.EditMessageTextConfig
	if kb != nil {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *kb)
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}
	edit.DisableWebPagePreview = true
	if _, err := b.api.Request(edit); err != nil && !isNotModified(err) {
		b.log.Error().Err(err).Int64("chat_id", chatID).Int("message_id", messageID).Msg("edit message")
	}
}

const (
	reconnectMin      = 5 * time.Second
	reconnectMax      = 300 * time.Second
	backlogGrace      = 30 * time.Second
	defaultWarningTTL = 8 * time.Second
)
