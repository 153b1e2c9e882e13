package bot

import (
	"context"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/blockedby/chansearch/internal/ingest"
	"github.com/blockedby/chansearch/internal/moderation"
)

// handleChannelPost feeds a collect-channel post to the ingestion pipeline.
func (b *Bot) handleChannelPost(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || msg.Chat.ID != b.opts.CollectChannelID {
		return
	}

	src := SourceFromMessage(msg)
	if src.Text == "" && len(src.LinkURLs) == 0 {
		return
	}

	res, err := b.deps.Ingest.Ingest(ctx, src)
	if err != nil {
		b.log.Error().Err(err).Int64("source_message_id", src.ID).Msg("ingest collect message")
		return
	}
	b.log.Info().
		Int64("source_message_id", src.ID).
		Int("added", res.Added).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Bool("resumed", res.Resumed).
		Bool("already_done", res.AlreadyDone).
		Msg("collect message ingested")
}

// SourceFromMessage converts a collect-channel message, taking link URLs
// from url and text_link entities of both the text and the caption.
func SourceFromMessage(msg *tgbotapi.Message) ingest.SourceMessage {
	text := msg.Text
	if msg.Caption != "" {
		if text != "" {
			text += "\n"
		}
		text += msg.Caption
	}

	links := entityURLs(msg.Text, msg.Entities)
	links = append(links, entityURLs(msg.Caption, msg.CaptionEntities)...)

	return ingest.SourceMessage{
		ID:       int64(msg.MessageID),
		Text:     text,
		LinkURLs: links,
	}
}

// entityURLs returns the targets of url and text_link entities. Entity
// offsets count UTF-16 code units.
func entityURLs(text string, entities []tgbotapi.MessageEntity) []string {
	if len(entities) == 0 {
		return nil
	}

	var units []uint16
	var urls []string
	for _, e := range entities {
		switch e.Type {
		case "text_link":
			if e.URL != "" {
				urls = append(urls, e.URL)
			}
		case "url":
			if units == nil {
				units = utf16.Encode([]rune(text))
			}
			if e.Offset < 0 || e.Length <= 0 || e.Offset+e.Length > len(units) {
				continue
			}
			if u := string(utf16.Decode(units[e.Offset : e.Offset+e.Length])); u != "" {
				urls = append(urls, u)
			}
		}
	}
	return urls
}

// handleSearchGroup moderates a search-group message and answers it with
// results when it is a plain keyword query.
func (b *Bot) handleSearchGroup(ctx context.Context, msg *tgbotapi.Message) {
	verdict := moderation.Check(moderationInput(msg, b.isAdmin(senderID(msg))))
	if !verdict.Allowed {
		b.reject(ctx, msg, verdict)
		return
	}

	if msg.From != nil && msg.From.IsBot {
		return
	}

	query := strings.TrimSpace(msg.Text)
	if utf8.RuneCountInString(query) < minQueryRunes {
		return
	}
	b.runSearch(ctx, msg.Chat.ID, msg.MessageID, senderID(msg), query, "", 0)
}

func moderationInput(msg *tgbotapi.Message, fromAdmin bool) moderation.Input {
	in := moderation.Input{
		Text:      msg.Text,
		Caption:   msg.Caption,
		HasMedia:  hasMedia(msg),
		FromAdmin: fromAdmin,
		FromBot:   msg.From != nil && msg.From.IsBot,
	}
	for _, e := range msg.Entities {
		in.EntityTypes = append(in.EntityTypes, e.Type)
	}
	for _, e := range msg.CaptionEntities {
		in.EntityTypes = append(in.EntityTypes, e.Type)
	}
	return in
}

func hasMedia(msg *tgbotapi.Message) bool {
	return len(msg.Photo) > 0 ||
		msg.Video != nil ||
		msg.Document != nil ||
		msg.Audio != nil ||
		msg.Voice != nil ||
		msg.Sticker != nil ||
		msg.Animation != nil ||
		msg.VideoNote != nil ||
		msg.Contact != nil ||
		msg.Location != nil ||
		msg.Poll != nil
}

// reject deletes the offending message, posts a warning and removes the
// warning after WarningTTL.
func (b *Bot) reject(ctx context.Context, msg *tgbotapi.Message, verdict moderation.Verdict) {
	chatID := msg.Chat.ID
	log := b.log.With().Int64("chat_id", chatID).Int("message_id", msg.MessageID).Str("reason", verdict.Reason).Logger()

	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, msg.MessageID)); err != nil {
		log.Warn().Err(err).Msg("delete rejected message")
	}

	warning, err := b.api.Send(tgbotapi.NewMessage(chatID, verdict.Warning()))
	if err != nil {
		log.Warn().Err(err).Msg("send moderation warning")
		return
	}
	log.Info().Msg("search group message rejected")

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.deps.Sleep(ctx, b.opts.WarningTTL); err != nil {
			return
		}
		if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, warning.MessageID)); err != nil {
			b.log.Warn().Err(err).Int64("chat_id", chatID).Int("message_id", warning.MessageID).Msg("delete moderation warning")
		}
	}()
}

// Wait blocks until background work started by handlers has finished.
func (b *Bot) Wait() {
	b.wg.Wait()
}

const minQueryRunes = 1
