package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/blockedby/chansearch/internal/search"
)

const (
	searchPrefix     = "s|"
	maxCallbackBytes = 64
	typeAll          = "all"
)

type typeButton struct {
	kind  string
	label string
}

var typeButtons = []typeButton{
	{typeAll, "📝全部"},
	{"video", "🎬视频"},
	{"photo", "📸图片"},
	{"document", "📎文档"},
}

func typeLabel(kind string) string {
	for _, t := range typeButtons {
		if t.kind == kind {
			return t.label
		}
	}
	return kind
}

// searchData is the state carried by search result buttons.
type searchData struct {
	kind  string
	page  int
	query string
}

// encode renders d as s|<type>|<page>|<query>, cutting the query on a rune
// boundary so the whole value fits Telegram's 64 byte limit.
func (d searchData) encode() string {
	kind := d.kind
	if kind == "" {
		kind = typeAll
	}
	head := searchPrefix + kind + "|" + strconv.Itoa(d.page) + "|"
	query := d.query
	for len(head)+len(query) > maxCallbackBytes {
		_, size := utf8.DecodeLastRuneInString(query)
		query = query[:len(query)-size]
	}
	return head + query
}

func parseSearchData(data string) (searchData, bool) {
	parts := strings.SplitN(strings.TrimPrefix(data, searchPrefix), "|", 3)
	if len(parts) != 3 || parts[2] == "" {
		return searchData{}, false
	}
	page, err := strconv.Atoi(parts[1])
	if err != nil || page < 0 {
		return searchData{}, false
	}
	kind := parts[0]
	if kind == typeAll {
		kind = ""
	}
	return searchData{kind: kind, page: page, query: parts[2]}, true
}

// rendered is one results message in both markups.
type rendered struct {
	markdown string
	plain    string
	keyboard tgbotapi.InlineKeyboardMarkup
}

func (b *Bot) runSearch(ctx context.Context, chatID int64, replyTo int, userID int64, query, kind string, page int) {
	r, ok := b.searchResults(ctx, userID, searchData{kind: kind, page: page, query: query})
	if !ok {
		return
	}

	msg := tgbotapi.NewMessage(chatID, r.markdown)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true
	msg.ReplyToMessageID = replyTo
	msg.ReplyMarkup = r.keyboard
	_, err := b.api.Send(msg)
	if err == nil {
		return
	}
	b.log.Warn().Err(err).Str("query", query).Msg("markdown send failed, retrying as plain text")

	msg.Text = r.plain
	msg.ParseMode = ""
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("send search results")
	}
}

func (b *Bot) editSearch(ctx context.Context, chatID int64, messageID int, userID int64, sd searchData) {
	r, ok := b.searchResults(ctx, userID, sd)
	if !ok {
		return
	}

	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, r.markdown, r.keyboard)
	edit.ParseMode = tgbotapi.ModeMarkdownV2
	edit.DisableWebPagePreview = true
	_, err := b.api.Request(edit)
	if err == nil || isNotModified(err) {
		return
	}
	b.log.Warn().Err(err).Str("query", sd.query).Msg("markdown edit failed, retrying as plain text")

	edit.Text = r.plain
	edit.ParseMode = ""
	if _, err := b.api.Request(edit); err != nil && !isNotModified(err) {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("edit search results")
	}
}

func (b *Bot) searchResults(ctx context.Context, userID int64, sd searchData) (rendered, bool) {
	page, err := b.deps.Search.Search(ctx, search.Query{
		Text:      sd.query,
		Page:      sd.page,
		MediaType: sd.kind,
		UserID:    userID,
	})
	if err != nil {
		b.log.Error().Err(err).Str("query", sd.query).Msg("search")
		return rendered{}, false
	}
	return b.render(sd, page), true
}

func (b *Bot) render(sd searchData, page *search.Page) rendered {
	var header []string
	if b.opts.AdEnabled && b.opts.AdText != "" {
		header = append(header, "📢 "+b.opts.AdText, rule, "")
	}
	header = append(header, "🔍 搜索: "+sd.query)
	if sd.kind != "" {
		header = append(header, "📁 类型: "+typeLabel(sd.kind))
	}
	if page.TotalCount == 0 {
		header = append(header, "", "😔 没有找到相关结果")
	} else {
		header = append(header, fmt.Sprintf("📊 共 %d 条结果 (第 %d/%d 页)", page.TotalCount, page.Page+1, page.TotalPages), "")
	}

	var md, plain strings.Builder
	for _, line := range header {
		md.WriteString(escape(line))
		md.WriteByte('\n')
		plain.WriteString(line)
		plain.WriteByte('\n')
	}

	offset := page.Page * b.deps.Search.PageSize()
	for i, h := range page.Hits {
		md.WriteString(b.formatter.Format(h, offset+i+1))
		md.WriteByte('\n')
		plain.WriteString(b.formatter.PlainFormat(h, offset+i+1))
		plain.WriteByte('\n')
	}

	return rendered{
		markdown: strings.TrimRight(md.String(), "\n"),
		plain:    strings.TrimRight(plain.String(), "\n"),
		keyboard: b.searchKeyboard(sd, page),
	}
}

func (b *Bot) searchKeyboard(sd searchData, page *search.Page) tgbotapi.InlineKeyboardMarkup {
	current := sd.kind
	if current == "" {
		current = typeAll
	}

	types := make([]tgbotapi.InlineKeyboardButton, 0, len(typeButtons))
	for _, t := range typeButtons {
		label := t.label
		if t.kind == current {
			label = "✅" + label
		}
		data := searchData{kind: t.kind, page: 0, query: sd.query}.encode()
		types = append(types, tgbotapi.NewInlineKeyboardButtonData(label, data))
	}
	rows := [][]tgbotapi.InlineKeyboardButton{types}

	if page.TotalPages > 1 {
		var nav []tgbotapi.InlineKeyboardButton
		if page.Page > 0 {
			data := searchData{kind: sd.kind, page: page.Page - 1, query: sd.query}.encode()
			nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("◀️上一页", data))
		}
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("%d/%d", page.Page+1, page.TotalPages), callbackNoop))
		if page.Page < page.TotalPages-1 {
			data := searchData{kind: sd.kind, page: page.Page + 1, query: sd.query}.encode()
			nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("下一页 ▶️", data))
		}
		rows = append(rows, nav)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}
