package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback data.
const (
	callbackNoop          = "noop"
	callbackCrawlerToggle = "crawler_toggle"
	channelsPagePrefix    = "channels_page_"

	menuSearch   = "menu_search"
	menuStats    = "menu_stats"
	menuChannels = "menu_channels"
	menuReport   = "menu_report"
	menuSettings = "menu_settings"
	menuHelp     = "menu_help"

	reportOverview   = "report_overview"
	reportChannels   = "report_channels"
	reportCategories = "report_categories"
	reportTop        = "report_top"

	topChannelsLimit = 10
)

var adminCallbacks = map[string]bool{
	menuChannels:          true,
	menuReport:            true,
	menuSettings:          true,
	reportOverview:        true,
	reportChannels:        true,
	reportCategories:      true,
	reportTop:             true,
	callbackCrawlerToggle: true,
}

func mainMenu(admin bool) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔍 搜索", menuSearch),
			tgbotapi.NewInlineKeyboardButtonData("📊 统计", menuStats),
		),
	}
	if admin {
		rows = append(rows,
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("📺 频道管理", menuChannels),
				tgbotapi.NewInlineKeyboardButtonData("📈 报表", menuReport),
			),
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("⚙️ 设置", menuSettings),
				tgbotapi.NewInlineKeyboardButtonData("❓ 帮助", menuHelp),
			),
		)
	} else {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❓ 帮助", menuHelp),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func reportMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 总体统计", reportOverview),
			tgbotapi.NewInlineKeyboardButtonData("📺 频道列表", reportChannels),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📁 分类统计", reportCategories),
			tgbotapi.NewInlineKeyboardButtonData("🔥 活跃频道", reportTop),
		),
	)
}

// pageNav builds a prev/indicator/next row whose buttons carry prefix+page.
// It returns nil when there is a single page.
func pageNav(page, pages int, prefix string) *tgbotapi.InlineKeyboardMarkup {
	if pages <= 1 {
		return nil
	}
	var row []tgbotapi.InlineKeyboardButton
	if page > 0 {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("◀️ 上一页", prefix+strconv.Itoa(page-1)))
	}
	row = append(row, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d/%d", page+1, pages), callbackNoop))
	if page < pages-1 {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("下一页 ▶️", prefix+strconv.Itoa(page+1)))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(row)
	return &kb
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	data := cq.Data
	var userID int64
	if cq.From != nil {
		userID = cq.From.ID
	}

	if adminCallbacks[data] || strings.HasPrefix(data, channelsPagePrefix) {
		if !b.isAdmin(userID) {
			b.answer(tgbotapi.NewCallbackWithAlert(cq.ID, adminOnlyText))
			return
		}
	}
	b.answer(tgbotapi.NewCallback(cq.ID, ""))

	if cq.Message == nil || cq.Message.Chat == nil {
		return
	}
	chatID := cq.Message.Chat.ID
	messageID := cq.Message.MessageID

	switch {
	case data == callbackNoop:
	case data == menuSearch:
		b.sendText(chatID, "🔍 请在搜索群直接发送关键字，或使用 /search 关键字")
	case data == menuStats:
		b.cmdStats(ctx, cq.Message)
	case data == menuHelp:
		b.sendText(chatID, b.helpText(b.isAdmin(userID)))
	case data == menuChannels:
		text, kb := b.channelPage(ctx, 0)
		if kb == nil {
			b.sendText(chatID, text)
		} else {
			b.sendWithKeyboard(chatID, text, *kb)
		}
	case data == menuReport:
		b.sendWithKeyboard(chatID, "📊 请选择报表类型：", reportMenu())
	case data == menuSettings:
		b.cmdCrawlerStatus(ctx, cq.Message)
	case strings.HasPrefix(data, "report_"):
		kb := reportMenu()
		b.editWithKeyboard(chatID, messageID, b.report(ctx, data), &kb)
	case strings.HasPrefix(data, channelsPagePrefix):
		page, err := strconv.Atoi(strings.TrimPrefix(data, channelsPagePrefix))
		if err != nil || page < 0 {
			return
		}
		text, kb := b.channelPage(ctx, page)
		b.editWithKeyboard(chatID, messageID, text, kb)
	case data == callbackCrawlerToggle:
		b.toggleCrawler(ctx, chatID, messageID)
	case strings.HasPrefix(data, searchPrefix):
		sd, ok := parseSearchData(data)
		if !ok {
			b.log.Warn().Str("data", data).Msg("malformed search callback")
			return
		}
		b.editSearch(ctx, chatID, messageID, userID, sd)
	default:
		b.log.Warn().Str("data", data).Msg("unknown callback")
	}
}

func (b *Bot) answer(c tgbotapi.CallbackConfig) {
	if _, err := b.api.Request(c); err != nil {
		b.log.Warn().Err(err).Msg("answer callback")
	}
}

func (b *Bot) report(ctx context.Context, kind string) string {
	var (
		text string
		err  error
	)
	switch kind {
	case reportOverview:
		text, err = b.deps.Reports.Overview(ctx)
	case reportChannels:
		text, _, err = b.deps.Reports.ChannelList(ctx, 0, b.opts.ChannelsPerPage, "")
	case reportCategories:
		text, err = b.deps.Reports.Categories(ctx)
	case reportTop:
		text, err = b.deps.Reports.TopChannels(ctx, topChannelsLimit)
	default:
		return "❓ 未知报表"
	}
	if err != nil {
		b.log.Error().Err(err).Str("report", kind).Msg("render report")
		return "❌ 生成报表失败"
	}
	return text
}

func (b *Bot) toggleCrawler(ctx context.Context, chatID int64, messageID int) {
	if b.deps.Crawler == nil {
		b.editWithKeyboard(chatID, messageID, crawlerNoClient, nil)
		return
	}
	st, err := b.deps.Crawler.Status(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("crawler status")
		b.editWithKeyboard(chatID, messageID, "❌ 获取爬虫状态失败", nil)
		return
	}

	var result string
	if st.Enabled {
		result = b.stopCrawler(ctx)
	} else {
		result = b.startCrawler(ctx)
	}
	text, kb := b.crawlerStatus(ctx)
	b.editWithKeyboard(chatID, messageID, result+"\n\n"+text, kb)
}
