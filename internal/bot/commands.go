package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/blockedby/chansearch/internal/crawler"
	"github.com/blockedby/chansearch/internal/events"
	"github.com/blockedby/chansearch/internal/extractor"
	"github.com/blockedby/chansearch/internal/models"
	"github.com/blockedby/chansearch/internal/repository"
	"github.com/blockedby/chansearch/internal/search"
)

// Command is one slash command.
type Command struct {
	Name        string
	Description string
	Example     string
	Admin       bool
	Call        func(ctx context.Context, msg *tgbotapi.Message)
}

const (
	adminOnlyText   = "⛔ 此命令仅管理员可用"
	crawlerNoClient = "❌ 无法启用爬虫\n\n请先在配置中设置 TG_API_ID 和 TG_API_HASH，并运行 tg-auth 完成登录。"
	maxSuggestDist  = 3
)

func (b *Bot) registerCommands() {
	b.commands = []Command{
		{Name: "start", Description: "显示欢迎信息和主菜单", Example: "/start", Call: b.cmdStart},
		{Name: "help", Description: "显示帮助", Example: "/help", Call: b.cmdHelp},
		{Name: "stats", Description: "查看统计数据", Example: "/stats", Call: b.cmdStats},
		{Name: "search", Description: "搜索频道和消息", Example: "/search golang type:video", Call: b.cmdSearch},
		{Name: "channels", Description: "频道列表", Example: "/channels", Admin: true, Call: b.cmdChannels},
		{Name: "report", Description: "统计报表", Example: "/report", Admin: true, Call: b.cmdReport},
		{Name: "crawler_status", Description: "查看爬虫状态", Example: "/crawler_status", Admin: true, Call: b.cmdCrawlerStatus},
		{Name: "crawler_on", Description: "启用爬虫", Example: "/crawler_on", Admin: true, Call: b.cmdCrawlerOn},
		{Name: "crawler_off", Description: "禁用爬虫", Example: "/crawler_off", Admin: true, Call: b.cmdCrawlerOff},
		{Name: "add_channel", Description: "手动添加频道", Example: "/add_channel https://t.me/channel", Admin: true, Call: b.cmdAddChannel},
	}
}

// CommandByName returns the registered command called name.
func (b *Bot) CommandByName(name string) *Command {
	for i := range b.commands {
		if b.commands[i].Name == name {
			return &b.commands[i]
		}
	}
	return nil
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	name := strings.ToLower(msg.Command())
	cmd := b.CommandByName(name)
	if cmd == nil {
		b.suggestCommand(msg.Chat.ID, name)
		return
	}
	if cmd.Admin && !b.isAdmin(senderID(msg)) {
		b.sendText(msg.Chat.ID, adminOnlyText)
		return
	}

	b.log.Debug().Str("command", name).Int64("chat_id", msg.Chat.ID).Int64("user_id", senderID(msg)).Msg("command")
	cmd.Call(ctx, msg)
}

func senderID(msg *tgbotapi.Message) int64 {
	if msg.From == nil {
		return 0
	}
	return msg.From.ID
}

// suggestCommand answers an unknown command with the closest known one.
func (b *Bot) suggestCommand(chatID int64, input string) {
	if suggestion, ok := b.closestCommand(input); ok {
		b.sendText(chatID, fmt.Sprintf("❓ 未知命令 /%s\n\n你是不是想输入 /%s ?", input, suggestion))
		return
	}
	b.sendText(chatID, fmt.Sprintf("❓ 未知命令 /%s\n\n发送 /help 查看可用命令", input))
}

func (b *Bot) closestCommand(input string) (string, bool) {
	type cmdDistance struct {
		name     string
		distance int
	}

	distances := make([]cmdDistance, 0, len(b.commands))
	for _, cmd := range b.commands {
		distances = append(distances, cmdDistance{cmd.Name, levenshtein(input, cmd.Name)})
	}
	sort.SliceStable(distances, func(i, j int) bool {
		return distances[i].distance < distances[j].distance
	})

	if len(distances) == 0 || distances[0].distance > maxSuggestDist {
		return "", false
	}
	return distances[0].name, true
}

// levenshtein is the edit distance between a and b, counted in runes.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				cur[j] = prev[j-1]
			} else {
				cur[j] = 1 + min(prev[j], cur[j-1], prev[j-1])
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func (b *Bot) cmdStart(_ context.Context, msg *tgbotapi.Message) {
	text := "👋 欢迎使用频道搜索机器人！\n\n" +
		"在搜索群直接发送关键字即可搜索频道和消息。\n" +
		"支持过滤: channel:用户名 type:video date:2024-01\n\n" +
		"请选择功能："
	b.sendWithKeyboard(msg.Chat.ID, text, mainMenu(b.isAdmin(senderID(msg))))
}

func (b *Bot) cmdHelp(_ context.Context, msg *tgbotapi.Message) {
	b.sendText(msg.Chat.ID, b.helpText(b.isAdmin(senderID(msg))))
}

func (b *Bot) helpText(admin bool) string {
	var sb strings.Builder
	sb.WriteString("📖 使用帮助\n" + rule + "\n\n")
	sb.WriteString("🔍 搜索：在搜索群直接发送关键字\n")
	sb.WriteString("   过滤: channel:用户名 type:text|photo|video|document date:2024-01\n\n")
	sb.WriteString("可用命令：\n")
	for _, cmd := range b.commands {
		if cmd.Admin && !admin {
			continue
		}
		fmt.Fprintf(&sb, "/%s - %s\n", cmd.Name, cmd.Description)
		if cmd.Example != "/"+cmd.Name {
			fmt.Fprintf(&sb, "   例: %s\n", cmd.Example)
		}
	}
	return sb.String()
}

func (b *Bot) cmdStats(ctx context.Context, msg *tgbotapi.Message) {
	text, err := b.deps.Reports.Overview(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("overview report")
		text = "❌ 获取统计失败"
	}
	b.sendText(msg.Chat.ID, text)
}

func (b *Bot) cmdSearch(ctx context.Context, msg *tgbotapi.Message) {
	query := strings.TrimSpace(msg.CommandArguments())
	if query == "" {
		b.sendText(msg.Chat.ID, "用法: /search 关键字\n例: /search golang type:video")
		return
	}
	b.runSearch(ctx, msg.Chat.ID, msg.MessageID, senderID(msg), query, "", 0)
}

func (b *Bot) cmdChannels(ctx context.Context, msg *tgbotapi.Message) {
	text, kb := b.channelPage(ctx, 0)
	if kb == nil {
		b.sendText(msg.Chat.ID, text)
		return
	}
	b.sendWithKeyboard(msg.Chat.ID, text, *kb)
}

// channelPage renders page of the channel list with its navigation row.
func (b *Bot) channelPage(ctx context.Context, page int) (string, *tgbotapi.InlineKeyboardMarkup) {
	text, pages, err := b.deps.Reports.ChannelList(ctx, page, b.opts.ChannelsPerPage, "")
	if err != nil {
		b.log.Error().Err(err).Int("page", page).Msg("channel list report")
		return "❌ 获取频道列表失败", nil
	}
	return text, pageNav(page, pages, channelsPagePrefix)
}

func (b *Bot) cmdReport(_ context.Context, msg *tgbotapi.Message) {
	b.sendWithKeyboard(msg.Chat.ID, "📊 请选择报表类型：", reportMenu())
}

func (b *Bot) cmdCrawlerStatus(ctx context.Context, msg *tgbotapi.Message) {
	text, kb := b.crawlerStatus(ctx)
	if kb == nil {
		b.sendText(msg.Chat.ID, text)
		return
	}
	b.sendWithKeyboard(msg.Chat.ID, text, *kb)
}

func (b *Bot) crawlerStatus(ctx context.Context) (string, *tgbotapi.InlineKeyboardMarkup) {
	if b.deps.Crawler == nil {
		return crawlerNoClient, nil
	}
	st, err := b.deps.Crawler.Status(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("crawler status")
		return "❌ 获取爬虫状态失败", nil
	}

	var sb strings.Builder
	sb.WriteString("🕷 爬虫状态\n" + rule + "\n\n")
	if st.Enabled {
		sb.WriteString("开关: 🟢 已启用\n")
	} else {
		sb.WriteString("开关: 🔴 已禁用\n")
	}
	if st.Running {
		sb.WriteString("循环: ▶️ 运行中\n")
	} else {
		sb.WriteString("循环: ⏸ 未运行\n")
	}
	fmt.Fprintf(&sb, "用户客户端: %s\n", st.Telegram)
	fmt.Fprintf(&sb, "今日加入: %d/%d\n", st.JoinedToday, st.DailyLimit)
	if st.Run != nil {
		fmt.Fprintf(&sb, "已完成周期: %d\n", st.Run.Cycles)
		if st.Run.LastError != "" {
			fmt.Fprintf(&sb, "最近错误: %s\n", st.Run.LastError)
		}
	}

	label := "🟢 启用爬虫"
	if st.Enabled {
		label = "🔴 禁用爬虫"
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, callbackCrawlerToggle)),
	)
	return sb.String(), &kb
}

func (b *Bot) cmdCrawlerOn(ctx context.Context, msg *tgbotapi.Message) {
	b.sendText(msg.Chat.ID, b.startCrawler(ctx))
}

func (b *Bot) cmdCrawlerOff(ctx context.Context, msg *tgbotapi.Message) {
	b.sendText(msg.Chat.ID, b.stopCrawler(ctx))
}

func (b *Bot) startCrawler(ctx context.Context) string {
	if b.deps.Crawler == nil {
		return crawlerNoClient
	}
	_, err := b.deps.Crawler.Start(ctx)
	switch {
	case err == nil:
		return "✅ 爬虫已启用"
	case errors.Is(err, crawler.ErrAlreadyRunning):
		return "ℹ️ 爬虫已在运行"
	case errors.Is(err, crawler.ErrNotReady):
		return "❌ 用户客户端未登录，请先运行 tg-auth"
	default:
		b.log.Error().Err(err).Msg("start crawler")
		return "❌ 启用爬虫失败: " + err.Error()
	}
}

func (b *Bot) stopCrawler(ctx context.Context) string {
	if b.deps.Crawler == nil {
		return crawlerNoClient
	}
	err := b.deps.Crawler.Stop(ctx)
	if err != nil && !errors.Is(err, crawler.ErrNotRunning) {
		b.log.Error().Err(err).Msg("stop crawler")
		return "❌ 禁用爬虫失败: " + err.Error()
	}
	return "🔴 爬虫已禁用"
}

func (b *Bot) cmdAddChannel(ctx context.Context, msg *tgbotapi.Message) {
	arg := strings.TrimSpace(msg.CommandArguments())
	if arg == "" {
		b.sendText(msg.Chat.ID, "用法: /add_channel https://t.me/channel 或 @channel")
		return
	}
	b.sendText(msg.Chat.ID, b.addChannel(ctx, arg, senderID(msg)))
}

// addChannel stores the first public channel named in link and returns the
// reply text.
func (b *Bot) addChannel(ctx context.Context, link string, userID int64) string {
	if !strings.ContainsAny(link, "/@") {
		link = "@" + link
	}

	var cand *extractor.Candidate
	for _, c := range b.extractor.Extract(link) {
		if c.Kind == extractor.KindPublic && !extractor.IsBotHandle(c.Handle) {
			c := c
			cand = &c
			break
		}
	}
	if cand == nil {
		return "❌ 未找到有效的公开频道链接"
	}

	category := models.DefaultCategory
	if b.deps.Classifier != nil {
		category = b.deps.Classifier.Classify(cand.Handle)
	}

	ch := &models.Channel{
		Handle:       cand.Handle,
		Category:     category,
		Status:       models.ChannelStatusPending,
		CrawlEnabled: true,
		DiscoveredBy: fmt.Sprintf("manual_%d", userID),
		DiscoveredAt: b.deps.Clock(),
	}
	id, err := b.deps.Channels.Add(ctx, ch)
	if errors.Is(err, repository.ErrAlreadyExists) {
		return fmt.Sprintf("ℹ️ 频道 @%s 已存在", cand.Handle)
	}
	if err != nil {
		b.log.Error().Err(err).Str("handle", cand.Handle).Msg("add channel")
		return "❌ 添加失败"
	}
	ch.ID = id

	if err := b.deps.Publisher.PublishChannelDiscovered(ctx, events.NewChannelDiscovered(ch, 0)); err != nil {
		b.log.Warn().Err(err).Str("handle", ch.Handle).Msg("publish channel discovered")
	}
	b.log.Info().Str("handle", ch.Handle).Str("category", category).Int64("user_id", userID).Msg("channel added manually")
	return fmt.Sprintf("✅ 已添加频道 @%s\n📁 分类: %s\n⏳ 状态: 待验证", cand.Handle, category)
}

// escape is shorthand for MarkdownV2 escaping of user text.
func escape(s string) string { return search.EscapeMarkdown(s) }

const rule = "━━━━━━━━━━━━━━━━━━━━"
