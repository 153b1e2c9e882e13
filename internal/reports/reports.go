// Package reports renders plain-text statistics for admins.
package reports

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/blockedby/chansearch/internal/models"
	"github.com/blockedby/chansearch/internal/repository"
	"github.com/blockedby/chansearch/internal/search"
)

const rule = "━━━━━━━━━━━━━━━━━━━━"

// StatsSource provides aggregated counts.
type StatsSource interface {
	GetOverview(ctx context.Context) (*repository.Overview, error)
	CountByCategory(ctx context.Context) (map[string]int64, error)
	TopChannels(ctx context.Context, limit int) ([]repository.ChannelActivity, error)
}

// ChannelSource lists channels.
type ChannelSource interface {
	List(ctx context.Context, f repository.ChannelFilter) ([]models.Channel, error)
	Count(ctx context.Context, status models.ChannelStatus) (int64, error)
}

// FlagSource reads boolean settings.
type FlagSource interface {
	GetBool(ctx context.Context, key string, def bool) (bool, error)
}

// Generator builds report texts.
type Generator struct {
	stats    StatsSource
	channels ChannelSource
	flags    FlagSource
	now      func() time.Time
	printer  *message.Printer
}

// NewGenerator creates a report generator.
func NewGenerator(stats StatsSource, channels ChannelSource, flags FlagSource) *Generator {
	return &Generator{
		stats:    stats,
		channels: channels,
		flags:    flags,
		now:      time.Now,
		printer:  message.NewPrinter(language.English),
	}
}

// Overview summarises channels by status, messages by kind and the crawler switch.
func (g *Generator) Overview(ctx context.Context) (string, error) {
	o, err := g.stats.GetOverview(ctx)
	if err != nil {
		return "", fmt.Errorf("get overview: %w", err)
	}
	crawler, err := g.flags.GetBool(ctx, repository.CrawlerEnabledKey, false)
	if err != nil {
		return "", fmt.Errorf("get crawler flag: %w", err)
	}

	var b strings.Builder
	b.WriteString("📊 系统总体统计\n" + rule + "\n\n")

	b.WriteString("📺 频道统计：\n")
	fmt.Fprintf(&b, "  • 总计: %d 个\n", o.TotalChannels)
	fmt.Fprintf(&b, "  • 已验证: %d 个 ✅\n", o.ActiveChannels)
	fmt.Fprintf(&b, "  • 待验证: %d 个 ⏳\n", o.PendingChannels)
	fmt.Fprintf(&b, "  • 失效/封禁: %d 个 ❌\n\n", o.FailedChannels+o.BannedChannels)

	b.WriteString("📄 消息统计：\n")
	fmt.Fprintf(&b, "  • 总计: %s 条\n", g.number(o.TotalMessages))
	kinds := make([]models.MediaKind, 0, len(o.ByMediaKind))
	for k := range o.ByMediaKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		if o.ByMediaKind[kinds[i]] != o.ByMediaKind[kinds[j]] {
			return o.ByMediaKind[kinds[i]] > o.ByMediaKind[kinds[j]]
		}
		return kinds[i] < kinds[j]
	})
	for _, k := range kinds {
		fmt.Fprintf(&b, "  • %s %s: %s\n", MediaEmoji(k), k, g.number(o.ByMediaKind[k]))
	}
	b.WriteString("\n")

	b.WriteString("⚙️ 爬虫状态：\n")
	if crawler {
		b.WriteString("  • 🟢 已启用\n\n")
	} else {
		b.WriteString("  • 🔴 已禁用\n\n")
	}

	fmt.Fprintf(&b, "🕐 生成时间: %s", g.now().Format("2006-01-02 15:04:05"))
	return b.String(), nil
}

// ChannelList renders one zero-based page of channels, newest first, and
// returns the page count.
func (g *Generator) ChannelList(ctx context.Context, page, perPage int, category string) (string, int, error) {
	if perPage <= 0 {
		perPage = 10
	}
	if page < 0 {
		page = 0
	}
	total, err := g.channels.Count(ctx, "")
	if err != nil {
		return "", 0, fmt.Errorf("count channels: %w", err)
	}
	pages := search.TotalPages(int(total), perPage)

	offset := page * perPage
	channels, err := g.channels.List(ctx, repository.ChannelFilter{Category: category, Limit: perPage, Offset: offset})
	if err != nil {
		return "", pages, fmt.Errorf("list channels: %w", err)
	}
	if len(channels) == 0 {
		return "📭 暂无频道数据", pages, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📺 频道列表 (第 %d/%d 页)\n", page+1, pages)
	if category != "" {
		fmt.Fprintf(&b, "📁 分类: %s\n", category)
	}
	b.WriteString(rule + "\n\n")

	for i, ch := range channels {
		fmt.Fprintf(&b, "%d. %s", offset+i+1, StatusEmoji(ch.Status))
		if ch.Verified {
			b.WriteString(" ✅")
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "   @%s\n", ch.Handle)
		if ch.Title != "" {
			fmt.Fprintf(&b, "   📝 %s\n", ch.Title)
		}
		fmt.Fprintf(&b, "   📁 %s\n", ch.Category)
		if ch.MemberCount > 0 {
			fmt.Fprintf(&b, "   👥 %s 成员\n", g.number(int64(ch.MemberCount)))
		}
		fmt.Fprintf(&b, "   🕐 %s\n\n", ch.DiscoveredAt.Format("2006-01-02"))
	}
	return b.String(), pages, nil
}

// Categories renders channel counts per category with percentage bars.
func (g *Generator) Categories(ctx context.Context) (string, error) {
	counts, err := g.stats.CountByCategory(ctx)
	if err != nil {
		return "", fmt.Errorf("count by category: %w", err)
	}
	if len(counts) == 0 {
		return "📊 暂无分类数据", nil
	}

	var total int64
	names := make([]string, 0, len(counts))
	for name, n := range counts {
		total += n
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})

	var b strings.Builder
	b.WriteString("📊 频道分类统计\n" + rule + "\n\n")
	for _, name := range names {
		pct := float64(counts[name]) / float64(total) * 100
		fmt.Fprintf(&b, "%s %s\n", CategoryEmoji(name), name)
		fmt.Fprintf(&b, "%s %d 个 (%.1f%%)\n\n", ProgressBar(pct, 10), counts[name], pct)
	}
	return b.String(), nil
}

// TopChannels renders the channels with the most stored messages.
func (g *Generator) TopChannels(ctx context.Context, limit int) (string, error) {
	top, err := g.stats.TopChannels(ctx, limit)
	if err != nil {
		return "", fmt.Errorf("top channels: %w", err)
	}
	if len(top) == 0 {
		return "🔥 暂无活跃频道数据", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔥 最活跃频道 Top %d\n%s\n\n", limit, rule)
	for i, ch := range top {
		fmt.Fprintf(&b, "%s %d. @%s\n", rankMedal(i+1), i+1, ch.Handle)
		if ch.Title != "" {
			fmt.Fprintf(&b, "   📝 %s\n", ch.Title)
		}
		fmt.Fprintf(&b, "   📁 %s\n", ch.Category)
		fmt.Fprintf(&b, "   📄 %s 条消息\n\n", g.number(ch.MessageCount))
	}
	return b.String(), nil
}

func (g *Generator) number(n int64) string {
	return g.printer.Sprintf("%d", n)
}
