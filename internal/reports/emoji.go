package reports

import (
	"strings"

	"github.com/blockedby/chansearch/internal/models"
)

var statusEmoji = map[models.ChannelStatus]string{
	models.ChannelStatusPending: "⏳",
	models.ChannelStatusActive:  "✅",
	models.ChannelStatusFailed:  "❌",
	models.ChannelStatusBanned:  "🚫",
}

// StatusEmoji returns the icon for a channel status.
func StatusEmoji(s models.ChannelStatus) string {
	if e, ok := statusEmoji[s]; ok {
		return e
	}
	return "❓"
}

var mediaEmoji = map[models.MediaKind]string{
	models.MediaText:      "📝",
	models.MediaPhoto:     "📸",
	models.MediaVideo:     "🎬",
	models.MediaDocument:  "📎",
	models.MediaAudio:     "🎵",
	models.MediaVoice:     "🎤",
	models.MediaSticker:   "🎨",
	models.MediaAnimation: "🎞️",
	models.MediaChannel:   "📺",
}

// MediaEmoji returns the icon for a media kind in reports.
func MediaEmoji(k models.MediaKind) string {
	if e, ok := mediaEmoji[k]; ok {
		return e
	}
	return "📄"
}

var categoryEmoji = map[string]string{
	"新闻资讯":                 "📰",
	"科技数码":                 "📱",
	"影视资源":                 "🎬",
	"软件工具":                 "🔧",
	"电子书籍":                 "📚",
	"学习教育":                 "🎓",
	"资源分享":                 "📦",
	"娱乐休闲":                 "🎮",
	"生活服务":                 "🏪",
	"金融投资":                 "💰",
	"其他":                   "📁",
	models.DefaultCategory: "📂",
}

// CategoryEmoji returns the icon for a category name.
func CategoryEmoji(name string) string {
	if e, ok := categoryEmoji[name]; ok {
		return e
	}
	return "📁"
}

func rankMedal(rank int) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	}
	return "🏅"
}

// ProgressBar draws a bracketed bar of length cells filled to pct percent.
func ProgressBar(pct float64, length int) string {
	filled := int(pct / 100 * float64(length))
	filled = max(0, min(filled, length))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", length-filled) + "]"
}
