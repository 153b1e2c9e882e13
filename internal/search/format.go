package search

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blockedby/chansearch/internal/models"
)

const maxLabelRunes = 120

var mediaEmoji = map[models.MediaKind]string{
	models.MediaPhoto:    "📸",
	models.MediaVideo:    "🎬",
	models.MediaDocument: "📎",
	models.MediaAudio:    "🎵",
	models.MediaVoice:    "🎤",
	models.MediaChannel:  "📺",
}

// Emoji returns the icon shown for a media kind.
func Emoji(kind models.MediaKind) string {
	if e, ok := mediaEmoji[kind]; ok {
		return e
	}
	return "📄"
}

var (
	textEscaper = strings.NewReplacer(
		`\`, `\\`, "_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
		"~", `\~`, "`", "\\`", ">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`, "=", `\=`,
		"|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`,
	)
	urlEscaper = strings.NewReplacer(`\`, `\\`, ")", `\)`)
)

// EscapeMarkdown escapes text for Telegram MarkdownV2.
func EscapeMarkdown(s string) string {
	return textEscaper.Replace(s)
}

// Formatter renders hits for chat output.
type Formatter struct {
	// StorageChannelID is the mirror channel id, e.g. -1001234567890.
	StorageChannelID int64
}

// Label returns the display text of a hit: the channel title or first token
// for metadata, otherwise the content, capped at 120 runes.
func (f Formatter) Label(h Hit) string {
	var label string
	switch {
	case h.Kind == HitChannel && h.Channel.Title != "":
		label = h.Channel.Title
	case h.Kind == HitChannel:
		label = "@" + h.Channel.Handle
	case h.IsMetadata():
		if fields := strings.Fields(h.Content()); len(fields) > 0 {
			label = fields[0]
		}
	default:
		label = strings.Join(strings.Fields(h.Content()), " ")
	}
	if label == "" {
		label = "untitled"
	}
	return truncate(label, maxLabelRunes)
}

// URL returns the link for a hit: the original post, the channel, the
// storage mirror, or "" when none is possible.
func (f Formatter) URL(h Hit) string {
	handle := h.Handle()
	src := h.SourceMessageID()
	switch {
	case handle != "" && src > 0 && !h.IsMetadata():
		return fmt.Sprintf("https://t.me/%s/%d", handle, src)
	case handle != "":
		return "https://t.me/" + handle
	}
	if h.Kind == HitMessage && h.Message.StorageMessageID != nil && f.StorageChannelID != 0 {
		return fmt.Sprintf("https://t.me/c/%s/%d", internalChannelID(f.StorageChannelID), *h.Message.StorageMessageID)
	}
	return ""
}

// Format renders a hit as one MarkdownV2 line prefixed by its index.
func (f Formatter) Format(h Hit, index int) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(index))
	b.WriteString(`\. `)
	b.WriteString(Emoji(displayKind(h)))
	b.WriteByte(' ')

	label := EscapeMarkdown(f.Label(h))
	if url := f.URL(h); url != "" {
		fmt.Fprintf(&b, "[%s](%s)", label, urlEscaper.Replace(url))
	} else {
		b.WriteString(label)
	}

	if h.Kind == HitChannel && h.Channel.MemberCount > 0 {
		b.WriteString(EscapeMarkdown(fmt.Sprintf(" · %d", h.Channel.MemberCount)))
	}
	if h.Kind == HitMessage && h.Handle() != "" && !h.IsMetadata() {
		b.WriteString(EscapeMarkdown(" · @" + h.Handle()))
	}
	return b.String()
}

// PlainFormat renders a hit without markup.
func (f Formatter) PlainFormat(h Hit, index int) string {
	line := fmt.Sprintf("%d. %s %s", index, Emoji(displayKind(h)), f.Label(h))
	if url := f.URL(h); url != "" {
		line += " - " + url
	}
	return line
}

func displayKind(h Hit) models.MediaKind {
	if h.IsMetadata() {
		return models.MediaChannel
	}
	return h.MediaKind()
}

// internalChannelID strips the -100 prefix of a supergroup/channel id.
func internalChannelID(id int64) string {
	s := strconv.FormatInt(id, 10)
	return strings.TrimPrefix(s, "-100")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
