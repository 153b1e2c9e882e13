// Package moderation decides whether a search-group message is a plain
// keyword query.
package moderation

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Defaults for the search group.
const (
	DefaultMaxRunes   = 64
	DefaultWarningTTL = 8 * time.Second
	WarningText       = "❌ 这里只能输入搜索关键字，请勿发送广告或其它内容。"
)

// Rejection reasons shown to the user.
const (
	ReasonMediaOnly  = "只允许输入文本关键字"
	ReasonEmpty      = "请输入搜索关键字"
	ReasonTooLong    = "文字长度请控制在 64 字以内"
	ReasonLink       = "请不要发送链接或广告"
	ReasonEntity     = "请不要发送链接或@他人"
	ReasonCharacters = "请仅输入中文/英文/数字等简单关键字"
	ReasonNoMessage  = "系统错误"
)

var (
	allowedPattern = regexp.MustCompile(`^[\p{Han}a-zA-Z0-9#@\s]+$`)
	urlPattern     = regexp.MustCompile(`(?i)(https?://|www\.|t\.me/)`)
)

var blockedEntities = map[string]bool{
	"url":          true,
	"text_link":    true,
	"email":        true,
	"phone_number": true,
	"mention":      true,
}

// Input is the part of a message moderation looks at.
type Input struct {
	Text        string
	Caption     string
	HasMedia    bool
	EntityTypes []string
	FromAdmin   bool
	FromBot     bool
	Missing     bool
}

// Verdict is the moderation outcome. Reason is set when Allowed is false.
type Verdict struct {
	Allowed bool
	Reason  string
}

// Warning is the text posted after a rejection.
func (v Verdict) Warning() string {
	if v.Reason == "" {
		return WarningText
	}
	return WarningText + "\n👉 " + v.Reason
}

func allow() Verdict               { return Verdict{Allowed: true} }
func reject(reason string) Verdict { return Verdict{Reason: reason} }

// Check applies the search-group policy. It has no side effects.
func Check(in Input) Verdict {
	if in.FromAdmin {
		return allow()
	}
	if in.Missing {
		return reject(ReasonNoMessage)
	}
	if in.FromBot {
		return allow()
	}
	if in.HasMedia || in.Caption != "" {
		return reject(ReasonMediaOnly)
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return reject(ReasonEmpty)
	}
	if utf8.RuneCountInString(text) > DefaultMaxRunes {
		return reject(ReasonTooLong)
	}
	if urlPattern.MatchString(text) {
		return reject(ReasonLink)
	}
	for _, t := range in.EntityTypes {
		if blockedEntities[t] {
			return reject(ReasonEntity)
		}
	}
	if !allowedPattern.MatchString(text) {
		return reject(ReasonCharacters)
	}
	return allow()
}
