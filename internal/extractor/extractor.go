// Package extractor recognises Telegram channel references in free text and
// classifies text into a fixed set of topical categories.
package extractor

import (
	"regexp"
	"strings"
	"unicode"
)

// Kind is the provenance of an extracted candidate.
type Kind string

// Kind constants.
const (
	KindPublic  Kind = "username"
	KindPrivate Kind = "id"
	KindInvite  Kind = "invite"
)

// Candidate is one channel reference found in text.
type Candidate struct {
	Handle string `json:"handle"`
	URL    string `json:"url"`
	Kind   Kind   `json:"kind"`
	Match  string `json:"match"`
}

var (
	fullURLPattern  = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?t\.me/([a-z0-9_]{5,32})(?:/\d+)?`)
	resolvePattern  = regexp.MustCompile(`(?i)tg://resolve\?domain=([a-z0-9_]{5,32})`)
	privatePattern  = regexp.MustCompile(`(?i)t\.me/c/(\d+)`)
	joinchatPattern = regexp.MustCompile(`(?i)t\.me/joinchat/([a-z0-9_-]+)`)
	mentionPattern  = regexp.MustCompile(`@([a-zA-Z0-9_]{5,32})`)
)

// MaxHandleLen is the widest handle the channels and ledger tables store.
// Longer candidates, such as oversized invite hashes, are dropped.
const MaxHandleLen = 64

// reservedPaths are t.me path segments that never name a channel.
var reservedPaths = map[string]struct{}{
	"joinchat":    {},
	"addstickers": {},
	"addemoji":    {},
	"addlist":     {},
	"share":       {},
	"proxy":       {},
	"socks":       {},
	"setlanguage": {},
	"login":       {},
}

// DefaultDenyList holds generic words rejected as bare @mentions.
var DefaultDenyList = []string{
	"admin", "bot", "support", "help", "here", "all",
	"everyone", "channel", "group", "username",
}

// Extractor finds channel candidates in text.
type Extractor struct {
	deny map[string]struct{}
}

// New creates an extractor rejecting the given bare-mention words.
// A nil list selects DefaultDenyList.
func New(denyList []string) *Extractor {
	if denyList == nil {
		denyList = DefaultDenyList
	}
	deny := make(map[string]struct{}, len(denyList))
	for _, w := range denyList {
		deny[strings.ToLower(w)] = struct{}{}
	}
	return &Extractor{deny: deny}
}

// Extract returns deduplicated candidates in priority order: full t.me URLs,
// private t.me/c links, joinchat invites, then bare @mentions. It never fails;
// text without references yields nil.
func (e *Extractor) Extract(text string) []Candidate {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var (
		out  []Candidate
		seen = make(map[string]struct{})
	)
	add := func(c Candidate) {
		if len(c.Handle) > MaxHandleLen {
			return
		}
		if _, dup := seen[c.Handle]; dup {
			return
		}
		seen[c.Handle] = struct{}{}
		out = append(out, c)
	}

	for _, m := range fullURLPattern.FindAllStringSubmatch(text, -1) {
		handle := strings.ToLower(m[1])
		if _, reserved := reservedPaths[handle]; reserved {
			continue
		}
		add(Candidate{Handle: handle, URL: "https://t.me/" + handle, Kind: KindPublic, Match: m[0]})
	}
	for _, m := range resolvePattern.FindAllStringSubmatch(text, -1) {
		handle := strings.ToLower(m[1])
		add(Candidate{Handle: handle, URL: "https://t.me/" + handle, Kind: KindPublic, Match: m[0]})
	}
	for _, m := range privatePattern.FindAllStringSubmatch(text, -1) {
		add(Candidate{Handle: "c_" + m[1], URL: "https://t.me/c/" + m[1], Kind: KindPrivate, Match: m[0]})
	}
	for _, m := range joinchatPattern.FindAllStringSubmatch(text, -1) {
		add(Candidate{
			Handle: "joinchat_" + strings.ToLower(m[1]),
			URL:    "https://t.me/joinchat/" + m[1],
			Kind:   KindInvite,
			Match:  m[0],
		})
	}
	for _, idx := range mentionPattern.FindAllStringSubmatchIndex(text, -1) {
		if idx[0] > 0 && isWordByte(text[idx[0]-1]) {
			// part of an e-mail address
			continue
		}
		handle := strings.ToLower(text[idx[2]:idx[3]])
		if !e.validMention(handle) {
			continue
		}
		add(Candidate{Handle: handle, URL: "https://t.me/" + handle, Kind: KindPublic, Match: text[idx[0]:idx[1]]})
	}

	return out
}

func (e *Extractor) validMention(handle string) bool {
	if len(handle) < 5 {
		return false
	}
	if _, denied := e.deny[handle]; denied {
		return false
	}
	return strings.IndexFunc(handle, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0
}

func isWordByte(b byte) bool {
	return b == '_' || b == '.' || b == '-' ||
		('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}

// IsBotHandle reports whether handle looks like a bot account.
func IsBotHandle(handle string) bool {
	return strings.HasSuffix(strings.ToLower(handle), "bot")
}
