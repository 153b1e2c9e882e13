package extractor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func handles(cs []Candidate) []string {
	var out []string
	for _, c := range cs {
		out = append(out, c.Handle)
	}
	return out
}

func TestExtractor_Extract(t *testing.T) {
	e := New(nil)

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", nil},
		{"whitespace", "   \n\t", nil},
		{"no references", "just some chatter about nothing", nil},
		{"bare mention", "科技频道 @tech_news123 不错", []string{"tech_news123"}},
		{"full url with post id", "see https://t.me/GolangNews/1234 today", []string{"golangnews"}},
		{"url without scheme", "t.me/rustlang_cn", []string{"rustlang_cn"}},
		{"private link", "https://t.me/c/1234567890/55", []string{"c_1234567890"}},
		{"joinchat link", "join t.me/joinchat/AbC-dEf_123", []string{"joinchat_abc-def_123"}},
		{"resolve link", "tg://resolve?domain=some_channel", []string{"some_channel"}},
		{"short mention", "@abcd is too short", nil},
		{"numeric mention", "@1234567", nil},
		{"denied mention", "ping @admin or @support please", nil},
		{"email is not a mention", "mail me at someone@example_domain", nil},
		{"reserved path", "t.me/addstickers/Pack t.me/share/url", nil},
		{
			"priority order",
			"@mention_one t.me/joinchat/HASH1 t.me/c/42 https://t.me/url_first",
			[]string{"url_first", "c_42", "joinchat_hash1", "mention_one"},
		},
		{"dedup case insensitive", "@Dup_Handle https://t.me/dup_handle @DUP_HANDLE", []string{"dup_handle"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, handles(e.Extract(tt.text)))
		})
	}
}

func TestExtractor_CandidateFields(t *testing.T) {
	got := New(nil).Extract("visit https://t.me/Go_Daily/7 and t.me/joinchat/XyZ12")
	if assert.Len(t, got, 2) {
		assert.Equal(t, Candidate{
			Handle: "go_daily",
			URL:    "https://t.me/go_daily",
			Kind:   KindPublic,
			Match:  "https://t.me/Go_Daily/7",
		}, got[0])
		assert.Equal(t, KindInvite, got[1].Kind)
		assert.Equal(t, "https://t.me/joinchat/XyZ12", got[1].URL, "invite hash keeps its case in the URL")
		assert.Equal(t, "t.me/joinchat/XyZ12", got[1].Match)
	}
}

func TestExtractor_DenyListDoesNotAffectURLs(t *testing.T) {
	got := New(nil).Extract("@admin and t.me/admin and @channel")
	assert.Equal(t, []string{"admin"}, handles(got))
	assert.Equal(t, "t.me/admin", got[0].Match)
}

func TestExtractor_CustomDenyList(t *testing.T) {
	got := New([]string{"spammy"}).Extract("@spammy @support")
	assert.Equal(t, []string{"support"}, handles(got))
}

func TestExtractor_NoDuplicates(t *testing.T) {
	e := New(nil)
	inputs := []string{
		"@aaaaa @AAAAA t.me/aaaaa https://t.me/aaaaa/1 http://T.ME/AaAaA",
		strings.Repeat("@repeat_me ", 50),
		"t.me/c/1 t.me/c/1 t.me/joinchat/x t.me/joinchat/X",
	}
	for _, in := range inputs {
		seen := map[string]bool{}
		for _, c := range e.Extract(in) {
			key := strings.ToLower(c.Handle)
			assert.False(t, seen[key], "duplicate handle %q", key)
			seen[key] = true
		}
	}
}

func TestExtractor_DropsOverlongHandles(t *testing.T) {
	fits := strings.Repeat("a", MaxHandleLen-len("joinchat_"))
	tooLong := strings.Repeat("b", 80)

	got := New(nil).Extract("t.me/joinchat/" + fits + " t.me/joinchat/" + tooLong + " @short_one")
	assert.Equal(t, []string{"joinchat_" + fits, "short_one"}, handles(got))
	for _, c := range got {
		assert.LessOrEqual(t, len(c.Handle), MaxHandleLen)
	}
}

func TestIsBotHandle(t *testing.T) {
	assert.True(t, IsBotHandle("supportbot"))
	assert.True(t, IsBotHandle("Search_BOT"))
	assert.False(t, IsBotHandle("robotics_news"))
}
