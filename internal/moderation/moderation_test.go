package moderation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name   string
		in     Input
		allow  bool
		reason string
	}{
		{"plain chinese", Input{Text: "电影 教程"}, true, ""},
		{"latin with tag", Input{Text: "golang #tips"}, true, ""},
		{"admin bypasses everything", Input{Text: "https://spam.example", FromAdmin: true}, true, ""},
		{"bot exempt", Input{Text: "!!!", FromBot: true}, true, ""},
		{"missing message", Input{Missing: true}, false, ReasonNoMessage},
		{"media", Input{HasMedia: true}, false, ReasonMediaOnly},
		{"caption", Input{Caption: "buy now"}, false, ReasonMediaOnly},
		{"empty", Input{Text: "   "}, false, ReasonEmpty},
		{"too long", Input{Text: strings.Repeat("字", 65)}, false, ReasonTooLong},
		{"exactly max", Input{Text: strings.Repeat("字", 64)}, true, ""},
		{"http link", Input{Text: "see http://x.io"}, false, ReasonLink},
		{"www link", Input{Text: "WWW.example.com"}, false, ReasonLink},
		{"t.me link", Input{Text: "join t.me/spam"}, false, ReasonLink},
		{"mention entity", Input{Text: "@someone", EntityTypes: []string{"mention"}}, false, ReasonEntity},
		{"harmless entity", Input{Text: "#golang", EntityTypes: []string{"hashtag"}}, true, ""},
		{"punctuation", Input{Text: "hello, world!"}, false, ReasonCharacters},
		{"emoji", Input{Text: "电影🔥"}, false, ReasonCharacters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Check(tt.in)
			assert.Equal(t, tt.allow, v.Allowed)
			assert.Equal(t, tt.reason, v.Reason)
		})
	}
}

func TestVerdict_Warning(t *testing.T) {
	assert.Equal(t, WarningText, Verdict{}.Warning())
	assert.Equal(t, WarningText+"\n👉 "+ReasonLink, reject(ReasonLink).Warning())
}
