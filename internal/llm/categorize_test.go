package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCompleter struct {
	answer string
	err    error
	user   string
}

func (s *stubCompleter) Complete(_ context.Context, _, user string) (string, error) {
	s.user = user
	return s.answer, s.err
}

var cats = []string{"新闻资讯", "科技数码", "其他"}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   string
	}{
		{"exact", "科技数码", "科技数码"},
		{"quoted", "「科技数码」", "科技数码"},
		{"trailing period", " 新闻资讯。\n", "新闻资讯"},
		{"unknown", "体育", ""},
		{"chatty", "The category is 科技数码", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCategorizer(&stubCompleter{answer: tt.answer}, nil)
			got, err := c.Categorize(context.Background(), "some text", cats)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCategorize_PromptCarriesInputs(t *testing.T) {
	stub := &stubCompleter{answer: "其他"}
	c := NewCategorizer(stub, nil)

	_, err := c.Categorize(context.Background(), "golang weekly", cats)
	require.NoError(t, err)
	assert.Contains(t, stub.user, "golang weekly")
	assert.Contains(t, stub.user, "新闻资讯\n科技数码\n其他")
}

func TestCategorize_ClipsLongText(t *testing.T) {
	stub := &stubCompleter{answer: "其他"}
	c := NewCategorizer(stub, &PromptConfig{User: "{{TEXT}}"})

	_, err := c.Categorize(context.Background(), strings.Repeat("字", 5000), cats)
	require.NoError(t, err)
	assert.Equal(t, maxPromptRunes, utf8.RuneCountInString(stub.user))
}

func TestCategorize_Errors(t *testing.T) {
	c := NewCategorizer(&stubCompleter{err: errors.New("down")}, nil)
	_, err := c.Categorize(context.Background(), "x", cats)
	assert.ErrorContains(t, err, "categorize")

	got, err := c.Categorize(context.Background(), "x", nil)
	assert.NoError(t, err)
	assert.Empty(t, got)
}
