package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxPromptRunes = 2000

// Completer answers a system/user exchange.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Categorizer asks the model to pick one of the known categories.
type Categorizer struct {
	llm    Completer
	prompt *PromptConfig
}

// NewCategorizer creates a categorizer. A nil prompt selects the built-in one.
func NewCategorizer(llm Completer, prompt *PromptConfig) *Categorizer {
	if prompt == nil {
		prompt = DefaultCategoryPrompt()
	}
	return &Categorizer{llm: llm, prompt: prompt}
}

// Categorize returns the category the model chose. An answer that is not
// exactly one of categories yields "" and no error.
func (c *Categorizer) Categorize(ctx context.Context, text string, categories []string) (string, error) {
	if len(categories) == 0 {
		return "", nil
	}
	answer, err := c.llm.Complete(ctx, c.prompt.System, c.prompt.BuildUserPrompt(clip(text), categories))
	if err != nil {
		return "", fmt.Errorf("categorize: %w", err)
	}
	return match(answer, categories), nil
}

// match normalises surrounding quotes and punctuation before comparing.
func match(answer string, categories []string) string {
	answer = strings.Trim(strings.TrimSpace(answer), "\"'`“”「」。.")
	for _, c := range categories {
		if answer == c {
			return c
		}
	}
	return ""
}

func clip(s string) string {
	if utf8.RuneCountInString(s) <= maxPromptRunes {
		return s
	}
	return string([]rune(s)[:maxPromptRunes])
}
