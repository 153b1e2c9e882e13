package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/blockedby/chansearch/internal/models"
)

// ScoredChannel is a channel with its relevance to a keyword.
type ScoredChannel struct {
	models.Channel
	Score int `json:"score"`
}

// RelatedChannels ranks active channels against keyword: a handle match
// scores 3, a title match 2 and a category match 1.
func (e *Engine) RelatedChannels(ctx context.Context, keyword string, limit int) ([]ScoredChannel, error) {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if kw == "" {
		return nil, nil
	}
	channels, err := e.store.ActiveChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active channels: %w", err)
	}

	var out []ScoredChannel
	for _, ch := range channels {
		score := 0
		if strings.Contains(strings.ToLower(ch.Handle), kw) {
			score += 3
		}
		if strings.Contains(strings.ToLower(ch.Title), kw) {
			score += 2
		}
		if strings.Contains(strings.ToLower(ch.Category), kw) {
			score++
		}
		if score > 0 {
			out = append(out, ScoredChannel{Channel: ch, Score: score})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].MemberCount != out[j].MemberCount {
			return out[i].MemberCount > out[j].MemberCount
		}
		return out[i].Handle < out[j].Handle
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
