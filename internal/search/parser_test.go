package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		keywords []string
		filters  map[string]string
	}{
		{
			name:     "keyword and type",
			query:    "Python type:video",
			keywords: []string{"Python"},
			filters:  map[string]string{"type": "video"},
		},
		{
			name:     "several filters",
			query:    "教程 channel:@tech_news  date:2024-05 学习",
			keywords: []string{"教程", "学习"},
			filters:  map[string]string{"channel": "@tech_news", "date": "2024-05"},
		},
		{
			name:     "keys are lowercased",
			query:    "TYPE:photo cats",
			keywords: []string{"cats"},
			filters:  map[string]string{"type": "photo"},
		},
		{
			name:     "unknown keys kept",
			query:    "lang:go generics",
			keywords: []string{"generics"},
			filters:  map[string]string{"lang": "go"},
		},
		{
			name:     "plain keywords",
			query:    "  golang   tips ",
			keywords: []string{"golang", "tips"},
			filters:  map[string]string{},
		},
		{
			name:     "empty",
			query:    "",
			keywords: []string{},
			filters:  map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keywords, filters := Parse(tt.query)
			assert.Equal(t, tt.keywords, keywords)
			assert.Equal(t, tt.filters, filters)
		})
	}
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total, size, want int
	}{
		{0, 10, 1},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{24, 5, 5},
		{5, 0, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TotalPages(tt.total, tt.size), "total=%d size=%d", tt.total, tt.size)
	}
}
