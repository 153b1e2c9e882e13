package extractor

import "strings"

// OtherCategory is returned when no keyword matches.
const OtherCategory = "其他"

// Category is a named keyword list.
type Category struct {
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// DefaultCategories returns the built-in categories in declaration order.
func DefaultCategories() []Category {
	return []Category{
		{Name: "新闻资讯", Keywords: []string{"新闻", "资讯", "news", "日报", "快讯", "时事"}},
		{Name: "科技数码", Keywords: []string{"科技", "数码", "tech", "技术", "IT", "程序", "编程", "coding", "AI", "人工智能"}},
		{Name: "影视资源", Keywords: []string{"电影", "影视", "视频", "movie", "剧集", "动漫", "番剧", "美剧", "韩剧"}},
		{Name: "软件工具", Keywords: []string{"软件", "工具", "app", "software", "破解", "crack", "premium"}},
		{Name: "电子书籍", Keywords: []string{"电子书", "书籍", "book", "ebook", "小说", "阅读", "PDF", "epub"}},
		{Name: "学习教育", Keywords: []string{"教程", "学习", "tutorial", "课程", "course", "教育", "考试"}},
		{Name: "资源分享", Keywords: []string{"资源", "分享", "share", "网盘", "download", "下载"}},
		{Name: "娱乐休闲", Keywords: []string{"娱乐", "音乐", "music", "游戏", "game", "搞笑", "段子"}},
		{Name: "生活服务", Keywords: []string{"生活", "服务", "购物", "shopping", "美食", "旅游"}},
		{Name: "金融投资", Keywords: []string{"金融", "投资", "股票", "crypto", "加密货币", "bitcoin", "交易"}},
	}
}

// Classifier scores text against keyword categories.
type Classifier struct {
	categories []Category
	fallback   string
}

// NewClassifier creates a classifier. Empty categories select the defaults
// and an empty fallback selects OtherCategory.
func NewClassifier(categories []Category, fallback string) *Classifier {
	if len(categories) == 0 {
		categories = DefaultCategories()
	}
	if fallback == "" {
		fallback = OtherCategory
	}
	lowered := make([]Category, len(categories))
	for i, c := range categories {
		kws := make([]string, 0, len(c.Keywords))
		for _, kw := range c.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				kws = append(kws, kw)
			}
		}
		lowered[i] = Category{Name: c.Name, Keywords: kws}
	}
	return &Classifier{categories: lowered, fallback: fallback}
}

// Classify returns the category whose keywords occur most often in the
// joined texts. Ties go to the category declared first; no match yields
// the fallback.
func (c *Classifier) Classify(texts ...string) string {
	blob := strings.ToLower(strings.Join(texts, " "))
	if strings.TrimSpace(blob) == "" {
		return c.fallback
	}

	best, bestScore := c.fallback, 0
	for _, cat := range c.categories {
		score := 0
		for _, kw := range cat.Keywords {
			if strings.Contains(blob, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = cat.Name, score
		}
	}
	return best
}

// Fallback returns the category used when nothing matches.
func (c *Classifier) Fallback() string {
	return c.fallback
}

// Names lists category names in declaration order, fallback last.
func (c *Classifier) Names() []string {
	out := make([]string, 0, len(c.categories)+1)
	for _, cat := range c.categories {
		out = append(out, cat.Name)
	}
	return append(out, c.fallback)
}

// Has reports whether name is a known category or the fallback.
func (c *Classifier) Has(name string) bool {
	for _, n := range c.Names() {
		if n == name {
			return true
		}
	}
	return false
}
