// Package search implements keyword search over channels and messages:
// query parsing, the union merge, pagination and result formatting.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/blockedby/chansearch/internal/logger"
	"github.com/blockedby/chansearch/internal/models"
	"github.com/blockedby/chansearch/internal/repository"
)

// Defaults for Engine.
const (
	DefaultPageSize = 10
	DefaultFetchCap = 1000
)

// Store is the persistence surface the engine reads.
type Store interface {
	GetChannelByHandle(ctx context.Context, handle string) (*models.Channel, error)
	ActiveChannels(ctx context.Context) ([]models.Channel, error)
	SearchMessages(ctx context.Context, f repository.MessageFilter) ([]repository.MessageRow, error)
	SearchMessagesCount(ctx context.Context, f repository.MessageFilter) (int64, error)
	SearchAll(ctx context.Context, keywords []string, limit, offset int) (*repository.UnionResult, error)
	SearchAllCount(ctx context.Context, keywords []string) (repository.UnionCount, error)
}

// Recorder stores executed searches.
type Recorder interface {
	Record(ctx context.Context, userID int64, query string, resultCount int) error
}

// Query is one search request. Channel, MediaType and Date override the
// matching filters written inside Text.
type Query struct {
	Text      string
	Page      int
	Channel   string
	MediaType string
	Date      string
	UserID    int64
}

// Page is one page of results.
type Page struct {
	Hits       []Hit             `json:"hits"`
	Page       int               `json:"page"`
	TotalPages int               `json:"total_pages"`
	// TotalCount is exact unless the union search hit the fetch cap; then
	// it is the store's pre-dedup estimate and trailing pages may be short.
	TotalCount int               `json:"total_count"`
	Keywords   []string          `json:"keywords"`
	Filters    map[string]string `json:"filters"`
}

// Engine runs searches against a Store.
type Engine struct {
	store    Store
	pageSize int
	fetchCap int
	recorder Recorder
	log      *logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithPageSize sets the page size.
func WithPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithFetchCap bounds how many rows per table the union search loads.
func WithFetchCap(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.fetchCap = n
		}
	}
}

// WithRecorder records every search.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine creates a search engine.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{store: store, pageSize: DefaultPageSize, fetchCap: DefaultFetchCap}
	for _, opt := range opts {
		opt(e)
	}
	e.log = logger.OrGlobal(e.log).Component("search")
	return e
}

// PageSize returns the number of hits per page.
func (e *Engine) PageSize() int {
	return e.pageSize
}

// Search runs q and returns the requested page.
func (e *Engine) Search(ctx context.Context, q Query) (*Page, error) {
	keywords, filters := Parse(q.Text)
	if q.Channel != "" {
		filters[FilterChannel] = q.Channel
	}
	if q.MediaType != "" {
		filters[FilterType] = q.MediaType
	}
	if q.Date != "" {
		filters[FilterDate] = q.Date
	}
	if q.Page < 0 {
		q.Page = 0
	}

	out := &Page{Page: q.Page, Keywords: keywords, Filters: filters}
	var err error
	switch ch, lookupErr := e.channelFilter(ctx, filters); {
	case lookupErr != nil:
		return nil, lookupErr
	case ch != nil:
		err = e.searchChannel(ctx, ch.ID, keywords, filters, out)
	case len(keywords) == 0 && len(filters) == 0:
		// blank query
	default:
		err = e.searchUnion(ctx, keywords, filters, out)
	}
	if err != nil {
		return nil, err
	}

	out.TotalPages = TotalPages(out.TotalCount, e.pageSize)
	e.record(ctx, q, out.TotalCount)
	return out, nil
}

func (e *Engine) channelFilter(ctx context.Context, filters map[string]string) (*models.Channel, error) {
	handle := strings.TrimPrefix(filters[FilterChannel], "@")
	if handle == "" {
		return nil, nil
	}
	ch, err := e.store.GetChannelByHandle(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("resolve channel filter: %w", err)
	}
	return ch, nil
}

func mediaFilter(filters map[string]string) models.MediaKind {
	if v := filters[FilterType]; v != "" {
		return models.MediaKind(strings.ToLower(v))
	}
	return models.MediaKind(strings.ToLower(filters[FilterMediaType]))
}

// searchChannel pages one channel's messages directly in the store. A date
// filter needs the post-filter, so it loads up to the fetch cap instead.
func (e *Engine) searchChannel(ctx context.Context, channelID int64, keywords []string, filters map[string]string, out *Page) error {
	f := repository.MessageFilter{Keywords: keywords, ChannelID: &channelID, MediaKind: mediaFilter(filters)}

	if date := filters[FilterDate]; date != "" {
		f.Limit = e.fetchCap
		rows, err := e.store.SearchMessages(ctx, f)
		if err != nil {
			return fmt.Errorf("search channel messages: %w", err)
		}
		hits := filterDate(messageHits(rows), date)
		out.TotalCount = len(hits)
		out.Hits = paginate(hits, out.Page, e.pageSize)
		return nil
	}

	total, err := e.store.SearchMessagesCount(ctx, f)
	if err != nil {
		return fmt.Errorf("count channel messages: %w", err)
	}
	f.Limit = e.pageSize
	f.Offset = out.Page * e.pageSize
	rows, err := e.store.SearchMessages(ctx, f)
	if err != nil {
		return fmt.Errorf("search channel messages: %w", err)
	}
	out.TotalCount = int(total)
	out.Hits = messageHits(rows)
	return nil
}

// searchUnion merges channel and message matches in memory.
func (e *Engine) searchUnion(ctx context.Context, keywords []string, filters map[string]string, out *Page) error {
	counts, err := e.store.SearchAllCount(ctx, keywords)
	if err != nil {
		return fmt.Errorf("count union: %w", err)
	}
	res, err := e.store.SearchAll(ctx, keywords, e.fetchCap, 0)
	if err != nil {
		return fmt.Errorf("search union: %w", err)
	}

	hits := make([]Hit, 0, len(res.Channels)+len(res.Messages))
	for _, ch := range res.Channels {
		hits = append(hits, NewChannelHit(ch))
	}
	hits = append(hits, messageHits(res.Messages)...)
	hits = Merge(hits)

	total := len(hits)
	if counts.Channels > int64(e.fetchCap) || counts.Messages > int64(e.fetchCap) {
		// truncated by the cap: only the store knows the real size
		total = int(counts.Total)
	}

	if kind := mediaFilter(filters); kind != "" {
		hits = filterKind(hits, kind)
		total = len(hits)
	}
	if date := filters[FilterDate]; date != "" {
		hits = filterDate(hits, date)
		total = len(hits)
	}

	out.TotalCount = total
	out.Hits = paginate(hits, out.Page, e.pageSize)
	return nil
}

func (e *Engine) record(ctx context.Context, q Query, count int) {
	if e.recorder == nil || strings.TrimSpace(q.Text) == "" {
		return
	}
	if err := e.recorder.Record(ctx, q.UserID, q.Text, count); err != nil {
		e.log.Warn().Err(err).Msg("record search")
	}
}

func messageHits(rows []repository.MessageRow) []Hit {
	out := make([]Hit, 0, len(rows))
	for _, r := range rows {
		out = append(out, NewMessageHit(r))
	}
	return out
}

// Merge removes duplicates and sorts hits newest first.
//
// Metadata hits are keyed by handle, posts by (handle, source id), and hits
// with neither by a content hash. On a collision a channel-table hit beats a
// message hit, a channel hit with a handle beats one without, and otherwise
// the first hit wins.
func Merge(hits []Hit) []Hit {
	index := make(map[string]int, len(hits))
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		key := dedupKey(h)
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, h)
			continue
		}
		if preferred(h, out[i]) {
			out[i] = h
		}
	}
	Sort(out)
	return out
}

func dedupKey(h Hit) string {
	handle := h.Handle()
	if h.IsMetadata() && handle != "" {
		return "channel:" + handle
	}
	if src := h.SourceMessageID(); handle != "" || src != 0 {
		return fmt.Sprintf("message:%s:%d", handle, src)
	}
	sum := sha256.Sum256([]byte(h.Content()))
	return "content:" + hex.EncodeToString(sum[:])
}

// preferred reports whether candidate should replace current.
func preferred(candidate, current Hit) bool {
	if candidate.Kind == HitChannel && current.Kind != HitChannel {
		return true
	}
	if candidate.Kind == HitChannel && current.Kind == HitChannel {
		return current.Handle() == "" && candidate.Handle() != ""
	}
	return false
}

// Sort orders hits by time, id, handle and source id, all descending.
func Sort(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if ta, tb := a.Time(), b.Time(); !ta.Equal(tb) {
			return ta.After(tb)
		}
		if a.ID() != b.ID() {
			return a.ID() > b.ID()
		}
		if a.Handle() != b.Handle() {
			return a.Handle() > b.Handle()
		}
		if a.SourceMessageID() != b.SourceMessageID() {
			return a.SourceMessageID() > b.SourceMessageID()
		}
		return a.Kind < b.Kind
	})
}

func filterKind(hits []Hit, kind models.MediaKind) []Hit {
	out := hits[:0:0]
	for _, h := range hits {
		if h.MediaKind() == kind {
			out = append(out, h)
		}
	}
	return out
}

// filterDate keeps hits whose date starts with prefix, e.g. "2024-05" or
// "2024-05-01".
func filterDate(hits []Hit, prefix string) []Hit {
	out := hits[:0:0]
	for _, h := range hits {
		if strings.HasPrefix(h.Time().UTC().Format("2006-01-02"), prefix) {
			out = append(out, h)
		}
	}
	return out
}

func paginate(hits []Hit, page, size int) []Hit {
	start := page * size
	if start >= len(hits) {
		return nil
	}
	end := start + size
	if end > len(hits) {
		end = len(hits)
	}
	return hits[start:end]
}

// TotalPages returns max(1, ceil(total/size)).
func TotalPages(total, size int) int {
	if size <= 0 || total <= 0 {
		return 1
	}
	return (total + size - 1) / size
}
