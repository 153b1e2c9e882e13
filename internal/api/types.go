package api

import (
	"time"

	"github.com/blockedby/chansearch/internal/crawler"
	"github.com/blockedby/chansearch/internal/index"
	"github.com/blockedby/chansearch/internal/models"
	"github.com/blockedby/chansearch/internal/repository"
	"github.com/blockedby/chansearch/internal/search"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status" example:"ok" description:"Health status"`
	Version string `json:"version" example:"dev" description:"Application version"`
}

// ============================================================================
// Channels
// ============================================================================

// ChannelResponse represents a channel in API responses.
type ChannelResponse struct {
	ID           int64      `json:"id" description:"Channel row id"`
	Handle       string     `json:"handle" description:"Public username without @"`
	NumericID    *int64     `json:"numeric_id,omitempty" description:"Telegram channel id once resolved"`
	Title        string     `json:"title,omitempty"`
	Description  string     `json:"description,omitempty"`
	Category     string     `json:"category"`
	MemberCount  int        `json:"member_count"`
	Verified     bool       `json:"verified"`
	CrawlEnabled bool       `json:"crawl_enabled"`
	Status       string     `json:"status" description:"pending, active, failed or banned"`
	DiscoveredBy string     `json:"discovered_by,omitempty" description:"Provenance of the row"`
	DiscoveredAt time.Time  `json:"discovered_at"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
	LastCrawled  *time.Time `json:"last_crawled_at,omitempty"`
	Notes        string     `json:"notes,omitempty"`
}

// ChannelFromModel converts a stored channel.
func ChannelFromModel(ch *models.Channel) ChannelResponse {
	return ChannelResponse{
		ID:           ch.ID,
		Handle:       ch.Handle,
		NumericID:    ch.NumericID,
		Title:        ch.Title,
		Description:  ch.Description,
		Category:     ch.Category,
		MemberCount:  ch.MemberCount,
		Verified:     ch.Verified,
		CrawlEnabled: ch.CrawlEnabled,
		Status:       string(ch.Status),
		DiscoveredBy: ch.DiscoveredBy,
		DiscoveredAt: ch.DiscoveredAt,
		VerifiedAt:   ch.VerifiedAt,
		LastCrawled:  ch.LastCrawled,
		Notes:        ch.Notes,
	}
}

// ChannelsFromModels converts a slice of stored channels.
func ChannelsFromModels(channels []models.Channel) []ChannelResponse {
	out := make([]ChannelResponse, len(channels))
	for i := range channels {
		out[i] = ChannelFromModel(&channels[i])
	}
	return out
}

// ChannelsListResponse contains one page of channels.
type ChannelsListResponse struct {
	Channels []ChannelResponse `json:"channels"`
	Total    int64             `json:"total" description:"Channels matching the status filter"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
	Pages    int               `json:"pages"`
}

// ChannelCreateRequest adds a channel by link or handle.
type ChannelCreateRequest struct {
	Link     string `json:"link" validate:"required" description:"t.me link, tg://resolve link or @handle" example:"https://t.me/golang_news"`
	Category string `json:"category,omitempty" description:"Category override; classified from the link when empty"`
}

// ============================================================================
// Search
// ============================================================================

// SearchResponse is one page of union search results.
type SearchResponse struct {
	Hits       []search.Hit      `json:"hits"`
	Page       int               `json:"page" description:"Zero-based page index"`
	TotalPages int               `json:"total_pages"`
	TotalCount int               `json:"total_count"`
	Keywords   []string          `json:"keywords"`
	Filters    map[string]string `json:"filters,omitempty"`
}

// SearchFromPage converts an engine page.
func SearchFromPage(p *search.Page) SearchResponse {
	hits := p.Hits
	if hits == nil {
		hits = []search.Hit{}
	}
	return SearchResponse{
		Hits:       hits,
		Page:       p.Page,
		TotalPages: p.TotalPages,
		TotalCount: p.TotalCount,
		Keywords:   p.Keywords,
		Filters:    p.Filters,
	}
}

// IndexSearchResponse holds full-text matches from the search index.
type IndexSearchResponse struct {
	Documents []index.Document `json:"documents"`
}

// ============================================================================
// Stats
// ============================================================================

// StatsResponse aggregates channel and message counts.
type StatsResponse struct {
	*repository.Overview
	ByCategory  map[string]int64             `json:"by_category"`
	TopChannels []repository.ChannelActivity `json:"top_channels"`
}

// ============================================================================
// Crawler
// ============================================================================

// CrawlerStatusResponse reports the crawl loop.
type CrawlerStatusResponse struct {
	crawler.Status
}

// CrawlerStartResponse is returned when the loop launches.
type CrawlerStartResponse struct {
	Status string       `json:"status" example:"started"`
	Run    *crawler.Run `json:"run,omitempty"`
}

// ============================================================================
// Auth
// ============================================================================

// AuthStatusResponse represents Telegram auth status.
type AuthStatusResponse struct {
	Status       string `json:"status" description:"INITIALIZING, READY, UNAUTHORIZED or ERROR"`
	IsReady      bool   `json:"is_ready"`
	QRInProgress bool   `json:"qr_in_progress"`
}

// AuthQRStartResponse is returned when QR login starts.
type AuthQRStartResponse struct {
	Status string `json:"status" example:"started"`
}
