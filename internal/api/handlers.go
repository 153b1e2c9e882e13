// Package api provides the fuego REST admin API.
package api

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-fuego/fuego"

	"github.com/blockedby/chansearch/internal/crawler"
	"github.com/blockedby/chansearch/internal/events"
	"github.com/blockedby/chansearch/internal/extractor"
	"github.com/blockedby/chansearch/internal/index"
	"github.com/blockedby/chansearch/internal/models"
	"github.com/blockedby/chansearch/internal/repository"
	"github.com/blockedby/chansearch/internal/search"
	"github.com/blockedby/chansearch/internal/telegram"
)

// DiscoveredByAPI marks channels added through the admin API.
const DiscoveredByAPI = "api"

// ============================================================================
// Health
// ============================================================================

func (s *Server) healthCheck(c fuego.ContextNoBody) (HealthResponse, error) {
	return HealthResponse{Status: "ok", Version: s.version}, nil
}

// ============================================================================
// Channels
// ============================================================================

func (s *Server) listChannels(c fuego.ContextNoBody) (ChannelsListResponse, error) {
	page := parseIntWithDefault(c.QueryParam("page"), 1)
	limit := parseIntWithDefault(c.QueryParam("limit"), 50)
	status := models.ChannelStatus(c.QueryParam("status"))
	category := c.QueryParam("category")

	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if status != "" && !status.Valid() {
		return ChannelsListResponse{}, fuego.BadRequestError{Detail: "Invalid status"}
	}

	channels, err := s.deps.Channels.List(c.Context(), repository.ChannelFilter{
		Status:   status,
		Category: category,
		Limit:    limit,
		Offset:   (page - 1) * limit,
	})
	if err != nil {
		return ChannelsListResponse{}, fuego.InternalServerError{Detail: err.Error()}
	}
	total, err := s.deps.Channels.Count(c.Context(), status)
	if err != nil {
		return ChannelsListResponse{}, fuego.InternalServerError{Detail: err.Error()}
	}

	pages := int((total + int64(limit) - 1) / int64(limit))
	if pages < 1 {
		pages = 1
	}

	return ChannelsListResponse{
		Channels: ChannelsFromModels(channels),
		Total:    total,
		Page:     page,
		Limit:    limit,
		Pages:    pages,
	}, nil
}

func (s *Server) getChannel(c fuego.ContextNoBody) (ChannelResponse, error) {
	handle := repository.NormalizeHandle(c.PathParam("handle"))
	if handle == "" {
		return ChannelResponse{}, fuego.BadRequestError{Detail: "Handle is required"}
	}

	ch, err := s.deps.Channels.GetByHandle(c.Context(), handle)
	if err != nil {
		return ChannelResponse{}, fuego.InternalServerError{Detail: err.Error()}
	}
	if ch == nil {
		return ChannelResponse{}, fuego.NotFoundError{Detail: "Channel not found"}
	}
	return ChannelFromModel(ch), nil
}

func (s *Server) createChannel(c fuego.ContextWithBody[ChannelCreateRequest]) (ChannelResponse, error) {
	body, err := c.Body()
	if err != nil {
		return ChannelResponse{}, fuego.BadRequestError{Detail: err.Error()}
	}

	link := strings.TrimSpace(body.Link)
	if link == "" {
		return ChannelResponse{}, fuego.BadRequestError{Detail: "Link is required"}
	}
	if !strings.ContainsAny(link, "/@:") {
		// a bare handle
		link = "@" + link
	}

	var handle string
	for _, cand := range s.extractor.Extract(link) {
		if cand.Kind == extractor.KindPublic && !extractor.IsBotHandle(cand.Handle) {
			handle = cand.Handle
			break
		}
	}
	if handle == "" {
		return ChannelResponse{}, fuego.BadRequestError{Detail: "No public channel link found"}
	}

	category := body.Category
	if category == "" || s.deps.Classifier == nil || !s.deps.Classifier.Has(category) {
		category = models.DefaultCategory
		if s.deps.Classifier != nil {
			category = s.deps.Classifier.Classify(handle, body.Link)
		}
	}

	ch := &models.Channel{
		Handle:       handle,
		Category:     category,
		Status:       models.ChannelStatusPending,
		DiscoveredBy: DiscoveredByAPI,
	}
	if _, err := s.deps.Channels.Add(c.Context(), ch); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return ChannelResponse{}, fuego.ConflictError{Detail: "Channel already exists"}
		}
		return ChannelResponse{}, fuego.InternalServerError{Detail: err.Error()}
	}

	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.PublishChannelDiscovered(c.Context(), events.NewChannelDiscovered(ch, 0)); err != nil {
			s.log.Warn().Err(err).Str("handle", ch.Handle).Msg("publish channel discovered")
		}
	}

	c.SetStatus(201)
	return ChannelFromModel(ch), nil
}

func (s *Server) deleteChannel(c fuego.ContextNoBody) (any, error) {
	id, err := strconv.ParseInt(c.PathParam("id"), 10, 64)
	if err != nil || id <= 0 {
		return nil, fuego.BadRequestError{Detail: "Invalid channel ID"}
	}

	ch, err := s.deps.Channels.GetByID(c.Context(), id)
	if err != nil {
		return nil, fuego.InternalServerError{Detail: err.Error()}
	}
	if ch == nil {
		return nil, fuego.NotFoundError{Detail: "Channel not found"}
	}

	if err := s.deps.Channels.Delete(c.Context(), id); err != nil {
		return nil, fuego.InternalServerError{Detail: err.Error()}
	}

	if s.deps.Hub != nil {
		s.deps.Hub.Broadcast(map[string]interface{}{
			"type":   "channel.deleted",
			"id":     id,
			"handle": ch.Handle,
		})
	}

	return map[string]string{"status": "deleted"}, nil
}

// ============================================================================
// Search
// ============================================================================

func (s *Server) searchAll(c fuego.ContextNoBody) (SearchResponse, error) {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return SearchResponse{}, fuego.BadRequestError{Detail: "Query is required"}
	}
	// pages are 1-indexed over HTTP
	page := parseIntWithDefault(c.QueryParam("page"), 1)
	if page < 1 {
		page = 1
	}

	res, err := s.deps.Search.Search(c.Context(), search.Query{
		Text:      q,
		Page:      page - 1,
		MediaType: c.QueryParam("type"),
		Channel:   c.QueryParam("channel"),
		Date:      c.QueryParam("date"),
	})
	if err != nil {
		return SearchResponse{}, fuego.InternalServerError{Detail: err.Error()}
	}
	return SearchFromPage(res), nil
}

func (s *Server) searchIndex(c fuego.ContextNoBody) (IndexSearchResponse, error) {
	if s.deps.Index == nil {
		return IndexSearchResponse{}, fuego.HTTPError{Status: 503, Detail: "Search index not configured"}
	}
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return IndexSearchResponse{}, fuego.BadRequestError{Detail: "Query is required"}
	}
	limit := parseIntWithDefault(c.QueryParam("limit"), 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	docs, err := s.deps.Index.Search(c.Context(), q, c.QueryParam("kind"), int64(limit))
	if err != nil {
		return IndexSearchResponse{}, fuego.InternalServerError{Detail: err.Error()}
	}
	if docs == nil {
		docs = []index.Document{}
	}
	return IndexSearchResponse{Documents: docs}, nil
}

// ============================================================================
// Stats
// ============================================================================

func (s *Server) getStats(c fuego.ContextNoBody) (StatsResponse, error) {
	overview, err := s.deps.Stats.GetOverview(c.Context())
	if err != nil {
		return StatsResponse{}, fuego.InternalServerError{Detail: err.Error()}
	}
	byCategory, err := s.deps.Stats.CountByCategory(c.Context())
	if err != nil {
		return StatsResponse{}, fuego.InternalServerError{Detail: err.Error()}
	}
	top, err := s.deps.Stats.TopChannels(c.Context(), 10)
	if err != nil {
		return StatsResponse{}, fuego.InternalServerError{Detail: err.Error()}
	}
	return StatsResponse{Overview: overview, ByCategory: byCategory, TopChannels: top}, nil
}

// ============================================================================
// Crawler
// ============================================================================

func (s *Server) getCrawlerStatus(c fuego.ContextNoBody) (CrawlerStatusResponse, error) {
	if s.deps.Crawler == nil {
		return CrawlerStatusResponse{Status: crawler.Status{Telegram: telegram.StatusUnauthorized}}, nil
	}
	st, err := s.deps.Crawler.Status(c.Context())
	if err != nil {
		return CrawlerStatusResponse{}, fuego.InternalServerError{Detail: err.Error()}
	}
	return CrawlerStatusResponse{Status: st}, nil
}

func (s *Server) startCrawler(c fuego.ContextNoBody) (CrawlerStartResponse, error) {
	if s.deps.Crawler == nil {
		return CrawlerStartResponse{}, fuego.InternalServerError{Detail: "Crawler not available"}
	}

	run, err := s.deps.Crawler.Start(c.Context())
	switch {
	case errors.Is(err, crawler.ErrAlreadyRunning):
		return CrawlerStartResponse{}, fuego.ConflictError{Detail: err.Error()}
	case errors.Is(err, crawler.ErrNotReady):
		return CrawlerStartResponse{}, fuego.BadRequestError{Detail: err.Error()}
	case err != nil:
		return CrawlerStartResponse{}, fuego.InternalServerError{Detail: err.Error()}
	}

	c.SetStatus(202)
	return CrawlerStartResponse{Status: "started", Run: run}, nil
}

func (s *Server) stopCrawler(c fuego.ContextNoBody) (any, error) {
	if s.deps.Crawler == nil {
		return nil, fuego.InternalServerError{Detail: "Crawler not available"}
	}

	err := s.deps.Crawler.Stop(c.Context())
	if errors.Is(err, crawler.ErrNotRunning) {
		return nil, fuego.NotFoundError{Detail: err.Error()}
	}
	if err != nil {
		return nil, fuego.InternalServerError{Detail: err.Error()}
	}

	return map[string]string{"status": "stopped"}, nil
}

// ============================================================================
// Auth
// ============================================================================

func (s *Server) getAuthStatus(c fuego.ContextNoBody) (AuthStatusResponse, error) {
	if s.deps.Telegram == nil {
		return AuthStatusResponse{Status: "DISCONNECTED"}, nil
	}

	status := s.deps.Telegram.GetStatus()
	return AuthStatusResponse{
		Status:       string(status),
		IsReady:      status == telegram.StatusReady,
		QRInProgress: s.deps.Telegram.IsQRInProgress(),
	}, nil
}

func (s *Server) startQRAuth(c fuego.ContextNoBody) (AuthQRStartResponse, error) {
	if s.deps.Telegram == nil {
		return AuthQRStartResponse{}, fuego.InternalServerError{Detail: "Telegram client not available"}
	}

	if s.deps.Telegram.GetStatus() == telegram.StatusReady {
		return AuthQRStartResponse{}, fuego.BadRequestError{Detail: "Already logged in"}
	}

	if s.deps.Telegram.IsQRInProgress() {
		c.SetStatus(202)
		return AuthQRStartResponse{Status: "already in progress"}, nil
	}

	// outlives the request
	go s.runQR(context.Background())

	return AuthQRStartResponse{Status: "started"}, nil
}

func (s *Server) runQR(ctx context.Context) {
	err := s.deps.Telegram.StartQR(ctx, func(url string) {
		s.broadcast(map[string]string{"type": "tg_qr", "url": url})
	})

	switch {
	case err == nil:
		s.broadcast(map[string]string{"type": "tg_auth_success"})
	case errors.Is(err, context.Canceled), errors.Is(err, telegram.ErrQRInProgress):
	default:
		s.log.Error().Err(err).Msg("qr login failed")
		s.broadcast(map[string]string{"type": "error", "message": err.Error()})
	}
}

func (s *Server) broadcast(msg interface{}) {
	if s.deps.Hub != nil {
		s.deps.Hub.Broadcast(msg)
	}
}

// ============================================================================
// Helpers
// ============================================================================

func parseIntWithDefault(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
