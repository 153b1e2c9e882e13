package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-fuego/fuego"
	"github.com/go-fuego/fuego/option"

	"github.com/blockedby/chansearch/internal/events"
	"github.com/blockedby/chansearch/internal/extractor"
	"github.com/blockedby/chansearch/internal/logger"
)

// Server represents the Fuego API server.
type Server struct {
	fuego     *fuego.Server
	deps      *Dependencies
	extractor *extractor.Extractor
	version   string
	log       *logger.Logger
}

// Dependencies contains all service dependencies. Crawler, Telegram,
// Index, Publisher and Hub are optional.
type Dependencies struct {
	Channels   ChannelsRepository
	Stats      StatsRepository
	Search     Searcher
	Index      IndexSearcher
	Classifier Classifier
	Crawler    CrawlerService
	Telegram   TelegramClient
	Publisher  events.Publisher
	Hub        HubBroadcaster
}

// Config holds API server configuration.
type Config struct {
	Title       string
	Description string
	Version     string
}

// NewServer creates a new Fuego API server. Its routes carry the full
// /api/v1 prefix so Handler can be mounted on another router as is.
func NewServer(cfg *Config, deps *Dependencies) *Server {
	s := fuego.NewServer(
		fuego.WithEngineOptions(
			fuego.WithOpenAPIConfig(fuego.OpenAPIConfig{
				PrettyFormatJSON: true,
				JSONFilePath:     "openapi.json",
				SwaggerURL:       "/docs",
				SpecURL:          "/openapi.json",
				UIHandler: func(specURL string) http.Handler {
					return ScalarHandler(specURL, cfg.Title, cfg.Description)
				},
			}),
		),
	)

	s.OpenAPI.Description().Info.Title = cfg.Title
	s.OpenAPI.Description().Info.Description = cfg.Description
	s.OpenAPI.Description().Info.Version = cfg.Version

	// request id, logging and recovery come from the outer router
	fuego.Use(s, middleware.NoCache)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	srv := &Server{
		fuego:     s,
		deps:      deps,
		extractor: extractor.New(nil),
		version:   version,
		log:       logger.Get().Component("api"),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) registerRoutes() {
	fuego.Get(s.fuego, "/api/v1/health", s.healthCheck,
		option.Summary("Health Check"),
		option.Description("Returns the health status of the API"),
		option.Tags("System"),
	)

	// Channels API
	channelsGroup := fuego.Group(s.fuego, "/api/v1/channels",
		option.Tags("Channels"),
	)

	fuego.Get(channelsGroup, "", s.listChannels,
		option.Summary("List Channels"),
		option.Description("Returns channels newest first"),
		option.Query("status", "Filter by status (pending, active, failed, banned)"),
		option.Query("category", "Filter by category"),
		option.Query("page", "Page number (1-indexed, default: 1)"),
		option.Query("limit", "Items per page (default: 50, max: 100)"),
	)

	fuego.Post(channelsGroup, "", s.createChannel,
		option.Summary("Add Channel"),
		option.Description("Extracts a public channel from a link and queues it as pending"),
	)

	fuego.Get(channelsGroup, "/{handle}", s.getChannel,
		option.Summary("Get Channel"),
		option.Description("Returns a single channel by handle"),
	)

	fuego.Delete(channelsGroup, "/{id}", s.deleteChannel,
		option.Summary("Delete Channel"),
		option.Description("Deletes a channel and its stored messages"),
	)

	// Search API
	searchGroup := fuego.Group(s.fuego, "/api/v1/search",
		option.Tags("Search"),
	)

	fuego.Get(searchGroup, "", s.searchAll,
		option.Summary("Search"),
		option.Description("Union search over channels and collected messages"),
		option.Query("q", "Keywords, optionally with channel:, type: and date: filters"),
		option.Query("page", "Page number (1-indexed, default: 1)"),
		option.Query("type", "Media filter: text, photo, video, document, audio, voice"),
		option.Query("channel", "Restrict to one channel handle"),
		option.Query("date", "YYYY-MM or YYYY-MM-DD"),
	)

	fuego.Get(searchGroup, "/index", s.searchIndex,
		option.Summary("Search Index"),
		option.Description("Full-text search against the Meilisearch mirror"),
		option.Query("q", "Query text"),
		option.Query("kind", "channel or message"),
		option.Query("limit", "Max documents (default: 20, max: 100)"),
	)

	// Stats API
	fuego.Get(s.fuego, "/api/v1/stats", s.getStats,
		option.Summary("Get Statistics"),
		option.Description("Returns channel and message counts"),
		option.Tags("Analytics"),
	)

	// Crawler API
	crawlerGroup := fuego.Group(s.fuego, "/api/v1/crawler",
		option.Tags("Crawler"),
	)

	fuego.Get(crawlerGroup, "", s.getCrawlerStatus,
		option.Summary("Get Crawler Status"),
		option.Description("Returns the crawler switch, loop and daily quota"),
	)

	fuego.Post(crawlerGroup, "/start", s.startCrawler,
		option.Summary("Start Crawler"),
		option.Description("Turns the crawler on and launches the loop"),
	)

	fuego.Delete(crawlerGroup, "/current", s.stopCrawler,
		option.Summary("Stop Crawler"),
		option.Description("Turns the crawler off and stops the running loop"),
	)

	// Auth API
	authGroup := fuego.Group(s.fuego, "/api/v1/auth",
		option.Tags("Authentication"),
	)

	fuego.Get(authGroup, "/status", s.getAuthStatus,
		option.Summary("Get Auth Status"),
		option.Description("Returns Telegram user client status"),
	)

	fuego.Post(authGroup, "/qr", s.startQRAuth,
		option.Summary("Start QR Auth"),
		option.Description("Initiates Telegram QR code login; codes arrive over /ws"),
	)
}

// Handler returns the API routes as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.fuego.Mux
}

// MountDocsOn mounts the OpenAPI documentation routes (/docs, /openapi.json)
// on a Chi router.
func (s *Server) MountDocsOn(r interface {
	Get(pattern string, handlerFn http.HandlerFunc)
}, title, description string) {
	scalarHandler := ScalarHandler("/openapi.json", title, description)
	r.Get("/docs", func(w http.ResponseWriter, req *http.Request) {
		scalarHandler.ServeHTTP(w, req)
	})

	r.Get("/openapi.json", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		spec := s.fuego.OpenAPI.Description()
		if err := json.NewEncoder(w).Encode(spec); err != nil {
			http.Error(w, "Failed to encode OpenAPI spec", http.StatusInternalServerError)
		}
	})
}
