package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Config holds server configuration
type Config struct {
	Port        int
	CORSOrigins []string
	Version     string
}

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	config     *Config
	hub        *Hub

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a new HTTP server. hub may be nil, in which case /ws
// is not served.
func NewServer(cfg *Config, hub *Hub) *Server {
	srv := &Server{
		router: chi.NewRouter(),
		config: cfg,
		hub:    hub,
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	return srv
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	origins := s.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS", "DELETE", "PUT"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	if s.hub != nil {
		s.router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
			ServeWs(s.hub, w, r)
		})
	}

	version := s.config.Version
	if version == "" {
		version = "dev"
	}
	s.router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": version})
	})
}

// Mount attaches handler under pattern, e.g. the REST API under /api.
// The handler sees the full request path.
func (s *Server) Mount(pattern string, handler http.Handler) {
	pattern = strings.TrimSuffix(pattern, "/")
	s.router.Handle(pattern, handler)
	s.router.Handle(pattern+"/*", handler)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	err = srv.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the server's base URL
func (s *Server) BaseURL() string {
	if addr := s.Addr(); addr != "" {
		return "http://" + addr
	}
	return fmt.Sprintf("http://localhost:%d", s.config.Port)
}

// Router returns the underlying Chi router for external route mounting.
func (s *Server) Router() *chi.Mux {
	return s.router
}
