package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ziadkadry99/chaxai/internal/analytics"
	"github.com/ziadkadry99/chaxai/internal/audit"
	"github.com/ziadkadry99/chaxai/internal/library"
	"github.com/ziadkadry99/chaxai/internal/logging"
	"github.com/ziadkadry99/chaxai/internal/rag"
)

// Config holds server configuration.
type Config struct {
	Port           int
	Version        string
	AllowedOrigins []string
	APITokens      []string // empty disables authentication
	MaxUploadBytes int64    // per file
	RateLimitRPS   float64  // <= 0 disables rate limiting
	RateLimitBurst int
}

// Deps are the services behind the HTTP surface. Analytics and Audit are
// optional; their routes are only mounted when set.
type Deps struct {
	Library   *library.Coordinator
	Answers   *rag.Service
	Analytics *analytics.Store
	Audit     *audit.Store
}

// Server is the ChaxAI HTTP API.
type Server struct {
	cfg        Config
	lib        *library.Coordinator
	answers    *rag.Service
	analytics  *analytics.Store
	audit      *audit.Store
	usage      analytics.Recorder
	limiter    *rateLimiter
	started    time.Time
	router     chi.Router
	httpServer *http.Server
}

// New creates a server over the given services.
func New(cfg Config, deps Deps) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	s := &Server{
		cfg:       cfg,
		lib:       deps.Library,
		answers:   deps.Answers,
		analytics: deps.Analytics,
		audit:     deps.Audit,
		usage:     analytics.Nop{},
		started:   time.Now(),
	}
	if deps.Analytics != nil {
		s.usage = deps.Analytics
	}
	if cfg.RateLimitRPS > 0 {
		s.limiter = newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	s.router = s.buildRouter()
	return s
}

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(securityHeaders)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", tokenHeader, "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-Process-Time", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/", s.handleStatus)
	r.Get("/widget/config", s.handleWidgetConfig)
	r.Get("/ws", s.handleWebSocket)

	r.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.middleware(s.clientKey))
		}
		r.Use(s.requireToken)

		r.Get("/documents", s.handleListDocuments)
		r.Delete("/documents/{name}", s.handleDeleteDocument)
		r.Post("/upload", s.handleUpload)
		r.Post("/reindex", s.handleReindex)
		r.Post("/ask", s.handleAsk)
		r.Post("/chat/stream", s.handleChatStream)

		if s.analytics != nil {
			analytics.RegisterRoutes(r, s.analytics)
		}
		if s.audit != nil {
			audit.RegisterRoutes(r, s.audit)
		}
	})

	return r
}

// Router returns the chi router.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logging.L().Infow("chaxai server listening", "addr", addr, "auth", len(s.cfg.APITokens) > 0)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
