// Package api provides the eventhub HTTP API.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/graaaaa/eventhub/internal/app"
	"github.com/graaaaa/eventhub/internal/metrics"
)

// Server represents the HTTP API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// Use case dependencies
	health    app.HealthUsecase
	events    app.EventsUsecase
	community app.CommunityUsecase
	features  app.FeaturesUsecase
	stats     app.StatsUsecase
	sync      app.SyncUsecase
	cfg       app.ConfigUsecase

	// Admin auth configuration
	authEnabled  bool
	authUsername string
	authPassword string
	authFailures *AuthFailureLimiter

	cors        CORSConfig
	rateLimiter *RateLimiter
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithEventsUsecase sets the events use case.
func WithEventsUsecase(events app.EventsUsecase) ServerOption {
	return func(s *Server) { s.events = events }
}

// WithCommunityUsecase sets the community events, venues and tags use case.
func WithCommunityUsecase(c app.CommunityUsecase) ServerOption {
	return func(s *Server) { s.community = c }
}

// WithFeaturesUsecase sets the tags, reviews, bookmarks and registrations use case.
func WithFeaturesUsecase(f app.FeaturesUsecase) ServerOption {
	return func(s *Server) { s.features = f }
}

// WithStatsUsecase sets the statistics use case.
func WithStatsUsecase(st app.StatsUsecase) ServerOption {
	return func(s *Server) { s.stats = st }
}

// WithSyncUsecase sets the admin sync use case.
func WithSyncUsecase(sy app.SyncUsecase) ServerOption {
	return func(s *Server) { s.sync = sy }
}

// WithConfigUsecase sets the admin config use case.
func WithConfigUsecase(c app.ConfigUsecase) ServerOption {
	return func(s *Server) { s.cfg = c }
}

// WithMetrics sets the metrics collector and exposes it on /metrics.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBasicAuth protects the admin routes with HTTP Basic Auth.
// Admin routes are not registered without credentials.
func WithBasicAuth(username, password string) ServerOption {
	return func(s *Server) {
		if username != "" && password != "" {
			s.authEnabled = true
			s.authUsername = username
			s.authPassword = password
		}
	}
}

// WithCORS allows browser requests from the given origins.
func WithCORS(cfg CORSConfig) ServerOption {
	return func(s *Server) { s.cors = cfg }
}

// WithRateLimiter applies per-client rate limiting to every route.
func WithRateLimiter(rl *RateLimiter) ServerOption {
	return func(s *Server) { s.rateLimiter = rl }
}

// NewServer creates a new API server with the given dependencies.
func NewServer(addr string, health app.HealthUsecase, opts ...ServerOption) *Server {
	mux := http.NewServeMux()
	s := &Server{
		mux:          mux,
		logger:       slog.Default(),
		health:       health,
		authFailures: NewAuthFailureLimiter(DefaultAuthFailureLimiterConfig()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Minute, // admin sync runs inline
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	return s
}

// Handler returns the mux wrapped in the global middleware chain.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = observeMiddleware(s.metrics, s.logger)(h)
	if s.rateLimiter != nil {
		h = s.rateLimiter.Middleware(h)
	}
	h = corsMiddleware(s.cors)(h)
	return securityHeadersMiddleware(h)
}

// wrapAdmin wraps a handler with the admin Basic Auth middleware.
func (s *Server) wrapAdmin(h http.HandlerFunc) http.Handler {
	return basicAuthMiddleware(s.authUsername, s.authPassword, s.authFailures)(h)
}

// registerRoutes sets up the API routes.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	if s.events != nil {
		s.mux.HandleFunc("GET /api/v1/events", s.handleEvents)
		s.mux.HandleFunc("GET /api/v1/official-events", s.handleOfficialEvents)
	}

	if s.community != nil {
		s.mux.HandleFunc("GET /api/v1/community-events", s.handleListCommunity)
		s.mux.HandleFunc("POST /api/v1/community-events", withUser(s.handleCreateCommunity))
		s.mux.HandleFunc("GET /api/v1/community-events/{id}", s.handleGetCommunity)
		s.mux.HandleFunc("PUT /api/v1/community-events/{id}", withUser(s.handleUpdateCommunity))
		s.mux.HandleFunc("DELETE /api/v1/community-events/{id}", withUser(s.handleDeleteCommunity))

		s.mux.HandleFunc("GET /api/v1/venues", s.handleListVenues)
		s.mux.HandleFunc("POST /api/v1/venues", withUser(s.handleCreateVenue))

		s.mux.HandleFunc("GET /api/v1/tags", s.handleListTags)
		s.mux.HandleFunc("POST /api/v1/tags", withUser(s.handleCreateTag))
	}

	if s.features != nil {
		s.mux.HandleFunc("GET /api/v1/events/{identifier}/tags", s.handleEventTags)
		s.mux.HandleFunc("POST /api/v1/event-tags", withUser(s.handleApplyTag))
		s.mux.HandleFunc("DELETE /api/v1/event-tags/{identifier}/{tagID}", withUser(s.handleRemoveTag))

		s.mux.HandleFunc("GET /api/v1/events/{identifier}/reviews", s.handleReviews)
		s.mux.HandleFunc("POST /api/v1/reviews", withUser(s.handleCreateReview))
		s.mux.HandleFunc("DELETE /api/v1/reviews/{id}", withUser(s.handleDeleteReview))

		s.mux.HandleFunc("GET /api/v1/bookmarks", withUser(s.handleBookmarks))
		s.mux.HandleFunc("GET /api/v1/bookmarks/check", withUser(s.handleCheckBookmark))
		s.mux.HandleFunc("POST /api/v1/bookmarks", withUser(s.handleAddBookmark))
		s.mux.HandleFunc("DELETE /api/v1/bookmarks/{identifier}", withUser(s.handleRemoveBookmark))

		s.mux.HandleFunc("GET /api/v1/registrations", withUser(s.handleRegistrations))
		s.mux.HandleFunc("POST /api/v1/registrations", withUser(s.handleRegister))
		s.mux.HandleFunc("DELETE /api/v1/registrations/{identifier}", withUser(s.handleUnregister))
	}

	if s.stats != nil {
		s.mux.HandleFunc("GET /api/v1/stats", s.handleStats)
	}

	if s.authEnabled {
		if s.sync != nil {
			s.mux.Handle("POST /api/v1/admin/sync", s.wrapAdmin(s.handleSync))
			s.mux.Handle("GET /api/v1/admin/sync-runs", s.wrapAdmin(s.handleSyncRuns))
		}
		if s.cfg != nil {
			s.mux.Handle("GET /api/v1/admin/config", s.wrapAdmin(s.handleGetConfig))
			s.mux.Handle("PUT /api/v1/admin/config", s.wrapAdmin(s.handlePutConfig))
		}
	}

	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	result, err := s.health.Handle(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error", err)
		return
	}
	status := http.StatusOK
	if result.Status != app.HealthOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, result)
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
