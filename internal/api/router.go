package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"honeypot-lab/internal/api/handlers"
	apimiddleware "honeypot-lab/internal/api/middleware"
	"honeypot-lab/internal/config"
	"honeypot-lab/internal/metrics"
	"honeypot-lab/pkg/logger"
)

// Router holds dependencies for the API router
type Router struct {
	config    config.Config
	handlers  *handlers.Handlers
	rateStore apimiddleware.RateLimitStore
	logger    *logger.Logger
}

// NewRouter creates a new Router instance. rateStore may be nil, which
// disables rate limiting regardless of configuration.
func NewRouter(cfg config.Config, h *handlers.Handlers, rateStore apimiddleware.RateLimitStore, log *logger.Logger) *Router {
	return &Router{
		config:    cfg,
		handlers:  h,
		rateStore: rateStore,
		logger:    log.WithComponent("router"),
	}
}

// Setup sets up the Chi router with all routes and middleware
func (r *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Core middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(apimiddleware.Logger(r.logger))
	router.Use(metrics.Middleware)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   r.config.CORS.AllowedOrigins,
		AllowedMethods:   r.config.CORS.AllowedMethods,
		AllowedHeaders:   r.config.CORS.AllowedHeaders,
		AllowCredentials: r.config.CORS.AllowCredentials,
		MaxAge:           r.config.CORS.MaxAge,
	}))

	auth := apimiddleware.APIKeyAuth(r.config.Auth.APIKey)
	if r.config.Auth.APIKey == "" {
		r.logger.Warn().Msg("no API key configured, authentication disabled")
	}

	// Public routes
	router.Group(func(pub chi.Router) {
		pub.Get("/", r.handlers.Health.Root)
		pub.Get("/health", r.handlers.Health.Check)
		pub.Get("/ready", r.handlers.Health.Ready)
		pub.Method(http.MethodGet, "/metrics", metrics.Handler())
	})

	// Honeypot turn endpoint
	router.Group(func(hp chi.Router) {
		hp.Use(auth)
		if r.config.RateLimit.Enabled && r.rateStore != nil {
			hp.Use(apimiddleware.RateLimiter(r.rateStore, r.config.RateLimit.RequestsPerMinute, r.logger))
		}
		hp.Post("/honeypot", r.handlers.Honeypot.Engage)
	})

	// Operator API
	router.Route("/api/v1", func(api chi.Router) {
		api.Use(auth)

		api.Route("/sessions", func(sr chi.Router) {
			sr.Get("/", r.handlers.Sessions.List)
			sr.Get("/{id}", r.handlers.Sessions.Get)
			sr.Delete("/{id}", r.handlers.Sessions.Delete)
			sr.Get("/{id}/report", r.handlers.Sessions.LatestReport)
			sr.Get("/{id}/reports", r.handlers.Sessions.ListReports)
		})

		api.Get("/stats", r.handlers.Stats.Get)
		api.Get("/events/ws", r.handlers.Streaming.HandleWebSocket)
	})

	return router
}
