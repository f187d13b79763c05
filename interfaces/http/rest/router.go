// Package rest assembles the HTTP surface of the cache service.
package rest

import (
	"net/http"

	"stratus-backend/interfaces/http/rest/handlers"
	"stratus-backend/interfaces/http/rest/middleware"
	"stratus-backend/pkg/api"
	"stratus-backend/pkg/observability"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Router creates and configures the HTTP router
type Router struct {
	appHandler   *handlers.ApplicationHandler
	cacheHandler *handlers.CacheHandler
	metrics      *observability.Collector
	environment  string
	metricsPath  string
	logger       *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	appHandler *handlers.ApplicationHandler,
	cacheHandler *handlers.CacheHandler,
	metrics *observability.Collector,
	environment string,
	metricsPath string,
	logger *zap.Logger,
) *Router {
	return &Router{
		appHandler:   appHandler,
		cacheHandler: cacheHandler,
		metrics:      metrics,
		environment:  environment,
		metricsPath:  metricsPath,
		logger:       logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(rt.logger))
	router.Use(middleware.Logger(rt.logger))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	// Health check
	router.Get("/health", rt.healthCheck)

	if rt.metrics != nil && rt.metricsPath != "" {
		router.Handle(rt.metricsPath, rt.metrics.Handler())
	}

	// API v1 routes
	router.Route("/api/v1", func(r chi.Router) {
		// Application read view
		r.Route("/applications", func(r chi.Router) {
			r.Get("/", rt.appHandler.ListApplications)
			r.Get("/{name}", rt.appHandler.GetApplication)
		})

		// Cache introspection and on-demand refresh
		r.Route("/cache", func(r chi.Router) {
			r.Post("/refresh", rt.cacheHandler.Refresh)
			r.Get("/{namespace}", rt.cacheHandler.ListIdentifiers)
			r.Get("/{namespace}/entities", rt.cacheHandler.ListEntities)
			r.Get("/{namespace}/entity", rt.cacheHandler.GetEntity)
		})
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	api.Success(w, http.StatusOK, api.HealthResponse{
		Status:      "healthy",
		Environment: rt.environment,
	})
}
