package server

import (
	"fmt"
	"net/http"
	"time"

	"species-catalog/internal/config"
	"species-catalog/internal/database"
	custommiddleware "species-catalog/internal/middleware"
	"species-catalog/internal/repository"
	"species-catalog/internal/service"
	"species-catalog/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	db     database.Service
	redis  *redis.Client
}

// NewServer wires the catalog API. A nil db serves from an in-memory store
// and a nil redisClient disables rate limiting.
func NewServer(cfg *config.Config, logger *zap.Logger, db database.Service, redisClient *redis.Client) (*Server, error) {
	// Create router
	router := chi.NewRouter()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := custommiddleware.NewHTTPMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register HTTP metrics: %w", err)
	}

	// Add basic middleware
	router.Use(custommiddleware.DefaultMiddlewareStack()...)
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(metrics.Middleware)
	router.Use(custommiddleware.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.Server.IsDevelopment()))

	s := &Server{
		config: cfg,
		logger: logger,
		db:     db,
		redis:  redisClient,
	}

	router.Get("/health", s.health)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Initialize repositories
	var speciesRepo repository.SpeciesRepository
	if db != nil {
		speciesRepo = repository.NewSpeciesRepository(db.DB())
	} else {
		logger.Warn("No database configured, species are kept in memory")
		speciesRepo = repository.NewMemorySpeciesRepository()
	}

	// Initialize services
	speciesService := service.NewSpeciesService(speciesRepo)

	// Initialize handlers
	speciesHandler := transport.NewSpeciesHandler(speciesService, logger)

	var writeMiddleware []func(http.Handler) http.Handler
	if cfg.RateLimit.Enabled && redisClient != nil {
		writeMiddleware = append(writeMiddleware, custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.Requests,
			Window:            cfg.RateLimit.Window,
			KeyPrefix:         "ratelimit:species",
		}, logger))
	}

	// Register routes
	speciesHandler.RegisterRoutes(router, writeMiddleware...)

	s.Server = &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s, nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		custommiddleware.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
			"store":  "memory",
		})
		return
	}

	stats, err := s.db.Health(r.Context())
	if err != nil {
		s.logger.Error("Health check failed", zap.Error(err))
		custommiddleware.RespondWithJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "down",
		})
		return
	}

	custommiddleware.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"database": stats,
	})
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	// Close database connection
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
