package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/robfig/cron/v3"

	"techdigest/internal/config"
	"techdigest/internal/metrics"
	"techdigest/internal/pipeline"
)

// Stages runs one batch pass of each pipeline stage
type Stages interface {
	Gather(ctx context.Context) (pipeline.IngestResult, error)
	Process(ctx context.Context) (pipeline.RelevanceResult, error)
	Send(ctx context.Context) (pipeline.DeliveryResult, error)
}

// Pinger reports store health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes the pipeline stages as HTTP triggers
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	db         Pinger
	stages     Stages
	config     config.Server
	log        *slog.Logger
	metrics    *metrics.Collector
	cron       *cron.Cron

	// runMu allows one stage run at a time, from a trigger or the schedule
	runMu sync.Mutex

	// jobCtx is cancelled on shutdown to stop scheduled runs
	jobCtx    context.Context
	jobCancel context.CancelFunc
}

// Option configures optional server features
type Option func(*Server)

// WithMetrics records stage and request metrics on c and serves them at /metrics
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// New creates a new HTTP server instance
func New(db Pinger, stages Stages, cfg config.Server, log *slog.Logger, opts ...Option) *Server {
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		router: chi.NewRouter(),
		db:     db,
		stages: stages,
		config: cfg,
		log:    log.With("component", "server"),
		cron:   cron.New(),
	}
	s.jobCtx, s.jobCancel = context.WithCancel(context.Background())

	for _, opt := range opts {
		opt(s)
	}
	if s.metrics != nil {
		s.stages = s.metrics.Instrument(stages)
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  config.Duration(cfg.ReadTimeout, 15*time.Second),
		WriteTimeout: config.Duration(cfg.WriteTimeout, 10*time.Minute),
	}

	return s
}

// setupMiddleware configures middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.log, s.metrics))
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)

	origins := s.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "X-Client-Info", "Apikey", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))
}

// setupRoutes configures routes for the server
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	s.router.Route("/functions", func(r chi.Router) {
		r.Use(s.requireTriggerToken)
		r.Post("/gather-articles", s.handleGatherArticles)
		r.Post("/process-articles", s.handleProcessArticles)
		r.Post("/send-newsletters", s.handleSendNewsletters)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info("Starting HTTP server",
		"addr", s.httpServer.Addr,
		"read_timeout", s.httpServer.ReadTimeout,
		"write_timeout", s.httpServer.WriteTimeout,
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server gracefully...")

	s.stopSchedule(ctx)

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.log.Info("HTTP server stopped")
	return nil
}

// Router returns the chi router instance (useful for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
