package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	handler "github.com/newthinker/signalbench/internal/api/handler/api"
	"github.com/newthinker/signalbench/internal/api/job"
	"github.com/newthinker/signalbench/internal/api/middleware"
	"github.com/newthinker/signalbench/internal/api/response"
	"github.com/newthinker/signalbench/internal/app"
	"github.com/newthinker/signalbench/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server for signalbench
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	router     *mux.Router
	jobs       *job.Store
	checks     map[string]Pinger
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	APIKey      string
	JobTTL      time.Duration
	MaxJobs     int
	JobTimeout  time.Duration
	MetricsPath string
}

// Dependencies are the components the handlers serve.
type Dependencies struct {
	App     *app.App
	Metrics *metrics.Registry
	// Checks are pinged by the health endpoint.
	Checks map[string]Pinger
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if deps.App == nil {
		return nil, errors.New("api: app is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 24 * time.Hour
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	router := mux.NewRouter()
	s := &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
		router: router,
		jobs:   job.NewStore(cfg.MaxJobs, cfg.JobTTL),
		checks: deps.Checks,
	}

	s.setupRoutes(cfg, deps)
	return s, nil
}

func (s *Server) setupRoutes(cfg Config, deps Dependencies) {
	s.router.Use(middleware.Recover(s.logger))
	s.router.Use(metrics.LoggingMiddleware(s.logger))
	if deps.Metrics != nil {
		s.router.Use(metrics.HTTPMiddleware(deps.Metrics))
		s.router.Handle(cfg.MetricsPath, promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{})).Methods("GET")
	}

	s.router.HandleFunc("/api/health", s.handleHealth).Methods("GET")

	engine := deps.App.Strategies()
	backtests := handler.NewBacktestHandler(s.jobs, deps.App, engine, deps.Metrics, cfg.JobTimeout, s.logger)
	strategies := handler.NewStrategiesHandler(engine)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.Use(middleware.APIKeyAuth(cfg.APIKey))
	v1.HandleFunc("/backtests", backtests.Create).Methods("POST")
	v1.HandleFunc("/backtests", backtests.List).Methods("GET")
	v1.HandleFunc("/backtests/{id}", backtests.GetStatus).Methods("GET")
	v1.HandleFunc("/strategies", strategies.List).Methods("GET")
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown and prunes expired jobs in the background.
func (s *Server) Start() error {
	stop := make(chan struct{})
	defer close(stop)
	go s.pruneLoop(stop)

	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (s *Server) pruneLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n := s.jobs.Prune(); n > 0 {
				s.logger.Debug("expired jobs pruned", zap.Int("count", n))
			}
		}
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	checks := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.checks[name].Ping(ctx); err != nil {
			s.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			checks[name] = "unavailable"
			status = "degraded"
			continue
		}
		checks[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, code, map[string]any{
		"status": status,
		"checks": checks,
	})
}
