// Package api exposes scanning, history, and change detection over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/hakim/scanwatch/internal/api/middleware"
	"github.com/hakim/scanwatch/internal/models"
	"github.com/hakim/scanwatch/internal/tasks"
)

const (
	maxRequestBody = 1 << 20
	healthTimeout  = 2 * time.Second
)

// ScanService answers history queries and validates scan requests.
type ScanService interface {
	ValidateRequest(target string, opts models.Options) error
	RecentScans(ctx context.Context, target string, limit int) ([]*models.StoredScan, error)
	LatestScan(ctx context.Context, target string) (*models.StoredScan, error)
	ScanChanges(ctx context.Context, target string) (*models.ScanDiff, error)
}

// TaskQueue accepts scans for background execution.
type TaskQueue interface {
	Submit(target string, opts models.Options) (string, error)
	Status(id string) (tasks.Task, error)
	Stats() tasks.Stats
}

// MetricsProvider serves metrics and observes requests.
type MetricsProvider interface {
	middleware.HTTPObserver
	Handler() http.Handler
}

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the HTTP server settings.
type Config struct {
	Address           string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	TrustProxyHeaders bool

	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimiter replaces the limiter built from Config.
func WithRateLimiter(rl *middleware.RateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

// WithMetrics enables request metrics and the /metrics endpoint.
func WithMetrics(m MetricsProvider) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealthCheck makes /health ping p and report 503 when it fails.
func WithHealthCheck(p Pinger) Option {
	return func(s *Server) { s.pinger = p }
}

// WithLogger overrides the logger.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Server) { s.log = log }
}

// Server is the scanwatch HTTP API
type Server struct {
	cfg        Config
	service    ScanService
	queue      TaskQueue
	metrics    MetricsProvider
	limiter    *middleware.RateLimiter
	pinger     Pinger
	validate   *validator.Validate
	log        *logrus.Entry
	router     *mux.Router
	httpServer *http.Server
}

// New builds the router and HTTP server. Nothing listens until Start.
func New(cfg Config, service ScanService, queue TaskQueue, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		service:  service,
		queue:    queue,
		validate: validator.New(),
		log:      logrus.WithField("component", "api"),
		router:   mux.NewRouter(),
	}
	if cfg.RateLimitEnabled {
		s.limiter = middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}
	return s
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logging(s.log))
	if s.metrics != nil {
		s.router.Use(middleware.Metrics(s.metrics))
	}

	limited := s.router.NewRoute().Subrouter()
	if s.limiter != nil {
		limited.Use(s.limiter.Limit)
	}

	limited.HandleFunc("/scan", s.handleSubmitScan).Methods(http.MethodPost)
	limited.HandleFunc("/scans/{target}", s.handleRecentScans).Methods(http.MethodGet)
	limited.HandleFunc("/latest_scan/{target}", s.handleLatestScan).Methods(http.MethodGet)
	limited.HandleFunc("/scan_changes/{target}", s.handleScanChanges).Methods(http.MethodGet)
	limited.HandleFunc("/worker_status", s.handleWorkerStatus).Methods(http.MethodGet)

	s.router.HandleFunc("/scan/{task_id}", s.handleTaskStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, "Not found.")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, "Method not allowed.")
	})
}

// Handler returns the full handler chain: panic recovery outermost, then
// proxy header rewriting when enabled, then the router.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	if s.cfg.TrustProxyHeaders {
		h = handlers.ProxyHeaders(h)
	}
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(s.log),
		handlers.PrintRecoveryStack(false),
	)(h)
}

// Start serves until ctx is cancelled, then shuts down gracefully within
// shutdownTimeout.
func (s *Server) Start(ctx context.Context, shutdownTimeout time.Duration) error {
	s.log.WithField("address", s.httpServer.Addr).Info("starting API server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("API server failed: %w", err)
		}
		close(errChan)
	}()

	var janitor <-chan time.Time
	if s.limiter != nil {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		janitor = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return s.Shutdown(shutdownTimeout)
		case err, ok := <-errChan:
			if !ok {
				return nil
			}
			return err
		case <-janitor:
			s.limiter.Cleanup()
		}
	}
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.log.Info("stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

var _ handlers.RecoveryHandlerLogger = (*logrus.Entry)(nil)
