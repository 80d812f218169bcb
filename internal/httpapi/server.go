// Package httpapi exposes the relay's operational HTTP API: submission
// endpoints, provider/breaker status, cache invalidation, health and metrics.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tempwallets/txrelay/internal/config"
	"github.com/tempwallets/txrelay/internal/logging"
	"github.com/tempwallets/txrelay/internal/metrics"
	"github.com/tempwallets/txrelay/internal/middleware"
	"github.com/tempwallets/txrelay/internal/pipeline"
	"github.com/tempwallets/txrelay/internal/rpc"
	"github.com/tempwallets/txrelay/internal/sequencer"
	"github.com/tempwallets/txrelay/internal/storage"
	"github.com/tempwallets/txrelay/internal/system"
)

// unauthenticated paths, skipped by the auth middleware
var skipAuthPaths = []string{"/health", "/metrics"}

// Config configures the API server.
type Config struct {
	ListenAddr string
	// AuthSecret enables JWT auth on /v1 routes when non-empty.
	AuthSecret     []byte
	AllowedOrigins []string
	// RateLimit is requests per second per caller; zero disables limiting.
	RateLimit      int
	RateLimitBurst int
	// ConfirmationTimeout bounds synchronous waits on POST /v1/submissions.
	ConfirmationTimeout time.Duration
}

// Server is the relay's HTTP API, managed as a system service.
type Server struct {
	cfg       Config
	pipeline  *pipeline.Pipeline
	store     storage.SubmissionStore
	sequencer *sequencer.Sequencer
	breakers  *rpc.BreakerRegistry
	providers []config.ProviderSetting
	poller    pipeline.Broadcaster
	metrics   *metrics.Metrics
	log       *logging.Logger

	srv *http.Server
}

// Deps are the components the API exposes.
type Deps struct {
	Pipeline  *pipeline.Pipeline
	Store     storage.SubmissionStore
	Sequencer *sequencer.Sequencer
	Breakers  *rpc.BreakerRegistry
	Providers []config.ProviderSetting
	// Poller resolves live status for stored submissions.
	Poller  pipeline.Broadcaster
	Metrics *metrics.Metrics
	Logger  *logging.Logger
}

// NewServer builds the API server and its router.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("pipeline required")
	}
	if deps.Sequencer == nil {
		return nil, fmt.Errorf("sequencer required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewDefault("httpapi")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = 2 * time.Minute
	}

	s := &Server{
		cfg:       cfg,
		pipeline:  deps.Pipeline,
		store:     deps.Store,
		sequencer: deps.Sequencer,
		breakers:  deps.Breakers,
		providers: deps.Providers,
		poller:    deps.Poller,
		metrics:   deps.Metrics,
		log:       deps.Logger,
	}

	s.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      3 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/submissions", s.handleSubmit).Methods(http.MethodPost)
	v1.HandleFunc("/submissions/{id}", s.handleGetSubmission).Methods(http.MethodGet)
	v1.HandleFunc("/providers", s.handleProviders).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{network}/{address}/invalidate", s.handleInvalidate).Methods(http.MethodPost)

	r.Use(middleware.TracingMiddleware(s.log))
	if s.metrics != nil {
		r.Use(middleware.MetricsMiddleware(s.metrics))
	}
	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(middleware.NewCORSMiddleware(s.cfg.AllowedOrigins).Handler)
	}
	if s.cfg.RateLimit > 0 {
		burst := s.cfg.RateLimitBurst
		if burst <= 0 {
			burst = s.cfg.RateLimit * 2
		}
		r.Use(middleware.NewRateLimiter(s.cfg.RateLimit, burst, s.log).Handler)
	}
	if len(s.cfg.AuthSecret) > 0 {
		r.Use(middleware.NewAuthMiddleware(s.cfg.AuthSecret, s.log, skipAuthPaths).Handler)
	}

	return r
}

// Name implements system.Service.
func (s *Server) Name() string { return "httpapi" }

// Start begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		s.log.WithField("addr", s.srv.Addr).Info("http api listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("http api server stopped")
		}
	}()
	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

var _ system.Service = (*Server)(nil)
