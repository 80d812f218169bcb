// Package app composes the relay's components into a running application:
// storage, RPC client, bundler, sequencer, pipeline, reaper and HTTP API,
// with lifecycle managed through the system manager.
package app

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/tempwallets/txrelay/internal/bundler"
	"github.com/tempwallets/txrelay/internal/config"
	"github.com/tempwallets/txrelay/internal/httpapi"
	"github.com/tempwallets/txrelay/internal/logging"
	"github.com/tempwallets/txrelay/internal/metrics"
	"github.com/tempwallets/txrelay/internal/pipeline"
	"github.com/tempwallets/txrelay/internal/rpc"
	"github.com/tempwallets/txrelay/internal/sequencer"
	"github.com/tempwallets/txrelay/internal/storage"
	"github.com/tempwallets/txrelay/internal/storage/memory"
	"github.com/tempwallets/txrelay/internal/storage/postgres"
	"github.com/tempwallets/txrelay/internal/system"
)

// Application ties the relay components together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logging.Logger
	db      *sql.DB

	Metrics   *metrics.Metrics
	Store     storage.SubmissionStore
	Breakers  *rpc.BreakerRegistry
	RPC       *rpc.Client
	Bundler   *bundler.Client
	Sequencer *sequencer.Sequencer
	Pipeline  *pipeline.Pipeline
}

// Options override component wiring; nil fields use cfg-driven defaults.
type Options struct {
	// Store overrides the submission store (default: postgres when
	// cfg.PostgresDSN is set, in-memory otherwise).
	Store storage.SubmissionStore
	// Signer overrides the payload signer (default: nonce binder for
	// pre-signed UserOperations).
	Signer pipeline.Signer
	// Broadcaster overrides the relay target (default: bundler client).
	Broadcaster pipeline.Broadcaster
	// Fetcher overrides the sequence lookup (default: RPC nonce fetcher).
	Fetcher sequencer.SequenceFetcher
}

// New builds a fully wired application from configuration.
func New(cfg config.Config, providers *config.ProvidersConfig, log *logging.Logger, opts Options) (*Application, error) {
	if log == nil {
		log = logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Component: "app"})
	}
	if providers == nil {
		providers = config.DefaultProvidersConfig()
	}

	a := &Application{
		manager: system.NewManager(),
		log:     log,
		Metrics: metrics.New("txrelay"),
	}

	if err := a.initStore(cfg, opts); err != nil {
		return nil, err
	}

	a.Breakers = rpc.NewBreakerRegistry(
		rpc.WithFailureThreshold(cfg.FailureThreshold),
		rpc.WithResetTime(cfg.ResetTime),
		rpc.WithBreakerMetrics(a.Metrics),
	)

	rpcProviders := make([]rpc.Provider, 0, len(providers.Providers))
	for _, p := range providers.Providers {
		rpcProviders = append(rpcProviders, rpc.StaticProvider(p.Name, p.Priority, p.URL))
	}
	rpcClient, err := rpc.NewClient(rpc.ClientConfig{
		Providers:      rpcProviders,
		Credentials:    providers.Credentials(),
		Breakers:       a.Breakers,
		Logger:         log.WithField("component", "rpc"),
		Metrics:        a.Metrics,
		RequestTimeout: cfg.RequestTimeout,
		MaxRetries:     cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("rpc client: %w", err)
	}
	a.RPC = rpcClient

	bundlerClient, err := bundler.NewClient(rpcClient, cfg.ChainID, cfg.EntryPoint, log.WithField("component", "bundler"))
	if err != nil {
		return nil, fmt.Errorf("bundler client: %w", err)
	}
	a.Bundler = bundlerClient

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = bundler.NewNonceFetcher(rpcClient, cfg.ChainID, cfg.NonceMethod)
	}
	a.Sequencer = sequencer.New(fetcher, log.WithField("component", "sequencer"),
		sequencer.WithCacheTTL(cfg.CacheTTL),
		sequencer.WithLockTTL(cfg.LockTTL),
		sequencer.WithMetrics(a.Metrics),
	)

	signer := opts.Signer
	if signer == nil {
		signer = bundler.NonceBinder{}
	}
	broadcaster := opts.Broadcaster
	if broadcaster == nil {
		broadcaster = bundler.NewBroadcaster(bundlerClient)
	}

	limiter := pipeline.NewSubmissionLimiter(&pipeline.RateLimitConfig{
		GlobalTPS:     cfg.GlobalTPS,
		PerAccountTPS: cfg.PerAccountTPS,
	}, nil)

	a.Pipeline, err = pipeline.New(pipeline.Config{
		Sequencer:    a.Sequencer,
		Signer:       signer,
		Broadcaster:  broadcaster,
		Store:        a.Store,
		Limiter:      limiter,
		Logger:       log.WithField("component", "pipeline"),
		Metrics:      a.Metrics,
		PollInterval: cfg.PollInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	reaper := sequencer.NewReaper(a.Sequencer, cfg.ReapInterval, log.WithField("component", "reaper"))
	if err := a.manager.Register(reaper); err != nil {
		return nil, err
	}

	var secret []byte
	if cfg.AuthSecret != "" {
		secret = []byte(cfg.AuthSecret)
	}
	api, err := httpapi.NewServer(httpapi.Config{
		ListenAddr:          cfg.ListenAddr,
		AuthSecret:          secret,
		ConfirmationTimeout: cfg.ConfirmationTimeout,
	}, httpapi.Deps{
		Pipeline:  a.Pipeline,
		Store:     a.Store,
		Sequencer: a.Sequencer,
		Breakers:  a.Breakers,
		Providers: providers.Providers,
		Poller:    broadcaster,
		Metrics:   a.Metrics,
		Logger:    log.WithField("component", "httpapi"),
	})
	if err != nil {
		return nil, fmt.Errorf("http api: %w", err)
	}
	if err := a.manager.Register(api); err != nil {
		return nil, err
	}

	return a, nil
}

func (a *Application) initStore(cfg config.Config, opts Options) error {
	if opts.Store != nil {
		a.Store = opts.Store
		return nil
	}
	if cfg.PostgresDSN == "" {
		a.Store = memory.New()
		return nil
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}
	a.db = db
	a.Store = postgres.New(db)
	a.log.Info("submission store: postgres")
	return nil
}

// Start launches the managed services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop shuts managed services down in reverse order and closes resources.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.Stop(ctx)
	if a.db != nil {
		if closeErr := a.db.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}
