// Command txrelayd runs the transaction relay: per-account sequencing,
// resilient multi-provider RPC submission and the operational HTTP API.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tempwallets/txrelay/internal/app"
	"github.com/tempwallets/txrelay/internal/config"
	"github.com/tempwallets/txrelay/internal/logging"
)

func main() {
	envFile := flag.String("env", ".env", "path to env file (optional)")
	providersFile := flag.String("providers", "", "path to providers YAML (overrides PROVIDERS_CONFIG)")
	flag.Parse()

	// Missing env file is fine; the environment may already be set.
	_ = godotenv.Load(*envFile)

	cfg := config.FromEnv()
	if *providersFile != "" {
		cfg.ProvidersPath = *providersFile
	}

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Component: "txrelayd"})

	providers, err := config.LoadProviders(cfg.ProvidersPath)
	if err != nil {
		log.WithError(err).Warn("providers config not loaded, using local default")
		providers = config.DefaultProvidersConfig()
	}

	application, err := app.New(cfg, providers, log, app.Options{})
	if err != nil {
		log.WithError(err).Error("application init failed")
		os.Exit(1)
	}

	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("application start failed")
		os.Exit(1)
	}
	log.WithFields(map[string]interface{}{
		"addr":      cfg.ListenAddr,
		"chain_id":  cfg.ChainID,
		"providers": len(providers.Providers),
	}).Info("relay started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.WithField("signal", sig.String()).Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
		os.Exit(1)
	}
	log.Info("relay stopped")
}
