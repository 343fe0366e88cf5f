// Compenso - Doctor compensation rules for aesthetic clinics.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/compenso/internal/api"
	"github.com/opensource-finance/compenso/internal/bus"
	"github.com/opensource-finance/compenso/internal/cache"
	"github.com/opensource-finance/compenso/internal/config"
	"github.com/opensource-finance/compenso/internal/domain"
	"github.com/opensource-finance/compenso/internal/errtrack"
	"github.com/opensource-finance/compenso/internal/repository"
	"github.com/opensource-finance/compenso/internal/seed"
	"github.com/opensource-finance/compenso/internal/service"
	"github.com/opensource-finance/compenso/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "compenso.yaml", "path to the YAML configuration file")
	showEnv := flag.Bool("env", false, "print the supported environment variables and exit")
	flag.Parse()

	if *showEnv {
		fmt.Println(config.Usage())
		return
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logger
	logger := config.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting compenso",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"worker", cfg.Worker.Enabled,
	)

	if cfg.Sentry.Release == "" {
		cfg.Sentry.Release = "compenso@" + Version
	}
	errtrack.Init(cfg.Sentry)
	defer errtrack.Flush()

	if err := run(cfg); err != nil {
		slog.Error("compenso stopped with error", "error", err)
		errtrack.Flush()
		os.Exit(1)
	}
}

func run(cfg *domain.Config) error {
	// Create context with cancellation
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	svc, err := service.New(repo, cacheImpl, busImpl, cfg.Cache.ConfigTTL)
	if err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	// Apply seed data (idempotent)
	if cfg.SeedFile != "" {
		if err := seed.ApplyFile(ctx, cfg.SeedFile, svc); err != nil {
			return fmt.Errorf("failed to apply seed file: %w", err)
		}
	}

	// Initialize async worker
	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, svc)
		if err := asyncWorker.Start(worker.Config{TenantIDs: cfg.Worker.TenantIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(cfg.Worker.TenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, svc, repo, cacheImpl, Version)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	slog.Info("compenso is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("compenso shutdown complete")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  COMPENSO - doctor compensation engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Database: %s\n", cfg.Repository.Driver)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /doctors                          - List doctors")
	fmt.Println("    PUT  /doctors/{id}/base-rule           - Set base rule")
	fmt.Println("    POST /doctors/{id}/exceptions          - Add exception")
	fmt.Println("    POST /doctors/{id}/product-costs       - Add product cost")
	fmt.Println("    POST /doctors/{id}/calculate           - Calculate a line")
	fmt.Println("    POST /doctors/{id}/scenarios           - What-if analysis")
	fmt.Println("    GET  /doctors/{id}/validation          - Coherence warnings")
	fmt.Println("    POST /rules/validate                   - Check a rule")
	fmt.Println("    GET  /health                           - Health check")
	fmt.Println()
}
