// Ruler - Customs control rule workbench with impact estimation.
// Copyright (c) 2025 opencustomruler
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opencustomruler/ruler/internal/api"
	"github.com/opencustomruler/ruler/internal/bus"
	"github.com/opencustomruler/ruler/internal/cache"
	"github.com/opencustomruler/ruler/internal/config"
	"github.com/opencustomruler/ruler/internal/domain"
	"github.com/opencustomruler/ruler/internal/impact"
	"github.com/opencustomruler/ruler/internal/metrics"
	"github.com/opencustomruler/ruler/internal/rules"
	"github.com/opencustomruler/ruler/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ruler: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Logging))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("ruler stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("ruler shutdown complete")
}

func run(ctx context.Context, cfg *domain.Config) error {
	slog.Info("starting ruler",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
		"tier", cfg.Tier,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"noise", cfg.Estimator.NoiseMode,
		"calibration_file", cfg.Estimator.CalibrationFile,
	)
	if cfg.Tracing.Enabled {
		slog.Info("tracing enabled", "service_name", cfg.Tracing.ServiceName)
	}

	reports, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer reports.Close()

	events, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	defer events.Close()

	engine, err := rules.NewEngine(100)
	if err != nil {
		return fmt.Errorf("rule engine: %w", err)
	}
	defer engine.Close()

	service := impact.NewService(cfg.Estimator, reports)
	profile := service.Profile()
	slog.Info("impact service ready",
		"total_declarations", profile.TotalDeclarations,
		"offices", len(profile.Offices),
		"cache_ttl_seconds", cfg.Estimator.CacheTTLSeconds,
	)

	catalog := rules.NewCatalog(events)

	// The worker subscribes before seeding so seeded rules get estimated.
	var impactWorker *worker.Worker
	if !strings.EqualFold(os.Getenv("RULER_ASYNC_WORKER"), "false") {
		w := worker.NewWorker(events, service)
		if err := w.Start(worker.Config{Concurrency: 4}); err != nil {
			slog.Error("impact worker disabled", "error", err)
		} else {
			impactWorker = w
			defer w.Stop()
		}
	}

	if err := seedCatalog(ctx, catalog); err != nil {
		return err
	}
	metrics.CatalogRules.Set(float64(catalog.Len()))

	srv := api.NewServer(cfg.Server, catalog, engine, service, reports, events, Version)
	if impactWorker != nil {
		srv.AttachWorker(impactWorker)
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()

	slog.Info("ruler is ready", "addr", srv.Addr())
	printBanner(cfg, Version)

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	return nil
}

// seedCatalog loads the demonstration rules (RULER_SAMPLE_RULES=true) and
// then the rules file named by RULER_RULES_FILE.
func seedCatalog(ctx context.Context, catalog *rules.Catalog) error {
	if strings.EqualFold(os.Getenv("RULER_SAMPLE_RULES"), "true") {
		if err := catalog.Load(ctx, rules.SampleRules()); err != nil {
			return fmt.Errorf("load sample rules: %w", err)
		}
		slog.Info("sample rules loaded", "count", catalog.Len())
	}

	path := os.Getenv("RULER_RULES_FILE")
	if path == "" {
		return nil
	}
	list, err := rules.ReadRulesFile(path)
	if err != nil {
		return err
	}
	if err := catalog.Load(ctx, list); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	slog.Info("rules loaded", "path", path, "count", len(list))
	return nil
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  +-------------------------------------------+")
	fmt.Println("  |                  RULER                    |")
	fmt.Println("  |     Customs Rule Workbench                |")
	fmt.Println("  |     Know the cost before you activate.    |")
	fmt.Println("  +-------------------------------------------+")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s\n", cfg.Server.Addr())
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /estimate                  - Estimate a draft rule")
	fmt.Println("    POST /dry-run                   - Run active rules on a declaration")
	fmt.Println("    GET  /rules                     - List rules")
	fmt.Println("    POST /rules                     - Create a rule")
	fmt.Println("    GET  /rules/{id}/impact         - Impact estimate and advice")
	fmt.Println("    POST /rules/{id}/toggle         - Activate or deactivate")
	fmt.Println("    POST /rules/{id}/conditions     - Add a condition")
	fmt.Println("    POST /rules/{id}/dry-run        - Test a rule on a declaration")
	fmt.Println("    GET  /profile                   - Reference profile")
	fmt.Println("    GET  /health                    - Health check")
	fmt.Println("    GET  /metrics                   - Prometheus metrics")
	fmt.Println()
}
