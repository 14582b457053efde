// Kestrel - Fraud risk scoring for payment gateways.
// Copyright (c) 2025 opensource.finance
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
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/alerts"
	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/history"
	"github.com/opensource-finance/kestrel/internal/merchant"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/stats"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := domain.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"worker", cfg.Worker.Enabled,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("kestrel stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("kestrel shutdown complete")
}

func run(ctx context.Context, cfg *domain.Config) error {
	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	collector := metrics.NewCollector()

	configs := merchant.NewAccessor(repo, cacheImpl, busImpl, cfg.Cache.ConfigTTL)
	alertSvc := alerts.NewService(repo,
		alerts.WithEventBus(busImpl),
		alerts.WithObserver(collector),
	)
	historySvc := history.NewService(repo, cfg.History)

	expressionRules, err := loadExpressionRules(cfg.RulesFile)
	if err != nil {
		return err
	}

	engine, err := rules.NewEngine(configs, historySvc, decision.NewProcessor(), alertSvc,
		rules.WithEventBus(busImpl),
		rules.WithRecorder(collector),
		rules.WithExpressionRules(expressionRules...),
	)
	if err != nil {
		return fmt.Errorf("initialize rule engine: %w", err)
	}
	slog.Info("rule engine initialized",
		"rules_count", engine.RulesCount(),
		"rules", engine.RuleNames(),
	)

	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, engine, repo)
		workerCfg := worker.Config{
			MerchantIDs: cfg.Worker.MerchantIDs,
			WorkerCount: cfg.Worker.WorkerCount,
		}
		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		} else {
			slog.Info("async worker started", "merchant_count", len(cfg.Worker.MerchantIDs))
		}
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Engine:       engine,
		Transactions: repo,
		Alerts:       alertSvc,
		Configs:      configs,
		Stats:        stats.NewService(repo),
		Repo:         repo,
		Cache:        cacheImpl,
		Metrics:      collector,
	}, collector.Handler(), Version)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cfg, Version)

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case serveErr = <-errCh:
		slog.Error("server failed", "error", serveErr)
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

	return serveErr
}

// loadExpressionRules compiles the operator rules file, if one is set.
func loadExpressionRules(path string) ([]*rules.ExpressionRule, error) {
	configs, err := domain.LoadExpressionRules(path)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, nil
	}

	env, err := rules.NewExpressionEnv()
	if err != nil {
		return nil, fmt.Errorf("create expression environment: %w", err)
	}
	compiled, err := rules.CompileExpressionRules(env, configs, nil)
	if err != nil {
		return nil, err
	}

	slog.Info("expression rules loaded", "path", path, "count", len(compiled))
	return compiled, nil
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
	fmt.Println("  KESTREL - Payment Fraud Risk Scoring")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST  /check                     - Score a payment before authorisation")
	fmt.Println("    POST  /transactions              - Record a payment in history")
	fmt.Println("    GET   /transactions/{id}         - Get transaction by ID")
	fmt.Println("    PATCH /transactions/{id}/status  - Record the settlement outcome")
	fmt.Println("    GET   /alerts                    - List fraud alerts")
	fmt.Println("    GET   /alerts/{id}               - Get alert by ID")
	fmt.Println("    PATCH /alerts/{id}/review        - Review an alert")
	fmt.Println("    GET   /config/{merchantId}       - Get merchant risk config")
	fmt.Println("    PUT   /config/{merchantId}       - Update merchant risk config")
	fmt.Println("    GET   /stats                     - Fraud statistics")
	fmt.Println("    GET   /health  /ready  /metrics")
	fmt.Println()
}
