// Kestrel - Compliance orchestration that deploys in 60 seconds.
// Copyright (c) 2025 opensource.compliance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-compliance/kestrel/internal/aggregator"
	"github.com/opensource-compliance/kestrel/internal/api"
	"github.com/opensource-compliance/kestrel/internal/bus"
	"github.com/opensource-compliance/kestrel/internal/cache"
	"github.com/opensource-compliance/kestrel/internal/domain"
	"github.com/opensource-compliance/kestrel/internal/history"
	"github.com/opensource-compliance/kestrel/internal/matrix"
	"github.com/opensource-compliance/kestrel/internal/orchestrator"
	"github.com/opensource-compliance/kestrel/internal/registry"
	"github.com/opensource-compliance/kestrel/internal/repository"
	"github.com/opensource-compliance/kestrel/internal/rules"
	"github.com/opensource-compliance/kestrel/internal/universal"
	"github.com/opensource-compliance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// requiredFields maps each framework to the document fields its validator
// demands before rule evaluation.
var requiredFields = map[domain.ComplianceFramework][]string{
	domain.FrameworkTaxAuthority:   {"tin"},
	domain.FrameworkEntityRegistry: {"registration.number"},
	domain.FrameworkEInvoicing:     {"invoice_number"},
	domain.FrameworkDataProtection: nil,
	domain.FrameworkTradeStandard:  nil,
}

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Rule Engine
	engine, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	// Load rules from database (no hardcoded defaults - configure via API)
	if err := loadRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RuleCount())

	// Initialize Validator Registry with one rule-backed validator per framework
	reg := registry.New()
	for _, f := range domain.AllFrameworks() {
		v := registry.NewRuleValidator(f, engine, requiredFields[f])
		if err := reg.Register(f, v, registry.Metadata{
			Name:    string(f) + "-validator",
			Version: Version,
		}); err != nil {
			slog.Error("failed to register validator", "framework", f, "error", err)
			os.Exit(1)
		}
	}
	slog.Info("validator registry initialized", "frameworks", len(reg.Frameworks()))

	// Initialize Compliance Matrix and Orchestrator
	m := matrix.New()
	orch, err := orchestrator.New(m, reg, engine, cfg.Engine,
		orchestrator.WithEventBus(busImpl),
		orchestrator.WithRepository(repo),
	)
	if err != nil {
		slog.Error("failed to initialize orchestrator", "error", err)
		os.Exit(1)
	}
	slog.Info("orchestrator initialized",
		"max_parallel", cfg.Engine.MaxParallelValidators,
		"default_budget", cfg.Engine.DefaultMaxValidationTime,
	)

	// Initialize Universal Validator facade, Aggregator, and History
	validator := universal.New(orch, cacheImpl, repo, cfg.Cache.ResponseTTL)
	agg := aggregator.New()
	hist := history.NewService(repo)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, validator)

		var tenantIDs []string
		if envTenants := os.Getenv("KESTREL_TENANTS"); envTenants != "" {
			tenantIDs = strings.Split(envTenants, ",")
		}

		workerCfg := worker.Config{
			TenantIDs:   tenantIDs,
			WorkerCount: 5,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, orch, validator, agg, hist, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

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

	slog.Info("kestrel shutdown complete")
}

// GlobalTenantID is used for rules that apply to all tenants.
const GlobalTenantID = "*"

// loadRulesFromDatabase loads rules from the database into the engine.
// All rules must be configured via POST /rules API - no hardcoded defaults.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	dbRules, err := repo.ListRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no rules in database - configure via POST /rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 KESTREL                  ║")
	fmt.Println("  ║    Compliance Orchestration Engine        ║")
	fmt.Println("  ║     Every rule, every framework.          ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /assess            - Run a full compliance assessment")
	fmt.Println("    POST /validate          - Validate through the caching facade")
	fmt.Println("    GET  /results/{id}      - Get a persisted result by ID")
	fmt.Println("    GET  /rules             - List all rules")
	fmt.Println("    POST /rules             - Create a new rule")
	fmt.Println("    POST /rules/reload      - Hot-reload rules from database")
	fmt.Println("    GET  /frameworks        - Compliance matrix snapshot")
	fmt.Println("    GET  /registry/health   - Validator registry health")
	fmt.Println("    GET  /audit             - Audit trail")
	fmt.Println("    GET  /trends            - Compliance trend analysis")
	fmt.Println("    GET  /stats             - Execution statistics")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println()
}
