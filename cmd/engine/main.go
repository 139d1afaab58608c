package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohamedkhairy/signal-engine/internal/config"
	"github.com/mohamedkhairy/signal-engine/internal/executor"
	"github.com/mohamedkhairy/signal-engine/internal/monitor"
	"github.com/mohamedkhairy/signal-engine/internal/query"
	"github.com/mohamedkhairy/signal-engine/internal/rules"
	"github.com/mohamedkhairy/signal-engine/internal/scanner"
	"github.com/mohamedkhairy/signal-engine/internal/scoring"
	"github.com/mohamedkhairy/signal-engine/pkg/logger"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

func main() {
	rulesFile := flag.String("rules", "", "path to a JSON rules file to load at startup")
	scanDate := flag.String("scan-date", "", "run one scan for this date (YYYY-MM-DD) and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting signal engine",
		logger.Int("workers", cfg.Scanner.WorkerCount),
		logger.Int("max_concurrent_queries", cfg.Executor.MaxConcurrent),
	)

	source, err := executor.NewClickHouseSource(cfg.MarketDataDB)
	if err != nil {
		logger.Fatal("failed to connect to market data store", logger.ErrorField(err))
	}
	defer source.Close()

	exec, err := executor.NewExecutor(executor.Config{
		MaxConcurrent:    cfg.Executor.MaxConcurrent,
		AcquireTimeout:   cfg.Executor.AcquireTimeout,
		QueryTimeout:     cfg.Executor.QueryTimeout,
		MaxRetries:       cfg.Executor.MaxRetries,
		RetryDelay:       cfg.Executor.RetryDelay,
		BreakerThreshold: cfg.Executor.BreakerThreshold,
		BreakerCooldown:  cfg.Executor.BreakerCooldown,
	}, source)
	if err != nil {
		logger.Fatal("failed to build executor", logger.ErrorField(err))
	}

	ruleStore, err := rules.NewDatabaseRuleStore(cfg.RulesDB)
	if err != nil {
		logger.Fatal("failed to open rule store", logger.ErrorField(err))
	}
	defer ruleStore.Close()

	registry := rules.NewRegistry(ruleStore)

	engine, err := scanner.NewEngine(
		cfg.Scanner,
		registry,
		query.NewBuilder(),
		exec,
		scoring.NewScorer(),
		monitor.NewMonitor(),
	)
	if err != nil {
		logger.Fatal("failed to build engine", logger.ErrorField(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *rulesFile != "" {
		loadRulesFromFile(engine, *rulesFile)
	} else if err := engine.Reload(ctx); err != nil {
		logger.Warn("initial rule reload failed", logger.ErrorField(err))
	}

	// Shared-cache reload signaling is optional; run without it if
	// Redis is unreachable.
	if redisStore, err := rules.NewRedisRuleStore(cfg.Redis); err != nil {
		logger.Warn("redis rule cache unavailable, hot reload disabled", logger.ErrorField(err))
	} else {
		defer redisStore.Close()
		reloader := scanner.NewReloader(registry, redisStore, cfg.Scanner.RuleReloadInterval)
		if err := reloader.Start(); err != nil {
			logger.Warn("failed to start rule reloader", logger.ErrorField(err))
		} else {
			defer reloader.Stop()
		}
	}

	if *scanDate != "" {
		runOneScan(ctx, engine, *scanDate)
		return
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("shutting down signal engine")
}

func loadRulesFromFile(engine *scanner.Engine, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal("failed to read rules file", logger.ErrorField(err), logger.String("path", path))
	}
	ruleList, err := rules.ParseRules(data)
	if err != nil {
		logger.Fatal("failed to parse rules file", logger.ErrorField(err), logger.String("path", path))
	}
	result := engine.LoadRules(ruleList)
	logger.Info("rules loaded from file",
		logger.String("path", path),
		logger.Int("loaded", result.Loaded),
		logger.Int("rejected", len(result.Rejected)),
	)
}

func runOneScan(ctx context.Context, engine *scanner.Engine, scanDate string) {
	date, err := time.Parse("2006-01-02", scanDate)
	if err != nil {
		logger.Fatal("invalid scan date", logger.ErrorField(err), logger.String("scan_date", scanDate))
	}

	result, err := engine.Scan(ctx, &models.ExecutionContext{ScanDate: date})
	if err != nil {
		logger.Fatal("scan failed", logger.ErrorField(err))
	}

	for _, sig := range result.Signals {
		logger.Info("signal",
			logger.String("symbol", sig.Symbol),
			logger.String("type", string(sig.Type)),
			logger.Float64("confidence", sig.Confidence),
			logger.String("rule_id", sig.RuleID),
		)
	}
	for ruleID, ruleErr := range result.Failures {
		logger.Warn("rule failed", logger.String("rule_id", ruleID), logger.ErrorField(ruleErr))
	}
}
