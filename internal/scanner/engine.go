package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mohamedkhairy/signal-engine/internal/config"
	"github.com/mohamedkhairy/signal-engine/internal/executor"
	"github.com/mohamedkhairy/signal-engine/internal/mapper"
	"github.com/mohamedkhairy/signal-engine/internal/models"
	"github.com/mohamedkhairy/signal-engine/internal/monitor"
	"github.com/mohamedkhairy/signal-engine/internal/query"
	"github.com/mohamedkhairy/signal-engine/internal/rules"
	"github.com/mohamedkhairy/signal-engine/internal/scoring"
	"github.com/mohamedkhairy/signal-engine/pkg/logger"
)

// Engine is the entry point external callers use: it composes the
// registry, query builder, executor, mapper, scorer and performance
// monitor into the load/validate/execute/reload surface.
type Engine struct {
	registry *rules.Registry
	builder  *query.Builder
	executor *executor.Executor
	scorer   *scoring.Scorer
	monitor  *monitor.Monitor
	config   config.ScannerConfig

	statsMu sync.RWMutex
	stats   EngineStats
}

// EngineStats summarizes scan activity since startup
type EngineStats struct {
	ScansStarted     int64
	RulesExecuted    int64
	SignalsEmitted   int64
	LastScanDuration time.Duration
}

// ScanResult is the outcome of one full scan. Signals across rules are
// an unordered collection keyed by (rule, symbol, trigger time);
// within one rule they arrive ranked.
type ScanResult struct {
	Signals  []*models.TradingSignal
	Failures map[string]error // rule_id -> terminal error
}

// NewEngine wires the engine together
func NewEngine(
	cfg config.ScannerConfig,
	registry *rules.Registry,
	builder *query.Builder,
	exec *executor.Executor,
	scorer *scoring.Scorer,
	mon *monitor.Monitor,
) (*Engine, error) {
	if registry == nil || builder == nil || exec == nil || scorer == nil || mon == nil {
		return nil, fmt.Errorf("engine requires registry, builder, executor, scorer and monitor")
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 5 * time.Second
	}

	return &Engine{
		registry: registry,
		builder:  builder,
		executor: exec,
		scorer:   scorer,
		monitor:  mon,
		config:   cfg,
	}, nil
}

// LoadRules validates and admits rules into the registry
func (e *Engine) LoadRules(ruleList []*models.RuleDefinition) *rules.LoadResult {
	return e.registry.Load(ruleList)
}

// ValidateRule validates a rule without admitting it
func (e *Engine) ValidateRule(rule *models.RuleDefinition) rules.ValidationResult {
	return rules.ValidateRule(rule)
}

// Reload swaps in a freshly validated rule set from the backing store
func (e *Engine) Reload(ctx context.Context) error {
	return e.registry.Reload(ctx)
}

// GetRulePerformance returns aggregated execution metrics for a rule
func (e *Engine) GetRulePerformance(ruleID string) (*models.PerformanceMetrics, error) {
	return e.monitor.GetPerformance(ruleID)
}

// Registry exposes the rule registry for lifecycle operations
func (e *Engine) Registry() *rules.Registry {
	return e.registry
}

// Stats returns a copy of the engine counters
func (e *Engine) Stats() EngineStats {
	e.statsMu.RLock()
	defer e.statsMu.RUnlock()
	return e.stats
}

// ExecuteRule runs a single rule under the given context and returns
// its ranked signals. A disabled or archived rule yields zero signals
// and records no outcome, leaving its historical metrics untouched.
func (e *Engine) ExecuteRule(ctx context.Context, ruleID string, execCtx *models.ExecutionContext) ([]*models.TradingSignal, error) {
	rule, exists := e.registry.Snapshot().Get(ruleID)
	if !exists {
		return nil, fmt.Errorf("%w: %s", models.ErrRuleNotFound, ruleID)
	}
	if !rule.Enabled || rule.State == models.RuleStateArchived {
		return nil, nil
	}
	return e.runRule(ctx, rule, execCtx)
}

// Scan evaluates every enabled rule in the current snapshot against
// the context. Rules run concurrently under a bounded worker pool;
// higher-priority rules are dispatched first. One rule's failure never
// disturbs the others.
func (e *Engine) Scan(ctx context.Context, execCtx *models.ExecutionContext) (*ScanResult, error) {
	if execCtx == nil {
		return nil, fmt.Errorf("execution context cannot be nil")
	}
	if err := execCtx.Validate(); err != nil {
		return nil, err
	}

	// The snapshot taken here serves the whole scan; a concurrent
	// reload publishes a new one without touching this view.
	snapshot := e.registry.Snapshot()
	enabled := snapshot.Enabled()

	start := time.Now()
	e.statsMu.Lock()
	e.stats.ScansStarted++
	e.statsMu.Unlock()

	result := &ScanResult{Failures: make(map[string]error)}
	var resultMu sync.Mutex

	jobs := make(chan *models.RuleDefinition)
	var wg sync.WaitGroup

	for i := 0; i < e.config.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rule := range jobs {
				signals, err := e.runRule(ctx, rule, execCtx)
				resultMu.Lock()
				if err != nil {
					result.Failures[rule.RuleID] = err
				} else {
					result.Signals = append(result.Signals, signals...)
				}
				resultMu.Unlock()
			}
		}()
	}

dispatch:
	for _, rule := range enabled {
		select {
		case jobs <- rule:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	duration := time.Since(start)
	e.statsMu.Lock()
	e.stats.RulesExecuted += int64(len(enabled))
	e.stats.SignalsEmitted += int64(len(result.Signals))
	e.stats.LastScanDuration = duration
	e.statsMu.Unlock()

	logger.Info("scan complete",
		logger.Int("rules", len(enabled)),
		logger.Int("signals", len(result.Signals)),
		logger.Int("failures", len(result.Failures)),
		logger.Duration("duration", duration),
	)

	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}

// runRule is one rule invocation: build, execute, map, score, record.
// The invocation walks pending -> running -> a terminal status that
// the monitor records exactly once.
func (e *Engine) runRule(ctx context.Context, rule *models.RuleDefinition, execCtx *models.ExecutionContext) ([]*models.TradingSignal, error) {
	// A context naming no symbols falls back to the configured default
	// universe. The caller's context is never mutated.
	if len(execCtx.Symbols) == 0 && len(e.config.DefaultSymbols) > 0 {
		scoped := *execCtx
		scoped.Symbols = e.config.DefaultSymbols
		execCtx = &scoped
	}

	outcome := models.ExecutionOutcome{
		RuleID: rule.RuleID,
		Status: models.ExecutionPending,
	}
	start := time.Now()
	defer func() {
		outcome.Duration = time.Since(start)
		e.monitor.Record(outcome)
	}()

	plan, err := e.builder.Build(rule, execCtx)
	if err != nil {
		outcome.Status = models.ExecutionFailed
		outcome.Error = err.Error()
		return nil, err
	}

	outcome.Status = models.ExecutionRunning
	rows, err := e.executor.Execute(ctx, plan, e.config.DefaultTimeout)
	if err != nil {
		if errors.Is(err, models.ErrTimeout) {
			// No partial signal list on timeout.
			outcome.Status = models.ExecutionTimedOut
		} else {
			outcome.Status = models.ExecutionFailed
		}
		outcome.Error = err.Error()
		return nil, err
	}
	outcome.RowCount = len(rows)

	mapped, err := mapper.Map(rows, rule.Type)
	if err != nil {
		outcome.Status = models.ExecutionFailed
		outcome.Error = err.Error()
		return nil, err
	}
	if len(mapped.Failed) > 0 {
		logger.Warn("rows excluded during mapping",
			logger.String("rule_id", rule.RuleID),
			logger.Int("excluded", len(mapped.Failed)),
		)
	}

	signals := e.scorer.ScoreBatch(mapped.Fields, rule)
	outcome.Status = models.ExecutionSucceeded
	outcome.SignalCount = len(signals)

	return signals, nil
}
