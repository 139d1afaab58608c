package scanner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/signal-engine/internal/config"
	"github.com/mohamedkhairy/signal-engine/internal/executor"
	"github.com/mohamedkhairy/signal-engine/internal/models"
	"github.com/mohamedkhairy/signal-engine/internal/monitor"
	"github.com/mohamedkhairy/signal-engine/internal/query"
	"github.com/mohamedkhairy/signal-engine/internal/rules"
	"github.com/mohamedkhairy/signal-engine/internal/scoring"
)

// fakeSource serves canned breakout rows and scripted failures keyed on
// the queried table
type fakeSource struct {
	mu       sync.Mutex
	rows     []models.RawRow
	failCRP  bool
	blockAll bool
	lastArgs []interface{}
}

func (f *fakeSource) Query(ctx context.Context, sql string, args ...interface{}) ([]models.RawRow, error) {
	f.mu.Lock()
	f.lastArgs = append([]interface{}(nil), args...)
	rows, failCRP, blockAll := f.rows, f.failCRP, f.blockAll
	f.mu.Unlock()

	if blockAll {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if failCRP && strings.Contains(sql, "crp_scans") {
		return nil, errors.New("table market.crp_scans does not exist")
	}
	return rows, nil
}

func (f *fakeSource) Close() error { return nil }

func breakoutRows() []models.RawRow {
	return []models.RawRow{
		{"AAPL", "2025-09-08T09:50:00", 150.25, int64(2500000), 2.5, 2.1, 3.2, "breakout"},
		{"MSFT", "2025-09-08T09:55:00", 410.10, int64(1200000), 1.8, 1.6, 2.4, "breakout"},
	}
}

func enabledRule(id string, ruleType models.RuleType, priority int) *models.RuleDefinition {
	return &models.RuleDefinition{
		RuleID:   id,
		Name:     "Rule " + id,
		Type:     ruleType,
		Enabled:  true,
		Priority: priority,
		Conditions: models.ConditionSet{
			Volume: &models.VolumeConditions{MinVolume: 100},
		},
		Actions: models.Actions{
			SignalType:       models.SignalBuy,
			ConfidenceMethod: "weighted",
		},
	}
}

func newTestEngine(t *testing.T, source *fakeSource) *Engine {
	t.Helper()
	return newTestEngineWithConfig(t, source, config.ScannerConfig{
		WorkerCount:    2,
		DefaultTimeout: 50 * time.Millisecond,
	})
}

func newTestEngineWithConfig(t *testing.T, source *fakeSource, cfg config.ScannerConfig) *Engine {
	t.Helper()

	exec, err := executor.NewExecutor(executor.Config{
		MaxConcurrent:  4,
		AcquireTimeout: 100 * time.Millisecond,
		QueryTimeout:   time.Second,
		MaxRetries:     1,
		RetryDelay:     time.Millisecond,
	}, source)
	require.NoError(t, err)

	engine, err := NewEngine(
		cfg,
		rules.NewRegistry(nil),
		query.NewBuilder(),
		exec,
		scoring.NewScorer(),
		monitor.NewMonitor(),
	)
	require.NoError(t, err)
	return engine
}

func scanCtx() *models.ExecutionContext {
	return &models.ExecutionContext{
		ScanDate: time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC),
	}
}

func TestScanEmitsSignals(t *testing.T) {
	source := &fakeSource{rows: breakoutRows()}
	engine := newTestEngine(t, source)

	result := engine.LoadRules([]*models.RuleDefinition{enabledRule("bo-1", models.RuleTypeBreakout, 10)})
	require.Equal(t, 1, result.Loaded)

	scan, err := engine.Scan(context.Background(), scanCtx())
	require.NoError(t, err)
	require.Len(t, scan.Signals, 2)
	assert.Empty(t, scan.Failures)

	for _, signal := range scan.Signals {
		assert.Equal(t, "bo-1", signal.RuleID)
		require.NoError(t, signal.Validate())
	}

	metrics, err := engine.GetRulePerformance("bo-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), metrics.ExecutionCount)
	assert.Equal(t, int64(1), metrics.SuccessCount)

	stats := engine.Stats()
	assert.Equal(t, int64(1), stats.ScansStarted)
	assert.Equal(t, int64(2), stats.SignalsEmitted)
}

func TestScanDisabledRuleSkipped(t *testing.T) {
	source := &fakeSource{rows: breakoutRows()}
	engine := newTestEngine(t, source)

	engine.LoadRules([]*models.RuleDefinition{enabledRule("bo-1", models.RuleTypeBreakout, 10)})
	require.NoError(t, engine.Registry().Disable("bo-1"))

	scan, err := engine.Scan(context.Background(), scanCtx())
	require.NoError(t, err)
	assert.Empty(t, scan.Signals)

	// A skipped rule records no outcome; its history stays untouched.
	_, err = engine.GetRulePerformance("bo-1")
	assert.Error(t, err)
}

func TestExecuteRuleDisabledYieldsNothing(t *testing.T) {
	source := &fakeSource{rows: breakoutRows()}
	engine := newTestEngine(t, source)

	engine.LoadRules([]*models.RuleDefinition{enabledRule("bo-1", models.RuleTypeBreakout, 10)})

	signals, err := engine.ExecuteRule(context.Background(), "bo-1", scanCtx())
	require.NoError(t, err)
	require.Len(t, signals, 2)

	require.NoError(t, engine.Registry().Disable("bo-1"))
	signals, err = engine.ExecuteRule(context.Background(), "bo-1", scanCtx())
	require.NoError(t, err)
	assert.Empty(t, signals)

	// History from before the disable survives.
	metrics, err := engine.GetRulePerformance("bo-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), metrics.ExecutionCount)
}

func TestExecuteRuleNotFound(t *testing.T) {
	engine := newTestEngine(t, &fakeSource{})
	_, err := engine.ExecuteRule(context.Background(), "ghost", scanCtx())
	require.ErrorIs(t, err, models.ErrRuleNotFound)
}

// One rule's failure never disturbs the others.
func TestScanRuleIsolation(t *testing.T) {
	source := &fakeSource{rows: breakoutRows(), failCRP: true}
	engine := newTestEngine(t, source)

	engine.LoadRules([]*models.RuleDefinition{
		enabledRule("bo-1", models.RuleTypeBreakout, 10),
		enabledRule("crp-1", models.RuleTypeCRP, 5),
	})

	scan, err := engine.Scan(context.Background(), scanCtx())
	require.NoError(t, err)
	assert.Len(t, scan.Signals, 2)
	require.Contains(t, scan.Failures, "crp-1")

	metrics, err := engine.GetRulePerformance("crp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), metrics.SuccessCount)
}

// A timed-out rule produces no partial signals and is recorded as a
// timeout, not a success.
func TestScanTimeout(t *testing.T) {
	source := &fakeSource{blockAll: true}
	engine := newTestEngine(t, source)

	engine.LoadRules([]*models.RuleDefinition{enabledRule("bo-1", models.RuleTypeBreakout, 10)})

	scan, err := engine.Scan(context.Background(), scanCtx())
	require.NoError(t, err)
	assert.Empty(t, scan.Signals)
	require.Contains(t, scan.Failures, "bo-1")
	assert.ErrorIs(t, scan.Failures["bo-1"], models.ErrTimeout)
}

// Arity drift from the source fails the rule, never silently misnames
// fields.
func TestScanMappingFailure(t *testing.T) {
	source := &fakeSource{rows: []models.RawRow{
		{"AAPL", "2025-09-08T09:50:00", 150.25, int64(2500000), 2.5, 2.1},
	}}
	engine := newTestEngine(t, source)

	engine.LoadRules([]*models.RuleDefinition{enabledRule("bo-1", models.RuleTypeBreakout, 10)})

	scan, err := engine.Scan(context.Background(), scanCtx())
	require.NoError(t, err)
	assert.Empty(t, scan.Signals)
	require.Contains(t, scan.Failures, "bo-1")

	var mapErr *models.MappingError
	assert.ErrorAs(t, scan.Failures["bo-1"], &mapErr)
}

// Reloading the rule set changes behavior for subsequent scans without
// touching scans already in flight.
func TestScanAfterRuleUpdate(t *testing.T) {
	source := &fakeSource{rows: breakoutRows()}
	engine := newTestEngine(t, source)

	engine.LoadRules([]*models.RuleDefinition{enabledRule("bo-1", models.RuleTypeBreakout, 10)})

	scan, err := engine.Scan(context.Background(), scanCtx())
	require.NoError(t, err)
	require.Len(t, scan.Signals, 2)

	// Raise the bar so nothing clears it.
	updated := enabledRule("bo-1", models.RuleTypeBreakout, 10)
	updated.Actions.MinConfidence = 99
	engine.LoadRules([]*models.RuleDefinition{updated})

	scan, err = engine.Scan(context.Background(), scanCtx())
	require.NoError(t, err)
	assert.Empty(t, scan.Signals)

	rule, _ := engine.Registry().Snapshot().Get("bo-1")
	assert.Equal(t, "1.0.1", rule.Metadata.Version)
}

// Scans without an explicit symbol list run against the configured
// default universe; an explicit list overrides it.
func TestScanDefaultSymbolUniverse(t *testing.T) {
	source := &fakeSource{rows: breakoutRows()}
	engine := newTestEngineWithConfig(t, source, config.ScannerConfig{
		WorkerCount:    1,
		DefaultTimeout: 50 * time.Millisecond,
		DefaultSymbols: []string{"AAPL", "MSFT"},
	})
	engine.LoadRules([]*models.RuleDefinition{enabledRule("bo-1", models.RuleTypeBreakout, 10)})

	_, err := engine.Scan(context.Background(), scanCtx())
	require.NoError(t, err)

	source.mu.Lock()
	args := source.lastArgs
	source.mu.Unlock()
	assert.Contains(t, args, "AAPL")
	assert.Contains(t, args, "MSFT")

	execCtx := scanCtx()
	execCtx.Symbols = []string{"TSLA"}
	_, err = engine.Scan(context.Background(), execCtx)
	require.NoError(t, err)

	source.mu.Lock()
	args = source.lastArgs
	source.mu.Unlock()
	assert.Contains(t, args, "TSLA")
	assert.NotContains(t, args, "AAPL")
}

func TestScanCancelledContext(t *testing.T) {
	source := &fakeSource{rows: breakoutRows()}
	engine := newTestEngine(t, source)

	for _, id := range []string{"a", "b", "c", "d"} {
		engine.LoadRules([]*models.RuleDefinition{enabledRule(id, models.RuleTypeBreakout, 1)})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Scan(ctx, scanCtx())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanNilContext(t *testing.T) {
	engine := newTestEngine(t, &fakeSource{})
	_, err := engine.Scan(context.Background(), nil)
	require.Error(t, err)

	_, err = engine.Scan(context.Background(), &models.ExecutionContext{})
	assert.ErrorIs(t, err, models.ErrMissingScanDate)
}
