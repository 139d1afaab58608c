package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

var (
	ruleExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_rule_executions_total",
			Help: "Total rule executions by outcome",
		},
		[]string{"rule_id", "status"},
	)

	ruleExecutionLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_rule_execution_seconds",
			Help:    "End-to-end rule execution latency",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"rule_id"},
	)

	ruleRowsReturned = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_rule_rows_returned",
			Help:    "Rows returned per rule execution",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"rule_id"},
	)

	ruleSignalsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_rule_signals_total",
			Help: "Trading signals emitted per rule",
		},
		[]string{"rule_id"},
	)
)

// rollingWindowSize bounds the per-rule outcome history used for the
// rolling success rate
const rollingWindowSize = 100

// ruleStats is the mutable per-rule aggregate. Append/aggregate only;
// history is never retroactively edited.
type ruleStats struct {
	executionCount int64
	successCount   int64
	totalDuration  time.Duration
	totalRows      int64
	lastExecutedAt time.Time

	// ring buffer of recent outcomes, true = success
	window    [rollingWindowSize]bool
	windowLen int
	windowPos int
}

func (s *ruleStats) rollingSuccessRate() float64 {
	if s.windowLen == 0 {
		return 0
	}
	successes := 0
	for i := 0; i < s.windowLen; i++ {
		if s.window[i] {
			successes++
		}
	}
	return float64(successes) / float64(s.windowLen)
}

// Monitor records per-rule execution outcomes. It wraps calls made by
// the orchestrator and never alters executor or scorer behavior.
type Monitor struct {
	mu    sync.RWMutex
	stats map[string]*ruleStats
}

// NewMonitor creates an empty monitor
func NewMonitor() *Monitor {
	return &Monitor{stats: make(map[string]*ruleStats)}
}

// Record ingests one execution outcome
func (m *Monitor) Record(outcome models.ExecutionOutcome) {
	if outcome.RuleID == "" {
		return
	}

	ruleExecutions.WithLabelValues(outcome.RuleID, string(outcome.Status)).Inc()
	ruleExecutionLatency.WithLabelValues(outcome.RuleID).Observe(outcome.Duration.Seconds())
	ruleRowsReturned.WithLabelValues(outcome.RuleID).Observe(float64(outcome.RowCount))
	if outcome.SignalCount > 0 {
		ruleSignalsEmitted.WithLabelValues(outcome.RuleID).Add(float64(outcome.SignalCount))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stats, exists := m.stats[outcome.RuleID]
	if !exists {
		stats = &ruleStats{}
		m.stats[outcome.RuleID] = stats
	}

	stats.executionCount++
	stats.totalDuration += outcome.Duration
	stats.totalRows += int64(outcome.RowCount)
	stats.lastExecutedAt = time.Now()

	success := outcome.Status == models.ExecutionSucceeded
	if success {
		stats.successCount++
	}
	stats.window[stats.windowPos] = success
	stats.windowPos = (stats.windowPos + 1) % rollingWindowSize
	if stats.windowLen < rollingWindowSize {
		stats.windowLen++
	}
}

// GetPerformance returns the aggregated metrics for one rule
func (m *Monitor) GetPerformance(ruleID string) (*models.PerformanceMetrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats, exists := m.stats[ruleID]
	if !exists {
		return nil, fmt.Errorf("no execution history for rule %s", ruleID)
	}
	return snapshot(ruleID, stats), nil
}

// All returns metrics for every rule with recorded history
func (m *Monitor) All() []*models.PerformanceMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.PerformanceMetrics, 0, len(m.stats))
	for ruleID, stats := range m.stats {
		out = append(out, snapshot(ruleID, stats))
	}
	return out
}

func snapshot(ruleID string, stats *ruleStats) *models.PerformanceMetrics {
	metrics := &models.PerformanceMetrics{
		RuleID:         ruleID,
		ExecutionCount: stats.executionCount,
		SuccessCount:   stats.successCount,
		SuccessRate:    stats.rollingSuccessRate(),
		LastExecutedAt: stats.lastExecutedAt,
	}
	if stats.executionCount > 0 {
		metrics.AvgExecutionTime = stats.totalDuration / time.Duration(stats.executionCount)
		metrics.AvgRowsReturned = float64(stats.totalRows) / float64(stats.executionCount)
	}
	return metrics
}
