package monitor

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

func TestMonitorAggregation(t *testing.T) {
	m := NewMonitor()

	m.Record(models.ExecutionOutcome{
		RuleID:      "r1",
		Status:      models.ExecutionSucceeded,
		Duration:    100 * time.Millisecond,
		RowCount:    10,
		SignalCount: 3,
	})
	m.Record(models.ExecutionOutcome{
		RuleID:   "r1",
		Status:   models.ExecutionFailed,
		Duration: 300 * time.Millisecond,
		RowCount: 0,
	})

	metrics, err := m.GetPerformance("r1")
	require.NoError(t, err)

	assert.Equal(t, int64(2), metrics.ExecutionCount)
	assert.Equal(t, int64(1), metrics.SuccessCount)
	assert.Equal(t, 200*time.Millisecond, metrics.AvgExecutionTime)
	assert.Equal(t, 5.0, metrics.AvgRowsReturned)
	assert.Equal(t, 0.5, metrics.SuccessRate)
	assert.False(t, metrics.LastExecutedAt.IsZero())
}

func TestMonitorNoHistory(t *testing.T) {
	_, err := NewMonitor().GetPerformance("ghost")
	require.Error(t, err)
}

func TestMonitorTimeoutCountsAsFailure(t *testing.T) {
	m := NewMonitor()
	m.Record(models.ExecutionOutcome{RuleID: "r1", Status: models.ExecutionTimedOut})

	metrics, err := m.GetPerformance("r1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), metrics.ExecutionCount)
	assert.Equal(t, int64(0), metrics.SuccessCount)
	assert.Equal(t, 0.0, metrics.SuccessRate)
}

// The success rate reflects the most recent window, not all history.
func TestMonitorRollingWindow(t *testing.T) {
	m := NewMonitor()

	for i := 0; i < rollingWindowSize; i++ {
		m.Record(models.ExecutionOutcome{RuleID: "r1", Status: models.ExecutionFailed})
	}
	for i := 0; i < rollingWindowSize/2; i++ {
		m.Record(models.ExecutionOutcome{RuleID: "r1", Status: models.ExecutionSucceeded})
	}

	metrics, err := m.GetPerformance("r1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), metrics.ExecutionCount)
	assert.Equal(t, 0.5, metrics.SuccessRate, "window holds the last 100 outcomes")
}

func TestMonitorAll(t *testing.T) {
	m := NewMonitor()
	m.Record(models.ExecutionOutcome{RuleID: "r1", Status: models.ExecutionSucceeded})
	m.Record(models.ExecutionOutcome{RuleID: "r2", Status: models.ExecutionFailed})

	all := m.All()
	assert.Len(t, all, 2)
}

func TestMonitorIgnoresEmptyRuleID(t *testing.T) {
	m := NewMonitor()
	m.Record(models.ExecutionOutcome{Status: models.ExecutionSucceeded})
	assert.Empty(t, m.All())
}

func TestMonitorConcurrentRecord(t *testing.T) {
	m := NewMonitor()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ruleID := fmt.Sprintf("r%d", n%2)
			for j := 0; j < 100; j++ {
				m.Record(models.ExecutionOutcome{RuleID: ruleID, Status: models.ExecutionSucceeded})
				m.GetPerformance(ruleID)
			}
		}(i)
	}
	wg.Wait()

	metrics, err := m.GetPerformance("r0")
	require.NoError(t, err)
	assert.Equal(t, int64(400), metrics.ExecutionCount)
}
