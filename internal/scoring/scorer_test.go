package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

func fieldMap(values map[string]interface{}) *models.FieldMap {
	order := make([]string, 0, len(values))
	for name := range values {
		order = append(order, name)
	}
	return &models.FieldMap{Order: order, Values: values}
}

func breakoutFields() *models.FieldMap {
	return fieldMap(map[string]interface{}{
		"symbol":            "AAPL",
		"timestamp":         time.Date(2025, 9, 8, 9, 50, 0, 0, time.UTC),
		"price":             150.25,
		"volume":            int64(2500000),
		"price_change_pct":  2.5,
		"volume_multiplier": 2.1,
		"breakout_strength": 3.2,
		"pattern_type":      "breakout",
	})
}

func buyRule() *models.RuleDefinition {
	return &models.RuleDefinition{
		RuleID: "bo-1",
		Type:   models.RuleTypeBreakout,
		Actions: models.Actions{
			SignalType:       models.SignalBuy,
			ConfidenceMethod: "weighted",
		},
		Metadata: models.Metadata{Version: "1.0.0"},
	}
}

func TestScoreBreakoutRow(t *testing.T) {
	signal, ok := NewScorer().Score(breakoutFields(), buyRule())
	require.True(t, ok)

	assert.Equal(t, "AAPL", signal.Symbol)
	assert.Equal(t, models.SignalBuy, signal.Type)
	assert.Equal(t, "bo-1", signal.RuleID)
	assert.Equal(t, "1.0.0", signal.RuleVersion)
	assert.Equal(t, 150.25, signal.EntryPrice)
	assert.NotEmpty(t, signal.ID)
	require.NoError(t, signal.Validate())

	// strength 3.2/5 * 0.4, neutral range 0.5 * 0.3,
	// (2.1-1)/2 * 0.2, 2.5/5 * 0.1
	assert.InDelta(t, 56.6, signal.Confidence, 0.001)
}

// A tight range at or under the threshold earns the full range
// sub-score weight.
func TestScoreCRPRow(t *testing.T) {
	fields := fieldMap(map[string]interface{}{
		"symbol":         "MSFT",
		"timestamp":      time.Date(2025, 9, 8, 15, 30, 0, 0, time.UTC),
		"price":          410.10,
		"volume":         int64(1200000),
		"close_position": 0.95,
		"range_pct":      1.2,
		"volume_ratio":   1.8,
	})

	signal, ok := NewScorer().Score(fields, buyRule())
	require.True(t, ok)

	// 0.95*0.4 + 1.0*0.3 + 0.4*0.2 + 0.5*0.1
	assert.InDelta(t, 81.0, signal.Confidence, 0.001)
}

func TestScoreConfidenceBounds(t *testing.T) {
	scorer := NewScorer()
	rows := []*models.FieldMap{
		breakoutFields(),
		fieldMap(map[string]interface{}{
			"symbol": "X", "timestamp": time.Now(), "price": 1.0,
			"volume": int64(1), "price_change_pct": 99.0,
			"volume_multiplier": 50.0, "breakout_strength": 100.0,
			"pattern_type": "spike",
		}),
		fieldMap(map[string]interface{}{
			"symbol": "Y", "timestamp": time.Now(), "price": 1.0,
			"volume": int64(1), "price_change_pct": -10.0,
			"volume_multiplier": 0.1, "breakout_strength": -3.0,
			"pattern_type": "fade",
		}),
	}

	for _, fields := range rows {
		signal, ok := scorer.Score(fields, buyRule())
		require.True(t, ok)
		assert.GreaterOrEqual(t, signal.Confidence, 0.0)
		assert.LessOrEqual(t, signal.Confidence, 100.0)
	}
}

func TestScoreMinConfidenceDrop(t *testing.T) {
	rule := buyRule()
	rule.Actions.MinConfidence = 90

	signal, ok := NewScorer().Score(breakoutFields(), rule)
	assert.False(t, ok)
	assert.Nil(t, signal)
}

func TestScoreCustomWeights(t *testing.T) {
	rule := buyRule()
	rule.Actions.Weights = &models.ScoreWeights{Momentum: 1}

	signal, ok := NewScorer().Score(breakoutFields(), rule)
	require.True(t, ok)
	// 2.5/5 on full momentum weight
	assert.InDelta(t, 50.0, signal.Confidence, 0.001)
}

func TestScoreCustomThresholds(t *testing.T) {
	fields := fieldMap(map[string]interface{}{
		"symbol": "MSFT", "timestamp": time.Now(), "price": 410.10,
		"volume": int64(1200000), "close_position": 0.95,
		"range_pct": 1.2, "volume_ratio": 1.8,
	})

	rule := buyRule()
	// Widen the close threshold so 0.95 counts as closing at the high.
	rule.Actions.Scoring = &models.ScoringParams{CloseThresholdPct: 6}

	signal, ok := NewScorer().Score(fields, rule)
	require.True(t, ok)
	// 1.0*0.4 + 1.0*0.3 + 0.4*0.2 + 0.5*0.1
	assert.InDelta(t, 83.0, signal.Confidence, 0.001)
}

func TestScoreRiskLevels(t *testing.T) {
	rule := buyRule()
	rule.Actions.Risk = models.RiskParams{TargetPct: 0.1, StopLossPct: 0.05}

	signal, ok := NewScorer().Score(breakoutFields(), rule)
	require.True(t, ok)
	assert.InDelta(t, 150.25*1.1, signal.TargetPrice, 0.001)
	assert.InDelta(t, 150.25*0.95, signal.StopLoss, 0.001)

	rule.Actions.SignalType = models.SignalSell
	signal, ok = NewScorer().Score(breakoutFields(), rule)
	require.True(t, ok)
	assert.InDelta(t, 150.25*0.9, signal.TargetPrice, 0.001)
	assert.InDelta(t, 150.25*1.05, signal.StopLoss, 0.001)
}

func TestRankDeterministic(t *testing.T) {
	at := time.Date(2025, 9, 8, 10, 0, 0, 0, time.UTC)
	signals := []*models.TradingSignal{
		{Symbol: "MSFT", Confidence: 70, TriggeredAt: at},
		{Symbol: "AAPL", Confidence: 70, TriggeredAt: at.Add(time.Minute)},
		{Symbol: "AAPL", Confidence: 70, TriggeredAt: at},
		{Symbol: "ZZZZ", Confidence: 90, TriggeredAt: at},
	}

	Rank(signals)

	assert.Equal(t, "ZZZZ", signals[0].Symbol)
	assert.Equal(t, "AAPL", signals[1].Symbol)
	assert.Equal(t, at, signals[1].TriggeredAt)
	assert.Equal(t, "AAPL", signals[2].Symbol)
	assert.Equal(t, at.Add(time.Minute), signals[2].TriggeredAt)
	assert.Equal(t, "MSFT", signals[3].Symbol)
}

func TestScoreBatchRanksOutput(t *testing.T) {
	strong := breakoutFields()
	weak := breakoutFields()
	weak.Values["breakout_strength"] = 0.5
	weak.Values["symbol"] = "MSFT"

	signals := NewScorer().ScoreBatch([]*models.FieldMap{weak, strong}, buyRule())
	require.Len(t, signals, 2)
	assert.Equal(t, "AAPL", signals[0].Symbol)
	assert.Greater(t, signals[0].Confidence, signals[1].Confidence)
}
