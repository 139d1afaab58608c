package scoring

import (
	"sort"

	"github.com/google/uuid"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

// Default sub-score weights, fractions summing to 1. Rules may carry
// their own weights; these apply when they do not.
var defaultWeights = models.ScoreWeights{
	ClosePosition:  0.4,
	RangeTightness: 0.3,
	VolumePattern:  0.2,
	Momentum:       0.1,
}

// Default scoring thresholds as percentages of the daily range
const (
	defaultCloseThresholdPct = 2.0
	defaultRangeThresholdPct = 3.0
)

// Scorer turns mapped rows into trading signals with a weighted
// confidence score. Each sub-score is a pure function over the mapped
// fields, clamped to [0,1] before weighting, so the weighted sum is
// always inside [0,100].
type Scorer struct{}

// NewScorer creates a scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score converts one mapped row into a signal. Rows scoring below the
// rule's minimum confidence are dropped, not emitted as weak signals;
// the second return value reports whether a signal was produced.
func (s *Scorer) Score(fields *models.FieldMap, rule *models.RuleDefinition) (*models.TradingSignal, bool) {
	confidence := s.confidence(fields, rule)
	if confidence < rule.Actions.MinConfidence {
		return nil, false
	}

	price := fields.Float("price")
	signal := &models.TradingSignal{
		ID:          uuid.NewString(),
		Symbol:      fields.String("symbol"),
		TriggeredAt: fields.Time("timestamp"),
		Type:        rule.Actions.SignalType,
		Confidence:  confidence,
		EntryPrice:  price,
		RuleID:      rule.RuleID,
		RuleVersion: rule.Metadata.Version,
	}

	risk := rule.Actions.Risk
	switch rule.Actions.SignalType {
	case models.SignalBuy:
		if risk.TargetPct > 0 {
			signal.TargetPrice = price * (1 + risk.TargetPct)
		}
		if risk.StopLossPct > 0 {
			signal.StopLoss = price * (1 - risk.StopLossPct)
		}
	case models.SignalSell:
		if risk.TargetPct > 0 {
			signal.TargetPrice = price * (1 - risk.TargetPct)
		}
		if risk.StopLossPct > 0 {
			signal.StopLoss = price * (1 + risk.StopLossPct)
		}
	}

	return signal, true
}

// ScoreBatch scores every mapped row and returns the surviving signals
// ranked: higher confidence first, then symbol, then trigger time, so
// a scan's output order is deterministic.
func (s *Scorer) ScoreBatch(result []*models.FieldMap, rule *models.RuleDefinition) []*models.TradingSignal {
	signals := make([]*models.TradingSignal, 0, len(result))
	for _, fields := range result {
		if signal, ok := s.Score(fields, rule); ok {
			signals = append(signals, signal)
		}
	}
	Rank(signals)
	return signals
}

// Rank sorts signals by confidence descending, then symbol, then
// trigger timestamp
func Rank(signals []*models.TradingSignal) {
	sort.Slice(signals, func(i, j int) bool {
		if signals[i].Confidence != signals[j].Confidence {
			return signals[i].Confidence > signals[j].Confidence
		}
		if signals[i].Symbol != signals[j].Symbol {
			return signals[i].Symbol < signals[j].Symbol
		}
		return signals[i].TriggeredAt.Before(signals[j].TriggeredAt)
	})
}

// confidence computes the weighted confidence in [0,100]
func (s *Scorer) confidence(fields *models.FieldMap, rule *models.RuleDefinition) float64 {
	weights := defaultWeights
	if rule.Actions.Weights != nil {
		weights = *rule.Actions.Weights
	}

	closeThreshold := defaultCloseThresholdPct
	rangeThreshold := defaultRangeThresholdPct
	if p := rule.Actions.Scoring; p != nil {
		if p.CloseThresholdPct > 0 {
			closeThreshold = p.CloseThresholdPct
		}
		if p.RangeThresholdPct > 0 {
			rangeThreshold = p.RangeThresholdPct
		}
	}

	total := clamp01(closePositionScore(fields, closeThreshold)) * weights.ClosePosition
	total += clamp01(rangeTightnessScore(fields, rangeThreshold)) * weights.RangeTightness
	total += clamp01(volumePatternScore(fields)) * weights.VolumePattern
	total += clamp01(momentumScore(fields)) * weights.Momentum

	confidence := total * 100
	if confidence < 0 {
		return 0
	}
	if confidence > 100 {
		return 100
	}
	return confidence
}

// closePositionScore rewards a close near the top of the range.
// close_position is the close's position in the daily range as a
// fraction, 1 meaning at the high. Closing within the threshold of the
// high earns the full sub-score. Rule types without a close_position
// column fall back to breakout_strength (0-5 scale) or neutral.
func closePositionScore(fields *models.FieldMap, closeThresholdPct float64) float64 {
	if _, ok := fields.Get("close_position"); ok {
		cp := fields.Float("close_position")
		if cp >= 1-closeThresholdPct/100 {
			return 1
		}
		return cp
	}
	if _, ok := fields.Get("breakout_strength"); ok {
		return fields.Float("breakout_strength") / 5
	}
	return 0.5
}

// rangeTightnessScore rewards a daily range tighter than the
// threshold: full sub-score at or under the threshold, decaying
// proportionally beyond it.
func rangeTightnessScore(fields *models.FieldMap, rangeThresholdPct float64) float64 {
	if _, ok := fields.Get("range_pct"); !ok {
		return 0.5
	}
	rp := fields.Float("range_pct")
	if rp <= 0 {
		return 0
	}
	if rp <= rangeThresholdPct {
		return 1
	}
	return rangeThresholdPct / rp
}

// volumePatternScore rewards volume above the trailing average.
// A multiplier of 1 is unremarkable; 3x or more earns the full
// sub-score.
func volumePatternScore(fields *models.FieldMap) float64 {
	var mult float64
	if _, ok := fields.Get("volume_multiplier"); ok {
		mult = fields.Float("volume_multiplier")
	} else if _, ok := fields.Get("volume_ratio"); ok {
		mult = fields.Float("volume_ratio")
	} else {
		return 0.5
	}
	return (mult - 1) / 2
}

// momentumScore rewards intraday price movement, saturating at a 5%
// move
func momentumScore(fields *models.FieldMap) float64 {
	if _, ok := fields.Get("price_change_pct"); !ok {
		return 0.5
	}
	change := fields.Float("price_change_pct")
	if change < 0 {
		change = -change
	}
	return change / 5
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
