package query

import (
	"fmt"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

// technicalSource is the indicator snapshot view, one row per
// (symbol, timestamp, indicator).
const technicalSource = "market.indicator_scans"

type technicalStrategy struct{}

func (s *technicalStrategy) build(rule *models.RuleDefinition, execCtx *models.ExecutionContext) (*Plan, error) {
	cols, err := selectList(models.RuleTypeTechnical)
	if err != nil {
		return nil, err
	}

	preds := &predicateSet{}
	applyContext(preds, execCtx)
	if err := applyTimeWindow(preds, rule); err != nil {
		return nil, err
	}
	// The indicator view has raw volume but no multiplier column.
	if err := applyVolume(preds, rule.Conditions.Volume, false, rule.RuleID); err != nil {
		return nil, err
	}
	if err := applyPrice(preds, rule.Conditions.Price, false, rule.RuleID); err != nil {
		return nil, err
	}

	if tc := rule.Conditions.Technical; tc != nil {
		for _, ind := range tc.Indicators {
			switch {
			case ind.Min != nil && ind.Max != nil:
				preds.add("(indicator_name = ? AND indicator_value >= ? AND indicator_value <= ?)",
					ind.Name, *ind.Min, *ind.Max)
			case ind.Min != nil:
				preds.add("(indicator_name = ? AND indicator_value >= ?)", ind.Name, *ind.Min)
			case ind.Max != nil:
				preds.add("(indicator_name = ? AND indicator_value <= ?)", ind.Name, *ind.Max)
			default:
				return nil, &models.BuildError{
					RuleID:    rule.RuleID,
					Condition: fmt.Sprintf("technical_conditions.indicators[%s]", ind.Name),
					Reason:    "indicator range bounds neither side",
				}
			}
		}
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY symbol, timestamp",
		cols, technicalSource, preds.where())

	return &Plan{
		RuleID:   rule.RuleID,
		RuleType: models.RuleTypeTechnical,
		SQL:      sql,
		Args:     preds.args,
	}, nil
}
