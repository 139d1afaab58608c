package query

import (
	"fmt"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

// breakoutSource is the precomputed breakout scan view. It exposes the
// eight schema columns plus trade_date, trade_time and lookback_days
// for filtering.
const breakoutSource = "market.breakout_scans"

type breakoutStrategy struct{}

func (s *breakoutStrategy) build(rule *models.RuleDefinition, execCtx *models.ExecutionContext) (*Plan, error) {
	if err := rejectTechnical(rule); err != nil {
		return nil, err
	}

	cols, err := selectList(models.RuleTypeBreakout)
	if err != nil {
		return nil, err
	}

	preds := &predicateSet{}
	applyContext(preds, execCtx)
	if err := applyTimeWindow(preds, rule); err != nil {
		return nil, err
	}
	if err := applyVolume(preds, rule.Conditions.Volume, true, rule.RuleID); err != nil {
		return nil, err
	}
	if err := applyPrice(preds, rule.Conditions.Price, true, rule.RuleID); err != nil {
		return nil, err
	}
	if vc := rule.Conditions.Volume; vc != nil && vc.LookbackDays > 0 {
		preds.add("lookback_days = ?", vc.LookbackDays)
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY symbol, timestamp",
		cols, breakoutSource, preds.where())

	return &Plan{
		RuleID:   rule.RuleID,
		RuleType: models.RuleTypeBreakout,
		SQL:      sql,
		Args:     preds.args,
	}, nil
}
