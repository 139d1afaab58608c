package query

import (
	"fmt"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

// volumeSource is the unusual-volume scan view with per-symbol
// trailing averages and multipliers.
const volumeSource = "market.volume_scans"

type volumeStrategy struct{}

func (s *volumeStrategy) build(rule *models.RuleDefinition, execCtx *models.ExecutionContext) (*Plan, error) {
	if err := rejectTechnical(rule); err != nil {
		return nil, err
	}

	cols, err := selectList(models.RuleTypeVolume)
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
	if err := applyPrice(preds, rule.Conditions.Price, false, rule.RuleID); err != nil {
		return nil, err
	}
	if vc := rule.Conditions.Volume; vc != nil && vc.LookbackDays > 0 {
		preds.add("lookback_days = ?", vc.LookbackDays)
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY symbol, timestamp",
		cols, volumeSource, preds.where())

	return &Plan{
		RuleID:   rule.RuleID,
		RuleType: models.RuleTypeVolume,
		SQL:      sql,
		Args:     preds.args,
	}, nil
}
