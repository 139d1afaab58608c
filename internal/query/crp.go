package query

import (
	"fmt"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

// crpSource is the close-range-pattern scan view: where each symbol
// closed within its daily range, how tight that range was, and the
// accompanying volume ratio.
const crpSource = "market.crp_scans"

type crpStrategy struct{}

func (s *crpStrategy) build(rule *models.RuleDefinition, execCtx *models.ExecutionContext) (*Plan, error) {
	if err := rejectTechnical(rule); err != nil {
		return nil, err
	}

	cols, err := selectList(models.RuleTypeCRP)
	if err != nil {
		return nil, err
	}

	preds := &predicateSet{}
	applyContext(preds, execCtx)
	if err := applyTimeWindow(preds, rule); err != nil {
		return nil, err
	}
	// The CRP view carries volume_ratio rather than a trailing-average
	// multiplier column.
	if vc := rule.Conditions.Volume; vc != nil {
		if vc.MinVolume > 0 {
			preds.add("volume >= ?", vc.MinVolume)
		}
		if vc.MinVolumeMultiplier > 0 {
			preds.add("volume_ratio >= ?", vc.MinVolumeMultiplier)
		}
	}
	if err := applyPrice(preds, rule.Conditions.Price, false, rule.RuleID); err != nil {
		return nil, err
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY symbol, timestamp",
		cols, crpSource, preds.where())

	return &Plan{
		RuleID:   rule.RuleID,
		RuleType: models.RuleTypeCRP,
		SQL:      sql,
		Args:     preds.args,
	}, nil
}
