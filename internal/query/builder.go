package query

import (
	"fmt"
	"strings"

	"github.com/mohamedkhairy/signal-engine/internal/models"
	"github.com/mohamedkhairy/signal-engine/internal/rules"
)

// strategy translates one rule type's condition tree into a plan.
// Dispatch is a closed map keyed by rule type; there is no open-ended
// code execution anywhere in the build path.
type strategy interface {
	build(rule *models.RuleDefinition, execCtx *models.ExecutionContext) (*Plan, error)
}

// Builder turns validated rules plus an execution context into
// parameterized query plans.
type Builder struct {
	strategies map[models.RuleType]strategy
}

// NewBuilder creates a builder with the four built-in strategies
func NewBuilder() *Builder {
	return &Builder{
		strategies: map[models.RuleType]strategy{
			models.RuleTypeBreakout:  &breakoutStrategy{},
			models.RuleTypeCRP:       &crpStrategy{},
			models.RuleTypeTechnical: &technicalStrategy{},
			models.RuleTypeVolume:    &volumeStrategy{},
		},
	}
}

// Build produces a query plan for the rule under the given context.
// The emitted column list is derived from the rule type's declared
// schema, so result arity cannot drift from what the mapper expects.
func (b *Builder) Build(rule *models.RuleDefinition, execCtx *models.ExecutionContext) (*Plan, error) {
	if rule == nil {
		return nil, fmt.Errorf("rule cannot be nil")
	}
	if execCtx == nil {
		return nil, fmt.Errorf("execution context cannot be nil")
	}
	if err := execCtx.Validate(); err != nil {
		return nil, fmt.Errorf("invalid execution context: %w", err)
	}

	strat, exists := b.strategies[rule.Type]
	if !exists {
		return nil, &models.BuildError{
			RuleID:    rule.RuleID,
			Condition: string(rule.Type),
			Reason:    "no builder strategy for rule type",
		}
	}

	return strat.build(rule, execCtx)
}

// selectList renders the declared schema's columns in order
func selectList(ruleType models.RuleType) (string, error) {
	schema, err := models.SchemaFor(ruleType)
	if err != nil {
		return "", err
	}
	return strings.Join(schema.FieldNames(), ", "), nil
}

// applyContext adds the execution context's date/time/symbol bounds as
// bound predicates. Shared by all strategies.
func applyContext(preds *predicateSet, execCtx *models.ExecutionContext) {
	if execCtx.StartDate != nil && execCtx.EndDate != nil {
		preds.add("trade_date BETWEEN ? AND ?",
			execCtx.StartDate.Format("2006-01-02"),
			execCtx.EndDate.Format("2006-01-02"))
	} else {
		preds.add("trade_date = ?", execCtx.ScanDate.Format("2006-01-02"))
	}

	if execCtx.CutoffTime != "" {
		preds.add("trade_time <= ?", execCtx.CutoffTime)
	}
	if execCtx.EndOfDayTime != "" {
		preds.add("trade_time <= ?", execCtx.EndOfDayTime)
	}

	if len(execCtx.Symbols) > 0 {
		args := make([]interface{}, len(execCtx.Symbols))
		for i, s := range execCtx.Symbols {
			args[i] = s
		}
		preds.add(fmt.Sprintf("symbol IN (%s)", placeholders(len(execCtx.Symbols))), args...)
	}
}

// applyTimeWindow binds a rule's intraday window. Window strings were
// validated at load time; a parse failure here means the rule bypassed
// the registry and is a build error.
func applyTimeWindow(preds *predicateSet, rule *models.RuleDefinition) error {
	tw := rule.Conditions.TimeWindow
	if tw == nil {
		return nil
	}
	start, err := rules.ParseClock(tw.Start)
	if err != nil {
		return &models.BuildError{RuleID: rule.RuleID, Condition: "time_window", Reason: err.Error()}
	}
	end, err := rules.ParseClock(tw.End)
	if err != nil {
		return &models.BuildError{RuleID: rule.RuleID, Condition: "time_window", Reason: err.Error()}
	}
	preds.add("trade_time >= ? AND trade_time <= ?", start.String(), end.String())
	return nil
}

// applyVolume binds the volume condition branch
func applyVolume(preds *predicateSet, vc *models.VolumeConditions, withMultiplier bool, ruleID string) error {
	if vc == nil {
		return nil
	}
	if vc.MinVolume > 0 {
		preds.add("volume >= ?", vc.MinVolume)
	}
	if vc.MinVolumeMultiplier > 0 {
		if !withMultiplier {
			return &models.BuildError{
				RuleID:    ruleID,
				Condition: "volume_conditions.min_volume_multiplier",
				Reason:    "source has no trailing-average multiplier column",
			}
		}
		preds.add("volume_multiplier >= ?", vc.MinVolumeMultiplier)
	}
	return nil
}

// applyPrice binds the price condition branch
func applyPrice(preds *predicateSet, pc *models.PriceConditions, withChange bool, ruleID string) error {
	if pc == nil {
		return nil
	}
	if pc.MinPrice > 0 {
		preds.add("price >= ?", pc.MinPrice)
	}
	if pc.MaxPrice > 0 {
		preds.add("price <= ?", pc.MaxPrice)
	}
	if pc.MinChangePct != 0 || pc.MaxChangePct != 0 {
		if !withChange {
			return &models.BuildError{
				RuleID:    ruleID,
				Condition: "price_conditions.change_pct",
				Reason:    "source has no price change column",
			}
		}
		// Rule thresholds are fractions of price; the scan views store
		// the day's move in percent.
		if pc.MinChangePct != 0 {
			preds.add("price_change_pct >= ?", pc.MinChangePct*100)
		}
		if pc.MaxChangePct != 0 {
			preds.add("price_change_pct <= ?", pc.MaxChangePct*100)
		}
	}
	return nil
}

// rejectTechnical fails the build when a strategy without indicator
// columns receives a technical branch. Dropping it silently would make
// the rule fire on rows its author excluded.
func rejectTechnical(rule *models.RuleDefinition) error {
	if rule.Conditions.Technical != nil {
		return &models.BuildError{
			RuleID:    rule.RuleID,
			Condition: "technical_conditions",
			Reason:    fmt.Sprintf("rule type %s does not support indicator predicates", rule.Type),
		}
	}
	return nil
}
