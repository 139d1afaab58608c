package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

// ValidationResult holds the outcome of validating one rule
type ValidationResult struct {
	Valid  bool
	Errors []*models.ValidationError
}

func (r *ValidationResult) addError(ruleID, field, reason string) {
	r.Valid = false
	r.Errors = append(r.Errors, &models.ValidationError{RuleID: ruleID, Field: field, Reason: reason})
}

// indicatorWhitelist is the set of indicator base names a technical
// condition may reference. Names may carry a numeric period suffix,
// e.g. rsi_14 or ema_20. Referencing anything else fails validation;
// condition trees never reach the query builder as free-form text.
var indicatorWhitelist = map[string]bool{
	"rsi":          true,
	"sma":          true,
	"ema":          true,
	"vwap":         true,
	"macd":         true,
	"atr":          true,
	"adx":          true,
	"volume_ratio": true,
	"price_change": true,
}

// ValidateRule runs the full syntax, semantic and security checks for
// a rule definition. A rule that fails here is never admitted into the
// registry and never executes.
func ValidateRule(rule *models.RuleDefinition) ValidationResult {
	result := ValidationResult{Valid: true}
	if rule == nil {
		result.addError("", "", "rule cannot be nil")
		return result
	}

	// Syntax: required fields and a known rule type.
	if rule.RuleID == "" {
		result.addError(rule.RuleID, "rule_id", "rule_id is required")
	}
	if rule.Name == "" {
		result.addError(rule.RuleID, "name", "name is required")
	}
	if rule.Type == "" {
		result.addError(rule.RuleID, "rule_type", "rule_type is required")
	} else if !models.KnownRuleType(rule.Type) {
		result.addError(rule.RuleID, "rule_type", fmt.Sprintf("unknown rule type %q", rule.Type))
	}
	if !rule.Conditions.HasAny() {
		result.addError(rule.RuleID, "conditions", "rule must declare at least one condition")
	}

	validateConditions(rule, &result)
	validateActions(rule, &result)

	return result
}

func validateConditions(rule *models.RuleDefinition, result *ValidationResult) {
	if tw := rule.Conditions.TimeWindow; tw != nil {
		start, err := ParseClock(tw.Start)
		if err != nil {
			result.addError(rule.RuleID, "time_window.start", err.Error())
		}
		end, err := ParseClock(tw.End)
		if err != nil {
			result.addError(rule.RuleID, "time_window.end", err.Error())
		}
		if err == nil && !start.Before(end) {
			result.addError(rule.RuleID, "time_window", "window start must be before end")
		}
	}

	if vc := rule.Conditions.Volume; vc != nil {
		if vc.MinVolume < 0 {
			result.addError(rule.RuleID, "volume_conditions.min_volume", "must be non-negative")
		}
		if vc.MinVolumeMultiplier < 0 {
			result.addError(rule.RuleID, "volume_conditions.min_volume_multiplier", "must be non-negative")
		}
		if vc.LookbackDays < 0 {
			result.addError(rule.RuleID, "volume_conditions.lookback_days", "must be non-negative")
		}
	}

	if pc := rule.Conditions.Price; pc != nil {
		if pc.MinPrice < 0 || pc.MaxPrice < 0 {
			result.addError(rule.RuleID, "price_conditions", "price bounds must be non-negative")
		}
		if pc.MaxPrice > 0 && pc.MinPrice > pc.MaxPrice {
			result.addError(rule.RuleID, "price_conditions", "min_price exceeds max_price")
		}
		// Change thresholds are fractions, not multipliers.
		if pc.MinChangePct < -1 || pc.MinChangePct > 1 {
			result.addError(rule.RuleID, "price_conditions.min_change_pct", "must be in [-1, 1]")
		}
		if pc.MaxChangePct < -1 || pc.MaxChangePct > 1 {
			result.addError(rule.RuleID, "price_conditions.max_change_pct", "must be in [-1, 1]")
		}
	}

	if tc := rule.Conditions.Technical; tc != nil {
		if len(tc.Indicators) == 0 {
			result.addError(rule.RuleID, "technical_conditions.indicators", "must not be empty")
		}
		for i, ind := range tc.Indicators {
			field := fmt.Sprintf("technical_conditions.indicators[%d]", i)
			if err := ValidateIndicatorName(ind.Name); err != nil {
				result.addError(rule.RuleID, field, err.Error())
			}
			if ind.Min == nil && ind.Max == nil {
				result.addError(rule.RuleID, field, "indicator range must bound at least one side")
			}
			if ind.Min != nil && ind.Max != nil && *ind.Min > *ind.Max {
				result.addError(rule.RuleID, field, "min exceeds max")
			}
		}
	}
}

func validateActions(rule *models.RuleDefinition, result *ValidationResult) {
	switch rule.Actions.SignalType {
	case models.SignalBuy, models.SignalSell, models.SignalHold:
	case "":
		result.addError(rule.RuleID, "actions.signal_type", "signal_type is required")
	default:
		result.addError(rule.RuleID, "actions.signal_type", fmt.Sprintf("unknown signal type %q", rule.Actions.SignalType))
	}

	if rule.Actions.MinConfidence < 0 || rule.Actions.MinConfidence > 100 {
		result.addError(rule.RuleID, "actions.min_confidence", "must be in [0, 100]")
	}

	if w := rule.Actions.Weights; w != nil {
		for _, v := range []float64{w.ClosePosition, w.RangeTightness, w.VolumePattern, w.Momentum} {
			if v < 0 || v > 1 {
				result.addError(rule.RuleID, "actions.weights", "each weight must be in [0, 1]")
				break
			}
		}
		if sum := w.Sum(); sum < 0.999 || sum > 1.001 {
			result.addError(rule.RuleID, "actions.weights", fmt.Sprintf("weights must sum to 1, got %.3f", sum))
		}
	}

	risk := rule.Actions.Risk
	if risk.StopLossPct < 0 || risk.StopLossPct > 1 {
		result.addError(rule.RuleID, "actions.risk_management.stop_loss_pct", "must be in [0, 1]")
	}
	if risk.TargetPct < 0 || risk.TargetPct > 1 {
		result.addError(rule.RuleID, "actions.risk_management.target_pct", "must be in [0, 1]")
	}
	if risk.MaxPositionPct < 0 || risk.MaxPositionPct > 1 {
		result.addError(rule.RuleID, "actions.risk_management.max_position_pct", "must be in [0, 1]")
	}
}

// ValidateIndicatorName checks that an indicator reference is a
// whitelisted base name with an optional numeric period suffix.
func ValidateIndicatorName(name string) error {
	if name == "" {
		return fmt.Errorf("indicator name cannot be empty")
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_') {
			return fmt.Errorf("indicator name %q contains invalid character %q", name, r)
		}
	}

	base := name
	if idx := strings.LastIndex(name, "_"); idx > 0 {
		if _, err := strconv.Atoi(name[idx+1:]); err == nil {
			base = name[:idx]
		}
	}
	if !indicatorWhitelist[base] {
		return fmt.Errorf("indicator %q is not whitelisted", name)
	}
	return nil
}
