package rules

import (
	"testing"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

func validBreakoutRule() *models.RuleDefinition {
	return &models.RuleDefinition{
		RuleID:   "breakout-1",
		Name:     "Morning Breakout",
		Type:     models.RuleTypeBreakout,
		Enabled:  true,
		Priority: 10,
		Conditions: models.ConditionSet{
			TimeWindow: &models.TimeWindow{Start: "09:35", End: "10:30"},
			Volume:     &models.VolumeConditions{MinVolumeMultiplier: 1.5},
		},
		Actions: models.Actions{
			SignalType:       models.SignalBuy,
			ConfidenceMethod: "weighted",
			MinConfidence:    30,
		},
	}
}

func TestValidateRule_Valid(t *testing.T) {
	result := ValidateRule(validBreakoutRule())
	if !result.Valid {
		t.Fatalf("expected valid rule, got errors: %v", result.Errors)
	}
}

func TestValidateRule_MissingRequiredFields(t *testing.T) {
	rule := validBreakoutRule()
	rule.RuleID = ""
	rule.Name = ""

	result := ValidateRule(rule)
	if result.Valid {
		t.Fatal("expected validation failure")
	}
	if len(result.Errors) != 2 {
		t.Errorf("expected 2 errors, got %d: %v", len(result.Errors), result.Errors)
	}
}

func TestValidateRule_UnknownRuleType(t *testing.T) {
	rule := validBreakoutRule()
	rule.Type = "gap_and_go"

	result := ValidateRule(rule)
	if result.Valid {
		t.Fatal("expected validation failure for unknown rule type")
	}
}

func TestValidateRule_NoConditions(t *testing.T) {
	rule := validBreakoutRule()
	rule.Conditions = models.ConditionSet{}

	result := ValidateRule(rule)
	if result.Valid {
		t.Fatal("expected validation failure for empty condition set")
	}
}

func TestValidateRule_TimeWindowOrder(t *testing.T) {
	rule := validBreakoutRule()
	rule.Conditions.TimeWindow = &models.TimeWindow{Start: "10:30", End: "09:35"}

	result := ValidateRule(rule)
	if result.Valid {
		t.Fatal("expected validation failure for inverted time window")
	}
}

func TestValidateRule_ChangePctRange(t *testing.T) {
	rule := validBreakoutRule()
	rule.Conditions.Price = &models.PriceConditions{MinChangePct: 2.5}

	result := ValidateRule(rule)
	if result.Valid {
		t.Fatal("expected validation failure: change pct is a fraction, not a multiplier")
	}
}

func TestValidateRule_IndicatorWhitelist(t *testing.T) {
	min := 30.0
	rule := validBreakoutRule()
	rule.Type = models.RuleTypeTechnical
	rule.Conditions = models.ConditionSet{
		Technical: &models.TechnicalConditions{
			Indicators: []models.IndicatorRange{{Name: "rsi_14", Min: &min}},
		},
	}
	if result := ValidateRule(rule); !result.Valid {
		t.Fatalf("rsi_14 should be whitelisted: %v", result.Errors)
	}

	rule.Conditions.Technical.Indicators[0].Name = "my_secret_indicator"
	if result := ValidateRule(rule); result.Valid {
		t.Fatal("expected validation failure for non-whitelisted indicator")
	}
}

func TestValidateRule_IndicatorNameInjection(t *testing.T) {
	min := 1.0
	rule := validBreakoutRule()
	rule.Type = models.RuleTypeTechnical
	rule.Conditions = models.ConditionSet{
		Technical: &models.TechnicalConditions{
			Indicators: []models.IndicatorRange{{Name: "rsi_14; DROP TABLE rules", Min: &min}},
		},
	}

	result := ValidateRule(rule)
	if result.Valid {
		t.Fatal("expected validation failure for indicator name with SQL characters")
	}
}

func TestValidateRule_WeightsMustSumToOne(t *testing.T) {
	rule := validBreakoutRule()
	rule.Actions.Weights = &models.ScoreWeights{
		ClosePosition:  0.4,
		RangeTightness: 0.3,
		VolumePattern:  0.2,
		Momentum:       0.2,
	}

	result := ValidateRule(rule)
	if result.Valid {
		t.Fatal("expected validation failure for weights summing to 1.1")
	}
}

func TestValidateRule_MinConfidenceBounds(t *testing.T) {
	rule := validBreakoutRule()
	rule.Actions.MinConfidence = 120

	result := ValidateRule(rule)
	if result.Valid {
		t.Fatal("expected validation failure for min_confidence > 100")
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		input   string
		want    Clock
		wantErr bool
	}{
		{"09:35", Clock(9*60 + 35), false},
		{"00:00", Clock(0), false},
		{"23:59", Clock(23*60 + 59), false},
		{"24:00", 0, true},
		{"09:60", 0, true},
		{"nonsense", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseClock(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseClock(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseClock(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestClockString(t *testing.T) {
	c, err := ParseClock("09:35")
	if err != nil {
		t.Fatalf("ParseClock() error = %v", err)
	}
	if c.String() != "09:35:00" {
		t.Errorf("Clock.String() = %q, want %q", c.String(), "09:35:00")
	}
}
