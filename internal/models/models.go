package models

import (
	"time"
)

// RuleType categorizes a rule and fixes the shape of its query results.
// The set is closed at runtime but extensible via RegisterSchema.
type RuleType string

const (
	RuleTypeBreakout  RuleType = "breakout"
	RuleTypeCRP       RuleType = "crp"
	RuleTypeTechnical RuleType = "technical"
	RuleTypeVolume    RuleType = "volume"
)

// RuleState tracks a rule through its lifecycle.
// Archived is terminal; a retired rule comes back only as a new version.
type RuleState string

const (
	RuleStateDraft     RuleState = "draft"
	RuleStateValidated RuleState = "validated"
	RuleStateEnabled   RuleState = "enabled"
	RuleStateDisabled  RuleState = "disabled"
	RuleStateArchived  RuleState = "archived"
)

// SignalType is the trading action a signal recommends
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// RuleDefinition is a declarative trading rule.
// Treated as immutable once admitted into the registry; updates go
// through the registry and produce a new version.
type RuleDefinition struct {
	RuleID     string       `json:"rule_id"`
	Name       string       `json:"name"`
	Type       RuleType     `json:"rule_type"`
	Enabled    bool         `json:"enabled"`
	Priority   int          `json:"priority"`
	State      RuleState    `json:"state,omitempty"`
	Conditions ConditionSet `json:"conditions"`
	Actions    Actions      `json:"actions"`
	Metadata   Metadata     `json:"metadata"`
}

// ConditionSet is the nested predicate tree of a rule. Each branch is
// optional; a nil branch contributes no predicates to the query.
type ConditionSet struct {
	TimeWindow *TimeWindow          `json:"time_window,omitempty"`
	Volume     *VolumeConditions    `json:"volume_conditions,omitempty"`
	Price      *PriceConditions     `json:"price_conditions,omitempty"`
	Technical  *TechnicalConditions `json:"technical_conditions,omitempty"`
}

// HasAny reports whether any condition branch is present
func (c ConditionSet) HasAny() bool {
	return c.TimeWindow != nil || c.Volume != nil || c.Price != nil || c.Technical != nil
}

// TimeWindow restricts matches to an intraday window, "HH:MM" strings
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// VolumeConditions describes volume predicates
type VolumeConditions struct {
	MinVolume           int64   `json:"min_volume,omitempty"`
	MinVolumeMultiplier float64 `json:"min_volume_multiplier,omitempty"`
	LookbackDays        int     `json:"lookback_days,omitempty"`
}

// PriceConditions describes price level and move predicates.
// Percentages are fractions in [0,1] unless the field name says pct.
type PriceConditions struct {
	MinPrice     float64 `json:"min_price,omitempty"`
	MaxPrice     float64 `json:"max_price,omitempty"`
	MinChangePct float64 `json:"min_change_pct,omitempty"`
	MaxChangePct float64 `json:"max_change_pct,omitempty"`
}

// IndicatorRange bounds a named technical indicator.
// Nil Min or Max leaves that side open.
type IndicatorRange struct {
	Name string   `json:"name"`
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
}

// TechnicalConditions describes indicator predicates
type TechnicalConditions struct {
	Indicators []IndicatorRange `json:"indicators"`
}

// Actions describes what a matching row turns into
type Actions struct {
	SignalType       SignalType     `json:"signal_type"`
	ConfidenceMethod string         `json:"confidence_calculation"`
	MinConfidence    float64        `json:"min_confidence"`
	Weights          *ScoreWeights  `json:"weights,omitempty"`
	Scoring          *ScoringParams `json:"scoring,omitempty"`
	Risk             RiskParams     `json:"risk_management"`
}

// ScoringParams tune the confidence sub-scores. Thresholds are
// percentages of the daily range. Nil means the defaults apply.
type ScoringParams struct {
	CloseThresholdPct float64 `json:"close_threshold_pct,omitempty"`
	RangeThresholdPct float64 `json:"range_threshold_pct,omitempty"`
}

// ScoreWeights are the confidence sub-score weights as fractions
// summing to 1. Nil on a rule means the per-type defaults apply.
type ScoreWeights struct {
	ClosePosition  float64 `json:"close_position"`
	RangeTightness float64 `json:"range_tightness"`
	VolumePattern  float64 `json:"volume_pattern"`
	Momentum       float64 `json:"momentum"`
}

// Sum returns the total of all weights
func (w ScoreWeights) Sum() float64 {
	return w.ClosePosition + w.RangeTightness + w.VolumePattern + w.Momentum
}

// RiskParams holds risk management parameters, fractions of entry price
type RiskParams struct {
	StopLossPct    float64 `json:"stop_loss_pct,omitempty"`
	TargetPct      float64 `json:"target_pct,omitempty"`
	MaxPositionPct float64 `json:"max_position_pct,omitempty"`
}

// Metadata carries rule provenance
type Metadata struct {
	Author    string    `json:"author,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Version   string    `json:"version,omitempty"`
}

// ExecutionContext is the date/time/symbol scope for one rule
// invocation. Constructed per call and never mutated afterwards.
type ExecutionContext struct {
	ScanDate     time.Time  `json:"scan_date"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	CutoffTime   string     `json:"cutoff_time,omitempty"`
	EndOfDayTime string     `json:"end_of_day_time,omitempty"`
	Symbols      []string   `json:"symbols,omitempty"`
}

// Validate validates an ExecutionContext
func (c *ExecutionContext) Validate() error {
	if c.ScanDate.IsZero() && c.StartDate == nil {
		return ErrMissingScanDate
	}
	if c.StartDate != nil && c.EndDate != nil && c.EndDate.Before(*c.StartDate) {
		return ErrInvalidDateRange
	}
	return nil
}

// RawRow is one positional result row from the data source. The store
// does not expose column names for generated queries, so order is the
// only contract.
type RawRow []interface{}

// FieldMap is a decoded row: declared field name to coerced value,
// with Order preserving the schema's field order.
type FieldMap struct {
	Order  []string
	Values map[string]interface{}
}

// Get returns a field value
func (f *FieldMap) Get(name string) (interface{}, bool) {
	v, ok := f.Values[name]
	return v, ok
}

// Float returns a field as float64, 0 if absent or not numeric
func (f *FieldMap) Float(name string) float64 {
	switch v := f.Values[name].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// String returns a field as string, "" if absent
func (f *FieldMap) String(name string) string {
	if v, ok := f.Values[name].(string); ok {
		return v
	}
	return ""
}

// Time returns a field as time.Time, zero if absent
func (f *FieldMap) Time(name string) time.Time {
	if v, ok := f.Values[name].(time.Time); ok {
		return v
	}
	return time.Time{}
}

// TradingSignal is the immutable output of the signal scorer
type TradingSignal struct {
	ID          string     `json:"id"`
	Symbol      string     `json:"symbol"`
	TriggeredAt time.Time  `json:"trigger_timestamp"`
	Type        SignalType `json:"signal_type"`
	Confidence  float64    `json:"confidence_score"`
	EntryPrice  float64    `json:"entry_price,omitempty"`
	TargetPrice float64    `json:"target_price,omitempty"`
	StopLoss    float64    `json:"stop_loss,omitempty"`
	RuleID      string     `json:"source_rule_id"`
	RuleVersion string     `json:"rule_version"`
}

// Validate validates a TradingSignal
func (s *TradingSignal) Validate() error {
	if s.Symbol == "" {
		return ErrInvalidSymbol
	}
	if s.TriggeredAt.IsZero() {
		return ErrInvalidTimestamp
	}
	if s.Confidence < 0 || s.Confidence > 100 {
		return ErrConfidenceOutOfRange
	}
	return nil
}

// ExecutionStatus tracks one rule invocation.
// Terminal states are final per invocation.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionSucceeded ExecutionStatus = "succeeded"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionTimedOut  ExecutionStatus = "timed_out"
)

// ExecutionOutcome is what the performance monitor records per invocation
type ExecutionOutcome struct {
	RuleID      string
	Status      ExecutionStatus
	Duration    time.Duration
	RowCount    int
	SignalCount int
	Error       string
}

// PerformanceMetrics is the aggregated execution record for one rule.
// Append/aggregate only, owned by the performance monitor.
type PerformanceMetrics struct {
	RuleID           string        `json:"rule_id"`
	ExecutionCount   int64         `json:"execution_count"`
	SuccessCount     int64         `json:"success_count"`
	AvgExecutionTime time.Duration `json:"avg_execution_time"`
	AvgRowsReturned  float64       `json:"avg_rows_returned"`
	SuccessRate      float64       `json:"success_rate"`
	LastExecutedAt   time.Time     `json:"last_executed_at,omitempty"`
}
