package models

import (
	"fmt"
	"sync"
)

// FieldKind is the declared type of a result column, used by the
// result mapper for coercion.
type FieldKind int

const (
	FieldString FieldKind = iota
	FieldFloat
	FieldInt
	FieldTime
)

// FieldSpec declares one named, typed result column
type FieldSpec struct {
	Name string
	Kind FieldKind
}

// ResultSchema is the fixed, ordered column layout a rule type's
// queries must produce. The data source does not return column names
// for generated queries, so positional order against this schema is
// the decoding contract. Query builder output and this declaration
// must never drift apart.
type ResultSchema struct {
	Type   RuleType
	Fields []FieldSpec
}

// Arity returns the declared column count
func (s ResultSchema) Arity() int {
	return len(s.Fields)
}

// FieldNames returns the declared names in column order
func (s ResultSchema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

var (
	schemaMu sync.RWMutex
	schemas  = map[RuleType]ResultSchema{
		RuleTypeBreakout: {
			Type: RuleTypeBreakout,
			Fields: []FieldSpec{
				{Name: "symbol", Kind: FieldString},
				{Name: "timestamp", Kind: FieldTime},
				{Name: "price", Kind: FieldFloat},
				{Name: "volume", Kind: FieldInt},
				{Name: "price_change_pct", Kind: FieldFloat},
				{Name: "volume_multiplier", Kind: FieldFloat},
				{Name: "breakout_strength", Kind: FieldFloat},
				{Name: "pattern_type", Kind: FieldString},
			},
		},
		RuleTypeCRP: {
			Type: RuleTypeCRP,
			Fields: []FieldSpec{
				{Name: "symbol", Kind: FieldString},
				{Name: "timestamp", Kind: FieldTime},
				{Name: "price", Kind: FieldFloat},
				{Name: "volume", Kind: FieldInt},
				{Name: "close_position", Kind: FieldFloat},
				{Name: "range_pct", Kind: FieldFloat},
				{Name: "volume_ratio", Kind: FieldFloat},
			},
		},
		RuleTypeTechnical: {
			Type: RuleTypeTechnical,
			Fields: []FieldSpec{
				{Name: "symbol", Kind: FieldString},
				{Name: "timestamp", Kind: FieldTime},
				{Name: "price", Kind: FieldFloat},
				{Name: "volume", Kind: FieldInt},
				{Name: "indicator_name", Kind: FieldString},
				{Name: "indicator_value", Kind: FieldFloat},
			},
		},
		RuleTypeVolume: {
			Type: RuleTypeVolume,
			Fields: []FieldSpec{
				{Name: "symbol", Kind: FieldString},
				{Name: "timestamp", Kind: FieldTime},
				{Name: "price", Kind: FieldFloat},
				{Name: "volume", Kind: FieldInt},
				{Name: "avg_volume", Kind: FieldFloat},
				{Name: "volume_multiplier", Kind: FieldFloat},
			},
		},
	}
)

// SchemaFor returns the declared result schema for a rule type
func SchemaFor(ruleType RuleType) (ResultSchema, error) {
	schemaMu.RLock()
	defer schemaMu.RUnlock()

	schema, exists := schemas[ruleType]
	if !exists {
		return ResultSchema{}, fmt.Errorf("no schema registered for rule type %q", ruleType)
	}
	return schema, nil
}

// KnownRuleType reports whether a rule type has a registered schema
func KnownRuleType(ruleType RuleType) bool {
	schemaMu.RLock()
	defer schemaMu.RUnlock()

	_, exists := schemas[ruleType]
	return exists
}

// RegisterSchema registers a result schema for a new rule type.
// Re-registering an existing type is rejected; the type-to-arity
// coupling is load-bearing and must not change under running rules.
func RegisterSchema(schema ResultSchema) error {
	if schema.Type == "" {
		return fmt.Errorf("schema rule type cannot be empty")
	}
	if len(schema.Fields) == 0 {
		return fmt.Errorf("schema for %q must declare at least one field", schema.Type)
	}
	for i, f := range schema.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema for %q: field %d has no name", schema.Type, i)
		}
	}

	schemaMu.Lock()
	defer schemaMu.Unlock()

	if _, exists := schemas[schema.Type]; exists {
		return fmt.Errorf("schema already registered for rule type %q", schema.Type)
	}
	schemas[schema.Type] = schema
	return nil
}
