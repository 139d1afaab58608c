package rules

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

// ParseRule parses a JSON rule definition and validates it
func ParseRule(data []byte) (*models.RuleDefinition, error) {
	var rule models.RuleDefinition

	if err := json.Unmarshal(data, &rule); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rule: %w", err)
	}

	applyDefaults(&rule)

	if result := ValidateRule(&rule); !result.Valid {
		return nil, fmt.Errorf("invalid rule: %v", result.Errors[0])
	}

	return &rule, nil
}

// ParseRuleFromReader parses a single rule from an io.Reader
func ParseRuleFromReader(reader io.Reader) (*models.RuleDefinition, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule data: %w", err)
	}
	return ParseRule(data)
}

// ParseRules parses a JSON array of rule definitions
func ParseRules(data []byte) ([]*models.RuleDefinition, error) {
	var ruleList []*models.RuleDefinition

	if err := json.Unmarshal(data, &ruleList); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rules: %w", err)
	}

	for i, rule := range ruleList {
		applyDefaults(rule)
		if result := ValidateRule(rule); !result.Valid {
			return nil, fmt.Errorf("invalid rule at index %d: %v", i, result.Errors[0])
		}
	}

	return ruleList, nil
}

func applyDefaults(rule *models.RuleDefinition) {
	if rule.Metadata.CreatedAt.IsZero() {
		rule.Metadata.CreatedAt = time.Now()
	}
	if rule.Metadata.Version == "" {
		rule.Metadata.Version = "1.0.0"
	}
	if rule.State == "" {
		rule.State = models.RuleStateDraft
	}
}
