package rules

import (
	"context"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

// RuleStore is the durable persistence boundary for rule definitions.
// The registry composes a store for load/reload; execution always goes
// through registry snapshots, never through the store directly.
type RuleStore interface {
	// GetRule retrieves the latest version of a rule by ID
	GetRule(ctx context.Context, id string) (*models.RuleDefinition, error)

	// GetAllRules retrieves the latest version of every non-archived rule
	GetAllRules(ctx context.Context) ([]*models.RuleDefinition, error)

	// SaveRule persists a rule, appending a new version row
	SaveRule(ctx context.Context, rule *models.RuleDefinition) error

	// ArchiveRule soft-deletes a rule. Version history is retained.
	ArchiveRule(ctx context.Context, id string) error

	// Close releases store resources
	Close() error
}
