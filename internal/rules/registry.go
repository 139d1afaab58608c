package rules

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mohamedkhairy/signal-engine/internal/models"
	"github.com/mohamedkhairy/signal-engine/pkg/logger"
)

// Snapshot is an immutable view of the active rule set. Readers hold a
// snapshot for the duration of a scan; a reload publishes a fresh
// snapshot and never mutates one already handed out.
type Snapshot struct {
	rules      map[string]*models.RuleDefinition
	generation uint64
	createdAt  time.Time
}

// Generation returns the monotonically increasing snapshot generation
func (s *Snapshot) Generation() uint64 {
	return s.generation
}

// Get returns a copy of a rule by ID
func (s *Snapshot) Get(id string) (*models.RuleDefinition, bool) {
	rule, exists := s.rules[id]
	if !exists {
		return nil, false
	}
	return copyRule(rule), true
}

// Enabled returns the enabled, non-archived rules ordered by priority
// descending, then rule ID for determinism.
func (s *Snapshot) Enabled() []*models.RuleDefinition {
	out := make([]*models.RuleDefinition, 0, len(s.rules))
	for _, rule := range s.rules {
		if rule.Enabled && rule.State != models.RuleStateArchived {
			out = append(out, copyRule(rule))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].RuleID < out[j].RuleID
	})
	return out
}

// Count returns the number of rules in the snapshot
func (s *Snapshot) Count() int {
	return len(s.rules)
}

// LoadResult reports the outcome of a bulk load
type LoadResult struct {
	Loaded   int
	Rejected []RejectedRule
}

// RejectedRule pairs a rule ID with the validation failures that kept
// it out of the registry
type RejectedRule struct {
	RuleID string
	Result ValidationResult
}

// Registry owns the active rule set. Reads go through an atomically
// swapped snapshot so concurrent scans never observe a partially
// updated rule list; writers serialize on a mutex.
type Registry struct {
	snapshot atomic.Pointer[Snapshot]
	store    RuleStore // optional durable persistence
	writeMu  sync.Mutex
	genSeq   atomic.Uint64
}

// NewRegistry creates a registry with an empty snapshot.
// The store may be nil for a purely in-memory registry.
func NewRegistry(store RuleStore) *Registry {
	r := &Registry{store: store}
	r.snapshot.Store(&Snapshot{
		rules:     make(map[string]*models.RuleDefinition),
		createdAt: time.Now(),
	})
	return r
}

// Snapshot returns the current immutable snapshot
func (r *Registry) Snapshot() *Snapshot {
	return r.snapshot.Load()
}

// Get returns a copy of a rule from the current snapshot
func (r *Registry) Get(id string) (*models.RuleDefinition, error) {
	rule, exists := r.Snapshot().Get(id)
	if !exists {
		return nil, fmt.Errorf("%w: %s", models.ErrRuleNotFound, id)
	}
	return rule, nil
}

// Load validates the given rules and publishes a new snapshot holding
// the valid ones. Invalid rules are rejected individually; they never
// evict rules already admitted. Duplicate rule IDs within one load are
// rejected after the first occurrence.
func (r *Registry) Load(ruleList []*models.RuleDefinition) *LoadResult {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	result := &LoadResult{}
	next := r.cloneActive()

	seen := make(map[string]bool, len(ruleList))
	for _, rule := range ruleList {
		validation := ValidateRule(rule)
		if rule != nil && seen[rule.RuleID] {
			validation.addError(rule.RuleID, "rule_id", "duplicate rule_id in load batch")
		}
		if !validation.Valid {
			id := ""
			if rule != nil {
				id = rule.RuleID
			}
			result.Rejected = append(result.Rejected, RejectedRule{RuleID: id, Result: validation})
			continue
		}

		if existing, ok := next[rule.RuleID]; ok && existing.State == models.RuleStateArchived {
			validation.addError(rule.RuleID, "state", "rule is archived; load it under a new version")
			result.Rejected = append(result.Rejected, RejectedRule{RuleID: rule.RuleID, Result: validation})
			continue
		}

		admitted := copyRule(rule)
		applyDefaults(admitted)
		admitted.State = models.RuleStateValidated
		if admitted.Enabled {
			admitted.State = models.RuleStateEnabled
		}
		if prev, ok := next[rule.RuleID]; ok {
			admitted.Metadata.Version = bumpPatch(prev.Metadata.Version)
			admitted.Metadata.CreatedAt = prev.Metadata.CreatedAt
		}
		seen[rule.RuleID] = true
		next[rule.RuleID] = admitted
		result.Loaded++

		if r.store != nil {
			if err := r.store.SaveRule(context.Background(), admitted); err != nil {
				logger.Warn("failed to persist rule",
					logger.ErrorField(err),
					logger.String("rule_id", admitted.RuleID),
				)
			}
		}
	}

	r.publish(next)

	logger.Info("rule registry loaded",
		logger.Int("loaded", result.Loaded),
		logger.Int("rejected", len(result.Rejected)),
	)
	return result
}

// Reload re-reads the full rule set from the durable store, validates
// it, and swaps it in as a single new snapshot. In-flight executions
// keep the snapshot they started with.
func (r *Registry) Reload(ctx context.Context) error {
	if r.store == nil {
		return fmt.Errorf("registry has no backing store to reload from")
	}

	ruleList, err := r.store.GetAllRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to read rules from store: %w", err)
	}

	next := make(map[string]*models.RuleDefinition, len(ruleList))
	for _, rule := range ruleList {
		if validation := ValidateRule(rule); !validation.Valid {
			logger.Warn("skipping invalid rule on reload",
				logger.String("rule_id", rule.RuleID),
				logger.Int("errors", len(validation.Errors)),
			)
			continue
		}
		next[rule.RuleID] = copyRule(rule)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.publish(next)

	logger.Info("rule registry reloaded", logger.Int("rules", len(next)))
	return nil
}

// Enable re-enables a disabled rule
func (r *Registry) Enable(id string) error {
	return r.setEnabled(id, true)
}

// Disable removes a rule from the active execution set immediately.
// Historical metrics and signal lineage are untouched.
func (r *Registry) Disable(id string) error {
	return r.setEnabled(id, false)
}

func (r *Registry) setEnabled(id string, enabled bool) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	next := r.cloneActive()
	rule, exists := next[id]
	if !exists {
		return fmt.Errorf("%w: %s", models.ErrRuleNotFound, id)
	}
	if rule.State == models.RuleStateArchived {
		return fmt.Errorf("%w: %s", models.ErrRuleArchived, id)
	}

	rule.Enabled = enabled
	if enabled {
		rule.State = models.RuleStateEnabled
	} else {
		rule.State = models.RuleStateDisabled
	}
	r.publish(next)

	if r.store != nil {
		if err := r.store.SaveRule(context.Background(), rule); err != nil {
			logger.Warn("failed to persist rule state",
				logger.ErrorField(err),
				logger.String("rule_id", id),
			)
		}
	}
	return nil
}

// Archive retires a rule permanently. Archived rules stay in the
// snapshot for lineage but never execute; reactivation requires
// loading a new version under a new rule ID.
func (r *Registry) Archive(id string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	next := r.cloneActive()
	rule, exists := next[id]
	if !exists {
		return fmt.Errorf("%w: %s", models.ErrRuleNotFound, id)
	}
	if rule.State == models.RuleStateArchived {
		return fmt.Errorf("%w: %s", models.ErrRuleArchived, id)
	}

	rule.Enabled = false
	rule.State = models.RuleStateArchived
	r.publish(next)

	if r.store != nil {
		if err := r.store.ArchiveRule(context.Background(), id); err != nil {
			logger.Warn("failed to archive rule in store",
				logger.ErrorField(err),
				logger.String("rule_id", id),
			)
		}
	}
	return nil
}

// cloneActive copies the current snapshot's rule map for modification.
// Caller must hold writeMu.
func (r *Registry) cloneActive() map[string]*models.RuleDefinition {
	current := r.Snapshot()
	next := make(map[string]*models.RuleDefinition, len(current.rules))
	for id, rule := range current.rules {
		next[id] = copyRule(rule)
	}
	return next
}

// publish swaps in a new snapshot. Caller must hold writeMu.
func (r *Registry) publish(ruleMap map[string]*models.RuleDefinition) {
	r.snapshot.Store(&Snapshot{
		rules:      ruleMap,
		generation: r.genSeq.Add(1),
		createdAt:  time.Now(),
	})
}

// bumpPatch increments the patch component of a semantic version,
// falling back to "1.0.0" for malformed input.
func bumpPatch(version string) string {
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return "1.0.0"
	}
	patch, err := strconv.Atoi(parts[2])
	if err != nil {
		return "1.0.0"
	}
	return fmt.Sprintf("%s.%s.%d", parts[0], parts[1], patch+1)
}

// copyRule creates a deep copy of a rule definition
func copyRule(rule *models.RuleDefinition) *models.RuleDefinition {
	if rule == nil {
		return nil
	}

	copied := *rule

	if tw := rule.Conditions.TimeWindow; tw != nil {
		c := *tw
		copied.Conditions.TimeWindow = &c
	}
	if vc := rule.Conditions.Volume; vc != nil {
		c := *vc
		copied.Conditions.Volume = &c
	}
	if pc := rule.Conditions.Price; pc != nil {
		c := *pc
		copied.Conditions.Price = &c
	}
	if tc := rule.Conditions.Technical; tc != nil {
		c := models.TechnicalConditions{Indicators: make([]models.IndicatorRange, len(tc.Indicators))}
		copy(c.Indicators, tc.Indicators)
		copied.Conditions.Technical = &c
	}
	if w := rule.Actions.Weights; w != nil {
		c := *w
		copied.Actions.Weights = &c
	}
	if sp := rule.Actions.Scoring; sp != nil {
		c := *sp
		copied.Actions.Scoring = &c
	}
	if len(rule.Metadata.Tags) > 0 {
		copied.Metadata.Tags = append([]string(nil), rule.Metadata.Tags...)
	}

	return &copied
}
