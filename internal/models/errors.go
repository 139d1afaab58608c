package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSymbol        = errors.New("invalid symbol")
	ErrInvalidTimestamp     = errors.New("invalid timestamp")
	ErrConfidenceOutOfRange = errors.New("confidence score out of range")
	ErrMissingScanDate      = errors.New("execution context requires a scan date or date range")
	ErrInvalidDateRange     = errors.New("end date before start date")

	ErrRuleNotFound = errors.New("rule not found")
	ErrRuleArchived = errors.New("rule is archived")
	ErrRuleDisabled = errors.New("rule is disabled")

	// Executor sentinels. Timeout and pool exhaustion are surfaced as-is,
	// never retried past the configured bound.
	ErrTimeout       = errors.New("query exceeded timeout budget")
	ErrPoolExhausted = errors.New("connection pool exhausted")
	ErrCircuitOpen   = errors.New("circuit breaker open")
	ErrMutatingPlan  = errors.New("engine is read-only, mutating plan refused")
)

// ValidationError describes one rule validation failure
type ValidationError struct {
	RuleID string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("rule %s: field %s: %s", e.RuleID, e.Field, e.Reason)
	}
	return fmt.Sprintf("rule %s: %s", e.RuleID, e.Reason)
}

// BuildError is raised when a condition cannot be translated into a
// query predicate. A condition the builder does not understand is a
// hard failure, never silently dropped.
type BuildError struct {
	RuleID    string
	Condition string
	Reason    string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("rule %s: cannot build condition %q: %s", e.RuleID, e.Condition, e.Reason)
}

// ErrUnsupportedCondition marks BuildErrors caused by a predicate the
// selected builder strategy does not support.
var ErrUnsupportedCondition = errors.New("unsupported condition")

// Unwrap lets callers match with errors.Is(err, ErrUnsupportedCondition)
func (e *BuildError) Unwrap() error {
	return ErrUnsupportedCondition
}

// ExecutionError wraps a data source failure. Transient marks errors
// eligible for retry (connection resets, pool waits); everything else
// fails the execution immediately.
type ExecutionError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution %s: %v", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// MappingError is raised when a row's column count does not match the
// arity declared for the rule type. Arity drift between the query
// builder and the data source must fail loudly.
type MappingError struct {
	RuleType RuleType
	Expected int
	Got      int
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("rule type %s: expected %d columns, got %d", e.RuleType, e.Expected, e.Got)
}

// CoercionError is a per-row failure converting one column to its
// declared field kind. It fails the row, not the batch.
type CoercionError struct {
	Field string
	Value interface{}
	Err   error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("field %s: cannot coerce %T value: %v", e.Field, e.Value, e.Err)
}

func (e *CoercionError) Unwrap() error {
	return e.Err
}
