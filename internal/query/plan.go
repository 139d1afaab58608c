package query

import (
	"strings"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

// Plan is a parameterized query ready for execution. Every literal
// from the rule's conditions and the execution context lives in Args;
// the SQL text contains placeholders only. Plans are transient, one
// per invocation, and are discarded after execution.
type Plan struct {
	RuleID   string
	RuleType models.RuleType
	SQL      string
	Args     []interface{}
}

// Mutating reports whether the plan would modify the data source.
// Builders only ever emit SELECT statements; the executor uses this as
// a second line of defense.
func (p *Plan) Mutating() bool {
	trimmed := strings.TrimSpace(strings.ToUpper(p.SQL))
	return !(strings.HasPrefix(trimmed, "SELECT") || strings.HasPrefix(trimmed, "WITH"))
}

// predicateSet accumulates WHERE clauses and their bound arguments in
// lockstep so clause order and argument order can never diverge.
type predicateSet struct {
	clauses []string
	args    []interface{}
}

func (p *predicateSet) add(clause string, args ...interface{}) {
	p.clauses = append(p.clauses, clause)
	p.args = append(p.args, args...)
}

func (p *predicateSet) where() string {
	if len(p.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(p.clauses, " AND ")
}

// placeholders returns a "?, ?, ..." list of n placeholders
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
