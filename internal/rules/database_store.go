package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/mohamedkhairy/signal-engine/internal/config"
	"github.com/mohamedkhairy/signal-engine/internal/models"
	"github.com/mohamedkhairy/signal-engine/pkg/logger"
)

// DatabaseRuleStore is a Postgres-backed RuleStore. Each save appends
// a version row; the latest non-archived version of each rule is the
// active one. Rules are never hard-deleted.
type DatabaseRuleStore struct {
	db       *sql.DB
	dbConfig config.RulesDBConfig
}

// NewDatabaseRuleStore creates a new database-backed rule store
func NewDatabaseRuleStore(dbConfig config.RulesDBConfig) (*DatabaseRuleStore, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Database,
		dbConfig.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(dbConfig.MaxConnections)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("rule database store initialized",
		logger.String("host", dbConfig.Host),
		logger.Int("port", dbConfig.Port),
		logger.String("database", dbConfig.Database),
	)

	return &DatabaseRuleStore{db: db, dbConfig: dbConfig}, nil
}

// GetRule retrieves the latest version of a rule by ID
func (s *DatabaseRuleStore) GetRule(ctx context.Context, id string) (*models.RuleDefinition, error) {
	if id == "" {
		return nil, fmt.Errorf("rule ID cannot be empty")
	}

	query := `
		SELECT definition
		FROM rule_versions
		WHERE rule_id = $1 AND NOT archived
		ORDER BY version_seq DESC
		LIMIT 1
	`

	var raw []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", models.ErrRuleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query rule: %w", err)
	}

	var rule models.RuleDefinition
	if err := json.Unmarshal(raw, &rule); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rule %s: %w", id, err)
	}
	return &rule, nil
}

// GetAllRules retrieves the latest version of every non-archived rule
func (s *DatabaseRuleStore) GetAllRules(ctx context.Context) ([]*models.RuleDefinition, error) {
	query := `
		SELECT DISTINCT ON (rule_id) definition
		FROM rule_versions
		WHERE NOT archived
		ORDER BY rule_id, version_seq DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var out []*models.RuleDefinition
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		var rule models.RuleDefinition
		if err := json.Unmarshal(raw, &rule); err != nil {
			logger.Warn("skipping undecodable rule row", logger.ErrorField(err))
			continue
		}
		out = append(out, &rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule rows: %w", err)
	}

	return out, nil
}

// SaveRule persists a rule, appending a new version row
func (s *DatabaseRuleStore) SaveRule(ctx context.Context, rule *models.RuleDefinition) error {
	if rule == nil {
		return fmt.Errorf("rule cannot be nil")
	}

	raw, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to marshal rule %s: %w", rule.RuleID, err)
	}

	query := `
		INSERT INTO rule_versions (rule_id, version, definition, archived, created_at)
		VALUES ($1, $2, $3, false, $4)
	`
	if _, err := s.db.ExecContext(ctx, query, rule.RuleID, rule.Metadata.Version, raw, time.Now()); err != nil {
		return fmt.Errorf("failed to insert rule version: %w", err)
	}

	return nil
}

// ArchiveRule marks every version of a rule as archived.
// History stays queryable for lineage.
func (s *DatabaseRuleStore) ArchiveRule(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("rule ID cannot be empty")
	}

	result, err := s.db.ExecContext(ctx, `UPDATE rule_versions SET archived = true WHERE rule_id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to archive rule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("%w: %s", models.ErrRuleNotFound, id)
	}
	return nil
}

// Close closes the database connection
func (s *DatabaseRuleStore) Close() error {
	return s.db.Close()
}
