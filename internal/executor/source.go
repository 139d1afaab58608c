package executor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2" // ClickHouse driver
	"github.com/mohamedkhairy/signal-engine/internal/config"
	"github.com/mohamedkhairy/signal-engine/internal/models"
	"github.com/mohamedkhairy/signal-engine/pkg/logger"
)

// Source is the collaborator contract with the market-data store:
// run a parameterized query with bound arguments, get back ordered
// value tuples. No column metadata is assumed.
type Source interface {
	Query(ctx context.Context, sqlText string, args ...interface{}) ([]models.RawRow, error)
	Close() error
}

// ClickHouseSource is the production Source backed by a read-only
// ClickHouse connection pool.
type ClickHouseSource struct {
	db *sql.DB
}

// NewClickHouseSource opens a bounded connection pool against the
// market-data store. Pool size is fixed at construction; resizing
// means rebuilding the source.
func NewClickHouseSource(cfg config.MarketDataDBConfig) (*ClickHouseSource, error) {
	dsn := fmt.Sprintf(
		"clickhouse://%s:%s@%s:%d/%s?dial_timeout=%s&read_timeout=%s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
		cfg.DialTimeout,
		cfg.ReadTimeout,
	)

	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	logger.Info("connected to market data store",
		logger.String("host", cfg.Host),
		logger.Int("port", cfg.Port),
		logger.String("database", cfg.Database),
		logger.Int("max_connections", cfg.MaxConnections),
	)

	return &ClickHouseSource{db: db}, nil
}

// Query runs a parameterized query and returns rows as positional
// value tuples. Column names from the driver are used only to size the
// scan targets, never for field naming; that contract belongs to the
// rule type's declared schema.
func (s *ClickHouseSource) Query(ctx context.Context, sqlText string, args ...interface{}) ([]models.RawRow, error) {
	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	out := make([]models.RawRow, 0, 64)
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, models.RawRow(values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return out, nil
}

// Close closes the connection pool
func (s *ClickHouseSource) Close() error {
	return s.db.Close()
}
