package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohamedkhairy/signal-engine/internal/config"
	"github.com/mohamedkhairy/signal-engine/internal/models"
	"github.com/mohamedkhairy/signal-engine/pkg/logger"
)

const (
	// redisRuleKeyPrefix prefixes per-rule JSON keys
	redisRuleKeyPrefix = "rules:"
	// redisRuleSetKey holds the set of all cached rule IDs
	redisRuleSetKey = "rules:ids"
	// redisGenerationKey is bumped on every write so scanner workers
	// know a reload is due without polling full rule bodies
	redisGenerationKey = "rules:generation"
	// defaultRuleTTL bounds staleness if a worker dies mid-update
	defaultRuleTTL = 1 * time.Hour
)

// RedisRuleStore is a Redis-backed RuleStore used as a shared cache in
// front of the database store. Rules live as JSON under rules:{id};
// rules:generation is incremented on every mutation so workers can
// cheaply detect that a reload is needed.
type RedisRuleStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRuleStore creates a Redis-backed rule store
func NewRedisRuleStore(cfg config.RedisConfig) (*RedisRuleStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("connected to Redis rule cache",
		logger.String("host", cfg.Host),
		logger.Int("port", cfg.Port),
	)

	return &RedisRuleStore{client: rdb, ttl: defaultRuleTTL}, nil
}

// GetRule retrieves a cached rule by ID
func (s *RedisRuleStore) GetRule(ctx context.Context, id string) (*models.RuleDefinition, error) {
	if id == "" {
		return nil, fmt.Errorf("rule ID cannot be empty")
	}

	raw, err := s.client.Get(ctx, redisRuleKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", models.ErrRuleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule from Redis: %w", err)
	}

	var rule models.RuleDefinition
	if err := json.Unmarshal(raw, &rule); err != nil {
		return nil, fmt.Errorf("invalid rule data in Redis for %s: %w", id, err)
	}
	return &rule, nil
}

// GetAllRules retrieves all cached rules
func (s *RedisRuleStore) GetAllRules(ctx context.Context) ([]*models.RuleDefinition, error) {
	ids, err := s.client.SMembers(ctx, redisRuleSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rule IDs: %w", err)
	}

	out := make([]*models.RuleDefinition, 0, len(ids))
	for _, id := range ids {
		rule, err := s.GetRule(ctx, id)
		if err != nil {
			// Expired key still referenced by the set; skip it.
			logger.Warn("skipping unreadable cached rule",
				logger.ErrorField(err),
				logger.String("rule_id", id),
			)
			continue
		}
		out = append(out, rule)
	}
	return out, nil
}

// SaveRule caches a rule and bumps the generation counter
func (s *RedisRuleStore) SaveRule(ctx context.Context, rule *models.RuleDefinition) error {
	if rule == nil {
		return fmt.Errorf("rule cannot be nil")
	}

	raw, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to marshal rule %s: %w", rule.RuleID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, redisRuleKeyPrefix+rule.RuleID, raw, s.ttl)
	pipe.SAdd(ctx, redisRuleSetKey, rule.RuleID)
	pipe.Incr(ctx, redisGenerationKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache rule %s: %w", rule.RuleID, err)
	}
	return nil
}

// ArchiveRule drops a rule from the cache. The durable store keeps the
// archived version history.
func (s *RedisRuleStore) ArchiveRule(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("rule ID cannot be empty")
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, redisRuleKeyPrefix+id)
	pipe.SRem(ctx, redisRuleSetKey, id)
	pipe.Incr(ctx, redisGenerationKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to evict rule %s: %w", id, err)
	}
	return nil
}

// Generation returns the current rule generation counter, 0 when unset
func (s *RedisRuleStore) Generation(ctx context.Context) (int64, error) {
	gen, err := s.client.Get(ctx, redisGenerationKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read rule generation: %w", err)
	}
	return gen, nil
}

// Close closes the Redis connection
func (s *RedisRuleStore) Close() error {
	return s.client.Close()
}
