package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	config "github.com/apia-framework/a2a/server/config"
	"github.com/redis/go-redis/v9"
	zap "go.uber.org/zap"
)

const (
	kbValueKeyPrefix  = "a2a:kb:value:"
	kbMetricKeyPrefix = "a2a:kb:metric:"
)

// RedisKnowledgeBase implements KnowledgeBase backed by Redis, letting several
// agents share one operational store. Values are stored as JSON strings,
// metrics as hash fields per category.
type RedisKnowledgeBase struct {
	client *redis.Client
	logger *zap.Logger
	cfg    config.KnowledgeConfig
}

var _ KnowledgeBase = (*RedisKnowledgeBase)(nil)

// NewRedisKnowledgeBase connects to Redis using the configured URL
func NewRedisKnowledgeBase(ctx context.Context, cfg config.KnowledgeConfig, logger *zap.Logger) (*RedisKnowledgeBase, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	opt.DialTimeout = cfg.Timeout
	opt.ReadTimeout = cfg.Timeout
	opt.WriteTimeout = cfg.Timeout

	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("connected to Redis knowledge base",
		zap.String("addr", opt.Addr),
		zap.Int("db", opt.DB))

	return &RedisKnowledgeBase{
		client: client,
		logger: logger,
		cfg:    cfg,
	}, nil
}

// GetValue retrieves a stored value by key
func (kb *RedisKnowledgeBase) GetValue(ctx context.Context, key string) (any, bool, error) {
	raw, err := kb.client.Get(ctx, kbValueKeyPrefix+key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get value %s: %w", key, err)
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, false, fmt.Errorf("failed to decode value %s: %w", key, err)
	}
	return value, true, nil
}

// SetValue stores a value under the given key
func (kb *RedisKnowledgeBase) SetValue(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value %s: %w", key, err)
	}
	if err := kb.client.Set(ctx, kbValueKeyPrefix+key, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to set value %s: %w", key, err)
	}
	return nil
}

// GetMetric retrieves a metric value by category and name
func (kb *RedisKnowledgeBase) GetMetric(ctx context.Context, category string, name string) (float64, bool, error) {
	value, err := kb.client.HGet(ctx, kbMetricKeyPrefix+category, name).Float64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get metric %s/%s: %w", category, name, err)
	}
	return value, true, nil
}

// UpdateMetric sets a metric value for the given category and name
func (kb *RedisKnowledgeBase) UpdateMetric(ctx context.Context, category string, name string, value float64) error {
	if err := kb.client.HSet(ctx, kbMetricKeyPrefix+category, name, value).Err(); err != nil {
		return fmt.Errorf("failed to update metric %s/%s: %w", category, name, err)
	}
	return nil
}

// IncrementMetric adds delta to a metric, creating it at delta when absent
func (kb *RedisKnowledgeBase) IncrementMetric(ctx context.Context, category string, name string, delta float64) error {
	if err := kb.client.HIncrByFloat(ctx, kbMetricKeyPrefix+category, name, delta).Err(); err != nil {
		return fmt.Errorf("failed to increment metric %s/%s: %w", category, name, err)
	}
	return nil
}

// GetCategory returns a snapshot of every metric in the category
func (kb *RedisKnowledgeBase) GetCategory(ctx context.Context, category string) (map[string]float64, error) {
	fields, err := kb.client.HGetAll(ctx, kbMetricKeyPrefix+category).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get metric category %s: %w", category, err)
	}

	snapshot := make(map[string]float64, len(fields))
	for name, raw := range fields {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			kb.logger.Warn("skipping non-numeric metric field",
				zap.String("category", category),
				zap.String("name", name),
				zap.String("value", raw))
			continue
		}
		snapshot[name] = value
	}
	return snapshot, nil
}

// Close releases the Redis connection
func (kb *RedisKnowledgeBase) Close() error {
	return kb.client.Close()
}
