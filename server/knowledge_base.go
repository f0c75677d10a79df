package server

import (
	"context"
	"fmt"
	"sync"

	config "github.com/apia-framework/a2a/server/config"
	zap "go.uber.org/zap"
)

// KnowledgeBase is the shared key/value and metrics collaborator the task
// manager and handlers write operational state into. Metrics are addressed by
// category and name, values are free-form.
type KnowledgeBase interface {
	// GetValue retrieves a stored value by key
	GetValue(ctx context.Context, key string) (any, bool, error)

	// SetValue stores a value under the given key
	SetValue(ctx context.Context, key string, value any) error

	// GetMetric retrieves a metric value by category and name
	GetMetric(ctx context.Context, category string, name string) (float64, bool, error)

	// UpdateMetric sets a metric value for the given category and name
	UpdateMetric(ctx context.Context, category string, name string, value float64) error

	// IncrementMetric adds delta to a metric, creating it at delta when absent
	IncrementMetric(ctx context.Context, category string, name string, delta float64) error

	// GetCategory returns a snapshot of every metric in the category
	GetCategory(ctx context.Context, category string) (map[string]float64, error)

	// Close releases any backing connections
	Close() error
}

// NewKnowledgeBase creates a knowledge base for the configured provider
func NewKnowledgeBase(ctx context.Context, cfg config.KnowledgeConfig, logger *zap.Logger) (KnowledgeBase, error) {
	switch cfg.Provider {
	case "", "memory":
		return NewInMemoryKnowledgeBase(logger), nil
	case "redis":
		return NewRedisKnowledgeBase(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported knowledge base provider: %s", cfg.Provider)
	}
}

// InMemoryKnowledgeBase implements KnowledgeBase with process-local maps
type InMemoryKnowledgeBase struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	values  map[string]any
	metrics map[string]map[string]float64
}

var _ KnowledgeBase = (*InMemoryKnowledgeBase)(nil)

// NewInMemoryKnowledgeBase creates a new in-memory knowledge base
func NewInMemoryKnowledgeBase(logger *zap.Logger) *InMemoryKnowledgeBase {
	return &InMemoryKnowledgeBase{
		logger:  logger,
		values:  make(map[string]any),
		metrics: make(map[string]map[string]float64),
	}
}

// GetValue retrieves a stored value by key
func (kb *InMemoryKnowledgeBase) GetValue(ctx context.Context, key string) (any, bool, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	value, ok := kb.values[key]
	return value, ok, nil
}

// SetValue stores a value under the given key
func (kb *InMemoryKnowledgeBase) SetValue(ctx context.Context, key string, value any) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	kb.values[key] = value
	return nil
}

// GetMetric retrieves a metric value by category and name
func (kb *InMemoryKnowledgeBase) GetMetric(ctx context.Context, category string, name string) (float64, bool, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	cat, ok := kb.metrics[category]
	if !ok {
		return 0, false, nil
	}
	value, ok := cat[name]
	return value, ok, nil
}

// UpdateMetric sets a metric value for the given category and name
func (kb *InMemoryKnowledgeBase) UpdateMetric(ctx context.Context, category string, name string, value float64) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	cat, ok := kb.metrics[category]
	if !ok {
		cat = make(map[string]float64)
		kb.metrics[category] = cat
	}
	cat[name] = value
	return nil
}

// IncrementMetric adds delta to a metric, creating it at delta when absent
func (kb *InMemoryKnowledgeBase) IncrementMetric(ctx context.Context, category string, name string, delta float64) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	cat, ok := kb.metrics[category]
	if !ok {
		cat = make(map[string]float64)
		kb.metrics[category] = cat
	}
	cat[name] += delta
	return nil
}

// GetCategory returns a snapshot of every metric in the category
func (kb *InMemoryKnowledgeBase) GetCategory(ctx context.Context, category string) (map[string]float64, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	cat, ok := kb.metrics[category]
	if !ok {
		return map[string]float64{}, nil
	}
	snapshot := make(map[string]float64, len(cat))
	for name, value := range cat {
		snapshot[name] = value
	}
	return snapshot, nil
}

// Close is a no-op for the in-memory knowledge base
func (kb *InMemoryKnowledgeBase) Close() error {
	return nil
}
