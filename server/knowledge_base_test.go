package server_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	zap "go.uber.org/zap"

	server "github.com/apia-framework/a2a/server"
	config "github.com/apia-framework/a2a/server/config"
)

func TestInMemoryKnowledgeBaseValues(t *testing.T) {
	kb := server.NewInMemoryKnowledgeBase(zap.NewNop())
	ctx := context.Background()

	_, ok, err := kb.GetValue(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kb.SetValue(ctx, "agent_status", "operational"))

	value, ok, err := kb.GetValue(ctx, "agent_status")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "operational", value)
}

func TestInMemoryKnowledgeBaseMetrics(t *testing.T) {
	kb := server.NewInMemoryKnowledgeBase(zap.NewNop())
	ctx := context.Background()

	_, ok, err := kb.GetMetric(ctx, "a2a_tasks", "received")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kb.UpdateMetric(ctx, "a2a_tasks", "received", 5))
	require.NoError(t, kb.IncrementMetric(ctx, "a2a_tasks", "received", 2))

	value, ok, err := kb.GetMetric(ctx, "a2a_tasks", "received")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 7.0, value)

	require.NoError(t, kb.IncrementMetric(ctx, "a2a_tasks", "failed", 1))

	category, err := kb.GetCategory(ctx, "a2a_tasks")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"received": 7, "failed": 1}, category)

	// snapshot is independent of the store
	category["received"] = 99
	value, _, err = kb.GetMetric(ctx, "a2a_tasks", "received")
	require.NoError(t, err)
	assert.Equal(t, 7.0, value)
}

func TestInMemoryKnowledgeBaseConcurrentIncrements(t *testing.T) {
	kb := server.NewInMemoryKnowledgeBase(zap.NewNop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, kb.IncrementMetric(ctx, "load", "ops", 1))
		}()
	}
	wg.Wait()

	value, ok, err := kb.GetMetric(ctx, "load", "ops")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 50.0, value)
}

func TestNewKnowledgeBaseProviderSelection(t *testing.T) {
	kb, err := server.NewKnowledgeBase(context.Background(), config.KnowledgeConfig{Provider: "memory"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &server.InMemoryKnowledgeBase{}, kb)

	_, err = server.NewKnowledgeBase(context.Background(), config.KnowledgeConfig{Provider: "dynamodb"}, zap.NewNop())
	assert.Error(t, err)
}
