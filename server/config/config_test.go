package config_test

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/apia-framework/a2a/server/config"
)

func TestNewWithDefaults(t *testing.T) {
	cfg, err := config.NewWithDefaults(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.ServerConfig.Port)
	assert.Equal(t, 120*time.Second, cfg.ServerConfig.ReadTimeout)
	assert.True(t, cfg.ServerConfig.DisableHealthcheckLog)
	assert.True(t, cfg.CapabilitiesConfig.Streaming)
	assert.False(t, cfg.CapabilitiesConfig.PushNotifications)
	assert.Equal(t, 100, cfg.QueueConfig.MaxSize)
	assert.Equal(t, "memory", cfg.KnowledgeConfig.Provider)
	assert.False(t, cfg.TelemetryConfig.Enable)
	assert.Equal(t, "9090", cfg.TelemetryConfig.MetricsConfig.Port)
}

func TestLoadWithLookuper(t *testing.T) {
	lookuper := envconfig.MapLookuper(map[string]string{
		"SERVER_PORT":                     "9000",
		"CAPABILITIES_PUSH_NOTIFICATIONS": "true",
		"QUEUE_MAX_SIZE":                  "5",
		"KB_PROVIDER":                     "redis",
		"KB_URL":                          "redis://cache:6379/1",
		"TELEMETRY_ENABLE":                "true",
		"NOTIFICATIONS_WEBHOOK_URL":       "http://hooks.internal/a2a",
	})

	base := &config.Config{
		AgentName:    "test-agent",
		AgentVersion: "0.1.0",
	}

	cfg, err := config.LoadWithLookuper(context.Background(), base, lookuper)
	require.NoError(t, err)

	assert.Equal(t, "test-agent", cfg.AgentName)
	assert.Equal(t, "9000", cfg.ServerConfig.Port)
	assert.True(t, cfg.CapabilitiesConfig.PushNotifications)
	assert.Equal(t, 5, cfg.QueueConfig.MaxSize)
	assert.Equal(t, "redis", cfg.KnowledgeConfig.Provider)
	assert.Equal(t, "redis://cache:6379/1", cfg.KnowledgeConfig.URL)
	assert.True(t, cfg.TelemetryConfig.Enable)
	assert.Equal(t, "http://hooks.internal/a2a", cfg.NotificationsConfig.WebhookURL)
}

func TestValidate(t *testing.T) {
	lookuper := envconfig.MapLookuper(map[string]string{
		"QUEUE_MAX_SIZE": "0",
	})
	cfg, err := config.LoadWithLookuper(context.Background(), nil, lookuper)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.QueueConfig.MaxSize)

	lookuper = envconfig.MapLookuper(map[string]string{
		"KB_PROVIDER": "etcd",
	})
	_, err = config.LoadWithLookuper(context.Background(), nil, lookuper)
	assert.Error(t, err)
}
