package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all application configuration
type Config struct {
	AgentName           string              // Build-time metadata, not configurable via environment
	AgentDescription    string              // Build-time metadata, not configurable via environment
	AgentVersion        string              // Build-time metadata, not configurable via environment
	AgentURL            string              `env:"AGENT_URL"`
	Debug               bool                `env:"DEBUG,default=false"`
	QueueConfig         QueueConfig         `env:",prefix=QUEUE_"`
	CapabilitiesConfig  CapabilitiesConfig  `env:",prefix=CAPABILITIES_"`
	ServerConfig        ServerConfig        `env:",prefix=SERVER_"`
	TelemetryConfig     TelemetryConfig     `env:",prefix=TELEMETRY_"`
	KnowledgeConfig     KnowledgeConfig     `env:",prefix=KB_"`
	NotificationsConfig NotificationsConfig `env:",prefix=NOTIFICATIONS_"`
}

// CapabilitiesConfig defines agent capabilities
type CapabilitiesConfig struct {
	Streaming              bool `env:"STREAMING,default=true" description:"Enable streaming support"`
	PushNotifications      bool `env:"PUSH_NOTIFICATIONS,default=false" description:"Enable push notifications"`
	StateTransitionHistory bool `env:"STATE_TRANSITION_HISTORY,default=false" description:"Enable state transition history"`
}

// QueueConfig holds streaming queue configuration
type QueueConfig struct {
	MaxSize int `env:"MAX_SIZE,default=100" description:"Buffered capacity of each per-task streaming queue"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host                  string        `env:"HOST,default=" description:"HTTP server host (empty for all interfaces)"`
	Port                  string        `env:"PORT,default=8000" description:"HTTP server port"`
	ReadTimeout           time.Duration `env:"READ_TIMEOUT,default=120s" description:"HTTP server read timeout"`
	WriteTimeout          time.Duration `env:"WRITE_TIMEOUT,default=120s" description:"HTTP server write timeout"`
	IdleTimeout           time.Duration `env:"IDLE_TIMEOUT,default=120s" description:"HTTP server idle timeout"`
	DisableHealthcheckLog bool          `env:"DISABLE_HEALTHCHECK_LOG,default=true" description:"Disable logging for health check requests"`
}

// MetricsConfig holds metrics server configuration
type MetricsConfig struct {
	Port         string        `env:"PORT,default=9090" description:"Metrics server port"`
	Host         string        `env:"HOST,default=" description:"Metrics server host (empty for all interfaces)"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT,default=30s" description:"Metrics server read timeout"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,default=30s" description:"Metrics server write timeout"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT,default=60s" description:"Metrics server idle timeout"`
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	Enable        bool          `env:"ENABLE,default=false" description:"Enable telemetry collection"`
	MetricsConfig MetricsConfig `env:",prefix=METRICS_"`
}

// KnowledgeConfig holds knowledge base configuration
type KnowledgeConfig struct {
	Provider string        `env:"PROVIDER,default=memory" description:"Knowledge base provider (memory, redis)"`
	URL      string        `env:"URL,default=redis://localhost:6379/0" description:"Connection URL for the redis provider"`
	Timeout  time.Duration `env:"TIMEOUT,default=5s" description:"Per-operation timeout for remote providers"`
}

// NotificationsConfig holds push notification delivery configuration
type NotificationsConfig struct {
	WebhookURL string        `env:"WEBHOOK_URL" description:"Webhook URL for terminal task state notifications"`
	Timeout    time.Duration `env:"TIMEOUT,default=10s" description:"Delivery timeout per notification"`
}

// Load loads configuration from environment variables, merging with the provided base config.
func Load(ctx context.Context, baseConfig *Config) (*Config, error) {
	return LoadWithLookuper(ctx, baseConfig, envconfig.OsLookuper())
}

// LoadWithLookuper creates and loads configuration using a custom lookuper and merges with user config
func LoadWithLookuper(ctx context.Context, baseConfig *Config, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config

	if baseConfig != nil {
		cfg = *baseConfig
	}

	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	})
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// NewWithDefaults creates a new config with defaults applied from struct tags.
func NewWithDefaults(ctx context.Context, baseConfig *Config) (*Config, error) {
	return LoadWithLookuper(ctx, baseConfig, &emptyLookuper{})
}

// emptyLookuper ensures that only default values from struct tags are used
type emptyLookuper struct{}

func (e *emptyLookuper) Lookup(key string) (string, bool) {
	return "", false
}

// Validate validates the configuration and applies corrections for invalid values
func (c *Config) Validate() error {
	if c.QueueConfig.MaxSize < 1 {
		c.QueueConfig.MaxSize = 1
	}

	switch c.KnowledgeConfig.Provider {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid knowledge base provider '%s'", c.KnowledgeConfig.Provider)
	}

	return nil
}
