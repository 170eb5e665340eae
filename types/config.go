package types

import (
	"time"
)

type ConsoleConfig struct {
	Name    string         `yaml:"name" json:"name" validate:"required"`
	API     *APIConfig     `yaml:"api" json:"api" validate:"required"`
	Stream  *StreamConfig  `yaml:"stream" json:"stream" validate:"required"`
	Queries *QueriesConfig `yaml:"queries" json:"queries" validate:"required"`
	Logger  *LoggerConfig  `yaml:"logger" json:"logger" validate:"required"`
	Metrics *MetricsConfig `yaml:"metrics" json:"metrics"`
}

type APIConfig struct {
	BaseURL         string                `yaml:"base_url" json:"base_url" validate:"required,url"`
	Timeout         time.Duration         `yaml:"timeout" json:"timeout" validate:"gt=0"`
	CacheTTL        time.Duration         `yaml:"cache_ttl" json:"cache_ttl" validate:"gt=0"`
	CacheMaxEntries int                   `yaml:"cache_max_entries" json:"cache_max_entries" validate:"min=1"`
	CacheCompactTo  int                   `yaml:"cache_compact_to" json:"cache_compact_to" validate:"min=0,ltefield=CacheMaxEntries"`
	Compression     bool                  `yaml:"compression" json:"compression"`
	CircuitBreaker  *CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold" validate:"min=0"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" json:"recovery_timeout"`
}

type StreamConfig struct {
	Path                 string        `yaml:"path" json:"path" validate:"required,startswith=/"`
	Transport            string        `yaml:"transport" json:"transport" validate:"oneof=sse websocket"`
	BaseDelay            time.Duration `yaml:"base_delay" json:"base_delay" validate:"gt=0"`
	MaxDelay             time.Duration `yaml:"max_delay" json:"max_delay" validate:"gtefield=BaseDelay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" json:"max_reconnect_attempts" validate:"min=0"`
}

type QueriesConfig struct {
	RefreshTimeout   time.Duration `yaml:"refresh_timeout" json:"refresh_timeout" validate:"gt=0"`
	AnalyticsRefresh string        `yaml:"analytics_refresh" json:"analytics_refresh"`
	Timezone         string        `yaml:"timezone" json:"timezone"`
}

type LoggerConfig struct {
	Level  string `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn warning error fatal"`
	Format string `yaml:"format" json:"format" validate:"omitempty,oneof=console json"`
	Output string `yaml:"output" json:"output" validate:"omitempty,oneof=stdout stderr file"`
	File   string `yaml:"file" json:"file" validate:"required_if=Output file"`
}

type MetricsConfig struct {
	Enabled         bool              `yaml:"enabled" json:"enabled"`
	Namespace       string            `yaml:"namespace" json:"namespace"`
	Subsystem       string            `yaml:"subsystem" json:"subsystem"`
	Labels          map[string]string `yaml:"labels" json:"labels"`
	EnableGoMetrics bool              `yaml:"enable_go_metrics" json:"enable_go_metrics"`
}
