package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"     validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Inference  InferenceConfig  `mapstructure:"inference"  validate:"required"`
	Monitoring MonitoringConfig `mapstructure:"monitoring" validate:"required"`
}

// ServerConfig contains all HTTP server related settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`

	// ShutdownTimeoutSeconds bounds how long graceful shutdown waits for
	// in-flight requests and background pipeline runs.
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds" validate:"gte=0"`
}

// DatabaseConfig contains the durable store settings. An empty URL selects
// the in-memory store, which is intended for local development and tests.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// InferenceConfig contains settings for the remote inference service that
// performs detection and maturation analysis.
type InferenceConfig struct {
	BaseURL        string `mapstructure:"base_url"        validate:"required,url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"required,gt=0"`
}

// MonitoringConfig contains settings for monitoring sessions and the
// processing status records.
type MonitoringConfig struct {
	// DefaultIntervalMinutes is the capture interval applied to websocket
	// connections before they are configured.
	DefaultIntervalMinutes int `mapstructure:"default_interval_minutes" validate:"required,gt=0"`

	// StatusTTLSeconds is how long pipeline status records stay readable
	// after creation before the store may expire them.
	StatusTTLSeconds int `mapstructure:"status_ttl_seconds" validate:"required,gt=0"`
}
